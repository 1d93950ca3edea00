// Package errs defines the shared error-kind taxonomy used across the
// shapedist engine, so that callers can errors.Is against a stable sentinel
// regardless of which package produced the error.
package errs

import "errors"

var (
	// ErrMalformedInput marks a fatal, never-recovered input validation
	// failure: non-square distance matrix, asymmetry beyond tolerance, NaN
	// entries, or a measure that does not sum to one within tolerance.
	ErrMalformedInput = errors.New("shapedist: malformed input")

	// ErrDegenerateClustering marks a non-fatal condition: num_clusters
	// exceeded N, or agglomerative clustering collapsed to fewer clusters
	// than requested. Callers should log and continue with the actual
	// cluster count.
	ErrDegenerateClustering = errors.New("shapedist: degenerate clustering")

	// ErrDispatchFailed marks a fatal dispatcher worker error. The
	// refinement controller aborts the whole run on this error; no partial
	// output is produced.
	ErrDispatchFailed = errors.New("shapedist: dispatch failed")
)
