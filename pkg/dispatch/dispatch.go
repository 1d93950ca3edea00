// Package dispatch implements the parallel work-dispatcher collaborator
// contract: map_unordered(init_payload, keys, fn) -> iterator
// of results. The payload is broadcast once; fn is pure in (key, payload);
// results may arrive in any order, so the caller must treat the pairing
// (key, result) as the unit of identity, not arrival order.
//
// This package ships the in-process goroutine worker-pool realization of
// that contract. A distributed or process-pool dispatcher can be swapped in
// by satisfying the same functional shape used by every caller in this
// module (pkg/slb, pkg/qmms, pkg/refine).
package dispatch

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/time/rate"

	"github.com/cajal-go/shapedist/pkg/errs"
	"github.com/cajal-go/shapedist/pkg/obs"
)

// Options configures a dispatch run.
type Options struct {
	// Workers is the worker pool size (num_processes). Defaults to
	// runtime.NumCPU() when <= 0.
	Workers int
	// Chunksize is how many keys each worker claims per queue pop.
	// Defaults to 1 when <= 0.
	Chunksize int
	// MaxJobsPerSecond throttles job submission when > 0. Useful when the
	// dispatcher shares a machine with other work; zero disables
	// throttling.
	MaxJobsPerSecond float64
	// Metrics, if non-nil, receives a DispatchPanicsTotal increment for
	// every worker panic observed during the run.
	Metrics *obs.Metrics
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

func (o Options) chunksize() int {
	if o.Chunksize > 0 {
		return o.Chunksize
	}
	return 1
}

// MapUnordered applies fn(key, payload) for every key in keys using a pool
// of workers, broadcasting payload once. Results are streamed back on the
// returned channel in completion order, not submission order. The error
// channel receives exactly one value (nil on success, errs.ErrDispatchFailed
// if any worker panicked, or ctx's error if ctx was cancelled) once the run
// completes or aborts, and is safe to read after (or while) draining the
// results channel.
//
// If fn panics for any key, the run aborts: no further jobs are submitted,
// workers stop before their next key, and the error channel reports
// errs.ErrDispatchFailed. Results sent before the abort still arrive on the
// results channel; every caller in this module discards its output when the
// error channel reports a failure, so a worker error yields no partial output.
func MapUnordered[K any, P any, R any](
	ctx context.Context,
	payload P,
	keys []K,
	fn func(K, P) R,
	opts Options,
) (<-chan R, <-chan error) {
	results := make(chan R, opts.chunksize())
	errc := make(chan error, 1)

	if len(keys) == 0 {
		close(results)
		errc <- nil
		close(errc)
		return results, errc
	}

	jobs := make(chan []K)
	var limiter *rate.Limiter
	if opts.MaxJobsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxJobsPerSecond), opts.chunksize())
	}

	runCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	var firstErr error
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	workers := opts.workers()
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				for _, k := range chunk {
					select {
					case <-runCtx.Done():
						return
					default:
					}
					if r, ok := safeCall(fn, k, payload, fail, opts.Metrics); ok {
						select {
						case results <- r:
						case <-runCtx.Done():
							return
						}
					} else {
						return
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		chunk := opts.chunksize()
		for start := 0; start < len(keys); start += chunk {
			end := start + chunk
			if end > len(keys) {
				end = len(keys)
			}
			if limiter != nil {
				if err := limiter.WaitN(runCtx, end-start); err != nil {
					return
				}
			}
			select {
			case jobs <- keys[start:end]:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
		cancel()
		if firstErr != nil {
			errc <- errs.ErrDispatchFailed
		} else if ctx.Err() != nil {
			errc <- ctx.Err()
		} else {
			errc <- nil
		}
		close(errc)
	}()

	return results, errc
}

func safeCall[K any, P any, R any](fn func(K, P) R, k K, payload P, fail func(error), metrics *obs.Metrics) (result R, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if metrics != nil {
				metrics.DispatchPanicsTotal.Inc()
			}
			fail(errs.ErrDispatchFailed)
			ok = false
		}
	}()
	return fn(k, payload), true
}
