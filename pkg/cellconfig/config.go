// Package cellconfig holds the runtime configuration for a shapedist run:
// clustering resolution, parallelism, and the refinement controller's
// accuracy target.
package cellconfig

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all shapedist run configuration.
type Config struct {
	Quantization QuantizationConfig
	Dispatch     DispatchConfig
	Refinement   RefinementConfig
}

// QuantizationConfig controls qMMS construction.
type QuantizationConfig struct {
	NumClusters int // clusters per cell (default: 30)
}

// DispatchConfig controls the parallel worker pool.
type DispatchConfig struct {
	NumWorkers       int     // worker goroutines (default: runtime.NumCPU())
	Chunksize        int     // job keys per dispatched chunk (default: 1)
	MaxJobsPerSecond float64 // throttle; 0 disables rate limiting
}

// RefinementConfig controls the adaptive k-NN controller.
type RefinementConfig struct {
	NearestNeighbors int     // k (default: 10)
	Accuracy         float64 // alpha in [0,1] (default: 0.95)
	Bins             int     // error-model resolution (default: 200)
	Verbose          bool
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Quantization: QuantizationConfig{
			NumClusters: 30,
		},
		Dispatch: DispatchConfig{
			NumWorkers:       0,
			Chunksize:        1,
			MaxJobsPerSecond: 0,
		},
		Refinement: RefinementConfig{
			NearestNeighbors: 10,
			Accuracy:         0.95,
			Bins:             200,
			Verbose:          false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables, overriding
// Default() values where set.
func LoadFromEnv() *Config {
	cfg := Default()

	if nc := os.Getenv("SHAPEDIST_NUM_CLUSTERS"); nc != "" {
		if v, err := strconv.Atoi(nc); err == nil {
			cfg.Quantization.NumClusters = v
		}
	}
	if nw := os.Getenv("SHAPEDIST_NUM_WORKERS"); nw != "" {
		if v, err := strconv.Atoi(nw); err == nil {
			cfg.Dispatch.NumWorkers = v
		}
	}
	if cs := os.Getenv("SHAPEDIST_CHUNKSIZE"); cs != "" {
		if v, err := strconv.Atoi(cs); err == nil {
			cfg.Dispatch.Chunksize = v
		}
	}
	if rl := os.Getenv("SHAPEDIST_MAX_JOBS_PER_SECOND"); rl != "" {
		if v, err := strconv.ParseFloat(rl, 64); err == nil {
			cfg.Dispatch.MaxJobsPerSecond = v
		}
	}
	if k := os.Getenv("SHAPEDIST_NEAREST_NEIGHBORS"); k != "" {
		if v, err := strconv.Atoi(k); err == nil {
			cfg.Refinement.NearestNeighbors = v
		}
	}
	if acc := os.Getenv("SHAPEDIST_ACCURACY"); acc != "" {
		if v, err := strconv.ParseFloat(acc, 64); err == nil {
			cfg.Refinement.Accuracy = v
		}
	}
	if bins := os.Getenv("SHAPEDIST_BINS"); bins != "" {
		if v, err := strconv.Atoi(bins); err == nil {
			cfg.Refinement.Bins = v
		}
	}
	if verbose := os.Getenv("SHAPEDIST_VERBOSE"); verbose == "true" {
		cfg.Refinement.Verbose = true
	}

	return cfg
}

// Validate checks if the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Quantization.NumClusters < 1 {
		return fmt.Errorf("invalid num_clusters: %d (must be >= 1)", c.Quantization.NumClusters)
	}
	if c.Dispatch.NumWorkers < 0 {
		return fmt.Errorf("invalid num_workers: %d (must be >= 0, 0 selects NumCPU)", c.Dispatch.NumWorkers)
	}
	if c.Dispatch.Chunksize < 1 {
		return fmt.Errorf("invalid chunksize: %d (must be >= 1)", c.Dispatch.Chunksize)
	}
	if c.Dispatch.MaxJobsPerSecond < 0 {
		return fmt.Errorf("invalid max_jobs_per_second: %v (must be >= 0)", c.Dispatch.MaxJobsPerSecond)
	}
	if c.Refinement.NearestNeighbors < 1 {
		return fmt.Errorf("invalid nearest_neighbors: %d (must be >= 1)", c.Refinement.NearestNeighbors)
	}
	if c.Refinement.Accuracy < 0 || c.Refinement.Accuracy > 1 {
		return fmt.Errorf("invalid accuracy: %v (must be in [0,1])", c.Refinement.Accuracy)
	}
	if c.Refinement.Bins < 1 {
		return fmt.Errorf("invalid bins: %d (must be >= 1)", c.Refinement.Bins)
	}
	return nil
}
