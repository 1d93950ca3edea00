package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cajal-go/shapedist/pkg/cellio"
	"github.com/cajal-go/shapedist/pkg/dispatch"
	"github.com/cajal-go/shapedist/pkg/obs"
	"github.com/cajal-go/shapedist/pkg/qmms"
	"github.com/cajal-go/shapedist/pkg/refine"
	"github.com/cajal-go/shapedist/pkg/slb"
)

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg := loadConfig()

	numClusters := fs.Int("num-clusters", cfg.Quantization.NumClusters, "clusters per cell")
	workers := fs.Int("workers", cfg.Dispatch.NumWorkers, "worker goroutines (0 selects NumCPU)")
	k := fs.Int("k", cfg.Refinement.NearestNeighbors, "nearest neighbors per cell")
	accuracy := fs.Float64("accuracy", cfg.Refinement.Accuracy, "accuracy target in [0,1]")
	verbose := fs.Bool("verbose", cfg.Refinement.Verbose, "log refinement round diagnostics")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Println("Error: icdm.csv and out.csv paths are required")
		fs.Usage()
		os.Exit(1)
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	level := obs.Info
	if *verbose {
		level = obs.Debug
	}
	logger := obs.NewLogger(level, os.Stderr)
	metrics := obs.NewMetrics()

	cells, err := cellio.ReadIntracellCSVFile(inPath)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", inPath, err)
		os.Exit(1)
	}
	spaces, err := cellio.ToMMSpaces(cells)
	if err != nil {
		fmt.Printf("Error validating cells: %v\n", err)
		os.Exit(1)
	}
	names := make([]string, len(cells))
	for i, c := range cells {
		names[i] = c.Name
	}

	ctx := context.Background()
	dispatchOpts := dispatch.Options{Workers: *workers, Metrics: metrics}

	logger.Info("computing SLB matrix")
	slbDmat, err := slb.Matrix(ctx, spaces, dispatchOpts)
	if err != nil {
		fmt.Printf("Error computing SLB matrix: %v\n", err)
		os.Exit(1)
	}

	logger.Info("building quantized spaces")
	jobs := make([]qmms.CellJob, len(spaces))
	for i, sp := range spaces {
		jobs[i] = qmms.CellJob{Cell: sp}
	}
	qmmsArr, err := qmms.BuildAll(ctx, jobs, qmms.Options{NumClusters: *numClusters, Logger: logger, Metrics: metrics}, dispatchOpts)
	if err != nil {
		fmt.Printf("Error quantizing cells: %v\n", err)
		os.Exit(1)
	}

	logger.Info("running adaptive refinement")
	res, err := refine.Run(ctx, qmmsArr, slbDmat, refine.Params{
		K:       *k,
		Alpha:   *accuracy,
		Logger:  logger,
		Metrics: metrics,
	}, dispatchOpts)
	if err != nil {
		fmt.Printf("Error during refinement: %v\n", err)
		os.Exit(1)
	}

	if err := cellio.WriteResultCSVFile(outPath, names, res.Distance, res.Known); err != nil {
		fmt.Printf("Error writing %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote qGW distance matrix for %d cells to %s\n", len(cells), outPath)
}
