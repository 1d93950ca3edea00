package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cajal-go/shapedist/pkg/cellio"
	"github.com/cajal-go/shapedist/pkg/dispatch"
	"github.com/cajal-go/shapedist/pkg/slb"
)

func handleSLB(args []string) {
	fs := flag.NewFlagSet("slb", flag.ExitOnError)
	workers := fs.Int("workers", 0, "worker goroutines (0 selects NumCPU)")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Println("Error: icdm.csv and out.csv paths are required")
		fs.Usage()
		os.Exit(1)
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

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

	dmat, err := slb.Matrix(context.Background(), spaces, dispatch.Options{Workers: *workers})
	if err != nil {
		fmt.Printf("Error computing SLB matrix: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, len(cells))
	for i, c := range cells {
		names[i] = c.Name
	}
	if err := cellio.WriteSLBCSVFile(outPath, names, dmat); err != nil {
		fmt.Printf("Error writing %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote SLB matrix for %d cells to %s\n", len(cells), outPath)
}
