package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cajal-go/shapedist/pkg/cellio"
)

func handleValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Error: icdm.csv path is required")
		fs.Usage()
		os.Exit(1)
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	if err := cellio.ValidateIntracellCSV(f); err != nil {
		fmt.Printf("Invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s is a valid intracell distance matrix file\n", path)
}
