package main

import (
	"fmt"
	"os"

	"github.com/cajal-go/shapedist/pkg/cellconfig"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "validate":
		handleValidate(os.Args[2:])
	case "slb":
		handleSLB(os.Args[2:])
	case "run":
		handleRun(os.Args[2:])
	case "version":
		fmt.Printf("shapedist version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`shapedist - pairwise shape-distance computation engine

Usage:
  shapedist validate <icdm.csv>
  shapedist slb <icdm.csv> <out.csv>
  shapedist run <icdm.csv> <out.csv> [flags]
  shapedist version

Run "shapedist <command> -h" for flags on a given command.`)
}

func loadConfig() *cellconfig.Config {
	return cellconfig.LoadFromEnv()
}
