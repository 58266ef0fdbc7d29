// Package main is the entry point for the nitrix terminal client.
package main

import (
	"fmt"
	"os"

	"github.com/ThomasJRyan/Nitrix/internal/cli"
)

// Version information (set by goreleaser)
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
