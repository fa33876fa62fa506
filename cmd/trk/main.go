// Package main provides the entry point for the trk CLI.
package main

import (
	"os"

	"github.com/trkhq/trk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
