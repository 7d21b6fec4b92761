// Package main is the entry point for framelat, the per-frame video latency probe.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/framelat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
