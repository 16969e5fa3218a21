// Package main is the entry point for flowtap, the capture replay tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/flowtap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
