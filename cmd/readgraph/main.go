package main

import (
	"fmt"
	"os"
)

var (
	Version = "v0.1.0"
	Commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
