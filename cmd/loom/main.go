// Package main provides the loom CLI, a batch-apply tool that drives the
// Loom persistence core against a SQLite database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
