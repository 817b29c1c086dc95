// Package main is the entry point for the mtsgrab application.
package main

import (
	"os"

	"mtsgrab/cmd/mtsgrab/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
