// Package main provides the entry point for the contentsearch CLI.
package main

import (
	"os"

	"github.com/karolberezicki/content-search-lucene/cmd/contentsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
