package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/arthur-debert/keystash/cmd/keystash"
	"github.com/arthur-debert/keystash/internal/version"
)

func main() {
	rootCmd := keystash.NewRootCmd()

	header := &doc.GenManHeader{
		Title:   "KEYSTASH",
		Section: "1",
		Source:  "keystash " + version.Version,
		Manual:  "keystash manual",
	}

	// One page per command when a directory is given
	if len(os.Args) > 1 {
		if err := os.MkdirAll(os.Args[1], 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		if err := doc.GenManTree(rootCmd, header, os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating man pages: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := doc.GenMan(rootCmd, header, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating man page: %v\n", err)
		os.Exit(1)
	}
}
