// SPDX-License-Identifier: MIT

// validate checks a streamsift YAML configuration file without starting the
// daemon. It runs the same loader the daemon uses, so environment overrides
// apply here exactly as they would at startup.
//
// Usage:
//
//	validate -f config.yaml
//
// Exit codes:
//   - 0: configuration is valid
//   - 1: configuration is invalid (parse or validation error)
//   - 2: usage error
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/streamsift/streamsift/internal/config"
	"github.com/streamsift/streamsift/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	var showVersion bool
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Version)
		return 0
	}

	if file == "" {
		fmt.Fprintln(stderr, "error: -file is required")
		fmt.Fprintln(stderr, "usage: validate -f config.yaml")
		return 2
	}

	if _, err := config.NewLoader(file, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "configuration error in %s:\n  %v\n", file, err)
		return 1
	}

	fmt.Fprintf(stdout, "%s is valid\n", file)
	return 0
}
