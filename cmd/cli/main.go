// Package main is the entry point for runctl, the runbox command line tool.
package main

import (
	"os"

	"runbox/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
