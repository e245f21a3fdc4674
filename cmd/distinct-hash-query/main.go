package main

import (
	"os"

	"distinct-hash/internal/exitcodes"
	"distinct-hash/internal/logging"
)

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		logging.PrintFatal(os.Stderr, "%v", err)
		os.Exit(exitcodes.Failure)
	}
}
