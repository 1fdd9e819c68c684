// Package main is the entry point for ptyexec.
package main

import (
	"errors"
	"os"

	"github.com/GriffinCanCode/ptyexec/cmd/ptyexec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
