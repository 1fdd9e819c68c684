// Package cmd implements the ptyexec CLI.
//
// ptyexec drives interactive command-line programs through pseudo-terminals:
// it runs one command locally or against a server, serves the HTTP and
// WebSocket API, and inspects the sessions of a running server.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/config"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/server"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "ptyexec",
	Short: "Run interactive CLI commands through pseudo-terminals",
	Long: `ptyexec runs commands inside interactive command-line programs (REPLs,
coding assistants, shells) attached to pseudo-terminals, detects when each
command has finished, and streams its classified output.

  ptyexec run -- "explain this repository"
  ptyexec run --mode spawn --binary /bin/sh -- "make test"
  ptyexec serve --port 8000
  ptyexec sessions --addr http://localhost:8000

Configuration is read from the file named by --config or $PTYEXEC_CONFIG
(YAML or TOML), then from environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML or TOML); defaults to $"+config.EnvConfigFile)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write logs to stderr")
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger returns a no-op logger unless --verbose is set
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	logCfg := cfg.Logging
	logCfg.Development = true
	logger, err := server.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}
	return logger.Logger, nil
}

// isTerminal reports whether f is attached to a terminal
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ExitError carries the process exit status for a command that did not
// complete.
type ExitError struct {
	Code    int
	Status  session.Status
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("command %s", e.Status)
	}
	return fmt.Sprintf("command %s: %s", e.Status, e.Message)
}

// exitErrorFor maps a terminal response onto an exit status
func exitErrorFor(resp executor.CommandResponse) error {
	switch resp.Status {
	case session.StatusCompleted:
		if resp.ExitCode != nil && *resp.ExitCode != 0 {
			return &ExitError{Code: *resp.ExitCode, Status: resp.Status}
		}
		return nil
	case session.StatusCancelled:
		return &ExitError{Code: 130, Status: resp.Status, Message: resp.Error}
	default:
		code := 1
		if resp.ExitCode != nil && *resp.ExitCode > 0 {
			code = *resp.ExitCode
		}
		return &ExitError{Code: code, Status: resp.Status, Message: resp.Error}
	}
}
