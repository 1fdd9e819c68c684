package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ptyexec/internal/client"
	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
	"github.com/GriffinCanCode/ptyexec/internal/pty"
)

// runCmd executes one command and prints its output.
var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command>",
	Short: "Run one command and print its output",
	Long: `Runs a command in a session of the configured interactive program and
prints its output as it is classified. Standard output messages go to stdout;
errors, warnings and system notes go to stderr.

The process exits 0 when the command completes, with the command's exit code
when one is known, 130 when interrupted and 1 otherwise.

Examples:
  ptyexec run -- "summarize README.md"
  ptyexec run --binary /bin/bash --mode spawn -- "ls -la"
  ptyexec run --remote http://localhost:8000 --session sess-dev -- /status`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("binary", "", "interactive program to run (overrides config)")
	runCmd.Flags().StringSlice("arg", nil, "argument passed to the program (repeatable)")
	runCmd.Flags().String("mode", "", "execution mode: repl or spawn")
	runCmd.Flags().Duration("timeout", 0, "command timeout (0 uses the configured default)")
	runCmd.Flags().String("project", "", "working directory of the session")
	runCmd.Flags().String("session", "", "session id to run in")
	runCmd.Flags().String("remote", "", "run on a ptyexec server at this address instead of locally")
	runCmd.Flags().Bool("sentinel", false, "append an exit-code sentinel to commands (shell-like programs)")
}

func runCommand(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	project, _ := cmd.Flags().GetString("project")
	sessionID, _ := cmd.Flags().GetString("session")
	remote, _ := cmd.Flags().GetString("remote")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), isTerminal(os.Stderr))
	var final executor.CommandResponse
	handle := func(resp executor.CommandResponse) error {
		p.print(resp)
		final = resp
		return nil
	}

	if remote != "" {
		err := client.New(remote).Execute(ctx, client.ExecuteRequest{
			Command:     text,
			SessionID:   sessionID,
			TimeoutMs:   timeout.Milliseconds(),
			ProjectPath: project,
		}, handle)
		if err != nil && !(errors.Is(err, context.Canceled) && final.CommandID != "") {
			return err
		}
	} else {
		exec, err := newLocalExecutor(cmd)
		if err != nil {
			return err
		}
		defer exec.Cleanup()

		for resp := range exec.Execute(ctx, executor.Request{
			Command:     text,
			SessionID:   sessionID,
			Timeout:     timeout,
			ProjectPath: project,
		}) {
			_ = handle(resp)
		}
	}

	if final.CommandID == "" {
		return errors.New("no response received")
	}
	if !final.Terminal() {
		// Interrupted before the command finished.
		final.Status = session.StatusCancelled
	}
	p.summary(final)
	return exitErrorFor(final)
}

func newLocalExecutor(cmd *cobra.Command) (*executor.Executor, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	execCfg := cfg.Executor.ToExecutor()
	if binary, _ := cmd.Flags().GetString("binary"); binary != "" {
		execCfg.BinaryPath = binary
	}
	if cmd.Flags().Changed("arg") {
		execCfg.Args, _ = cmd.Flags().GetStringSlice("arg")
	}
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		execCfg.Mode = session.Mode(mode)
	}
	if cmd.Flags().Changed("sentinel") {
		execCfg.Sentinel, _ = cmd.Flags().GetBool("sentinel")
	}
	// A one-shot run never outlives its command.
	execCfg.IdleTimeout = 0

	return executor.New(execCfg, pty.NewManager(logger), logger)
}
