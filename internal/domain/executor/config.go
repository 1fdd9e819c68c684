package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
	"github.com/GriffinCanCode/ptyexec/internal/pty"
)

// Config holds executor settings
type Config struct {
	// BinaryPath is the interactive CLI run in every session
	BinaryPath string
	Args       []string
	Env        map[string]string
	Mode       session.Mode

	MaxConcurrent  int
	DefaultTimeout time.Duration
	IdleTimeout    time.Duration
	ReleaseIdle    bool
	QuietPeriod    time.Duration
	SettleDelay    time.Duration
	GracePeriod    time.Duration

	MaxOutputBytes int
	HistoryLimit   int
	StatsWindow    int

	SlashPrefix    string
	LineTerminator string
	Sentinel       bool

	Cols int
	Rows int

	CompletionPhrases []string
	FailurePhrases    []string
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		BinaryPath:        "claude",
		Mode:              session.ModeREPL,
		MaxConcurrent:     4,
		DefaultTimeout:    5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
		QuietPeriod:       3 * time.Second,
		SettleDelay:       300 * time.Millisecond,
		GracePeriod:       2 * time.Second,
		MaxOutputBytes:    4 << 20,
		HistoryLimit:      50,
		StatsWindow:       1000,
		SlashPrefix:       "/",
		LineTerminator:    "\r",
		Cols:              pty.DefaultCols,
		Rows:              pty.DefaultRows,
		CompletionPhrases: session.DefaultCompletionPhrases(),
		FailurePhrases:    session.DefaultFailurePhrases(),
	}
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("executor: binary path is required")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("executor: max concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	switch c.Mode {
	case "", session.ModeREPL, session.ModeSpawn:
	default:
		return fmt.Errorf("executor: unknown mode %q", c.Mode)
	}
	if c.DefaultTimeout < 0 || c.IdleTimeout < 0 || c.QuietPeriod < 0 || c.GracePeriod < 0 {
		return errors.New("executor: durations must not be negative")
	}
	if _, err := pty.SizeOf(c.Cols, c.Rows); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	return nil
}
