package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionTerminated is returned for work against a dead session and
	// fails every command still queued or running when a session dies.
	ErrSessionTerminated = errors.New("session terminated")

	errCancelled = errors.New("command cancelled")

	// errCompletionAmbiguous resolves output that grew past the safety cap
	// without any completion marker.
	errCompletionAmbiguous = errors.New("no completion marker before output limit")
)

// TimeoutError reports that a command exceeded its allotted time
type TimeoutError struct {
	Timeout time.Duration
	// Admission is set when the time ran out waiting for an admission ticket
	Admission bool
}

func (e *TimeoutError) Error() string {
	if e.Admission {
		return fmt.Sprintf("timed out after %s waiting for an execution slot", e.Timeout)
	}
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// IOError reports a PTY read or write failure in the middle of a command
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pty %s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// OutputError is a failure detected from the command's own output
type OutputError struct {
	Rule     string
	ExitCode *int
	Excerpt  string
}

func (e *OutputError) Error() string {
	msg := "command failed"
	if e.ExitCode != nil {
		msg = fmt.Sprintf("command exited with code %d", *e.ExitCode)
	}
	if e.Excerpt == "" {
		return msg
	}
	return msg + ": " + e.Excerpt
}

func terminatedError(cause error) error {
	switch {
	case cause == nil:
		return ErrSessionTerminated
	case errors.Is(cause, ErrSessionTerminated):
		return cause
	default:
		return fmt.Errorf("%w: %v", ErrSessionTerminated, cause)
	}
}
