package executor

import (
	"time"

	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
)

// Request describes one command execution
type Request struct {
	Command   string
	SessionID string
	// Timeout bounds both the admission wait and the running time; zero uses
	// the configured default.
	Timeout     time.Duration
	ProjectPath string
	Env         map[string]string
}

// CommandResponse is one snapshot of a command's progress
type CommandResponse struct {
	CommandID  string                  `json:"command_id"`
	SessionID  string                  `json:"session_id"`
	Status     session.Status          `json:"status"`
	Output     []session.OutputMessage `json:"output"`
	Error      string                  `json:"error,omitempty"`
	ExitCode   *int                    `json:"exit_code,omitempty"`
	DurationMs *int64                  `json:"duration_ms,omitempty"`
}

// Terminal reports whether this is the last response of its command
func (r CommandResponse) Terminal() bool {
	return r.Status.Terminal()
}

func responseFrom(snap session.CommandSnapshot) CommandResponse {
	resp := CommandResponse{
		CommandID: snap.ID,
		SessionID: snap.SessionID,
		Status:    snap.Status,
		Output:    snap.Output,
		Error:     snap.Error,
		ExitCode:  snap.ExitCode,
	}
	if !snap.StartedAt.IsZero() {
		ms := snap.Duration().Milliseconds()
		resp.DurationMs = &ms
	}
	return resp
}

func failedResponse(commandID, sessionID string, err error) CommandResponse {
	return CommandResponse{
		CommandID: commandID,
		SessionID: sessionID,
		Status:    session.StatusFailed,
		Output:    []session.OutputMessage{},
		Error:     err.Error(),
	}
}
