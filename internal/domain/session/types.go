package session

import (
	"time"
)

// State is the lifecycle state of a session
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateBusy         State = "busy"
	StateIdle         State = "idle"
	StateTerminated   State = "terminated"
)

var transitions = map[State][]State{
	StateInitializing: {StateReady, StateTerminated},
	StateReady:        {StateBusy, StateIdle, StateTerminated},
	StateBusy:         {StateReady, StateTerminated},
	StateIdle:         {StateReady, StateTerminated},
}

// CanTransition reports whether from -> to is a legal state change
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Status is the lifecycle status of a command
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// MessageType tags a piece of command output
type MessageType string

const (
	MessageStdout MessageType = "stdout"
	MessageStderr MessageType = "stderr"
	MessageSystem MessageType = "system"
	MessageError  MessageType = "error"

	// messageHidden marks lines consumed by the session (exit sentinels)
	messageHidden MessageType = "hidden"
)

// OutputMessage is one logical chunk of output of a single type
type OutputMessage struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Partial   bool        `json:"is_partial"`
}

// Mode selects how non-slash commands reach a process
type Mode string

const (
	// ModeREPL writes every command into the session's long-lived process
	ModeREPL Mode = "repl"
	// ModeSpawn starts a dedicated process per non-slash command
	ModeSpawn Mode = "spawn"
)

// CommandSnapshot is a consistent copy of a command's state
type CommandSnapshot struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	Text          string          `json:"text"`
	Status        Status          `json:"status"`
	Output        []OutputMessage `json:"output"`
	Error         string          `json:"error,omitempty"`
	Err           error           `json:"-"`
	ExitCode      *int            `json:"exit_code,omitempty"`
	Dedicated     bool            `json:"dedicated"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     time.Time       `json:"started_at,omitempty"`
	CompletedAt   time.Time       `json:"completed_at,omitempty"`
	AdmissionWait time.Duration   `json:"admission_wait"`
}

// Duration is the running time, measured up to now for running commands
func (s CommandSnapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.CompletedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Info is the public representation of a session
type Info struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	Mode          Mode      `json:"mode"`
	ProjectPath   string    `json:"project_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	Queued        int       `json:"queued"`
	ActiveCommand string    `json:"active_command,omitempty"`
	Pid           int       `json:"pid,omitempty"`
	Cols          uint16    `json:"cols"`
	Rows          uint16    `json:"rows"`
}
