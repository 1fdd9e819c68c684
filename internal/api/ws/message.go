package ws

import (
	"time"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
)

// Client message types
const (
	TypeExecute = "execute"
	TypeInput   = "input"
	TypeResize  = "resize"
	TypeCancel  = "cancel"
	TypePing    = "ping"
)

// Server frame types
const (
	TypeSystem   = "system"
	TypeResponse = "response"
	TypeError    = "error"
	TypePong     = "pong"
)

// Message is a client request
type Message struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	Command     string            `json:"command,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	TimeoutMs   int64             `json:"timeout_ms,omitempty"`
	ProjectPath string            `json:"project_path,omitempty"`
	Env         map[string]string `json:"env,omitempty"`

	CommandID string `json:"command_id,omitempty"`
	Data      string `json:"data,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
}

// Frame is a server message
type Frame struct {
	Type         string                    `json:"type"`
	RequestID    string                    `json:"request_id,omitempty"`
	ConnectionID string                    `json:"connection_id,omitempty"`
	Message      string                    `json:"message,omitempty"`
	Response     *executor.CommandResponse `json:"response,omitempty"`
	Timestamp    int64                     `json:"timestamp"`
}

func newFrame(frameType, requestID string) Frame {
	return Frame{
		Type:      frameType,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
