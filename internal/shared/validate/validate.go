// Package validate bounds the size and shape of client-supplied values
// before they reach the executor.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Size limits (in bytes)
const (
	MaxMessageSize = 256 * 1024 // single WebSocket frame
	MaxCommandSize = 64 * 1024
	MaxInputSize   = 16 * 1024
	MaxEnvSize     = 64 * 1024
	MaxPathLength  = 4096
	MaxIDLength    = 128
	MaxEnvEntries  = 128
)

// SessionIDPattern allows alphanumeric, dots, hyphens, and underscores
var SessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Error is a validation failure on a named field
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Command checks a command line. Blank commands are rejected by the
// executor itself and pass here.
func Command(cmd string) error {
	if len(cmd) > MaxCommandSize {
		return invalid("command", "must not exceed %d bytes", MaxCommandSize)
	}
	if strings.ContainsRune(cmd, 0) {
		return invalid("command", "contains invalid characters")
	}
	return nil
}

// Input checks bytes destined for a running command's terminal
func Input(data string) error {
	if data == "" {
		return invalid("data", "is required")
	}
	if len(data) > MaxInputSize {
		return invalid("data", "must not exceed %d bytes", MaxInputSize)
	}
	return nil
}

// SessionID checks a caller-chosen session id. Empty is allowed.
func SessionID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxIDLength {
		return invalid("session_id", "must not exceed %d characters", MaxIDLength)
	}
	if !SessionIDPattern.MatchString(id) {
		return invalid("session_id", "contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)")
	}
	return nil
}

// ProjectPath checks a working directory override. Empty is allowed.
func ProjectPath(path string) error {
	if len(path) > MaxPathLength {
		return invalid("project_path", "must not exceed %d characters", MaxPathLength)
	}
	if strings.ContainsRune(path, 0) {
		return invalid("project_path", "contains invalid characters")
	}
	return nil
}

// Env checks an environment overlay
func Env(env map[string]string) error {
	if len(env) > MaxEnvEntries {
		return invalid("env", "must not exceed %d entries", MaxEnvEntries)
	}
	total := 0
	for k, v := range env {
		if !envKeyPattern.MatchString(k) {
			return invalid("env", "has invalid key %q", k)
		}
		if strings.ContainsRune(v, 0) {
			return invalid("env", "value for %q contains invalid characters", k)
		}
		total += len(k) + len(v) + 2
	}
	if total > MaxEnvSize {
		return invalid("env", "must not exceed %d bytes", MaxEnvSize)
	}
	return nil
}

// Request checks every field of an execute request, returning the first failure
func Request(command, sessionID, projectPath string, env map[string]string) error {
	for _, err := range []error{
		Command(command),
		SessionID(sessionID),
		ProjectPath(projectPath),
		Env(env),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
