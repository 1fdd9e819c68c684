package pty

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	DefaultCols = 80
	DefaultRows = 24
)

// ErrClosed is returned by writes and resizes on a terminated terminal.
var ErrClosed = errors.New("pty: terminal closed")

// Size is a terminal window size in character cells.
type Size struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// OrDefault fills zero dimensions with the 80x24 default.
func (s Size) OrDefault() Size {
	if s.Cols == 0 {
		s.Cols = DefaultCols
	}
	if s.Rows == 0 {
		s.Rows = DefaultRows
	}
	return s
}

// SizeOf validates int dimensions coming from callers.
func SizeOf(cols, rows int) (Size, error) {
	if cols <= 0 || rows <= 0 || cols > 0xFFFF || rows > 0xFFFF {
		return Size{}, fmt.Errorf("invalid terminal size %dx%d", cols, rows)
	}
	return Size{Cols: uint16(cols), Rows: uint16(rows)}, nil
}

// SpawnSpec describes the process to attach to a new PTY.
type SpawnSpec struct {
	Path string
	Args []string
	// Env is layered over the parent environment.
	Env map[string]string
	Dir string
}

// environ builds the child environment: parent env, TERM, then the overlay.
func (s SpawnSpec) environ() []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color")
	for key, value := range s.Env {
		env = append(env, key+"="+value)
	}
	return env
}

// SpawnError reports that a process could not be started on a PTY.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Terminal is the master side of a PTY with exactly one attached process.
type Terminal interface {
	// Chunks returns the output stream. The channel is closed at end of stream;
	// Err then reports a read failure, or nil for a clean EOF.
	Chunks() <-chan []byte
	Write(p []byte) (int, error)
	Resize(size Size) error
	Size() Size
	// Terminate stops the process group, escalating to SIGKILL after grace,
	// and releases the descriptors. Safe to call more than once.
	Terminate(grace time.Duration) error
	// Done is closed once the process has been reaped.
	Done() <-chan struct{}
	ExitCode() int
	Err() error
	Pid() int
}

// Allocator creates terminals. Manager is the production implementation;
// ptytest provides a scripted fake.
type Allocator interface {
	Allocate(spec SpawnSpec, size Size) (Terminal, error)
}
