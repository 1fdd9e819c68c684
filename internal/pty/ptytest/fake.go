// Package ptytest provides a scripted in-memory Terminal and Allocator for
// tests that must not depend on real processes.
package ptytest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/ptyexec/internal/pty"
)

// Terminal is a fake pty.Terminal. Output is injected with Emit; the
// process "exits" with Exit or is killed by Terminate.
type Terminal struct {
	Spec pty.SpawnSpec

	mu         sync.Mutex
	size       pty.Size
	writes     []string
	resizes    []pty.Size
	ended      bool
	exitCode   int
	err        error
	terminated bool
	grace      time.Duration
	writeErr   error
	onWrite    func(t *Terminal, p []byte)

	chunks chan []byte
	done   chan struct{}
}

func newTerminal(spec pty.SpawnSpec, size pty.Size, onWrite func(*Terminal, []byte)) *Terminal {
	return &Terminal{
		Spec:     spec,
		size:     size,
		exitCode: -1,
		onWrite:  onWrite,
		chunks:   make(chan []byte, 1024),
		done:     make(chan struct{}),
	}
}

func (t *Terminal) Chunks() <-chan []byte { return t.chunks }
func (t *Terminal) Done() <-chan struct{} { return t.done }
func (t *Terminal) Pid() int              { return 4242 }

func (t *Terminal) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Terminal) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

func (t *Terminal) Size() pty.Size {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Write records p and runs the write hook outside the lock.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return 0, pty.ErrClosed
	}
	if t.writeErr != nil {
		err := t.writeErr
		t.mu.Unlock()
		return 0, err
	}
	t.writes = append(t.writes, string(p))
	hook := t.onWrite
	t.mu.Unlock()

	if hook != nil {
		hook(t, p)
	}
	return len(p), nil
}

func (t *Terminal) Resize(size pty.Size) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminated {
		return pty.ErrClosed
	}
	t.size = size
	t.resizes = append(t.resizes, size)
	return nil
}

// Terminate records the grace period and ends the fake process with -1.
func (t *Terminal) Terminate(grace time.Duration) error {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return nil
	}
	t.terminated = true
	t.grace = grace
	t.mu.Unlock()

	t.end(-1, nil, true)
	return nil
}

// Emit delivers output as if the process had written it.
func (t *Terminal) Emit(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.chunks <- []byte(s)
}

// Exit ends the stream cleanly and reaps the fake process with code.
func (t *Terminal) Exit(code int) {
	t.end(code, nil, true)
}

// FailRead ends the stream with a read error while the process stays alive.
func (t *Terminal) FailRead(err error) {
	t.end(-1, err, false)
}

// FailWrites makes every subsequent Write return err.
func (t *Terminal) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *Terminal) end(code int, err error, reap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ended {
		t.ended = true
		t.err = err
		close(t.chunks)
	}
	if reap {
		select {
		case <-t.done:
		default:
			t.exitCode = code
			close(t.done)
		}
	}
}

// Writes returns everything written so far.
func (t *Terminal) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Resizes returns every size applied after allocation.
func (t *Terminal) Resizes() []pty.Size {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]pty.Size(nil), t.resizes...)
}

// Terminated reports whether Terminate was called and with which grace.
func (t *Terminal) Terminated() (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated, t.grace
}

// Allocator is a fake pty.Allocator handing out Terminals.
type Allocator struct {
	mu        sync.Mutex
	err       error
	onWrite   func(t *Terminal, p []byte)
	terminals []*Terminal
	allocated chan *Terminal
}

// NewAllocator creates an allocator; onWrite is installed on every terminal
// it creates and may be nil.
func NewAllocator(onWrite func(t *Terminal, p []byte)) *Allocator {
	return &Allocator{
		onWrite:   onWrite,
		allocated: make(chan *Terminal, 256),
	}
}

// FailWith makes Allocate fail with a spawn error wrapping err; nil restores it.
func (a *Allocator) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *Allocator) Allocate(spec pty.SpawnSpec, size pty.Size) (pty.Terminal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return nil, &pty.SpawnError{Path: spec.Path, Err: a.err}
	}
	t := newTerminal(spec, size.OrDefault(), a.onWrite)
	a.terminals = append(a.terminals, t)
	a.allocated <- t
	return t, nil
}

// Terminals returns every terminal allocated so far.
func (a *Allocator) Terminals() []*Terminal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Terminal(nil), a.terminals...)
}

// Next waits for the next allocation.
func (a *Allocator) Next(tb testing.TB) *Terminal {
	tb.Helper()
	select {
	case t := <-a.allocated:
		return t
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for terminal allocation")
		return nil
	}
}

// ErrNotFound mimics exec.LookPath failing for a missing binary.
var ErrNotFound = errors.New("executable file not found in $PATH")
