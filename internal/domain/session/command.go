package session

import (
	"context"
	"sync"
	"time"
)

// Command is a unit of work submitted to a session. Its status only moves
// forward: pending -> running -> completed | failed | cancelled, or straight
// from pending to a terminal status.
type Command struct {
	id        string
	sessionID string
	text      string
	slash     bool
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu            sync.Mutex
	status        Status
	transcript    *transcript
	dedicated     bool
	createdAt     time.Time
	startedAt     time.Time
	completedAt   time.Time
	admissionWait time.Duration
	exitCode      *int
	err           error
	changed       chan struct{}
}

func newCommand(parent context.Context, id, sessionID, text string, slash bool, timeout time.Duration, c *Classifier) *Command {
	ctx, cancel := context.WithCancelCause(parent)
	return &Command{
		id:         id,
		sessionID:  sessionID,
		text:       text,
		slash:      slash,
		timeout:    timeout,
		ctx:        ctx,
		cancel:     cancel,
		status:     StatusPending,
		transcript: newTranscript(c),
		createdAt:  time.Now(),
		changed:    make(chan struct{}),
	}
}

func (c *Command) ID() string        { return c.id }
func (c *Command) SessionID() string { return c.sessionID }
func (c *Command) Text() string      { return c.text }

// Slash reports whether the command is a REPL slash command
func (c *Command) Slash() bool { return c.slash }

// Status returns the current status
func (c *Command) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the current state together with a channel that is closed
// on the next change. Both are taken under one lock, so no change between the
// snapshot and the wait is ever missed.
func (c *Command) Snapshot() (CommandSnapshot, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := CommandSnapshot{
		ID:            c.id,
		SessionID:     c.sessionID,
		Text:          c.text,
		Status:        c.status,
		Output:        c.transcript.messages(),
		Err:           c.err,
		Dedicated:     c.dedicated,
		CreatedAt:     c.createdAt,
		StartedAt:     c.startedAt,
		CompletedAt:   c.completedAt,
		AdmissionWait: c.admissionWait,
	}
	if c.err != nil {
		snap.Error = c.err.Error()
	}
	if c.exitCode != nil {
		code := *c.exitCode
		snap.ExitCode = &code
	}
	return snap, c.changed
}

// notify wakes every waiter; callers hold c.mu
func (c *Command) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Command) markRunning(wait time.Duration, dedicated bool, echo string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPending {
		return false
	}
	c.status = StatusRunning
	c.startedAt = time.Now()
	c.admissionWait = wait
	c.dedicated = dedicated
	c.transcript.expectEcho(echo)
	c.notify()
	return true
}

// feed records output and returns the lines to run completion rules on
func (c *Command) feed(chunk []byte) ([]string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.transcript.feed(chunk, time.Now())
	c.notify()
	return lines, c.transcript.bytes
}

func (c *Command) note(typ MessageType, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.note(typ, text, time.Now())
	c.notify()
}

// resolve applies a completion verdict. Heuristic successes are reclassified
// as failures when the output carries error lines.
func (c *Command) resolve(v Verdict) {
	c.mu.Lock()
	c.transcript.finalize()
	var err error
	switch {
	case !v.Success:
		err = &OutputError{Rule: v.Rule, ExitCode: v.ExitCode, Excerpt: c.transcript.excerpt(5, 512)}
	case !v.Authoritative && c.transcript.hasErrors():
		err = &OutputError{Rule: v.Rule, Excerpt: c.transcript.excerpt(5, 512)}
	}
	c.mu.Unlock()

	if err != nil {
		c.finish(StatusFailed, err, v.ExitCode)
		return
	}
	c.finish(StatusCompleted, nil, v.ExitCode)
}

// finish moves the command to a terminal status. It reports false when the
// command had already finished.
func (c *Command) finish(status Status, err error, exitCode *int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Terminal() {
		return false
	}
	c.transcript.finalize()
	c.status = status
	c.err = err
	c.exitCode = exitCode
	c.completedAt = time.Now()
	c.notify()
	c.cancel(nil)
	return true
}
