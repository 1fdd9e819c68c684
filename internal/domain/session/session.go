package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/pty"
	"github.com/GriffinCanCode/ptyexec/internal/shared/id"
)

// Admitter grants the right to run a command. Admit blocks until a slot is
// free or ctx ends; release must be called exactly once.
type Admitter interface {
	Admit(ctx context.Context) (release func(), err error)
}

// Observer receives lifecycle events, typically for metrics
type Observer interface {
	StateChanged(sessionID string, from, to State)
	CommandFinished(snap CommandSnapshot)
}

// Options configures a session
type Options struct {
	ID          string
	ProjectPath string
	Env         map[string]string
	Spawn       pty.SpawnSpec
	Size        pty.Size
	Mode        Mode

	SlashPrefix    string
	LineTerminator string
	Sentinel       bool

	DefaultTimeout time.Duration
	QuietPeriod    time.Duration
	// SettleDelay discards start-up output of a fresh process until it has
	// been quiet this long.
	SettleDelay    time.Duration
	IdleTimeout    time.Duration
	ReleaseIdle    bool
	GracePeriod    time.Duration
	MaxOutputBytes int
	HistoryLimit   int

	Classifier *Classifier
	Detector   *Detector
	Allocator  pty.Allocator
	Admitter   Admitter
	Observer   Observer
	Logger     *zap.Logger

	// OnTerminate runs once, after the session has become TERMINATED
	OnTerminate func(s *Session, cause error)
}

func (o *Options) applyDefaults() {
	if o.ID == "" {
		o.ID = id.NewSessionID().String()
	}
	if o.Mode == "" {
		o.Mode = ModeREPL
	}
	if o.SlashPrefix == "" {
		o.SlashPrefix = "/"
	}
	if o.LineTerminator == "" {
		o.LineTerminator = "\n"
	}
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 5 * time.Minute
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 2 * time.Second
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = 4 << 20
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.Classifier == nil {
		o.Classifier = NewClassifier()
	}
	if o.Detector == nil {
		o.Detector = DefaultDetector(DefaultCompletionPhrases(), DefaultFailurePhrases())
	}
	o.Size = o.Size.OrDefault()
}

// Session owns one interactive process and the commands queued against it
type Session struct {
	id     string
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu           sync.Mutex
	state        State
	size         pty.Size
	queue        []*Command
	active       *Command
	activeTerm   pty.Terminal
	repl         pty.Terminal
	history      []*Command
	createdAt    time.Time
	lastActivity time.Time
	cause        error

	wake    chan struct{}
	stopped chan struct{}
}

// New creates a session and starts its worker. The process itself is
// spawned lazily by the first command that needs it.
func New(opts Options) (*Session, error) {
	if opts.Allocator == nil {
		return nil, fmt.Errorf("session: allocator is required")
	}
	if opts.Spawn.Path == "" {
		return nil, fmt.Errorf("session: binary path is required")
	}
	opts.applyDefaults()

	ctx, cancel := context.WithCancelCause(context.Background())
	now := time.Now()
	s := &Session{
		id:           opts.ID,
		opts:         opts,
		logger:       opts.Logger,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateInitializing,
		size:         opts.Size,
		createdAt:    now,
		lastActivity: now,
		wake:         make(chan struct{}, 1),
		stopped:      make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))

	go s.run()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:           s.id,
		State:        s.state,
		Mode:         s.opts.Mode,
		ProjectPath:  s.opts.ProjectPath,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		Queued:       len(s.queue),
		Cols:         s.size.Cols,
		Rows:         s.size.Rows,
	}
	if s.active != nil {
		info.ActiveCommand = s.active.id
	}
	if s.repl != nil {
		info.Pid = s.repl.Pid()
	}
	return info
}

// History returns the most recent finished commands, oldest first
func (s *Session) History() []CommandSnapshot {
	s.mu.Lock()
	cmds := append([]*Command(nil), s.history...)
	s.mu.Unlock()

	out := make([]CommandSnapshot, 0, len(cmds))
	for _, c := range cmds {
		snap, _ := c.Snapshot()
		out = append(out, snap)
	}
	return out
}

// SubmitOptions tunes a single command
type SubmitOptions struct {
	CommandID string
	Timeout   time.Duration
}

// Submit queues text for execution and returns the pending command
func (s *Session) Submit(text string, opts SubmitOptions) (*Command, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = s.opts.DefaultTimeout
	}
	if opts.CommandID == "" {
		opts.CommandID = id.NewCommandID().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return nil, terminatedError(s.cause)
	}
	slash := strings.HasPrefix(strings.TrimSpace(text), s.opts.SlashPrefix)
	cmd := newCommand(s.ctx, opts.CommandID, s.id, text, slash, opts.Timeout, s.opts.Classifier)
	s.queue = append(s.queue, cmd)
	s.lastActivity = time.Now()
	if s.state == StateIdle {
		s.setStateLocked(StateReady)
	}
	s.signal()

	s.logger.Debug("Command queued",
		zap.String("command_id", cmd.id),
		zap.Bool("slash", slash),
		zap.Int("queued", len(s.queue)))
	return cmd, nil
}

// SendInput writes data verbatim to the process while a command is running,
// for answering prompts. It reports false, writing nothing, otherwise.
func (s *Session) SendInput(data []byte) bool {
	s.mu.Lock()
	term := s.activeTerm
	active := s.active
	busy := s.state == StateBusy
	s.mu.Unlock()

	if !busy || term == nil || active == nil || active.Status() != StatusRunning {
		return false
	}
	if _, err := term.Write(data); err != nil {
		s.logger.Warn("Failed to send input", zap.Error(err))
		return false
	}
	return true
}

// Resize changes the terminal size of the live process. The size also
// applies to processes spawned later.
func (s *Session) Resize(cols, rows int) bool {
	size, err := pty.SizeOf(cols, rows)
	if err != nil {
		return false
	}

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return false
	}
	term := s.activeTerm
	if term == nil {
		term = s.repl
	}
	if term == nil {
		s.mu.Unlock()
		return false
	}
	s.size = size
	s.mu.Unlock()

	if err := term.Resize(size); err != nil {
		s.logger.Warn("Failed to resize terminal", zap.Error(err))
		return false
	}
	return true
}

// Cancel cancels a queued or running command of this session. A dedicated
// process is terminated; the shared REPL keeps running.
func (s *Session) Cancel(commandID string) bool {
	s.mu.Lock()
	for i, c := range s.queue {
		if c.id == commandID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.remember(c)
			s.mu.Unlock()

			c.cancel(errCancelled)
			if c.finish(StatusCancelled, nil, nil) {
				s.observeFinished(c)
			}
			return true
		}
	}
	active := s.active
	s.mu.Unlock()

	if active != nil && active.id == commandID && !active.Status().Terminal() {
		active.cancel(errCancelled)
		return true
	}
	return false
}

// Close terminates the session, fails every queued and running command and
// waits for the worker to stop. It is idempotent.
func (s *Session) Close() {
	s.terminate(fmt.Errorf("%w: closed", ErrSessionTerminated))
	<-s.stopped
}

// Done is closed once the worker has stopped
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

func (s *Session) terminate(cause error) {
	cause = terminatedError(cause)

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.cause = cause
	s.setStateLocked(StateTerminated)
	s.mu.Unlock()

	s.cancel(cause)
	s.logger.Info("Session terminated", zap.Error(cause))
	if s.opts.OnTerminate != nil {
		s.opts.OnTerminate(s, cause)
	}
}

// setStateLocked applies a legal transition; callers hold s.mu
func (s *Session) setStateLocked(to State) bool {
	from := s.state
	if from == to {
		return true
	}
	if !CanTransition(from, to) {
		s.logger.Error("Illegal session transition",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return false
	}
	s.state = to
	if s.opts.Observer != nil {
		s.opts.Observer.StateChanged(s.id, from, to)
	}
	return true
}

func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStateLocked(to)
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// remember appends a finished command to the bounded history; callers hold s.mu
func (s *Session) remember(c *Command) {
	s.history = append(s.history, c)
	if over := len(s.history) - s.opts.HistoryLimit; over > 0 {
		s.history = append([]*Command(nil), s.history[over:]...)
	}
}

func (s *Session) observeFinished(c *Command) {
	snap, _ := c.Snapshot()
	s.logger.Info("Command finished",
		zap.String("command_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Duration("duration", snap.Duration()),
		zap.String("error", snap.Error))
	if s.opts.Observer != nil {
		s.opts.Observer.CommandFinished(snap)
	}
}
