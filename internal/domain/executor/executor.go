package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/ptyexec/internal/pty"
	"github.com/GriffinCanCode/ptyexec/internal/shared/id"
)

var (
	// ErrExecutorClosed is returned for work submitted after Cleanup
	ErrExecutorClosed = errors.New("executor: closed")
	// ErrSessionExists is returned when opening a session id already in use
	ErrSessionExists = errors.New("executor: session already exists")
	// ErrEmptyCommand rejects blank command text
	ErrEmptyCommand = errors.New("executor: command is empty")
)

// Executor routes commands to sessions under a global admission bound
type Executor struct {
	cfg        Config
	allocator  pty.Allocator
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	admission  *Admission
	registry   *registry
	stats      *statsWindow
	classifier *session.Classifier
	detector   *session.Detector

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates an executor. Sessions spawn their processes through allocator.
func New(cfg Config, allocator pty.Allocator, logger *zap.Logger) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if allocator == nil {
		return nil, errors.New("executor: allocator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = session.ModeREPL
	}
	completion := cfg.CompletionPhrases
	if completion == nil {
		completion = session.DefaultCompletionPhrases()
	}
	failure := cfg.FailurePhrases
	if failure == nil {
		failure = session.DefaultFailurePhrases()
	}

	e := &Executor{
		cfg:        cfg,
		allocator:  allocator,
		logger:     logger,
		admission:  NewAdmission(cfg.MaxConcurrent),
		stats:      newStatsWindow(cfg.StatsWindow),
		classifier: session.NewClassifier(),
		detector:   session.DefaultDetector(completion, failure),
	}
	e.registry = newRegistry(func(n int) { e.metrics.SetSessionsActive(n) })
	return e, nil
}

// WithMetrics adds metrics tracking to the executor
func (e *Executor) WithMetrics(metrics *monitoring.Metrics) *Executor {
	e.metrics = metrics
	e.admission.metrics = metrics
	return e
}

// WithTracer records a span per executed command
func (e *Executor) WithTracer(tracer *tracing.Tracer) *Executor {
	e.tracer = tracer
	return e
}

// Config returns the executor's configuration
func (e *Executor) Config() Config {
	return e.cfg
}

// Execute submits req and streams snapshots of the command until it reaches a
// terminal status or ctx is cancelled. Cancelling ctx cancels the command.
// Failures before submission produce a single failed response.
func (e *Executor) Execute(ctx context.Context, req Request) <-chan CommandResponse {
	out := make(chan CommandResponse, 1)

	sess, cmd, err := e.submit(req)
	if err != nil {
		e.logger.Warn("Command rejected",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		out <- failedResponse(id.NewCommandID().String(), req.SessionID, err)
		close(out)
		return out
	}

	go e.deliver(ctx, sess, cmd, out)
	return out
}

func (e *Executor) submit(req Request) (*session.Session, *session.Command, error) {
	if e.closed.Load() {
		return nil, nil, ErrExecutorClosed
	}
	if strings.TrimSpace(req.Command) == "" {
		return nil, nil, ErrEmptyCommand
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = id.NewSessionID().String()
	}
	sess, _, err := e.registry.getOrCreate(sessionID, func() (*session.Session, error) {
		return e.newSession(sessionID, req.ProjectPath, req.Env)
	})
	if err != nil {
		return nil, nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	cmd, err := sess.Submit(req.Command, session.SubmitOptions{Timeout: timeout})
	if err != nil {
		return nil, nil, err
	}
	e.registry.track(cmd.ID(), sess)
	return sess, cmd, nil
}

// deliver forwards snapshots, skipping the pending phase, until the command
// finishes or the consumer goes away.
func (e *Executor) deliver(ctx context.Context, sess *session.Session, cmd *session.Command, out chan<- CommandResponse) {
	defer close(out)
	defer e.registry.untrack(cmd.ID())

	var span *tracing.Span
	if e.tracer != nil {
		span, _ = e.tracer.StartSpan(ctx, "command.execute")
		span.SetTag("session_id", sess.ID())
		span.SetTag("command_id", cmd.ID())
	}

	for {
		snap, changed := cmd.Snapshot()
		if snap.Status != session.StatusPending {
			select {
			case out <- responseFrom(snap):
			case <-ctx.Done():
				e.abandon(sess, cmd, span)
				return
			}
			if snap.Status.Terminal() {
				e.finishSpan(span, snap)
				return
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			e.abandon(sess, cmd, span)
			return
		}
	}
}

func (e *Executor) abandon(sess *session.Session, cmd *session.Command, span *tracing.Span) {
	if sess.Cancel(cmd.ID()) {
		e.logger.Info("Command cancelled by consumer",
			zap.String("session_id", sess.ID()),
			zap.String("command_id", cmd.ID()))
	}
	snap, _ := cmd.Snapshot()
	e.finishSpan(span, snap)
}

func (e *Executor) finishSpan(span *tracing.Span, snap session.CommandSnapshot) {
	if span == nil {
		return
	}
	span.SetTag("status", string(snap.Status))
	if snap.Err != nil {
		span.SetError(snap.Err)
	}
	span.Finish()
	e.tracer.Submit(span)
}

// SendInput writes data to the process running commandID. It reports false
// when the command is unknown or not running.
func (e *Executor) SendInput(commandID string, data []byte) bool {
	sess, ok := e.registry.sessionFor(commandID)
	if !ok || sess.Info().ActiveCommand != commandID {
		return false
	}
	return sess.SendInput(data)
}

// ResizeTerminal resizes the terminal of the session owning commandID
func (e *Executor) ResizeTerminal(commandID string, cols, rows int) bool {
	sess, ok := e.registry.sessionFor(commandID)
	if !ok {
		return false
	}
	return sess.Resize(cols, rows)
}

// Cancel cancels an in-flight command
func (e *Executor) Cancel(commandID string) bool {
	sess, ok := e.registry.sessionFor(commandID)
	if !ok {
		return false
	}
	return sess.Cancel(commandID)
}

// SessionOptions configures an explicitly opened session
type SessionOptions struct {
	ID          string
	ProjectPath string
	Env         map[string]string
}

// OpenSession creates a session ahead of its first command
func (e *Executor) OpenSession(opts SessionOptions) (session.Info, error) {
	if e.closed.Load() {
		return session.Info{}, ErrExecutorClosed
	}
	if opts.ID == "" {
		opts.ID = id.NewSessionID().String()
	}
	sess, created, err := e.registry.getOrCreate(opts.ID, func() (*session.Session, error) {
		return e.newSession(opts.ID, opts.ProjectPath, opts.Env)
	})
	if err != nil {
		return session.Info{}, err
	}
	if !created {
		return sess.Info(), ErrSessionExists
	}
	return sess.Info(), nil
}

// CloseSession terminates a session and fails its queued commands
func (e *Executor) CloseSession(sessionID string) bool {
	sess, ok := e.registry.get(sessionID)
	if !ok {
		return false
	}
	e.registry.remove(sess)
	sess.Close()
	return true
}

// Session returns information about one session
func (e *Executor) Session(sessionID string) (session.Info, bool) {
	sess, ok := e.registry.get(sessionID)
	if !ok {
		return session.Info{}, false
	}
	return sess.Info(), true
}

// Sessions lists every live session, oldest first
func (e *Executor) Sessions() []session.Info {
	sessions := e.registry.list()
	infos := make([]session.Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// History returns the recent finished commands of a session
func (e *Executor) History(sessionID string) ([]session.CommandSnapshot, bool) {
	sess, ok := e.registry.get(sessionID)
	if !ok {
		return nil, false
	}
	return sess.History(), true
}

// Stats returns a point-in-time view of sessions, admission and commands
func (e *Executor) Stats() Stats {
	stats := Stats{
		SessionsByState: make(map[string]int),
		Running:         e.admission.InUse(),
		MaxConcurrent:   e.admission.Max(),
		Commands:        e.stats.snapshot(),
	}
	for _, info := range e.Sessions() {
		stats.Sessions++
		stats.SessionsByState[string(info.State)]++
		stats.Queued += info.Queued
	}
	return stats
}

// Cleanup terminates every session and closes the ticket pool. Waiting and
// running commands fail; later calls to Execute fail immediately. It is
// idempotent.
func (e *Executor) Cleanup() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.admission.Close()

		sessions := e.registry.closeAll()
		var wg sync.WaitGroup
		for _, s := range sessions {
			wg.Add(1)
			go func(s *session.Session) {
				defer wg.Done()
				s.Close()
			}(s)
		}
		wg.Wait()
		e.metrics.SetSessionsActive(0)

		e.logger.Info("Executor cleaned up", zap.Int("sessions", len(sessions)))
	})
}

func (e *Executor) newSession(sessionID, projectPath string, env map[string]string) (*session.Session, error) {
	s, err := session.New(session.Options{
		ID:          sessionID,
		ProjectPath: projectPath,
		Env:         env,
		Spawn: pty.SpawnSpec{
			Path: e.cfg.BinaryPath,
			Args: e.cfg.Args,
			Env:  e.cfg.Env,
		},
		Size:           pty.Size{Cols: uint16(e.cfg.Cols), Rows: uint16(e.cfg.Rows)},
		Mode:           e.cfg.Mode,
		SlashPrefix:    e.cfg.SlashPrefix,
		LineTerminator: e.cfg.LineTerminator,
		Sentinel:       e.cfg.Sentinel,
		DefaultTimeout: e.cfg.DefaultTimeout,
		QuietPeriod:    e.cfg.QuietPeriod,
		SettleDelay:    e.cfg.SettleDelay,
		IdleTimeout:    e.cfg.IdleTimeout,
		ReleaseIdle:    e.cfg.ReleaseIdle,
		GracePeriod:    e.cfg.GracePeriod,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
		HistoryLimit:   e.cfg.HistoryLimit,
		Classifier:     e.classifier,
		Detector:       e.detector,
		Allocator:      e.allocator,
		Admitter:       e.admission,
		Observer:       sessionObserver{e},
		Logger:         e.logger,
		OnTerminate:    e.onTerminate,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Session created",
		zap.String("session_id", sessionID),
		zap.String("project_path", projectPath))
	return s, nil
}

func (e *Executor) onTerminate(s *session.Session, cause error) {
	if e.registry.remove(s) {
		e.logger.Info("Session removed",
			zap.String("session_id", s.ID()),
			zap.Error(cause))
	}
}

// sessionObserver feeds session events into metrics and stats
type sessionObserver struct {
	e *Executor
}

func (o sessionObserver) StateChanged(_ string, from, to session.State) {
	o.e.metrics.RecordSessionTransition(string(from), string(to))
}

func (o sessionObserver) CommandFinished(snap session.CommandSnapshot) {
	o.e.stats.record(snap)
	o.e.metrics.RecordCommand(string(snap.Status), snap.Duration())
}
