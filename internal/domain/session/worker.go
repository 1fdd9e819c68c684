package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/pty"
)

// run is the session worker: the only goroutine that spawns processes and
// reads their output.
func (s *Session) run() {
	defer close(s.stopped)
	defer s.shutdown()

	if !s.transition(StateReady) {
		return
	}

	idle := newStoppedTimer()
	defer idle.Stop()
	armIdle := func() {
		if s.opts.IdleTimeout > 0 {
			resetTimer(idle, s.opts.IdleTimeout)
		}
	}
	armIdle()

	for {
		if cmd := s.dequeue(); cmd != nil {
			stopTimer(idle)
			s.execute(cmd)
			armIdle()
			continue
		}

		var replOut <-chan []byte
		s.mu.Lock()
		repl := s.repl
		s.mu.Unlock()
		if repl != nil {
			replOut = repl.Chunks()
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case chunk, ok := <-replOut:
			if ok {
				s.logger.Debug("Discarding output outside a command", zap.Int("bytes", len(chunk)))
				continue
			}
			if s.replEnded(repl, nil) {
				return
			}
		case <-idle.C:
			s.goIdle()
		}
	}
}

// shutdown fails everything still queued and stops the REPL
func (s *Session) shutdown() {
	s.terminate(nil)

	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	repl := s.repl
	s.repl = nil
	cause := s.cause
	for _, c := range queued {
		s.remember(c)
	}
	s.mu.Unlock()

	for _, c := range queued {
		if c.finish(StatusFailed, cause, nil) {
			s.observeFinished(c)
		}
	}
	if repl != nil {
		if err := repl.Terminate(s.opts.GracePeriod); err != nil {
			s.logger.Warn("Failed to terminate process", zap.Error(err))
		}
	}
}

func (s *Session) dequeue() *Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.state == StateTerminated {
		return nil
	}
	cmd := s.queue[0]
	s.queue = s.queue[1:]
	s.active = cmd
	return cmd
}

func (s *Session) goIdle() {
	s.mu.Lock()
	if s.state != StateReady || len(s.queue) > 0 {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateIdle)
	var released pty.Terminal
	if s.opts.ReleaseIdle {
		released, s.repl = s.repl, nil
	}
	s.mu.Unlock()

	s.logger.Debug("Session idle", zap.Bool("released", released != nil))
	if released != nil {
		_ = released.Terminate(s.opts.GracePeriod)
	}
}

// execute runs one command from admission to a terminal status
func (s *Session) execute(cmd *Command) {
	defer s.finishActive(cmd)

	if cmd.ctx.Err() != nil {
		s.abandon(cmd, nil)
		return
	}

	release, wait, err := s.admit(cmd)
	if err != nil {
		s.abandon(cmd, err)
		return
	}
	defer release()
	deadline := time.Now().Add(cmd.timeout)

	term, dedicated, err := s.terminalFor(cmd)
	if err != nil {
		// Spawn failures never reach running.
		cmd.finish(StatusFailed, err, nil)
		return
	}
	if dedicated {
		defer func() {
			if err := term.Terminate(s.opts.GracePeriod); err != nil {
				s.logger.Warn("Failed to terminate dedicated process", zap.Error(err))
			}
		}()
	}

	text := cmd.text
	if s.opts.Sentinel && !cmd.slash && !dedicated {
		text += "; echo " + SentinelMarker + "$?"
	}

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		cmd.finish(StatusFailed, terminatedError(s.cause), nil)
		return
	}
	s.activeTerm = term
	s.setStateLocked(StateBusy)
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if !cmd.markRunning(wait, dedicated, text) {
		return
	}
	s.logger.Info("Command started",
		zap.String("command_id", cmd.id),
		zap.Bool("dedicated", dedicated),
		zap.Duration("admission_wait", wait))

	if _, err := term.Write([]byte(text + s.opts.LineTerminator)); err != nil {
		ioErr := &IOError{Op: "write", Err: err}
		cmd.note(MessageError, ioErr.Error())
		cmd.finish(StatusFailed, ioErr, nil)
		return
	}
	s.stream(cmd, term, dedicated, deadline)
}

func (s *Session) admit(cmd *Command) (func(), time.Duration, error) {
	start := time.Now()
	if s.opts.Admitter == nil {
		return func() {}, 0, nil
	}
	ctx, cancel := context.WithTimeout(cmd.ctx, cmd.timeout)
	defer cancel()

	release, err := s.opts.Admitter.Admit(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && cmd.ctx.Err() == nil {
			err = &TimeoutError{Timeout: cmd.timeout, Admission: true}
		}
		return nil, 0, err
	}
	return release, time.Since(start), nil
}

// abandon resolves a command that never started
func (s *Session) abandon(cmd *Command, err error) {
	switch cause := context.Cause(cmd.ctx); {
	case errors.Is(cause, errCancelled):
		cmd.finish(StatusCancelled, nil, nil)
	case errors.Is(cause, ErrSessionTerminated):
		cmd.finish(StatusFailed, cause, nil)
	case err != nil:
		cmd.finish(StatusFailed, err, nil)
	default:
		cmd.finish(StatusFailed, fmt.Errorf("command abandoned: %w", cause), nil)
	}
}

func (s *Session) finishActive(cmd *Command) {
	if !cmd.Status().Terminal() {
		cmd.finish(StatusFailed, errors.New("command ended without a result"), nil)
	}

	s.mu.Lock()
	s.active = nil
	s.activeTerm = nil
	s.remember(cmd)
	s.lastActivity = time.Now()
	if s.state == StateBusy {
		s.setStateLocked(StateReady)
	}
	s.mu.Unlock()

	s.observeFinished(cmd)
}

// terminalFor returns the terminal the command runs on and whether it is a
// dedicated process owned by the command.
func (s *Session) terminalFor(cmd *Command) (pty.Terminal, bool, error) {
	if s.opts.Mode == ModeSpawn && !cmd.slash {
		term, err := s.allocate()
		return term, true, err
	}

	s.mu.Lock()
	repl := s.repl
	s.mu.Unlock()
	if repl != nil {
		return repl, false, nil
	}

	repl, err := s.allocate()
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	s.repl = repl
	s.mu.Unlock()
	return repl, false, nil
}

func (s *Session) allocate() (pty.Terminal, error) {
	spec := s.opts.Spawn
	if s.opts.ProjectPath != "" {
		spec.Dir = s.opts.ProjectPath
	}
	if len(s.opts.Env) > 0 {
		env := make(map[string]string, len(spec.Env)+len(s.opts.Env))
		for k, v := range spec.Env {
			env[k] = v
		}
		for k, v := range s.opts.Env {
			env[k] = v
		}
		spec.Env = env
	}

	s.mu.Lock()
	size := s.size
	s.mu.Unlock()

	term, err := s.opts.Allocator.Allocate(spec, size)
	if err != nil {
		s.logger.Error("Failed to spawn process", zap.String("binary", spec.Path), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Process spawned", zap.String("binary", spec.Path), zap.Int("pid", term.Pid()))
	s.settle(term)
	return term, nil
}

// settle discards start-up output until the process goes quiet
func (s *Session) settle(term pty.Terminal) {
	if s.opts.SettleDelay <= 0 {
		return
	}
	quiet := time.NewTimer(s.opts.SettleDelay)
	defer quiet.Stop()
	limit := time.NewTimer(10 * s.opts.SettleDelay)
	defer limit.Stop()

	for {
		select {
		case _, ok := <-term.Chunks():
			if !ok {
				return
			}
			resetTimer(quiet, s.opts.SettleDelay)
		case <-quiet.C:
			return
		case <-limit.C:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// stream reads the command's output until it is resolved by a completion
// rule, the quiet period, the deadline, a cancel or the end of the stream.
func (s *Session) stream(cmd *Command, term pty.Terminal, dedicated bool, deadline time.Time) {
	var timeoutC <-chan time.Time
	if cmd.timeout > 0 {
		timeout := time.NewTimer(time.Until(deadline))
		defer timeout.Stop()
		timeoutC = timeout.C
	}
	quiet := newStoppedTimer()
	defer quiet.Stop()

	chunks := term.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				s.streamEnded(cmd, term, dedicated)
				return
			}
			lines, total := cmd.feed(chunk)
			s.touch()
			if v, ok := s.opts.Detector.Evaluate(lines); ok {
				cmd.resolve(v)
				return
			}
			if total > s.opts.MaxOutputBytes {
				cmd.note(MessageSystem, "[system] output limit reached")
				cmd.finish(StatusFailed, errCompletionAmbiguous, nil)
				return
			}
			if s.opts.QuietPeriod > 0 {
				resetTimer(quiet, s.opts.QuietPeriod)
			}

		case <-quiet.C:
			cmd.resolve(Verdict{Rule: "quiet-period", Success: true})
			return

		case <-timeoutC:
			cmd.finish(StatusFailed, &TimeoutError{Timeout: cmd.timeout}, nil)
			return

		case <-cmd.ctx.Done():
			cause := context.Cause(cmd.ctx)
			if errors.Is(cause, errCancelled) {
				cmd.finish(StatusCancelled, nil, nil)
			} else {
				cmd.finish(StatusFailed, cause, nil)
			}
			return
		}
	}
}

// streamEnded handles the output channel closing mid-command
func (s *Session) streamEnded(cmd *Command, term pty.Terminal, dedicated bool) {
	if err := term.Err(); err != nil {
		ioErr := &IOError{Op: "read", Err: err}
		cmd.note(MessageError, ioErr.Error())
		cmd.finish(StatusFailed, ioErr, nil)
		if !dedicated {
			s.dropREPL(term)
		}
		return
	}

	code := s.waitExit(term)
	if dedicated {
		cmd.resolve(Verdict{Rule: "exit", Success: code == 0, ExitCode: &code, Authoritative: true})
		return
	}

	cause := fmt.Errorf("%w: process exited with code %d", ErrSessionTerminated, code)
	cmd.finish(StatusFailed, cause, &code)
	s.replEnded(term, cause)
}

// replEnded handles the REPL output closing. A read error only drops the
// process; an exit terminates the session. It reports whether the session
// terminated.
func (s *Session) replEnded(term pty.Terminal, cause error) bool {
	if err := term.Err(); err != nil {
		s.logger.Warn("REPL read failed, dropping process", zap.Error(err))
		s.dropREPL(term)
		return false
	}
	if cause == nil {
		cause = fmt.Errorf("%w: process exited with code %d", ErrSessionTerminated, s.waitExit(term))
	}
	s.terminate(cause)
	return true
}

func (s *Session) dropREPL(term pty.Terminal) {
	s.mu.Lock()
	if s.repl == term {
		s.repl = nil
	}
	s.mu.Unlock()
	_ = term.Terminate(s.opts.GracePeriod)
}

func (s *Session) waitExit(term pty.Terminal) int {
	select {
	case <-term.Done():
	case <-time.After(s.opts.GracePeriod):
	}
	return term.ExitCode()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
