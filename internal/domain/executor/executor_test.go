package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ptyexec/internal/pty"
	"github.com/GriffinCanCode/ptyexec/internal/pty/ptytest"
)

const fakeBinary = "/usr/local/bin/fake-cli"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BinaryPath = fakeBinary
	cfg.MaxConcurrent = 2
	cfg.DefaultTimeout = 5 * time.Second
	cfg.IdleTimeout = 0
	cfg.QuietPeriod = 0
	cfg.SettleDelay = 0
	cfg.GracePeriod = 50 * time.Millisecond
	cfg.LineTerminator = "\n"
	return cfg
}

func newTestExecutor(t *testing.T, alloc pty.Allocator, configure func(*Config)) *Executor {
	t.Helper()
	cfg := testConfig()
	if configure != nil {
		configure(&cfg)
	}
	e, err := New(cfg, alloc, nil)
	require.NoError(t, err)
	e.WithMetrics(monitoring.NewMetrics())
	t.Cleanup(e.Cleanup)
	return e
}

func script(replies map[string]string) func(*ptytest.Terminal, []byte) {
	return func(term *ptytest.Terminal, p []byte) {
		if out, ok := replies[strings.TrimRight(string(p), "\r\n")]; ok {
			term.Emit(out)
		}
	}
}

// drain reads responses until the channel closes
func drain(t *testing.T, ch <-chan CommandResponse) []CommandResponse {
	t.Helper()
	var out []CommandResponse
	timeout := time.After(3 * time.Second)
	for {
		select {
		case resp, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, resp)
		case <-timeout:
			t.Fatalf("response stream did not end; got %d responses", len(out))
			return out
		}
	}
}

func next(t *testing.T, ch <-chan CommandResponse) CommandResponse {
	t.Helper()
	select {
	case resp, ok := <-ch:
		require.True(t, ok, "response stream closed")
		return resp
	case <-time.After(3 * time.Second):
		t.Fatal("no response")
		return CommandResponse{}
	}
}

func TestExecuteEchoHello(t *testing.T) {
	alloc := ptytest.NewAllocator(script(map[string]string{
		"echo hello": "echo hello\r\nhello\r\nDone.\r\n",
	}))
	e := newTestExecutor(t, alloc, nil)

	responses := drain(t, e.Execute(context.Background(), Request{Command: "echo hello", SessionID: "sess-a"}))
	require.NotEmpty(t, responses)

	final := responses[len(responses)-1]
	assert.Equal(t, session.StatusCompleted, final.Status)
	assert.Equal(t, "sess-a", final.SessionID)
	require.NotNil(t, final.DurationMs)

	var stdout []session.OutputMessage
	for _, m := range final.Output {
		if m.Type == session.MessageStdout {
			stdout = append(stdout, m)
		}
	}
	require.Len(t, stdout, 1)
	assert.Contains(t, stdout[0].Content, "hello")

	for i, resp := range responses {
		assert.Equal(t, final.CommandID, resp.CommandID)
		assert.NotEqual(t, session.StatusPending, resp.Status)
		if i < len(responses)-1 {
			assert.False(t, resp.Terminal(), "only the last response is terminal")
		}
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	e := newTestExecutor(t, pty.NewManager(nil), func(c *Config) {
		c.BinaryPath = "/nonexistent/ptyexec-cli"
	})

	responses := drain(t, e.Execute(context.Background(), Request{Command: "hello"}))
	require.Len(t, responses, 1)
	assert.Equal(t, session.StatusFailed, responses[0].Status)
	assert.Contains(t, responses[0].Error, "/nonexistent/ptyexec-cli")
	assert.Nil(t, responses[0].DurationMs)
}

func TestBadProjectPathDoesNotBlockOtherSessions(t *testing.T) {
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	e := newTestExecutor(t, pty.NewManager(nil), func(c *Config) {
		c.BinaryPath = "/bin/sh"
	})

	for i := 0; i < 6; i++ {
		responses := drain(t, e.Execute(context.Background(), Request{
			Command:     "echo Done.",
			SessionID:   fmt.Sprintf("bad%d", i),
			ProjectPath: "/does/not/exist",
		}))
		final := responses[len(responses)-1]
		require.Equal(t, session.StatusFailed, final.Status)
		assert.Contains(t, final.Error, "working directory")
	}

	responses := drain(t, e.Execute(context.Background(), Request{Command: "echo Done.", SessionID: "good"}))
	final := responses[len(responses)-1]
	assert.Equal(t, session.StatusCompleted, final.Status, final.Error)
}

func TestExecuteRejectsEmptyCommand(t *testing.T) {
	e := newTestExecutor(t, ptytest.NewAllocator(nil), nil)

	responses := drain(t, e.Execute(context.Background(), Request{Command: "   "}))
	require.Len(t, responses, 1)
	assert.Equal(t, session.StatusFailed, responses[0].Status)
	assert.Equal(t, ErrEmptyCommand.Error(), responses[0].Error)
	assert.NotEmpty(t, responses[0].CommandID)
}

func TestAdmissionHoldsExtraCommandPending(t *testing.T) {
	alloc := ptytest.NewAllocator(nil)
	e := newTestExecutor(t, alloc, func(c *Config) { c.MaxConcurrent = 2 })
	ctx := context.Background()

	first := e.Execute(ctx, Request{Command: "one", SessionID: "sess-1"})
	assert.Equal(t, session.StatusRunning, next(t, first).Status)
	second := e.Execute(ctx, Request{Command: "two", SessionID: "sess-2"})
	assert.Equal(t, session.StatusRunning, next(t, second).Status)

	third := e.Execute(ctx, Request{Command: "three", SessionID: "sess-3"})
	select {
	case resp := <-third:
		t.Fatalf("third command should wait for a ticket, got %s", resp.Status)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Len(t, alloc.Terminals(), 2, "no process before admission")
	assert.Equal(t, 2, e.Stats().Running)

	alloc.Terminals()[0].Emit("Done.\r\n")
	responses := drain(t, first)
	assert.Equal(t, session.StatusCompleted, responses[len(responses)-1].Status)

	resp := next(t, third)
	assert.Equal(t, session.StatusRunning, resp.Status)
	assert.Len(t, alloc.Terminals(), 3)
	assert.LessOrEqual(t, e.Stats().Running, 2)
}

func TestRunningCommandsNeverExceedTickets(t *testing.T) {
	alloc := ptytest.NewAllocator(func(term *ptytest.Terminal, p []byte) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			term.Emit("Done.\r\n")
		}()
	})
	e := newTestExecutor(t, alloc, func(c *Config) { c.MaxConcurrent = 2 })

	var peak atomic.Int64
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := int64(e.admission.InUse()); n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	var wg sync.WaitGroup
	finals := make(chan session.Status, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var last CommandResponse
			for resp := range e.Execute(context.Background(), Request{
				Command:   "work",
				SessionID: "sess-" + string(rune('a'+i)),
			}) {
				last = resp
			}
			finals <- last.Status
		}(i)
	}
	wg.Wait()
	close(stop)
	close(finals)

	for status := range finals {
		assert.Equal(t, session.StatusCompleted, status)
	}

	assert.LessOrEqual(t, peak.Load(), int64(2))
	require.Eventually(t, func() bool { return e.admission.InUse() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return e.Stats().Commands.Total == 6 }, time.Second, 5*time.Millisecond)
}

func TestCancelReleasesTicketAndKillsDedicatedProcess(t *testing.T) {
	alloc := ptytest.NewAllocator(nil)
	e := newTestExecutor(t, alloc, func(c *Config) {
		c.Mode = session.ModeSpawn
		c.GracePeriod = 80 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Execute(ctx, Request{Command: "run forever", SessionID: "sess-e"})
	resp := next(t, ch)
	require.Equal(t, session.StatusRunning, resp.Status)
	require.Equal(t, 1, e.admission.InUse())

	cancel()
	drain(t, ch)

	require.Eventually(t, func() bool { return e.admission.InUse() == 0 }, 2*time.Second, 5*time.Millisecond)
	term := alloc.Terminals()[0]
	require.Eventually(t, func() bool {
		terminated, _ := term.Terminated()
		return terminated
	}, 2*time.Second, 5*time.Millisecond)
	_, grace := term.Terminated()
	assert.Equal(t, 80*time.Millisecond, grace)

	require.Eventually(t, func() bool {
		history, ok := e.History("sess-e")
		return ok && len(history) == 1 && history[0].Status == session.StatusCancelled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCancelKeepsSharedREPL(t *testing.T) {
	alloc := ptytest.NewAllocator(nil)
	e := newTestExecutor(t, alloc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Execute(ctx, Request{Command: "long", SessionID: "sess-r"})
	require.Equal(t, session.StatusRunning, next(t, ch).Status)

	cancel()
	drain(t, ch)
	require.Eventually(t, func() bool { return e.admission.InUse() == 0 }, 2*time.Second, 5*time.Millisecond)

	terminated, _ := alloc.Terminals()[0].Terminated()
	assert.False(t, terminated)
}

func TestInputAndResizeRouting(t *testing.T) {
	alloc := ptytest.NewAllocator(script(map[string]string{
		"deploy": "Proceed? [y/N] ",
		"y":      "y\r\nDone.\r\n",
	}))
	e := newTestExecutor(t, alloc, nil)

	assert.False(t, e.SendInput("cmd_unknown", []byte("y\n")))
	assert.False(t, e.ResizeTerminal("cmd_unknown", 100, 40))

	var (
		last    CommandResponse
		replied bool
	)
	for resp := range e.Execute(context.Background(), Request{Command: "deploy", SessionID: "sess-d"}) {
		last = resp
		if replied || len(resp.Output) == 0 || !strings.Contains(resp.Output[0].Content, "Proceed?") {
			continue
		}
		assert.True(t, e.ResizeTerminal(resp.CommandID, 100, 40))
		require.True(t, e.SendInput(resp.CommandID, []byte("y\n")))
		replied = true
	}

	require.True(t, replied)
	assert.Equal(t, session.StatusCompleted, last.Status)
	assert.Contains(t, last.Output[0].Content, "Proceed? [y/N] y")

	term := alloc.Terminals()[0]
	assert.Equal(t, []string{"deploy\n", "y\n"}, term.Writes())
	assert.Equal(t, []pty.Size{{Cols: 100, Rows: 40}}, term.Resizes())
	assert.False(t, e.SendInput(last.CommandID, []byte("late\n")))
}

func TestCommandTimeoutThroughExecutor(t *testing.T) {
	e := newTestExecutor(t, ptytest.NewAllocator(nil), nil)

	start := time.Now()
	responses := drain(t, e.Execute(context.Background(), Request{
		Command: "hang",
		Timeout: 100 * time.Millisecond,
	}))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	final := responses[len(responses)-1]
	assert.Equal(t, session.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "timed out")
}

func TestSessionsAndLifecycle(t *testing.T) {
	alloc := ptytest.NewAllocator(script(map[string]string{"hi": "Done.\r\n"}))
	e := newTestExecutor(t, alloc, nil)

	info, err := e.OpenSession(SessionOptions{ID: "sess-x", ProjectPath: "/srv/app"})
	require.NoError(t, err)
	assert.Equal(t, "sess-x", info.ID)
	assert.Equal(t, "/srv/app", info.ProjectPath)

	_, err = e.OpenSession(SessionOptions{ID: "sess-x"})
	assert.ErrorIs(t, err, ErrSessionExists)

	drain(t, e.Execute(context.Background(), Request{Command: "hi", SessionID: "sess-x"}))
	assert.Equal(t, "/srv/app", alloc.Terminals()[0].Spec.Dir)

	require.Eventually(t, func() bool {
		got, ok := e.Session("sess-x")
		return ok && got.State == session.StateReady
	}, time.Second, 5*time.Millisecond)
	require.Len(t, e.Sessions(), 1)

	assert.True(t, e.CloseSession("sess-x"))
	assert.False(t, e.CloseSession("sess-x"))
	_, ok := e.Session("sess-x")
	assert.False(t, ok)
	assert.Empty(t, e.Sessions())
}

func TestTerminatedSessionIsReplaced(t *testing.T) {
	alloc := ptytest.NewAllocator(script(map[string]string{"hi": "Done.\r\n"}))
	e := newTestExecutor(t, alloc, nil)

	drain(t, e.Execute(context.Background(), Request{Command: "hi", SessionID: "sess-z"}))
	alloc.Terminals()[0].Exit(0)

	require.Eventually(t, func() bool {
		_, ok := e.Session("sess-z")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	responses := drain(t, e.Execute(context.Background(), Request{Command: "hi", SessionID: "sess-z"}))
	assert.Equal(t, session.StatusCompleted, responses[len(responses)-1].Status)
	assert.Len(t, alloc.Terminals(), 2)
}

func TestCleanup(t *testing.T) {
	alloc := ptytest.NewAllocator(nil)
	e := newTestExecutor(t, alloc, func(c *Config) { c.MaxConcurrent = 1 })
	ctx := context.Background()

	running := e.Execute(ctx, Request{Command: "one", SessionID: "sess-1"})
	require.Equal(t, session.StatusRunning, next(t, running).Status)
	waiting := e.Execute(ctx, Request{Command: "two", SessionID: "sess-2"})

	e.Cleanup()
	e.Cleanup()

	for _, ch := range []<-chan CommandResponse{running, waiting} {
		responses := drain(t, ch)
		require.NotEmpty(t, responses)
		assert.Equal(t, session.StatusFailed, responses[len(responses)-1].Status)
	}
	assert.Empty(t, e.Sessions())
	terminated, _ := alloc.Terminals()[0].Terminated()
	assert.True(t, terminated)

	responses := drain(t, e.Execute(ctx, Request{Command: "three", SessionID: "sess-1"}))
	require.Len(t, responses, 1)
	assert.Equal(t, ErrExecutorClosed.Error(), responses[0].Error)

	_, err := e.OpenSession(SessionOptions{})
	assert.ErrorIs(t, err, ErrExecutorClosed)
}

func TestStats(t *testing.T) {
	alloc := ptytest.NewAllocator(script(map[string]string{
		"ok":  "fine\r\nDone.\r\n",
		"bad": "Error: broken\r\nDone.\r\n",
	}))
	e := newTestExecutor(t, alloc, nil)

	drain(t, e.Execute(context.Background(), Request{Command: "ok", SessionID: "sess-s"}))
	drain(t, e.Execute(context.Background(), Request{Command: "bad", SessionID: "sess-s"}))

	require.Eventually(t, func() bool { return e.Stats().Commands.Total == 2 }, time.Second, 5*time.Millisecond)
	stats := e.Stats()
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 2, stats.MaxConcurrent)
	assert.Equal(t, int64(1), stats.Commands.ByStatus["completed"])
	assert.Equal(t, int64(1), stats.Commands.ByStatus["failed"])
	assert.Equal(t, 2, stats.Commands.Duration.Count)
	assert.GreaterOrEqual(t, stats.Commands.Duration.P95, stats.Commands.Duration.P50)
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing binary", func(c *Config) { c.BinaryPath = "" }},
		{"no tickets", func(c *Config) { c.MaxConcurrent = 0 }},
		{"unknown mode", func(c *Config) { c.Mode = "batch" }},
		{"negative timeout", func(c *Config) { c.DefaultTimeout = -time.Second }},
		{"zero columns", func(c *Config) { c.Cols = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			_, err := New(cfg, ptytest.NewAllocator(nil), nil)
			assert.Error(t, err)
		})
	}

	_, err := New(testConfig(), nil, nil)
	assert.Error(t, err)
}

func TestSessionGaugeFollowsRegistry(t *testing.T) {
	e := newTestExecutor(t, ptytest.NewAllocator(nil), nil)
	metrics := monitoring.NewMetrics()
	e.WithMetrics(metrics)

	_, err := e.OpenSession(SessionOptions{ID: "sess-a"})
	require.NoError(t, err)
	_, err = e.OpenSession(SessionOptions{ID: "sess-b"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SessionsActive))

	require.True(t, e.CloseSession("sess-a"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SessionsActive))
}

func TestSessionWorkDoesNotTakeRegistryLock(t *testing.T) {
	alloc := ptytest.NewAllocator(script(map[string]string{"hi": "Done.\r\n"}))
	e := newTestExecutor(t, alloc, nil)

	_, err := e.OpenSession(SessionOptions{ID: "sess-lock"})
	require.NoError(t, err)
	sess, ok := e.registry.get("sess-lock")
	require.True(t, ok)

	e.registry.mu.Lock()
	cmd, err := sess.Submit("hi", session.SubmitOptions{Timeout: 2 * time.Second})
	if err == nil {
		assert.Eventually(t, func() bool { return cmd.Status().Terminal() }, 3*time.Second, 5*time.Millisecond)
	}
	e.registry.mu.Unlock()

	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, cmd.Status())
}
