package cmd

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/GriffinCanCode/ptyexec/internal/api/http"
	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
	"github.com/GriffinCanCode/ptyexec/internal/pty/ptytest"
)

// captureOutput runs the root command with args and returns its streams.
func captureOutput(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	rootCmd.SetOut(&outBuf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func startServer(t *testing.T, onWrite func(*ptytest.Terminal, []byte)) (string, *executor.Executor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := executor.DefaultConfig()
	cfg.BinaryPath = "/usr/local/bin/fake-cli"
	cfg.IdleTimeout = 0
	cfg.QuietPeriod = 0
	cfg.SettleDelay = 0
	cfg.DefaultTimeout = 5 * time.Second
	cfg.LineTerminator = "\n"

	exec, err := executor.New(cfg, ptytest.NewAllocator(onWrite), nil)
	require.NoError(t, err)

	r := gin.New()
	apihttp.NewHandlers(exec, nil, nil).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		exec.Cleanup()
	})
	return srv.URL, exec
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "ptyexec", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "sessions"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestRunRemote(t *testing.T) {
	url, _ := startServer(t, func(term *ptytest.Terminal, p []byte) {
		if strings.TrimSpace(string(p)) == "status" {
			term.Emit("all systems nominal\r\nDone.\r\n")
		}
	})

	stdout, stderr, err := captureOutput(t, "run", "--remote", url, "--session", "sess-cli", "--", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "all systems nominal")
	assert.Contains(t, stderr, "completed")
}

func TestSessionsListing(t *testing.T) {
	url, exec := startServer(t, nil)
	_, err := exec.OpenSession(executor.SessionOptions{ID: "sess-listed", ProjectPath: "/srv/app"})
	require.NoError(t, err)

	stdout, _, err := captureOutput(t, "sessions", "--addr", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "STATE")
	assert.Contains(t, stdout, "sess-listed")
	assert.Contains(t, stdout, "/srv/app")

	stdout, _, err = captureOutput(t, "sessions", "close", "sess-listed", "--addr", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "closed sess-listed")

	stdout, _, err = captureOutput(t, "sessions", "--addr", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No sessions.")
}

func TestExitErrorFor(t *testing.T) {
	code := func(n int) *int { return &n }
	tests := []struct {
		name     string
		resp     executor.CommandResponse
		wantCode int
	}{
		{"completed", executor.CommandResponse{Status: session.StatusCompleted}, 0},
		{"completed with exit 0", executor.CommandResponse{Status: session.StatusCompleted, ExitCode: code(0)}, 0},
		{"completed nonzero exit", executor.CommandResponse{Status: session.StatusCompleted, ExitCode: code(3)}, 3},
		{"failed", executor.CommandResponse{Status: session.StatusFailed, Error: "boom"}, 1},
		{"failed with exit code", executor.CommandResponse{Status: session.StatusFailed, ExitCode: code(2)}, 2},
		{"cancelled", executor.CommandResponse{Status: session.StatusCancelled}, 130},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitErrorFor(tt.resp)
			if tt.wantCode == 0 {
				assert.NoError(t, err)
				return
			}
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tt.wantCode, exitErr.Code)
		})
	}
}

func TestPrinterHoldsPartialMessage(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newPrinter(&out, &errOut, false)

	p.print(executor.CommandResponse{
		Status: session.StatusRunning,
		Output: []session.OutputMessage{
			{Type: session.MessageStdout, Content: "line one"},
			{Type: session.MessageError, Content: "Error: half", Partial: true},
		},
	})
	assert.Equal(t, "line one\n", out.String())
	assert.Empty(t, errOut.String())

	p.print(executor.CommandResponse{
		Status: session.StatusFailed,
		Output: []session.OutputMessage{
			{Type: session.MessageStdout, Content: "line one"},
			{Type: session.MessageError, Content: "Error: half done"},
			{Type: session.MessageSystem, Content: "[system] exiting"},
		},
	})
	assert.Equal(t, "line one\n", out.String())
	assert.Equal(t, "Error: half done\n[system] exiting\n", errOut.String())
}

func TestRenderSessions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	err := renderSessions(&buf, []session.Info{{
		ID:           "sess-1",
		State:        session.StateBusy,
		Mode:         session.ModeREPL,
		Queued:       2,
		LastActivity: now.Add(-90 * time.Second),
	}}, now)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"sess-1", "busy", "repl", "2", "-", "1m30s", "-"}, strings.Fields(lines[1]))
}
