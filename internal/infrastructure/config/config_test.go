package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "claude", cfg.Executor.Binary)
	assert.Equal(t, "repl", cfg.Executor.Mode)
	assert.Equal(t, 4, cfg.Executor.MaxConcurrent)
	assert.Equal(t, 5*time.Minute, cfg.Executor.DefaultTimeout.Std())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"HOST":                   "127.0.0.1",
		"PTYEXEC_BINARY":         "/usr/bin/env",
		"PTYEXEC_ARGS":           "bash,--norc",
		"PTYEXEC_MODE":           "spawn",
		"PTYEXEC_MAX_CONCURRENT": "8",
		"PTYEXEC_TIMEOUT":        "90s",
		"PTYEXEC_QUIET_PERIOD":   "750ms",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"RATE_LIMIT_RPS":         "500",
		"RATE_LIMIT_ENABLED":     "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/usr/bin/env", cfg.Executor.Binary)
	assert.Equal(t, []string{"bash", "--norc"}, cfg.Executor.Args)
	assert.Equal(t, 8, cfg.Executor.MaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.Executor.DefaultTimeout.Std())
	assert.Equal(t, 750*time.Millisecond, cfg.Executor.QuietPeriod.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)

	// Untouched values keep their defaults.
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.Equal(t, 10*time.Minute, cfg.Executor.IdleTimeout.Std())

	exec := cfg.Executor.ToExecutor()
	assert.Equal(t, session.ModeSpawn, exec.Mode)
	assert.Equal(t, 90*time.Second, exec.DefaultTimeout)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptyexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
executor:
  binary: /bin/sh
  max_concurrent: 2
  idle_timeout: 30s
  sentinel: true
  completion_phrases:
    - "All done"
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "/bin/sh", cfg.Executor.Binary)
	assert.Equal(t, 2, cfg.Executor.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Executor.IdleTimeout.Std())
	assert.True(t, cfg.Executor.Sentinel)
	assert.Equal(t, []string{"All done"}, cfg.Executor.CompletionPhrases)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadTOMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptyexec.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[executor]
binary = "/bin/bash"
max_concurrent = 3
grace_period = "5s"

[logging]
level = "warn"
`), 0o644))
	t.Setenv("PTYEXEC_MAX_CONCURRENT", "6")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/bin/bash", cfg.Executor.Binary)
	assert.Equal(t, 6, cfg.Executor.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Executor.GracePeriod.Std())
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromEnvConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptyexec.yml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  binary: /bin/zsh\n"), 0o644))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", cfg.Executor.Binary)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "ptyexec.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = LoadFile(ini)
	assert.ErrorContains(t, err, "unsupported")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("executor:\n  max_concurrent: 0\n"), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "max concurrent")

	t.Setenv("PTYEXEC_TIMEOUT", "soon")
	_, err = LoadFile("")
	assert.Error(t, err)
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	cfg := LoadOrDefault()
	assert.Equal(t, "8000", cfg.Server.Port)
}
