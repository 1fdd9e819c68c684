package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
)

// EnvConfigFile names the environment variable pointing at a config file
const EnvConfigFile = "PTYEXEC_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Executor  ExecutorConfig  `yaml:"executor" toml:"executor"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" yaml:"port" toml:"port"`
	Host            string   `envconfig:"HOST" yaml:"host" toml:"host"`
	CORSOrigins     []string `envconfig:"CORS_ORIGINS" yaml:"cors_origins" toml:"cors_origins"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// ExecutorConfig holds command execution settings.
type ExecutorConfig struct {
	Binary            string            `envconfig:"PTYEXEC_BINARY" yaml:"binary" toml:"binary"`
	Args              []string          `envconfig:"PTYEXEC_ARGS" yaml:"args" toml:"args"`
	Env               map[string]string `envconfig:"PTYEXEC_ENV" yaml:"env" toml:"env"`
	Mode              string            `envconfig:"PTYEXEC_MODE" yaml:"mode" toml:"mode"`
	MaxConcurrent     int               `envconfig:"PTYEXEC_MAX_CONCURRENT" yaml:"max_concurrent" toml:"max_concurrent"`
	DefaultTimeout    Duration          `envconfig:"PTYEXEC_TIMEOUT" yaml:"default_timeout" toml:"default_timeout"`
	IdleTimeout       Duration          `envconfig:"PTYEXEC_IDLE_TIMEOUT" yaml:"idle_timeout" toml:"idle_timeout"`
	ReleaseIdle       bool              `envconfig:"PTYEXEC_RELEASE_IDLE" yaml:"release_idle" toml:"release_idle"`
	QuietPeriod       Duration          `envconfig:"PTYEXEC_QUIET_PERIOD" yaml:"quiet_period" toml:"quiet_period"`
	SettleDelay       Duration          `envconfig:"PTYEXEC_SETTLE_DELAY" yaml:"settle_delay" toml:"settle_delay"`
	GracePeriod       Duration          `envconfig:"PTYEXEC_GRACE_PERIOD" yaml:"grace_period" toml:"grace_period"`
	MaxOutputBytes    int               `envconfig:"PTYEXEC_MAX_OUTPUT_BYTES" yaml:"max_output_bytes" toml:"max_output_bytes"`
	HistoryLimit      int               `envconfig:"PTYEXEC_HISTORY_LIMIT" yaml:"history_limit" toml:"history_limit"`
	Sentinel          bool              `envconfig:"PTYEXEC_SENTINEL" yaml:"sentinel" toml:"sentinel"`
	SlashPrefix       string            `envconfig:"PTYEXEC_SLASH_PREFIX" yaml:"slash_prefix" toml:"slash_prefix"`
	LineTerminator    string            `envconfig:"PTYEXEC_LINE_TERMINATOR" yaml:"line_terminator" toml:"line_terminator"`
	Cols              int               `envconfig:"PTYEXEC_COLS" yaml:"cols" toml:"cols"`
	Rows              int               `envconfig:"PTYEXEC_ROWS" yaml:"rows" toml:"rows"`
	CompletionPhrases []string          `envconfig:"PTYEXEC_COMPLETION_PHRASES" yaml:"completion_phrases" toml:"completion_phrases"`
	FailurePhrases    []string          `envconfig:"PTYEXEC_FAILURE_PHRASES" yaml:"failure_phrases" toml:"failure_phrases"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// Duration is a time.Duration written as "30s" in files and environment
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads the file named by PTYEXEC_CONFIG, if any, then applies
// environment overrides.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvConfigFile))
}

// LoadFile layers defaults, the YAML or TOML file at path (optional) and
// environment variables, in that order.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit.RequestsPerSecond)
	}
	return c.Executor.ToExecutor().Validate()
}

// ToExecutor maps the section onto executor.Config.
func (e ExecutorConfig) ToExecutor() executor.Config {
	return executor.Config{
		BinaryPath:        e.Binary,
		Args:              e.Args,
		Env:               e.Env,
		Mode:              session.Mode(e.Mode),
		MaxConcurrent:     e.MaxConcurrent,
		DefaultTimeout:    e.DefaultTimeout.Std(),
		IdleTimeout:       e.IdleTimeout.Std(),
		ReleaseIdle:       e.ReleaseIdle,
		QuietPeriod:       e.QuietPeriod.Std(),
		SettleDelay:       e.SettleDelay.Std(),
		GracePeriod:       e.GracePeriod.Std(),
		MaxOutputBytes:    e.MaxOutputBytes,
		HistoryLimit:      e.HistoryLimit,
		SlashPrefix:       e.SlashPrefix,
		LineTerminator:    e.LineTerminator,
		Sentinel:          e.Sentinel,
		Cols:              e.Cols,
		Rows:              e.Rows,
		CompletionPhrases: e.CompletionPhrases,
		FailurePhrases:    e.FailurePhrases,
	}
}

// Default returns default configuration.
func Default() *Config {
	exec := executor.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Executor: ExecutorConfig{
			Binary:            exec.BinaryPath,
			Mode:              string(exec.Mode),
			MaxConcurrent:     exec.MaxConcurrent,
			DefaultTimeout:    Duration(exec.DefaultTimeout),
			IdleTimeout:       Duration(exec.IdleTimeout),
			QuietPeriod:       Duration(exec.QuietPeriod),
			SettleDelay:       Duration(exec.SettleDelay),
			GracePeriod:       Duration(exec.GracePeriod),
			MaxOutputBytes:    exec.MaxOutputBytes,
			HistoryLimit:      exec.HistoryLimit,
			SlashPrefix:       exec.SlashPrefix,
			LineTerminator:    exec.LineTerminator,
			Cols:              exec.Cols,
			Rows:              exec.Rows,
			CompletionPhrases: exec.CompletionPhrases,
			FailurePhrases:    exec.FailurePhrases,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
