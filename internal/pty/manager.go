package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	cpty "github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/resilience"
)

// SpawnObserver is notified of every spawn attempt.
type SpawnObserver interface {
	ObserveSpawn(binary string, err error)
}

// Manager spawns processes on fresh PTY pairs.
type Manager struct {
	logger   *zap.Logger
	breakers *resilience.Group
	observer SpawnObserver
}

// NewManager creates a PTY manager. Spawns of one binary fail fast after
// five consecutive failures, for ten seconds.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logging.OrNop(logger),
		breakers: resilience.NewGroup(resilience.Settings{
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// WithObserver attaches a spawn observer (metrics).
func (m *Manager) WithObserver(observer SpawnObserver) *Manager {
	m.observer = observer
	return m
}

// Allocate opens a PTY, starts spec on its slave side and returns the master.
// Every failure is a *SpawnError.
func (m *Manager) Allocate(spec SpawnSpec, size Size) (Terminal, error) {
	size = size.OrDefault()

	// Working directory errors are per-request and stay out of the breaker.
	err := checkDir(spec)
	var h *Handle
	if err == nil {
		h, err = resilience.Do(m.breakers.Get(spec.Path), func() (*Handle, error) {
			return m.spawn(spec, size)
		})
	}
	if err != nil {
		var spawnErr *SpawnError
		if !errors.As(err, &spawnErr) {
			err = &SpawnError{Path: spec.Path, Err: err}
		}
		m.logger.Warn("spawn failed", zap.String("binary", spec.Path), zap.Error(err))
		if m.observer != nil {
			m.observer.ObserveSpawn(spec.Path, err)
		}
		return nil, err
	}

	m.logger.Debug("spawned process",
		zap.String("binary", spec.Path),
		zap.Int("pid", h.Pid()),
		zap.Uint16("cols", size.Cols),
		zap.Uint16("rows", size.Rows),
	)
	if m.observer != nil {
		m.observer.ObserveSpawn(spec.Path, nil)
	}
	return h, nil
}

func (m *Manager) spawn(spec SpawnSpec, size Size) (*Handle, error) {
	if spec.Path == "" {
		return nil, &SpawnError{Path: spec.Path, Err: fmt.Errorf("no binary configured")}
	}

	path, err := exec.LookPath(spec.Path)
	if err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.environ()

	ptmx, err := cpty.StartWithSize(cmd, &cpty.Winsize{
		Rows: size.Rows,
		Cols: size.Cols,
	})
	if err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}

	return newHandle(cmd, ptmx, size, m.logger), nil
}

func checkDir(spec SpawnSpec) error {
	if spec.Dir == "" {
		return nil
	}
	info, err := os.Stat(spec.Dir)
	if err != nil {
		return &SpawnError{Path: spec.Path, Err: fmt.Errorf("working directory: %w", err)}
	}
	if !info.IsDir() {
		return &SpawnError{Path: spec.Path, Err: fmt.Errorf("working directory %s is not a directory", spec.Dir)}
	}
	return nil
}
