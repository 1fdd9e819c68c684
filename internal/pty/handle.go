package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	cpty "github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	readBufferSize = 32 * 1024
	chunkBacklog   = 64
	// killWait bounds how long Terminate waits for the reaper after SIGKILL.
	killWait = 5 * time.Second
)

// Handle is a live PTY master with its process. It implements Terminal.
type Handle struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	pid    int
	logger *zap.Logger

	mu   sync.Mutex
	size Size

	writeMu sync.Mutex

	readOnce sync.Once
	chunks   chan []byte
	readErr  error // written by the pump before chunks is closed

	done     chan struct{}
	exitCode int

	closed   chan struct{}
	termOnce sync.Once
	termErr  error
}

func newHandle(cmd *exec.Cmd, ptmx *os.File, size Size, logger *zap.Logger) *Handle {
	h := &Handle{
		cmd:      cmd,
		ptmx:     ptmx,
		pid:      cmd.Process.Pid,
		logger:   logger.With(zap.Int("pid", cmd.Process.Pid)),
		size:     size,
		chunks:   make(chan []byte, chunkBacklog),
		done:     make(chan struct{}),
		exitCode: -1,
		closed:   make(chan struct{}),
	}
	go h.reap()
	return h
}

// Pid returns the process id of the attached process.
func (h *Handle) Pid() int {
	return h.pid
}

// Chunks starts the read pump on first use and returns its stream.
func (h *Handle) Chunks() <-chan []byte {
	h.readOnce.Do(func() {
		go h.pump()
	})
	return h.chunks
}

// Err reports why the stream ended; only meaningful after Chunks is closed.
func (h *Handle) Err() error {
	return h.readErr
}

// Done is closed when the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode returns the exit status, or -1 while running or when killed by a signal.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// Size returns the last size applied to the terminal.
func (h *Handle) Size() Size {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Write sends bytes to the master side, i.e. to the process's input.
func (h *Handle) Write(p []byte) (int, error) {
	select {
	case <-h.closed:
		return 0, ErrClosed
	default:
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	n, err := h.ptmx.Write(p)
	if err != nil {
		return n, fmt.Errorf("pty write: %w", err)
	}
	return n, nil
}

// Resize sets the window size. The kernel sends SIGWINCH to the foreground
// process group of the terminal.
func (h *Handle) Resize(size Size) error {
	select {
	case <-h.closed:
		return ErrClosed
	default:
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := cpty.Setsize(h.ptmx, &cpty.Winsize{Rows: size.Rows, Cols: size.Cols}); err != nil {
		return fmt.Errorf("pty resize: %w", err)
	}
	h.size = size
	return nil
}

// Terminate hangs up and terminates the process group, sends SIGKILL once
// grace has elapsed, then closes the master.
func (h *Handle) Terminate(grace time.Duration) error {
	h.termOnce.Do(func() {
		h.termErr = h.terminate(grace)
	})
	return h.termErr
}

func (h *Handle) terminate(grace time.Duration) error {
	select {
	case <-h.done:
	default:
		h.signal(unix.SIGHUP)
		h.signal(unix.SIGTERM)

		timer := time.NewTimer(grace)
		select {
		case <-h.done:
			timer.Stop()
		case <-timer.C:
			h.logger.Warn("process ignored SIGTERM, killing", zap.Duration("grace", grace))
			h.signal(unix.SIGKILL)
			select {
			case <-h.done:
			case <-time.After(killWait):
				h.logger.Error("process not reaped after SIGKILL")
			}
		}
	}

	close(h.closed)
	if err := h.ptmx.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close pty: %w", err)
	}
	return nil
}

// signal targets the whole process group; pty.Start makes the child a
// session leader so its pgid equals its pid.
func (h *Handle) signal(sig unix.Signal) {
	if err := unix.Kill(-h.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		_ = h.cmd.Process.Signal(sig)
	}
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.logger.Debug("process exited", zap.Int("exit_code", h.exitCode), zap.Error(err))
	close(h.done)
}

func (h *Handle) pump() {
	defer close(h.chunks)

	buf := make([]byte, readBufferSize)
	var pending []byte
	for {
		n, err := h.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, len(pending)+n)
			copy(chunk, pending)
			copy(chunk[len(pending):], buf[:n])
			pending = nil

			if tail := incompleteUTF8Tail(chunk); tail > 0 {
				pending = append([]byte(nil), chunk[len(chunk)-tail:]...)
				chunk = chunk[:len(chunk)-tail]
			}
			if len(chunk) > 0 && !h.send(chunk) {
				return
			}
		}
		if err != nil {
			if len(pending) > 0 {
				h.send(pending)
			}
			h.readErr = h.classifyReadErr(err)
			return
		}
	}
}

func (h *Handle) send(chunk []byte) bool {
	select {
	case h.chunks <- chunk:
		return true
	case <-h.closed:
		return false
	}
}

// classifyReadErr maps the end of the stream to nil for normal shutdown.
// Linux returns EIO on the master once the slave side has no more holders.
func (h *Handle) classifyReadErr(err error) error {
	select {
	case <-h.closed:
		return nil
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return fmt.Errorf("pty read: %w", err)
}
