// Package pty allocates pseudo-terminals and owns the processes attached to
// them.
//
// A Manager spawns the configured binary on the slave side of a fresh PTY pair
// and returns a Terminal for the master side. The package knows nothing about
// commands or sessions: it moves bytes, resizes the window and terminates the
// process group.
//
// Reads are the only blocking operation. Each Terminal runs one pump goroutine
// that is started lazily by the first call to Chunks and delivers the output
// as a non-restartable stream; a chunk never ends inside a UTF-8 sequence.
//
// Example:
//
//	mgr := pty.NewManager(logger)
//	term, err := mgr.Allocate(pty.SpawnSpec{Path: "/bin/sh"}, pty.Size{Cols: 120, Rows: 40})
//	if err != nil {
//		var spawnErr *pty.SpawnError
//		errors.As(err, &spawnErr) // binary missing, not executable, fd exhaustion
//	}
//	defer term.Terminate(5 * time.Second)
//	term.Write([]byte("echo hello\n"))
//	for chunk := range term.Chunks() {
//		...
//	}
package pty
