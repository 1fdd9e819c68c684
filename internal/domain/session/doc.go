// Package session runs commands through one long-lived interactive CLI
// process attached to a PTY.
//
// A Session is a small state machine:
//
//	INITIALIZING -> READY <-> BUSY
//	READY -> IDLE (inactivity)    IDLE -> READY (submit)
//	any -> TERMINATED (close, process exit, fatal I/O)
//
// Commands queue FIFO and run one at a time on a per-session worker
// goroutine. While a command is active the worker reads the PTY, splits the
// stream into classified lines (stdout, stderr, system, error) and evaluates
// completion rules in order: explicit exit sentinels, completion phrases, then
// a quiet period with no output. Completion is a heuristic; an output that
// happens to contain "Done." completes the command early.
//
// Slash commands (text starting with the configured prefix) are always written
// into the session's REPL. In ModeSpawn every other command gets a dedicated
// process whose exit code is authoritative and which is killed on cancel or
// timeout; the shared REPL is never killed by a cancel.
package session
