// Package executor is the public face of the command execution engine.
//
// An Executor owns a registry of sessions keyed by id and a process-wide pool
// of admission tickets bounding how many commands run at once. Execute
// submits a command to its session (creating the session on first use) and
// returns a channel of response snapshots that ends when the command reaches
// a terminal status or the caller's context is cancelled. Cancelling the
// context cancels the command; its ticket is always released.
package executor
