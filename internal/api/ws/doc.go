// Package ws provides WebSocket access to the executor.
//
// One connection may run several commands concurrently. Every command started
// on a connection is cancelled when the connection closes.
//
// Message Types (Client → Server):
//   - execute: Run a command (command, session_id, timeout_ms, project_path, env)
//   - input: Write data to a running command (command_id, data)
//   - resize: Resize a command's terminal (command_id, cols, rows)
//   - cancel: Cancel a command (command_id)
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection greeting and acknowledgements
//   - response: One command snapshot, tagged with the request_id of its execute
//   - error: Invalid message or rejected operation
//   - pong: Ping reply
//
// Frames are encoded with sonic.
//
// Example Usage:
//
//	handler := ws.NewHandler(exec, metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
