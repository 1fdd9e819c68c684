// Package http exposes the executor over REST and server-sent events.
//
// Routes:
//
//	POST   /execute               stream command snapshots as SSE "response" events
//	POST   /commands/:id/input    write to a running command
//	POST   /commands/:id/resize   resize the command's terminal
//	POST   /commands/:id/cancel   cancel a pending or running command
//	GET    /sessions              list live sessions
//	POST   /sessions              open a session ahead of its first command
//	GET    /sessions/:id          session info and recent history
//	DELETE /sessions/:id          terminate a session
//	GET    /stats                 executor statistics and metric totals
//	GET    /health                liveness
//
// A client disconnecting from /execute cancels its command.
package http
