// Package main is the entry point for the ptyexec server.
//
// The server runs commands inside an interactive command-line program attached
// to pseudo-terminals and exposes them over HTTP and WebSocket.
//
// The server provides:
//   - POST /execute streaming command snapshots as server-sent events
//   - Interactive input, terminal resize and cancellation per command
//   - Session listing and lifecycle endpoints
//   - WebSocket streaming on /stream
//   - Prometheus metrics on /metrics and statistics on /stats
//   - Rate limiting, CORS and response compression
//
// Configuration:
//   - Defaults, then a YAML or TOML file ($PTYEXEC_CONFIG or -config)
//   - Environment variables (12-factor)
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -binary claude
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
