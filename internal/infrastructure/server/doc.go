// Package server assembles the executor, telemetry and transports into one
// HTTP server with graceful shutdown.
package server
