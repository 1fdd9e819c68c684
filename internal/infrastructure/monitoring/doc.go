/*
Package monitoring provides Prometheus metrics for the executor service.

# Overview

Metrics are registered on a dedicated registry rather than the global one,
so tests and multiple executors in one process never collide.

# Metrics

- HTTP requests (count, latency, sizes) keyed by route template
- Commands finished by status, running time, commands running
- Admission tickets in use and admission wait
- Live sessions, session state transitions, spawn results
- WebSocket connections and messages
- Uptime, Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	exec := executor.New(cfg, allocator, logger).WithMetrics(metrics)

A nil *Metrics is valid; every recording method is a no-op on it.
*/
package monitoring
