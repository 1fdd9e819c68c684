// Package config provides layered configuration for the executor service.
//
// Values come from, in increasing priority:
//   - Default()
//   - an optional YAML (.yaml/.yml) or TOML (.toml) file named by PTYEXEC_CONFIG
//     or passed to LoadFile
//   - environment variables
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS, shutdown)
//   - Executor: binary, mode, admission bound, timeouts, completion heuristics
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS, SHUTDOWN_TIMEOUT
//   - PTYEXEC_BINARY, PTYEXEC_ARGS, PTYEXEC_MODE, PTYEXEC_MAX_CONCURRENT
//   - PTYEXEC_TIMEOUT, PTYEXEC_IDLE_TIMEOUT, PTYEXEC_QUIET_PERIOD, PTYEXEC_GRACE_PERIOD
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
