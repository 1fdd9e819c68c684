// Package middleware provides gin middleware for the executor API: CORS,
// per-IP rate limiting and gzip compression of JSON responses.
package middleware
