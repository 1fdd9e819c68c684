// Package client is a Go client for the ptyexec REST API.
//
// Requests go through resty over a pooled retryablehttp transport, a client
// side rate limiter and a circuit breaker that opens after repeated transport
// failures or 5xx responses. Execute consumes the server-sent event stream of
// POST /execute.
//
// Example Usage:
//
//	c := client.New("http://localhost:8000")
//	sessions, err := c.Sessions(ctx)
package client
