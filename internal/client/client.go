package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/tracing"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("ptyexec server unavailable: circuit breaker open")

// APIError is a non-2xx response from the server
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ptyexec: %d: %s", e.Status, e.Message)
}

// Client wraps resty with rate limiting and a circuit breaker
type Client struct {
	resty   *resty.Client
	stream  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// Option configures a Client
type Option func(*Client)

// WithTimeout bounds every non-streaming request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.resty.SetTimeout(d) }
}

// WithRetry configures retries of failed non-streaming requests
func WithRetry(maxRetries int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.resty.SetRetryCount(maxRetries).
			SetRetryWaitTime(minWait).
			SetRetryMaxWaitTime(maxWait)
	}
}

// WithRateLimit limits requests per second; zero or less disables the limit
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	transport := retryClient.HTTPClient.Transport

	baseURL = strings.TrimRight(baseURL, "/")
	restyClient := resty.New().
		SetBaseURL(baseURL).
		SetTransport(transport).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "ptyexec-client/1.0").
		SetHeader("Accept", "application/json")

	// Streams last as long as the command, so they carry no client timeout.
	streamClient := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "ptyexec-client/1.0").
		SetHeader("Accept", "text/event-stream")

	c := &Client{
		resty:   restyClient,
		stream:  streamClient,
		limiter: rate.NewLimiter(rate.Inf, 0),
		breaker: resilience.New("ptyexec-api", resilience.Settings{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// outcome separates client errors, which do not trip the breaker, from
// transport failures and 5xx responses, which do.
type outcome[T any] struct {
	value  T
	apiErr error
}

func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("rate limit error: %w", err)
	}

	res, err := resilience.Do(c.breaker, func() (outcome[T], error) {
		var out T
		apiErr := &APIError{}
		req := c.resty.R().SetContext(ctx).SetResult(&out).SetError(apiErr)
		tracing.Inject(ctx, req.Header)
		if body != nil {
			req.SetBody(body)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return outcome[T]{}, err
		}
		if resp.IsError() {
			apiErr.Status = resp.StatusCode()
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode())
			}
			if resp.StatusCode() >= http.StatusInternalServerError {
				return outcome[T]{}, apiErr
			}
			return outcome[T]{apiErr: apiErr}, nil
		}
		return outcome[T]{value: out}, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return zero, ErrUnavailable
	}
	if err != nil {
		return zero, err
	}
	if res.apiErr != nil {
		return zero, res.apiErr
	}
	return res.value, nil
}

// Health is the /health payload
type Health struct {
	Status        string  `json:"status"`
	Sessions      int     `json:"sessions"`
	Running       int     `json:"running"`
	MaxConcurrent int     `json:"max_concurrent"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health checks the server
func (c *Client) Health(ctx context.Context) (Health, error) {
	return call[Health](ctx, c, http.MethodGet, "/health", nil)
}

// Sessions lists live sessions, oldest first
func (c *Client) Sessions(ctx context.Context) ([]session.Info, error) {
	res, err := call[struct {
		Sessions []session.Info `json:"sessions"`
	}](ctx, c, http.MethodGet, "/sessions", nil)
	return res.Sessions, err
}

// SessionDetail is one session with its recent history
type SessionDetail struct {
	Session session.Info              `json:"session"`
	History []session.CommandSnapshot `json:"history"`
}

// Session fetches one session
func (c *Client) Session(ctx context.Context, sessionID string) (SessionDetail, error) {
	return call[SessionDetail](ctx, c, http.MethodGet, "/sessions/"+sessionID, nil)
}

// OpenSession creates a session ahead of its first command
func (c *Client) OpenSession(ctx context.Context, opts executor.SessionOptions) (session.Info, error) {
	res, err := call[struct {
		Session session.Info `json:"session"`
	}](ctx, c, http.MethodPost, "/sessions", map[string]any{
		"session_id":   opts.ID,
		"project_path": opts.ProjectPath,
		"env":          opts.Env,
	})
	return res.Session, err
}

type ack struct {
	Success bool `json:"success"`
}

// CloseSession terminates a session
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	_, err := call[ack](ctx, c, http.MethodDelete, "/sessions/"+sessionID, nil)
	return err
}

// SendInput writes data to a running command
func (c *Client) SendInput(ctx context.Context, commandID, data string) error {
	_, err := call[ack](ctx, c, http.MethodPost, "/commands/"+commandID+"/input", map[string]string{"data": data})
	return err
}

// Resize changes a command's terminal size
func (c *Client) Resize(ctx context.Context, commandID string, cols, rows int) error {
	_, err := call[ack](ctx, c, http.MethodPost, "/commands/"+commandID+"/resize", map[string]int{"cols": cols, "rows": rows})
	return err
}

// Cancel cancels a pending or running command
func (c *Client) Cancel(ctx context.Context, commandID string) error {
	_, err := call[ack](ctx, c, http.MethodPost, "/commands/"+commandID+"/cancel", nil)
	return err
}

// StatsReport is the /stats payload
type StatsReport struct {
	Executor executor.Stats             `json:"executor"`
	Metrics  monitoring.MetricsSnapshot `json:"metrics"`
}

// Stats fetches executor statistics
func (c *Client) Stats(ctx context.Context) (StatsReport, error) {
	return call[StatsReport](ctx, c, http.MethodGet, "/stats", nil)
}

// ExecuteRequest is the body of POST /execute
type ExecuteRequest struct {
	Command     string            `json:"command"`
	SessionID   string            `json:"session_id,omitempty"`
	TimeoutMs   int64             `json:"timeout_ms,omitempty"`
	ProjectPath string            `json:"project_path,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// Execute runs a command remotely and calls fn with every response until the
// terminal one. Cancelling ctx closes the stream, which cancels the command.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest, fn func(executor.CommandResponse) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	resp, err := resilience.Do(c.breaker, func() (*resty.Response, error) {
		r := c.stream.R().
			SetContext(ctx).
			SetBody(req).
			SetDoNotParseResponse(true)
		tracing.Inject(ctx, r.Header)
		return r.Post("/execute")
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return ErrUnavailable
	}
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode()}
		if json.NewDecoder(body).Decode(apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
		return apiErr
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		var cr executor.CommandResponse
		if err := json.Unmarshal([]byte(data), &cr); err != nil {
			return fmt.Errorf("decode response event: %w", err)
		}
		if err := fn(cr); err != nil {
			return err
		}
		if cr.Terminal() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read response stream: %w", err)
	}
	return errors.New("response stream ended before the command finished")
}
