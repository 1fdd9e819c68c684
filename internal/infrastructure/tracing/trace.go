package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/shared/id"
)

// Propagation headers
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// Span times one request or command. It is owned by a single goroutine
// until submitted.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string
	Name     string
	Start    time.Time
	Duration time.Duration
	Tags     map[string]string
	Err      error
	Status   int
}

// Tracer collects finished spans and writes them to the log
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a tracer whose collector runs until Close
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan opens a span, continuing the trace carried by ctx
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = id.NewRequestID().String()
	}
	span := &Span{
		TraceID:  traceID,
		SpanID:   id.NewRequestID().String(),
		ParentID: SpanIDFrom(ctx),
		Name:     name,
		Start:    time.Now(),
		Tags:     make(map[string]string),
	}
	return span, WithTrace(ctx, span.TraceID, span.SpanID)
}

func (s *Span) Finish()                  { s.Duration = time.Since(s.Start) }
func (s *Span) SetTag(key, value string) { s.Tags[key] = value }
func (s *Span) SetError(err error)       { s.Err = err }
func (s *Span) SetStatus(code int)       { s.Status = code }

func (s *Span) fields(service string) []zap.Field {
	fields := make([]zap.Field, 0, 7+len(s.Tags))
	fields = append(fields,
		zap.String("trace_id", s.TraceID),
		zap.String("span_id", s.SpanID),
		zap.String("operation", s.Name),
		zap.Duration("duration", s.Duration),
		zap.String("service", service),
	)
	if s.ParentID != "" {
		fields = append(fields, zap.String("parent_id", s.ParentID))
	}
	if s.Status != 0 {
		fields = append(fields, zap.Int("status", s.Status))
	}
	for k, v := range s.Tags {
		fields = append(fields, zap.String(k, v))
	}
	return fields
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		fields := span.fields(t.service)
		if span.Err != nil {
			t.logger.Error("span completed with error", append(fields, zap.Error(span.Err))...)
			continue
		}
		t.logger.Debug("span completed", fields...)
	}
}

// Submit hands a finished span to the collector. Spans are dropped when the
// buffer is full or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	if t == nil || span == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID))
	}
}

// Close flushes pending spans and stops the collector
func (t *Tracer) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.spans)
	}
	t.mu.Unlock()
	<-t.done
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// WithTrace returns ctx carrying the given trace and span ids. Empty ids are
// not stored.
func WithTrace(ctx context.Context, traceID, spanID string) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

// TraceIDFrom returns the trace id carried by ctx, or ""
func TraceIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceIDKey).(string)
	return s
}

// SpanIDFrom returns the current span id carried by ctx, or ""
func SpanIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(spanIDKey).(string)
	return s
}

// Inject writes the trace carried by ctx into outgoing request headers
func Inject(ctx context.Context, h http.Header) {
	if traceID := TraceIDFrom(ctx); traceID != "" {
		h.Set(HeaderTraceID, traceID)
	}
	if spanID := SpanIDFrom(ctx); spanID != "" {
		h.Set(HeaderSpanID, spanID)
	}
}

// Extract continues the trace named by incoming request headers
func Extract(ctx context.Context, h http.Header) context.Context {
	return WithTrace(ctx, h.Get(HeaderTraceID), h.Get(HeaderSpanID))
}
