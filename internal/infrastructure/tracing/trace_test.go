package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpanPropagatesTrace(t *testing.T) {
	tracer := New("test", nil)
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
	assert.Equal(t, child.SpanID, SpanIDFrom(childCtx))
	assert.Equal(t, parent.TraceID, TraceIDFrom(childCtx))

	headers := http.Header{}
	Inject(childCtx, headers)
	assert.Equal(t, parent.TraceID, headers.Get(HeaderTraceID))
	assert.Equal(t, child.SpanID, headers.Get(HeaderSpanID))

	remote := Extract(context.Background(), headers)
	assert.Equal(t, parent.TraceID, TraceIDFrom(remote))
	assert.Equal(t, child.SpanID, SpanIDFrom(remote))
}

func TestInjectWithoutTraceLeavesHeadersEmpty(t *testing.T) {
	headers := http.Header{}
	Inject(context.Background(), headers)
	assert.Empty(t, headers)
}

func TestSubmittedSpansAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tracer := New("test", zap.New(core))

	span, _ := tracer.StartSpan(context.Background(), "command.execute")
	span.SetTag("session_id", "sess_1")
	span.SetError(errors.New("timed out"))
	span.Finish()
	tracer.Submit(span)
	tracer.Close()

	entries := logs.FilterMessage("span completed with error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "command.execute", entries[0].ContextMap()["operation"])
	assert.Equal(t, "sess_1", entries[0].ContextMap()["session_id"])

	// Submitting after Close is a no-op.
	assert.NotPanics(t, func() { tracer.Submit(span) })
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("test", nil)
	defer tracer.Close()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/health", func(c *gin.Context) {
		assert.NotEmpty(t, TraceIDFrom(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderTraceID, "req_incoming")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req_incoming", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))
}
