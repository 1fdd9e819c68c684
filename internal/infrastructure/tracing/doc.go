/*
Package tracing provides lightweight request and command tracing.

Spans carry a trace id propagated through the X-Trace-ID and X-Span-ID
headers. Finished spans go to a buffered collector that writes them to the
structured log; when the buffer is full spans are dropped rather than
blocking the caller.

# Usage

	tracer := tracing.New("ptyexec", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "command.execute")
	span.SetTag("session_id", sessionID)
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
