package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// Gzip compresses responses for clients that accept it. Requests whose path
// starts with one of skipPrefixes are left alone; use it for streaming and
// WebSocket routes.
func Gzip(level int, skipPrefixes ...string) gin.HandlerFunc {
	pool := sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	}

	return func(c *gin.Context) {
		if !shouldCompress(c.Request, skipPrefixes) {
			c.Next()
			return
		}

		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)
		defer pool.Put(gz)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipWriter{ResponseWriter: c.Writer, gz: gz}
		defer func() {
			_ = gz.Close()
			c.Header("Content-Length", "")
		}()

		c.Next()
	}
}

func shouldCompress(req *http.Request, skipPrefixes []string) bool {
	if !strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return false
		}
	}
	return true
}

type gzipWriter struct {
	gin.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipWriter) WriteHeader(code int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(code)
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	w.Header().Del("Content-Length")
	return w.gz.Write(data)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipWriter) Flush() {
	_ = w.gz.Flush()
	w.ResponseWriter.Flush()
}
