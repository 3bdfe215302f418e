package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const timeoutBody = `{"error":"request timeout"}`

// Timeout cancels the request context after d and answers 504 when the
// handler has not started writing. Late writes from the abandoned handler
// are dropped instead of landing on top of the timeout response.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if gw.timeout() {
					slog.Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"limit", d,
					)
				}
			}
		})
	}
}

// guardedWriter serializes the handler goroutine and the timeout path. Once
// either side has written, the other's output is dropped.
type guardedWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	written  bool
	timedOut bool
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timedOut {
		return
	}
	g.written = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timedOut {
		return len(b), nil
	}
	g.written = true
	return g.ResponseWriter.Write(b)
}

// timeout claims the response for the 504 path. It reports false when the
// handler already wrote, in which case the response is left alone.
func (g *guardedWriter) timeout() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return false
	}
	g.timedOut = true
	g.ResponseWriter.Header().Set("Content-Type", "application/json")
	g.ResponseWriter.WriteHeader(http.StatusGatewayTimeout)
	_, _ = g.ResponseWriter.Write([]byte(timeoutBody))
	return true
}
