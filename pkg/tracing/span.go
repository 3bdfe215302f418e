// Package tracing logs operation span trees through slog. A rebuild or a
// control call opens a root span, stages beneath it open children off the
// context, and the finished tree lands in the log as one record per span,
// all sharing a trace id.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

// Span is one timed operation. A Span is safe for concurrent use; a rebuild
// walks both document kinds in parallel under a single root.
type Span struct {
	Name    string
	TraceID string
	Start   time.Time

	mu       sync.Mutex
	elapsed  time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

func newSpan(name, traceID string) *Span {
	return &Span{Name: name, TraceID: traceID, Start: time.Now()}
}

// StartSpan opens a root span and stores it in the returned context. An
// empty traceID gets a generated one.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a span under the one carried by ctx. Without a
// parent the child becomes a root with its own trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}
	child := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

// End freezes the span's duration. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.elapsed = time.Since(s.Start)
}

// SetAttr attaches a key-value pair that rides along on the span's log line.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, slog.Any(key, value))
}

// SetError marks the span failed. A nil err leaves it untouched.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.SetAttr("error", err.Error())
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// Log emits the span and its descendants, one record each, root first.
func (s *Span) Log() {
	s.log(0)
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	if !s.ended {
		s.elapsed = time.Since(s.Start)
	}
	record := make([]any, 0, 8+len(s.attrs))
	record = append(record,
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.elapsed.Milliseconds(),
		"depth", depth,
	)
	for _, attr := range s.attrs {
		record = append(record, attr)
	}
	children := make([]*Span, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	slog.Info("span", record...)
	for _, child := range children {
		child.log(depth + 1)
	}
}
