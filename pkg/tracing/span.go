// Package tracing records a tree of timed spans for one index build and
// logs it through slog when the build ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is a timed stage of a build.
type Span struct {
	Name     string
	BuildID  string
	Start    time.Time
	Duration time.Duration
	Err      error

	mu       sync.Mutex
	attrs    []any
	children []*Span
}

// Start begins a span. If ctx already carries a span the new one becomes
// its child and inherits its build ID.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.BuildID = parent.BuildID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartRoot begins the root span of build buildID.
func StartRoot(ctx context.Context, name, buildID string) (context.Context, *Span) {
	span := &Span{Name: name, BuildID: buildID, Start: time.Now()}
	return context.WithValue(ctx, contextKey{}, span), span
}

func FromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(contextKey{}).(*Span); ok {
		return span
	}
	return nil
}

// End records the duration and the stage outcome. It returns err unchanged
// so callers can write `return span.End(err)`.
func (s *Span) End(err error) error {
	s.Duration = time.Since(s.Start)
	s.Err = err
	return err
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Children returns the direct child spans in start order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes the span tree to logger, one record per span.
func (s *Span) Log(logger *slog.Logger) {
	s.log(logger, 0)
}

func (s *Span) log(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]any{
		"build_id", s.BuildID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}, s.attrs...)
	children := s.children
	s.mu.Unlock()
	if s.Err != nil {
		logger.Error("span", append(attrs, "error", s.Err)...)
	} else {
		logger.Info("span", attrs...)
	}
	for _, child := range children {
		child.log(logger, depth+1)
	}
}
