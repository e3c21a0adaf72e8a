// Package trace carries W3C-style trace and span ids through contexts and
// into slog output. Spans are timed and logged, not exported.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"
)

// Header and metadata keys used for propagation.
const (
	TraceIDKey  = "x-trace-id"
	SpanIDKey   = "x-span-id"
	TraceParent = "traceparent"
)

type ctxKey struct{}

// Context holds trace identifiers for a single span.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New creates a new trace context with fresh IDs.
func New() Context {
	return Context{
		TraceID: generateTraceID(),
		SpanID:  generateSpanID(),
	}
}

// NewChild creates a child context from parent.
func NewChild(parent Context) Context {
	return Context{
		TraceID:      parent.TraceID,
		SpanID:       generateSpanID(),
		ParentSpanID: parent.SpanID,
	}
}

// FromContext extracts trace context from context.Context.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext injects trace context into context.Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns existing trace context or creates a new one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// FromMap continues a trace from propagated key/values. The caller's span
// becomes the parent; a missing trace id starts a new trace.
func FromMap(m map[string]string) Context {
	tc := Context{
		TraceID:      m[TraceIDKey],
		SpanID:       generateSpanID(),
		ParentSpanID: m[SpanIDKey],
	}
	if !validHex(tc.TraceID, 32) {
		tc.TraceID = generateTraceID()
		tc.ParentSpanID = ""
	}
	return tc
}

func generateTraceID() string { return randomHex(16) }

func generateSpanID() string { return randomHex(8) }

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func validHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Span times one operation. Attributes keep insertion order in logs.
type Span struct {
	name  string
	ctx   Context
	start time.Time
	end   time.Time
	attrs []slog.Attr
}

// StartSpan begins a child span of the trace in ctx, or a new trace.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	tc := New()
	if parent, ok := FromContext(ctx); ok && parent.TraceID != "" {
		tc = NewChild(parent)
	}
	s := &Span{name: name, ctx: tc, start: time.Now()}
	return WithContext(ctx, tc), s
}

// Name returns the operation name.
func (s *Span) Name() string { return s.name }

// Context returns the span's identifiers.
func (s *Span) Context() Context { return s.ctx }

// SetAttr records a key/value on the span.
func (s *Span) SetAttr(key string, val any) {
	s.attrs = append(s.attrs, slog.Any(key, val))
}

// Attr returns the last value recorded for key.
func (s *Span) Attr(key string) (any, bool) {
	for i := len(s.attrs) - 1; i >= 0; i-- {
		if s.attrs[i].Key == key {
			return s.attrs[i].Value.Any(), true
		}
	}
	return nil, false
}

// End closes the span and returns its duration. Later calls return the
// same duration.
func (s *Span) End() time.Duration {
	if s.end.IsZero() {
		s.end = time.Now()
	}
	return s.end.Sub(s.start)
}

// Duration returns the span duration, or the time so far for an open span.
func (s *Span) Duration() time.Duration {
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Span) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.attrs)+3)
	attrs = append(attrs,
		slog.String("name", s.name),
		slog.String("span_id", s.ctx.SpanID),
		slog.Duration("duration", s.Duration()),
	)
	return slog.GroupValue(append(attrs, s.attrs...)...)
}

// Logger returns the default logger annotated with the trace in ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := []any{"trace_id", tc.TraceID, "span_id", tc.SpanID}
	if tc.ParentSpanID != "" {
		args = append(args, "parent_span_id", tc.ParentSpanID)
	}
	return slog.Default().With(args...)
}
