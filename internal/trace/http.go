// Package trace - HTTP/WebSocket middleware for trace extraction.
package trace

import (
	"net/http"
	"strings"
)

// Middleware continues the caller's trace (traceparent or x-trace-id
// headers) or starts one, and echoes the trace id on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := extractFromHeaders(r)
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

func extractFromHeaders(r *http.Request) Context {
	if tc, ok := parseTraceParent(r.Header.Get(TraceParent)); ok {
		return tc
	}
	return FromMap(map[string]string{
		TraceIDKey: r.Header.Get(TraceIDKey),
		SpanIDKey:  r.Header.Get(SpanIDKey),
	})
}

// parseTraceParent reads a W3C "version-traceid-parentid-flags" header.
func parseTraceParent(h string) (Context, bool) {
	parts := strings.Split(strings.TrimSpace(h), "-")
	if len(parts) != 4 || !validHex(parts[1], 32) || !validHex(parts[2], 16) {
		return Context{}, false
	}
	if parts[1] == strings.Repeat("0", 32) {
		return Context{}, false
	}
	return Context{
		TraceID:      parts[1],
		SpanID:       generateSpanID(),
		ParentSpanID: parts[2],
	}, true
}
