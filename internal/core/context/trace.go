package context

import (
	"context"

	"hvacstock/internal/core/id"
)

// Entry points that start a trace.
const (
	SourceHTTP   = "http"
	SourceWorker = "worker"
	SourceCLI    = "cli"
)

// TraceContext identifies the unit of work a log line or audit entry belongs to.
// RequestID is copied into admin_audit_log.request_id.
type TraceContext struct {
	TraceID   string
	RequestID string
	Source    string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext starts a trace for a non-HTTP unit of work, such as a
// worker tick or a CLI run. Trace and request ids are the same fresh id.
func NewTraceContext(source string) *TraceContext {
	rid := id.New().String()
	return &TraceContext{
		TraceID:   rid,
		RequestID: rid,
		Source:    source,
	}
}

// StartTrace returns ctx carrying a new trace for source.
func StartTrace(ctx context.Context, source string) context.Context {
	return WithTrace(ctx, NewTraceContext(source))
}
