package llm

import (
	"context"
	"time"
)

// CallRecord describes one Complete call across every endpoint it touched.
type CallRecord struct {
	RequestID  string `json:"request_id"`
	Capability string `json:"capability"`

	// Model and Provider name the last endpoint tried.
	Model    string `json:"model"`
	Provider string `json:"provider"`

	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finish_reason,omitempty"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`

	Retries       int      `json:"retries"`
	FallbacksUsed []string `json:"fallbacks_used,omitempty"`

	// Error is empty on success.
	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the call produced a response.
func (r *CallRecord) Succeeded() bool {
	return r.Error == ""
}

// CallRecorder receives a record for every Complete call. Recording errors are
// logged and never fail the call.
type CallRecorder interface {
	Record(ctx context.Context, record *CallRecord) error
}

// CallRecorderFunc adapts a function to CallRecorder.
type CallRecorderFunc func(ctx context.Context, record *CallRecord) error

// Record implements CallRecorder.
func (f CallRecorderFunc) Record(ctx context.Context, record *CallRecord) error {
	return f(ctx, record)
}
