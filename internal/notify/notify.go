// Package notify publishes run completion events to downstream systems.
// The serving layer owns notifier lifecycle; callers provide configuration
// only.
package notify

import (
	"context"
	"time"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// Run outcomes carried in RunCompletedEvent.Outcome.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	InvocationID string     `json:"invocation_id"`
	AppName      string     `json:"app_name"`
	SessionID    string     `json:"session_id"`
	Outcome      string     `json:"outcome"`
	ErrorCode    string     `json:"error_code,omitempty"`
	Usage        *llm.Usage `json:"usage,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
	CompletedAt  time.Time  `json:"completed_at"`
}

// Notifier publishes run completion events. Publish must respect context
// cancellation and deadlines.
type Notifier interface {
	Publish(ctx context.Context, event *RunCompletedEvent) error
	Close() error
}

// defaultRetryPolicy is the bounded backoff shared by the network-backed
// notifiers. Notification delivery is best effort, so the schedule is
// much tighter than the generation policy.
func defaultRetryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		InitialDelay: 500 * time.Millisecond,
		Base:         2,
		MaxDelay:     5 * time.Second,
		MaxRetries:   3,
	}
}
