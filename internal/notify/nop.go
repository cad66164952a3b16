package notify

import "context"

// NopNotifier discards events. Used when no notify backend is configured.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, *RunCompletedEvent) error { return nil }

func (NopNotifier) Close() error { return nil }
