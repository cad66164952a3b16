package notify

import "context"

// MultiNotifier fans one event out to several backends. Every backend is
// called even after a failure; the first error is the one returned.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Publish(ctx context.Context, event *RunCompletedEvent) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiNotifier) Close() error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
