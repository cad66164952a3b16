package llm

import (
	"context"
	"sync"
)

// ChanStream is a channel-backed Stream for adapters and the streaming
// orchestrator. The producing side calls Send for each event and CloseSend
// exactly once at the end; the consuming side ranges over Events and calls
// Close when done, which cancels the producer's context.
type ChanStream struct {
	events   chan StreamEvent
	cancel   context.CancelFunc
	once     sync.Once
	sendOnce sync.Once
	done     chan struct{}
}

func NewChanStream(cancel context.CancelFunc) *ChanStream {
	return &ChanStream{
		events: make(chan StreamEvent, 128),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *ChanStream) Events() <-chan StreamEvent { return s.events }

// Close cancels the producer and waits for it to finish sending.
func (s *ChanStream) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
	})
	return nil
}

// CloseSend closes the event channel and marks the stream finished. The
// producing side must call this exactly once when the stream ends.
func (s *ChanStream) CloseSend() {
	s.sendOnce.Do(func() {
		close(s.done)
		close(s.events)
	})
}

// Send publishes a stream event, dropping it if the stream is already
// closed.
func (s *ChanStream) Send(ev StreamEvent) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
