package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Broadcaster fans out the frames of one run to multiple SSE clients.
// One Broadcaster per run. Thread-safe.
type Broadcaster struct {
	mu      sync.Mutex
	history []any
	clients map[uint64]chan any
	nextID  uint64
	closed  bool
}

// NewBroadcaster creates a new frame broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[uint64]chan any),
	}
}

// Send delivers one frame to every subscriber and records it for replay.
// Frames must not be mutated after Send.
func (b *Broadcaster) Send(ev any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, ev)
	for id, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			// Slow client: drop to keep the run goroutine unblocked.
			close(ch)
			delete(b.clients, id)
		}
	}
}

// Subscribe returns a channel of frames and an unsubscribe function.
// The channel receives a replay of all historical frames, then live frames.
func (b *Broadcaster) Subscribe() (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, len(b.history)+256)
	id := b.nextID
	b.nextID++

	// Replay history.
	for _, ev := range b.history {
		ch <- ev
	}

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.clients[id] = ch
	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.clients[id]; ok {
			delete(b.clients, id)
			close(ch)
		}
	}
	return ch, unsub
}

// Close signals that no more frames will be sent. All client channels are closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

// History returns a copy of all frames received so far.
func (b *Broadcaster) History() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, len(b.history))
	copy(out, b.history)
	return out
}

// WriteSSE streams frames from a Broadcaster to an HTTP response as
// Server-Sent Events. When the broadcaster closes, a terminal "done" event
// is written carrying final() when provided; final runs after the last
// frame so it can report the finished run's outcome.
func WriteSSE(w http.ResponseWriter, r *http.Request, b *Broadcaster, final func() any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx proxy compatibility
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsub := b.Subscribe()
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Broadcaster closed (run finished). Send terminal SSE event.
				payload := []byte("{}")
				if final != nil {
					if fin := final(); fin != nil {
						if data, err := json.Marshal(fin); err == nil {
							payload = data
						}
					}
				}
				fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
				flusher.Flush()
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
