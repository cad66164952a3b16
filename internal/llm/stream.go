package llm

// Stream is an asynchronous iterator of StreamEvent values. Implementations
// must be explicitly closed when the consumer is done to avoid leaking
// connections.
type Stream interface {
	Events() <-chan StreamEvent
	Close() error
}

// StreamEvent carries exactly one of a response chunk or a terminal error.
// An Err event is always the last event of its stream.
type StreamEvent struct {
	Response *Response `json:"response,omitempty"`
	Err      error     `json:"-"`
}
