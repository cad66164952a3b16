package llm

import "strings"

// StreamAggregator reassembles one streamed generation into caller-visible
// events. Text chunks are republished immediately as partial mirrors while
// their text accumulates in per-kind buffers (thought and answer held
// separately); a non-text chunk flushes the buffers into one merged event
// that precedes the chunk's own pass-through; end of stream flushes any
// remainder into a final summary carrying the request's terminal reason
// and last observed usage.
//
// One instance serves exactly one streaming call and is driven by a single
// consumer goroutine; it is not safe for concurrent use.
type StreamAggregator struct {
	thought strings.Builder
	answer  strings.Builder

	lastUsage         *Usage
	lastFinish        *FinishReason
	lastFinishMessage string
}

func NewStreamAggregator() *StreamAggregator { return &StreamAggregator{} }

// OnChunk processes one chunk in arrival order and returns the events to
// publish for it, in order. A chunk whose parts use a kind outside
// text/thought/blob is malformed input and returns a MalformedChunkError.
func (a *StreamAggregator) OnChunk(chunk *Response) ([]*Response, error) {
	if chunk == nil {
		return nil, nil
	}
	if err := validatePartKinds(chunk); err != nil {
		return nil, err
	}

	// The summary reports the last chunk's usage, present or not.
	a.lastUsage = chunk.Usage
	if chunk.Finish != nil {
		a.lastFinish = chunk.Finish
		a.lastFinishMessage = chunk.FinishMessage
	}

	if p := chunk.FirstPart(); p != nil && p.Text != "" && (p.Kind == PartText || p.Kind == PartThought) {
		if p.Kind == PartThought {
			a.thought.WriteString(p.Text)
		} else {
			a.answer.WriteString(p.Text)
		}
		mirror := *chunk
		mirror.Partial = true
		return []*Response{&mirror}, nil
	}

	// Blob chunks pass through without flushing so that buffered text
	// spans them and merges at the next text boundary instead.
	if a.pending() && !firstPartIsBlob(chunk) {
		merged := a.flush()
		merged.Usage = chunk.Usage
		return []*Response{merged, chunk}, nil
	}
	return []*Response{chunk}, nil
}

// OnEndOfStream flushes any remaining buffered text into the final summary
// event, or returns nil when nothing is pending (an empty stream therefore
// produces no events at all). The summary carries the last observed usage,
// and its error fields carry the terminal reason and message unless the
// stream finished with a plain stop. Idempotent: a second call returns nil.
func (a *StreamAggregator) OnEndOfStream() *Response {
	if !a.pending() {
		return nil
	}
	merged := a.flush()
	merged.Usage = a.lastUsage
	if a.lastFinish != nil && a.lastFinish.Reason != FinishReasonStop {
		merged.ErrorCode = a.lastFinish.Reason
		merged.ErrorMessage = a.lastFinishMessage
	}
	return merged
}

// LastUsage returns the usage of the last chunk observed, which may be nil.
func (a *StreamAggregator) LastUsage() *Usage { return a.lastUsage }

func (a *StreamAggregator) pending() bool {
	return a.thought.Len() > 0 || a.answer.Len() > 0
}

// flush drains both buffers into one merged model event, thought part
// first, then answer part.
func (a *StreamAggregator) flush() *Response {
	var parts []Part
	if a.thought.Len() > 0 {
		parts = append(parts, ThoughtPart(a.thought.String()))
	}
	if a.answer.Len() > 0 {
		parts = append(parts, TextPart(a.answer.String()))
	}
	a.thought.Reset()
	a.answer.Reset()
	c := ModelContent(parts...)
	return &Response{Content: &c}
}

func validatePartKinds(chunk *Response) error {
	if chunk.Content == nil {
		return nil
	}
	for i := range chunk.Content.Parts {
		switch chunk.Content.Parts[i].Kind {
		case PartText, PartThought, PartBlob:
		default:
			return &MalformedChunkError{Kind: chunk.Content.Parts[i].Kind}
		}
	}
	return nil
}

func firstPartIsBlob(chunk *Response) bool {
	p := chunk.FirstPart()
	return p != nil && p.Kind == PartBlob
}
