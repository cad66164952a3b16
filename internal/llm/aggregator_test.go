package llm

import (
	"errors"
	"testing"
)

func answerChunk(text string) *Response {
	c := ModelContent(TextPart(text))
	return &Response{Content: &c}
}

func thoughtChunk(text string) *Response {
	c := ModelContent(ThoughtPart(text))
	return &Response{Content: &c}
}

func blobChunk(mime string, data []byte) *Response {
	c := ModelContent(BlobPart(mime, data))
	return &Response{Content: &c}
}

func finishChunk(reason, message string, usage *Usage) *Response {
	return &Response{
		Finish:        &FinishReason{Reason: reason},
		FinishMessage: message,
		Usage:         usage,
	}
}

func feed(t *testing.T, agg *StreamAggregator, chunks ...*Response) []*Response {
	t.Helper()
	var events []*Response
	for i, chunk := range chunks {
		out, err := agg.OnChunk(chunk)
		if err != nil {
			t.Fatalf("OnChunk(%d): %v", i, err)
		}
		events = append(events, out...)
	}
	return events
}

func TestStreamAggregator_PartialsThenFinishChunk(t *testing.T) {
	agg := NewStreamAggregator()
	events := feed(t, agg,
		answerChunk("Hel"),
		answerChunk("lo"),
		finishChunk(FinishReasonStop, "", &Usage{TotalTokens: 3}),
	)

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if !events[0].Partial || events[0].Text() != "Hel" {
		t.Fatalf("event 0: partial=%t text=%q", events[0].Partial, events[0].Text())
	}
	if !events[1].Partial || events[1].Text() != "lo" {
		t.Fatalf("event 1: partial=%t text=%q", events[1].Partial, events[1].Text())
	}
	merged := events[2]
	if merged.Partial || merged.Text() != "Hello" {
		t.Fatalf("merged: partial=%t text=%q", merged.Partial, merged.Text())
	}
	if merged.ErrorCode != "" || merged.ErrorMessage != "" {
		t.Fatalf("merged should carry no error on stop: code=%q msg=%q", merged.ErrorCode, merged.ErrorMessage)
	}
	if merged.Usage == nil || merged.Usage.TotalTokens != 3 {
		t.Fatalf("merged usage: got %+v", merged.Usage)
	}
	// The raw finish chunk still passes through, after the merged event.
	if events[3].Finish == nil || events[3].Finish.Reason != FinishReasonStop {
		t.Fatalf("event 3 should be the raw finish chunk, got %+v", events[3])
	}

	if summary := agg.OnEndOfStream(); summary != nil {
		t.Fatalf("buffers were flushed, end of stream should emit nothing: %+v", summary)
	}
}

func TestStreamAggregator_EndOfStreamSummary(t *testing.T) {
	usage := &Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}
	last := answerChunk("lo")
	last.Finish = &FinishReason{Reason: FinishReasonStop}
	last.Usage = usage

	agg := NewStreamAggregator()
	events := feed(t, agg, answerChunk("Hel"), last)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 partials", len(events))
	}
	for i, ev := range events {
		if !ev.Partial {
			t.Fatalf("event %d should be partial", i)
		}
	}

	summary := agg.OnEndOfStream()
	if summary == nil {
		t.Fatalf("expected summary event")
	}
	if summary.Text() != "Hello" {
		t.Fatalf("summary text: got %q", summary.Text())
	}
	if summary.ErrorCode != "" || summary.ErrorMessage != "" {
		t.Fatalf("stop finish must not surface as error: code=%q msg=%q", summary.ErrorCode, summary.ErrorMessage)
	}
	if summary.Usage != usage {
		t.Fatalf("summary usage: got %+v want last chunk's", summary.Usage)
	}

	if again := agg.OnEndOfStream(); again != nil {
		t.Fatalf("second end of stream must emit nothing, got %+v", again)
	}
}

func TestStreamAggregator_ThoughtBeforeAnswerInSummary(t *testing.T) {
	agg := NewStreamAggregator()
	feed(t, agg,
		thoughtChunk("I should greet. "),
		answerChunk("Hel"),
		thoughtChunk("Politely."),
		answerChunk("lo"),
	)

	summary := agg.OnEndOfStream()
	if summary == nil {
		t.Fatalf("expected summary event")
	}
	parts := summary.Content.Parts
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want thought then answer", len(parts))
	}
	if parts[0].Kind != PartThought || parts[0].Text != "I should greet. Politely." {
		t.Fatalf("part 0: %+v", parts[0])
	}
	if parts[1].Kind != PartText || parts[1].Text != "Hello" {
		t.Fatalf("part 1: %+v", parts[1])
	}
	if summary.ThoughtText() != "I should greet. Politely." || summary.Text() != "Hello" {
		t.Fatalf("summary accessors: thought=%q text=%q", summary.ThoughtText(), summary.Text())
	}
}

func TestStreamAggregator_NonStopFinishAttachesError(t *testing.T) {
	usage := &Usage{OutputTokens: 64, TotalTokens: 80}
	last := answerChunk("truncated answer")
	last.Finish = &FinishReason{Reason: FinishReasonLength, Raw: "MAX_TOKENS"}
	last.FinishMessage = "hit output token cap"
	last.Usage = usage

	agg := NewStreamAggregator()
	events := feed(t, agg, last)
	if len(events) != 1 || !events[0].Partial {
		t.Fatalf("text chunk should mirror as one partial, got %d events", len(events))
	}

	summary := agg.OnEndOfStream()
	if summary == nil {
		t.Fatalf("non-stop finish still gets a best-effort summary")
	}
	if summary.Text() != "truncated answer" {
		t.Fatalf("summary text: got %q", summary.Text())
	}
	if summary.ErrorCode != FinishReasonLength {
		t.Fatalf("error code: got %q want %q", summary.ErrorCode, FinishReasonLength)
	}
	if summary.ErrorMessage != "hit output token cap" {
		t.Fatalf("error message: got %q", summary.ErrorMessage)
	}
	if summary.Usage != usage {
		t.Fatalf("summary usage: got %+v", summary.Usage)
	}
}

func TestStreamAggregator_BlobChunkDoesNotFlush(t *testing.T) {
	agg := NewStreamAggregator()
	events := feed(t, agg,
		answerChunk("see: "),
		blobChunk("audio/pcm", []byte{1, 2, 3}),
		answerChunk("done"),
	)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if !events[0].Partial {
		t.Fatalf("event 0 should be a partial mirror")
	}
	if events[1].Partial || events[1].FirstPart() == nil || events[1].FirstPart().Kind != PartBlob {
		t.Fatalf("event 1 should be the raw blob chunk: %+v", events[1])
	}
	if !events[2].Partial || events[2].Text() != "done" {
		t.Fatalf("event 2: partial=%t text=%q", events[2].Partial, events[2].Text())
	}

	// Text buffered before the blob survives it and merges afterward.
	summary := agg.OnEndOfStream()
	if summary == nil || summary.Text() != "see: done" {
		t.Fatalf("summary: got %+v", summary)
	}
}

func TestStreamAggregator_MergedPrecedesPassthrough(t *testing.T) {
	agg := NewStreamAggregator()
	usageOnly := &Response{Usage: &Usage{TotalTokens: 11}}
	events := feed(t, agg, answerChunk("a"), usageOnly)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[1].Partial || events[1].Text() != "a" {
		t.Fatalf("event 1 should be the merged flush: %+v", events[1])
	}
	if events[1].Usage == nil || events[1].Usage.TotalTokens != 11 {
		t.Fatalf("merged flush carries the flushing chunk's usage: %+v", events[1].Usage)
	}
	if events[2] != usageOnly {
		t.Fatalf("event 2 should be the raw chunk")
	}
}

func TestStreamAggregator_EmptyStream(t *testing.T) {
	agg := NewStreamAggregator()
	if summary := agg.OnEndOfStream(); summary != nil {
		t.Fatalf("zero chunks must produce zero events, got %+v", summary)
	}
}

func TestStreamAggregator_MalformedPartKind(t *testing.T) {
	c := Content{Role: RoleModel, Parts: []Part{{Kind: PartKind("function_call")}}}
	agg := NewStreamAggregator()
	events, err := agg.OnChunk(&Response{Content: &c})
	if err == nil {
		t.Fatalf("unknown part kind must be rejected")
	}
	if len(events) != 0 {
		t.Fatalf("no events on malformed chunk, got %d", len(events))
	}
	var malformed *MalformedChunkError
	if !errors.As(err, &malformed) {
		t.Fatalf("got %T, want MalformedChunkError", err)
	}
	if malformed.Kind != PartKind("function_call") {
		t.Fatalf("kind: got %q", malformed.Kind)
	}
	if IsRetryable(err) {
		t.Fatalf("malformed input is permanent, never retryable")
	}
}

func TestStreamAggregator_LastUsageTracksEveryChunk(t *testing.T) {
	agg := NewStreamAggregator()
	first := answerChunk("a")
	first.Usage = &Usage{TotalTokens: 9}
	feed(t, agg, first, answerChunk("b"))

	// The second chunk carried no usage, and last-chunk tracking is
	// unconditional, so the summary reports none.
	if agg.LastUsage() != nil {
		t.Fatalf("last usage: got %+v want nil", agg.LastUsage())
	}
	summary := agg.OnEndOfStream()
	if summary == nil || summary.Usage != nil {
		t.Fatalf("summary usage: got %+v", summary)
	}
}

func TestStreamAggregator_TextConservation(t *testing.T) {
	cases := []struct {
		name   string
		chunks []*Response
	}{
		{"answers only", []*Response{answerChunk("a"), answerChunk("b"), answerChunk("c")}},
		{"interleaved", []*Response{thoughtChunk("t1"), answerChunk("a1"), thoughtChunk("t2"), answerChunk("a2")}},
		{"blob in the middle", []*Response{answerChunk("x"), blobChunk("image/png", []byte{9}), answerChunk("y")}},
		{"flush mid-stream", []*Response{answerChunk("p"), finishChunk(FinishReasonStop, "", nil), answerChunk("q")}},
		{"empty text segments", []*Response{answerChunk(""), answerChunk("only")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var wantAnswer, wantThought string
			for _, chunk := range tc.chunks {
				if p := chunk.FirstPart(); p != nil {
					switch p.Kind {
					case PartText:
						wantAnswer += p.Text
					case PartThought:
						wantThought += p.Text
					}
				}
			}

			agg := NewStreamAggregator()
			events := feed(t, agg, tc.chunks...)
			if summary := agg.OnEndOfStream(); summary != nil {
				events = append(events, summary)
			}

			var mergedAnswer, mergedThought string
			var partialAnswer, partialThought string
			for _, ev := range events {
				if ev.Partial {
					partialAnswer += ev.Text()
					partialThought += ev.ThoughtText()
					continue
				}
				mergedAnswer += ev.Text()
				mergedThought += ev.ThoughtText()
			}
			if mergedAnswer != wantAnswer || mergedThought != wantThought {
				t.Fatalf("merged text: answer=%q thought=%q want %q/%q", mergedAnswer, mergedThought, wantAnswer, wantThought)
			}
			if partialAnswer != wantAnswer || partialThought != wantThought {
				t.Fatalf("partial text: answer=%q thought=%q want %q/%q", partialAnswer, partialThought, wantAnswer, wantThought)
			}
		})
	}
}
