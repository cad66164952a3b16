package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

func init() {
	RegisterEnvAdapterFactory(func() (ProviderAdapter, bool, error) {
		path := os.Getenv("ADK_REPLAY_FILE")
		if path == "" {
			return nil, false, nil
		}
		return &ReplayAdapter{Path: path}, true, nil
	})
	RegisterEnvAdapterFactory(func() (ProviderAdapter, bool, error) {
		if os.Getenv("ADK_ECHO") == "" {
			return nil, false, nil
		}
		return &EchoAdapter{}, true, nil
	})
}

// EchoAdapter answers every request with the last user text. It exists so
// the server and CLI can run end-to-end without a remote backend.
type EchoAdapter struct {
	ProviderName string
}

func (a *EchoAdapter) Name() string {
	if a.ProviderName != "" {
		return a.ProviderName
	}
	return "echo"
}

func (a *EchoAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := lastUserText(req)
	c := ModelContent(TextPart(text))
	return &Response{
		Content: &c,
		Finish:  &FinishReason{Reason: FinishReasonStop},
		Usage:   echoUsage(text),
	}, nil
}

func (a *EchoAdapter) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := lastUserText(req)
	sctx, cancel := context.WithCancel(ctx)
	s := NewChanStream(cancel)
	go func() {
		defer s.CloseSend()
		for _, piece := range chunkString(text, 8) {
			select {
			case <-sctx.Done():
				return
			default:
			}
			c := ModelContent(TextPart(piece))
			s.Send(StreamEvent{Response: &Response{Content: &c}})
		}
		s.Send(StreamEvent{Response: &Response{
			Finish: &FinishReason{Reason: FinishReasonStop},
			Usage:  echoUsage(text),
		}})
	}()
	return s, nil
}

// ReplayAdapter serves chunks recorded either as NDJSON Response lines or
// as a captured SSE transcript (files ending in .sse). Streaming replays
// the file chunk by chunk; Complete aggregates the same chunks into the
// single response a non-streaming call would have produced.
type ReplayAdapter struct {
	ProviderName string
	Path         string
}

func (a *ReplayAdapter) Name() string {
	if a.ProviderName != "" {
		return a.ProviderName
	}
	return "replay"
}

func (a *ReplayAdapter) load(ctx context.Context) ([]*Response, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []*Response
	if strings.HasSuffix(a.Path, ".sse") {
		err := ParseSSEResponses(ctx, f, func(resp *Response) error {
			chunks = append(chunks, resp)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", a.Path, err)
		}
		return chunks, nil
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return nil, fmt.Errorf("replay %s:%d: %w", a.Path, line, err)
		}
		chunks = append(chunks, &resp)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (a *ReplayAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunks, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	agg := NewStreamAggregator()
	var last *Response
	for _, chunk := range chunks {
		events, err := agg.OnChunk(chunk)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if !ev.Partial && ev.Content != nil {
				last = ev
			}
		}
	}
	if summary := agg.OnEndOfStream(); summary != nil {
		last = summary
	}
	if last == nil {
		return nil, NewStreamError(a.Name(), "replay file has no complete response")
	}
	return last, nil
}

func (a *ReplayAdapter) Stream(ctx context.Context, req Request) (Stream, error) {
	chunks, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	s := NewChanStream(cancel)
	go func() {
		defer s.CloseSend()
		for i := range chunks {
			select {
			case <-sctx.Done():
				return
			default:
			}
			s.Send(StreamEvent{Response: chunks[i]})
		}
	}()
	return s, nil
}

func lastUserText(req Request) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == RoleUser {
			if t := req.Contents[i].Text(); t != "" {
				return t
			}
		}
	}
	var b strings.Builder
	for _, c := range req.Contents {
		b.WriteString(c.Text())
	}
	return b.String()
}

func chunkString(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += n {
		end := start + n
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// echoUsage approximates token counts as word counts.
func echoUsage(text string) *Usage {
	n := len(strings.Fields(text))
	return &Usage{InputTokens: n, OutputTokens: n, TotalTokens: 2 * n}
}
