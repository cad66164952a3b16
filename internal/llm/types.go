package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

type PartKind string

const (
	PartText    PartKind = "text"
	PartThought PartKind = "thought"
	PartBlob    PartKind = "blob"
)

// Part is one content segment of a chunk or aggregated response. Text and
// thought parts carry UTF-8 text; blob parts carry opaque bytes (audio,
// image frames) that aggregation passes through untouched.
type Part struct {
	Kind PartKind `json:"kind"`

	Text string `json:"text,omitempty"`
	Blob *Blob  `json:"blob,omitempty"`
}

type Blob struct {
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"` // raw bytes; adapters base64-encode as needed
}

func TextPart(text string) Part    { return Part{Kind: PartText, Text: text} }
func ThoughtPart(text string) Part { return Part{Kind: PartThought, Text: text} }
func BlobPart(mimeType string, data []byte) Part {
	return Part{Kind: PartBlob, Blob: &Blob{MIMEType: mimeType, Data: data}}
}

type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

func UserContent(text string) Content {
	return Content{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

func ModelContent(parts ...Part) Content {
	return Content{Role: RoleModel, Parts: parts}
}

// Text concatenates the text of every text-kind part, in order.
func (c Content) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Kind == PartText && p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ThoughtText concatenates the text of every thought-kind part, in order.
func (c Content) ThoughtText() string {
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Kind == PartThought && p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

type FinishReason struct {
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
	FinishReasonError         = "error"
	FinishReasonOther         = "other"
)

// NormalizeFinishReason maps provider-specific finish reason strings to
// canonical values while preserving the provider raw value.
func NormalizeFinishReason(provider, raw string) FinishReason {
	if strings.TrimSpace(raw) == "" {
		return FinishReason{Reason: FinishReasonStop}
	}
	return FinishReason{Reason: normalizeFinish(provider, raw), Raw: raw}
}

func normalizeFinish(provider, raw string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "anthropic":
		switch raw {
		case "end_turn", "stop_sequence":
			return FinishReasonStop
		case "max_tokens":
			return FinishReasonLength
		}
	case "google", "gemini":
		switch raw {
		case "STOP":
			return FinishReasonStop
		case "MAX_TOKENS":
			return FinishReasonLength
		case "SAFETY", "RECITATION":
			return FinishReasonContentFilter
		}
	default:
		// OpenAI-compatible providers already use canonical reason values.
		switch raw {
		case FinishReasonStop, FinishReasonLength, FinishReasonContentFilter, FinishReasonError:
			return raw
		}
	}
	return FinishReasonOther
}

type Usage struct {
	InputTokens   int  `json:"input_tokens"`
	OutputTokens  int  `json:"output_tokens"`
	TotalTokens   int  `json:"total_tokens"`
	ThoughtTokens *int `json:"thought_tokens,omitempty"`
	CachedTokens  *int `json:"cached_tokens,omitempty"`
}

func (u Usage) Add(v Usage) Usage {
	out := Usage{
		InputTokens:  u.InputTokens + v.InputTokens,
		OutputTokens: u.OutputTokens + v.OutputTokens,
		TotalTokens:  u.TotalTokens + v.TotalTokens,
	}
	out.ThoughtTokens = addOptInt(u.ThoughtTokens, v.ThoughtTokens)
	out.CachedTokens = addOptInt(u.CachedTokens, v.CachedTokens)
	return out
}

func addOptInt(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	av := 0
	bv := 0
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	sum := av + bv
	return &sum
}

type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	TopK            *int     `json:"top_k,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
	StopSequences   []string `json:"stop_sequences,omitempty"`

	ResponseMIMEType string          `json:"response_mime_type,omitempty"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
	IncludeThoughts  bool            `json:"include_thoughts,omitempty"`
}

type Request struct {
	Model    string `json:"model"`
	Provider string `json:"provider,omitempty"`

	System   string    `json:"system,omitempty"`
	Contents []Content `json:"contents"`

	Config *GenerationConfig `json:"config,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

func (req Request) Validate() error {
	if strings.TrimSpace(req.Model) == "" {
		return fmt.Errorf("request.model is required")
	}
	if len(req.Contents) == 0 {
		return fmt.Errorf("request.contents is required")
	}
	return nil
}

// Response is both one incremental chunk from a provider stream and one
// aggregated event handed to callers: the stream pipeline republishes
// chunks, partial mirrors, merged events, and the final summary all as
// Response values.
type Response struct {
	Content *Content `json:"content,omitempty"`

	// Partial marks a republished text chunk whose content is still being
	// accumulated into a later merged event.
	Partial      bool `json:"partial,omitempty"`
	TurnComplete bool `json:"turn_complete,omitempty"`
	Interrupted  bool `json:"interrupted,omitempty"`

	// Finish is set only on a provider's terminal chunk. FinishMessage
	// carries the provider's human-readable completion detail, if any.
	Finish        *FinishReason `json:"finish_reason,omitempty"`
	FinishMessage string        `json:"finish_message,omitempty"`

	// ErrorCode/ErrorMessage are populated on aggregated summary events
	// whose terminal reason is not plain stop.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Usage *Usage `json:"usage,omitempty"`

	CustomMetadata map[string]any `json:"custom_metadata,omitempty"`
}

// FirstPart returns the first content part, or nil when the response
// carries no content.
func (r *Response) FirstPart() *Part {
	if r == nil || r.Content == nil || len(r.Content.Parts) == 0 {
		return nil
	}
	return &r.Content.Parts[0]
}

func (r *Response) Text() string {
	if r == nil || r.Content == nil {
		return ""
	}
	return r.Content.Text()
}

func (r *Response) ThoughtText() string {
	if r == nil || r.Content == nil {
		return ""
	}
	return r.Content.ThoughtText()
}
