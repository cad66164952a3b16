package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ModelInfo describes one model family: the provider that serves it and
// the capability flags orchestration setup branches on.
type ModelInfo struct {
	// Pattern is an anchored regular expression over model ids.
	Pattern          string `json:"pattern"`
	Provider         string `json:"provider"`
	ContextWindow    int    `json:"context_window,omitempty"`
	MaxOutputTokens  int    `json:"max_output_tokens,omitempty"`
	SupportsJSONMode bool   `json:"supports_json_mode"`
	SupportsThinking bool   `json:"supports_thinking"`
}

type registryEntry struct {
	info ModelInfo
	re   *regexp.Regexp
}

// Registry resolves model ids to ModelInfo by first matching pattern.
// Entries registered earlier win, so deployment-specific tables loaded
// from disk take precedence over the built-in defaults appended after.
type Registry struct {
	entries []registryEntry
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(info ModelInfo) error {
	p := strings.TrimSpace(info.Pattern)
	if p == "" {
		return fmt.Errorf("model pattern is required")
	}
	if strings.TrimSpace(info.Provider) == "" {
		return fmt.Errorf("model provider is required for pattern %q", info.Pattern)
	}
	re, err := regexp.Compile("^(?:" + p + ")$")
	if err != nil {
		return fmt.Errorf("model pattern %q: %w", info.Pattern, err)
	}
	r.entries = append(r.entries, registryEntry{info: info, re: re})
	return nil
}

// Lookup returns the first matching entry, or false when the model id is
// unknown to the table.
func (r *Registry) Lookup(model string) (*ModelInfo, bool) {
	if r == nil {
		return nil, false
	}
	model = strings.TrimSpace(model)
	for i := range r.entries {
		if r.entries[i].re.MatchString(model) {
			out := r.entries[i].info
			return &out, true
		}
	}
	return nil, false
}

// Resolve is Lookup with an unknown model reported as an error.
func (r *Registry) Resolve(model string) (*ModelInfo, error) {
	info, ok := r.Lookup(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	return info, nil
}

// Models returns the table in registration order.
func (r *Registry) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(r.entries))
	for i := range r.entries {
		out = append(out, r.entries[i].info)
	}
	return out
}

func defaultModelInfos() []ModelInfo {
	return []ModelInfo{
		{Pattern: `gemini-.*`, Provider: "google", ContextWindow: 1_048_576, MaxOutputTokens: 65_536, SupportsJSONMode: true, SupportsThinking: true},
		{Pattern: `claude-.*`, Provider: "anthropic", ContextWindow: 200_000, MaxOutputTokens: 64_000, SupportsJSONMode: true, SupportsThinking: true},
		{Pattern: `gpt-.*`, Provider: "openai", ContextWindow: 400_000, MaxOutputTokens: 128_000, SupportsJSONMode: true, SupportsThinking: false},
		{Pattern: `replay(-.*)?`, Provider: "replay", SupportsJSONMode: true, SupportsThinking: true},
		{Pattern: `echo(-.*)?`, Provider: "echo", SupportsJSONMode: false, SupportsThinking: false},
	}
}

// DefaultRegistry returns the built-in model table.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, info := range defaultModelInfos() {
		// Built-in patterns are static and known valid.
		_ = r.Register(info)
	}
	return r
}

// LoadRegistry reads a JSON array of ModelInfo entries and returns a
// registry with those entries first and the built-in defaults after, so
// file entries shadow defaults on overlapping patterns.
func LoadRegistry(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var infos []ModelInfo
	if err := json.Unmarshal(b, &infos); err != nil {
		return nil, fmt.Errorf("model registry %s: %w", path, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("model registry %s is empty", path)
	}
	r := NewRegistry()
	for _, info := range infos {
		if err := r.Register(info); err != nil {
			return nil, fmt.Errorf("model registry %s: %w", path, err)
		}
	}
	for _, info := range defaultModelInfos() {
		_ = r.Register(info)
	}
	return r, nil
}
