package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GenerateOptions configures one logical generation, streaming or not.
type GenerateOptions struct {
	Client *Client

	Model string
	// Provider routes the request to a registered adapter. When empty it
	// is resolved from the model registry, falling back to the client's
	// single registered adapter.
	Provider string
	// Registry supplies model metadata; nil means DefaultRegistry().
	Registry *Registry

	Prompt   string
	Contents []Content
	System   string

	Config *GenerationConfig

	// OutputSchema switches the request to structured JSON output and is
	// validated against the resolved model's capabilities once, up front.
	OutputSchema json.RawMessage

	Metadata map[string]string

	// Retry policy for establishing each call.
	RetryPolicy *RetryPolicy
	Sleep       SleepFunc

	TimeoutTotal time.Duration

	Logger *zap.Logger
}

func (opts GenerateOptions) validate() error {
	if strings.TrimSpace(opts.Model) == "" {
		return &ConfigurationError{Message: "model is required"}
	}
	if opts.Prompt != "" && len(opts.Contents) > 0 {
		return &ConfigurationError{Message: "provide either prompt or contents, not both"}
	}
	if opts.Prompt == "" && len(opts.Contents) == 0 {
		return &ConfigurationError{Message: "prompt/contents required"}
	}
	return nil
}

// prepare resolves the client, provider, and capabilities, and builds the
// wire request. All structured-output and capability decisions happen
// here, once per logical call, before any attempt is made.
func prepare(opts *GenerateOptions) (*Client, Request, RetryPolicy, error) {
	var req Request

	client := opts.Client
	if client == nil {
		var err error
		client, err = DefaultClient()
		if err != nil {
			return nil, req, RetryPolicy{}, err
		}
	}
	if err := opts.validate(); err != nil {
		return nil, req, RetryPolicy{}, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	info, known := registry.Lookup(opts.Model)

	provider := opts.Provider
	if provider == "" && known {
		provider = info.Provider
	}

	contents := opts.Contents
	if opts.Prompt != "" {
		contents = []Content{UserContent(opts.Prompt)}
	}

	req = Request{
		Model:    opts.Model,
		Provider: provider,
		System:   opts.System,
		Contents: contents,
		Metadata: opts.Metadata,
	}
	if opts.Config != nil {
		cfg := *opts.Config
		req.Config = &cfg
	}

	if len(opts.OutputSchema) > 0 {
		var capable *ModelInfo
		if known {
			capable = info
		}
		var err error
		req, err = applyOutputSchema(req, opts.OutputSchema, capable)
		if err != nil {
			return nil, req, RetryPolicy{}, err
		}
	}

	policy := DefaultRetryPolicy()
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}
	return client, req, policy, nil
}

func (opts *GenerateOptions) logger() *zap.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return zap.NewNop()
}

// Generate performs one non-streaming generation. The whole provider call
// runs under the retry policy; no aggregation is involved because the
// provider returns a single complete response.
func Generate(ctx context.Context, opts GenerateOptions) (*Response, error) {
	client, req, policy, err := prepare(&opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := WithTimeout(ctx, opts.TimeoutTotal)
	defer cancel()

	log := opts.logger().With(zap.String("model", req.Model), zap.String("provider", req.Provider))
	log.Debug("generate request", zap.Bool("stream", false))

	resp, err := Retry(ctx, policy, opts.Sleep, nil, func() (*Response, error) {
		return client.Complete(ctx, req)
	})
	if err != nil {
		return nil, wrapContextError(req.Provider, err)
	}

	logCompletion(log, resp)
	return resp, nil
}

func logCompletion(log *zap.Logger, resp *Response) {
	fields := []zap.Field{}
	if resp.Finish != nil {
		fields = append(fields, zap.String("finish_reason", resp.Finish.Reason))
	}
	if resp.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", resp.ErrorCode))
	}
	if resp.Usage != nil {
		fields = append(fields,
			zap.Int("input_tokens", resp.Usage.InputTokens),
			zap.Int("output_tokens", resp.Usage.OutputTokens))
	}
	log.Debug("generate complete", fields...)
}

// WithTimeout wraps ctx in a context with the given timeout. A zero or
// negative timeout returns the input context unchanged.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
