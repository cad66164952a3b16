package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// DefaultWebhookTimeout bounds a single POST.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookConfig configures the HTTP POST notifier.
type WebhookConfig struct {
	// URL is the endpoint to POST to (required).
	URL string
	// Headers are added to every request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
}

// WebhookNotifier publishes events as JSON POST requests. Responses are
// classified with the llm error taxonomy: 429/503 and other 5xx retry
// within the bounded schedule, 4xx fail immediately.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	policy  llm.RetryPolicy
	sleep   llm.SleepFunc
}

func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook notifier requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	policy := defaultRetryPolicy()
	policy.Retryable = transientHTTP
	return &WebhookNotifier{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  policy,
	}, nil
}

// transientHTTP treats rate limits, unavailability, other 5xx statuses,
// and unclassified transport failures as retryable.
func transientHTTP(err error) bool {
	if llm.IsRetryable(err) {
		return true
	}
	var serverErr *llm.ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var classified llm.Error
	return !errors.As(err, &classified)
}

func (n *WebhookNotifier) Publish(ctx context.Context, event *RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook notifier: marshal event: %w", err)
	}

	_, err = llm.Retry(ctx, n.policy, n.sleep, nil, func() (struct{}, error) {
		return struct{}{}, n.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("webhook notifier: post to %s: %w", n.url, err)
	}
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter := llm.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return llm.ErrorFromHTTPStatus("webhook", resp.StatusCode, "", retryAfter, raw)
	}
	return nil
}

func (n *WebhookNotifier) Close() error {
	n.client.CloseIdleConnections()
	return nil
}
