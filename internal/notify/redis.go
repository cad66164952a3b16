package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "adk:completions"

// DefaultRedisTimeout bounds a single PUBLISH.
const DefaultRedisTimeout = 5 * time.Second

// RedisConfig configures the Redis pub/sub notifier.
type RedisConfig struct {
	// URL is the connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default adk:completions).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
}

// redisPublisher is the slice of the Redis client the notifier uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Close() error
}

// RedisNotifier publishes events as JSON via Redis PUBLISH, retrying
// transient failures with bounded backoff.
type RedisNotifier struct {
	client  redisPublisher
	channel string
	timeout time.Duration
	policy  llm.RetryPolicy
	sleep   llm.SleepFunc
}

// NewRedisNotifier builds the notifier from the connection URL.
func NewRedisNotifier(cfg RedisConfig) (*RedisNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis notifier requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis notifier: invalid URL: %w", err)
	}
	return newRedisNotifier(goredis.NewClient(opts), cfg), nil
}

func newRedisNotifier(client redisPublisher, cfg RedisConfig) *RedisNotifier {
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisTimeout
	}
	policy := defaultRetryPolicy()
	// Redis failures are connection-level; everything short of a context
	// end is worth another attempt within the bounded schedule.
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	return &RedisNotifier{
		client:  client,
		channel: cfg.Channel,
		timeout: cfg.Timeout,
		policy:  policy,
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, event *RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis notifier: marshal event: %w", err)
	}

	_, err = llm.Retry(ctx, n.policy, n.sleep, nil, func() (struct{}, error) {
		publishCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return struct{}{}, n.client.Publish(publishCtx, n.channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis notifier: publish to %s: %w", n.channel, err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
