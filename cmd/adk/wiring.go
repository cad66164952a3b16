package main

import (
	"context"
	"fmt"

	"github.com/eduramirezh/adk-go/internal/artifact"
	"github.com/eduramirezh/adk-go/internal/config"
	"github.com/eduramirezh/adk-go/internal/llm"
	"github.com/eduramirezh/adk-go/internal/notify"
	"github.com/eduramirezh/adk-go/internal/session"
)

// modelRegistry returns the deployment's model table, or nil to use the
// built-in defaults.
func modelRegistry(cfg *config.Config) (*llm.Registry, error) {
	if cfg.Model.Registry == "" {
		return nil, nil
	}
	return llm.LoadRegistry(cfg.Model.Registry)
}

func sessionService(cfg *config.Config) (session.Service, error) {
	switch cfg.Sessions.Backend {
	case "memory":
		return session.NewInMemoryService(), nil
	case "sqlite":
		return session.NewSQLiteService(cfg.Sessions.Path)
	default:
		return nil, fmt.Errorf("unknown sessions backend %q", cfg.Sessions.Backend)
	}
}

func artifactService(ctx context.Context, cfg *config.Config) (artifact.Service, error) {
	switch cfg.Artifacts.Backend {
	case "memory":
		return artifact.NewInMemoryService(), nil
	case "local":
		return artifact.NewLocalService(cfg.Artifacts.Path)
	case "s3":
		return artifact.NewS3Service(ctx, artifact.S3Config{
			Bucket:       cfg.Artifacts.S3.Bucket,
			Prefix:       cfg.Artifacts.S3.Prefix,
			Region:       cfg.Artifacts.S3.Region,
			Endpoint:     cfg.Artifacts.S3.Endpoint,
			UsePathStyle: cfg.Artifacts.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown artifacts backend %q", cfg.Artifacts.Backend)
	}
}

// buildNotifier assembles the configured completion publishers; none
// configured means events are dropped.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var notifiers []notify.Notifier
	if cfg.Notify.Redis.URL != "" {
		n, err := notify.NewRedisNotifier(notify.RedisConfig{
			URL:     cfg.Notify.Redis.URL,
			Channel: cfg.Notify.Redis.Channel,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if cfg.Notify.Webhook.URL != "" {
		n, err := notify.NewWebhookNotifier(notify.WebhookConfig{
			URL: cfg.Notify.Webhook.URL,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	switch len(notifiers) {
	case 0:
		return notify.NopNotifier{}, nil
	case 1:
		return notifiers[0], nil
	default:
		return notify.NewMultiNotifier(notifiers...), nil
	}
}
