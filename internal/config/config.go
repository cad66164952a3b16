// Package config loads and validates the adk.yaml configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// Config represents an adk.yaml configuration file. Load starts from
// Defaults, so every field is optional in the file itself.
type Config struct {
	Version   int             `yaml:"version"`
	App       AppConfig       `yaml:"app"`
	Model     ModelConfig     `yaml:"model"`
	Retry     RetryConfig     `yaml:"retry"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

type ModelConfig struct {
	// Default is the model used when a request names none.
	Default string `yaml:"default"`
	// Registry is an optional model-info JSON file that shadows the
	// built-in model table.
	Registry string `yaml:"registry"`
}

type RetryConfig struct {
	InitialDelay Duration `yaml:"initial_delay"`
	Base         float64  `yaml:"base"`
	MaxDelay     Duration `yaml:"max_delay"`
	MaxRetries   int      `yaml:"max_retries"`
}

type ArtifactsConfig struct {
	// Backend is one of memory, local, or s3.
	Backend string         `yaml:"backend"`
	Path    string         `yaml:"path"`
	S3      S3BucketConfig `yaml:"s3"`
}

type S3BucketConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type SessionsConfig struct {
	// Backend is one of memory or sqlite.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	// InputTimeout bounds how long a run waits for an answer to an
	// input_required question.
	InputTimeout Duration `yaml:"input_timeout"`
}

type NotifyConfig struct {
	Redis   RedisNotifyConfig   `yaml:"redis"`
	Webhook WebhookNotifyConfig `yaml:"webhook"`
}

type RedisNotifyConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type WebhookNotifyConfig struct {
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the configuration used when no file is given. It
// matches the documented example: echo-less installs run against the
// local stores and the standard backoff schedule.
func Defaults() *Config {
	return &Config{
		Version: 1,
		App:     AppConfig{Name: "adk"},
		Model:   ModelConfig{Default: "gemini-2.0-flash"},
		Retry: RetryConfig{
			InitialDelay: Duration{5 * time.Second},
			Base:         2,
			MaxDelay:     Duration{60 * time.Second},
			MaxRetries:   5,
		},
		Artifacts: ArtifactsConfig{Backend: "local", Path: "./data/artifacts"},
		Sessions:  SessionsConfig{Backend: "sqlite", Path: "./data/sessions.db"},
		Server: ServerConfig{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
			InputTimeout: Duration{30 * time.Minute},
		},
		Notify:  NotifyConfig{Redis: RedisNotifyConfig{Channel: "adk:completions"}},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks field ranges and backend enums.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}
	if c.Retry.InitialDelay.Duration <= 0 {
		return fmt.Errorf("retry.initial_delay must be positive")
	}
	if c.Retry.MaxDelay.Duration <= 0 {
		return fmt.Errorf("retry.max_delay must be positive")
	}
	if c.Retry.Base < 1 {
		return fmt.Errorf("retry.base must be at least 1")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}

	switch c.Artifacts.Backend {
	case "memory":
	case "local":
		if c.Artifacts.Path == "" {
			return fmt.Errorf("artifacts.path is required for the local backend")
		}
	case "s3":
		if c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown artifacts.backend %q", c.Artifacts.Backend)
	}

	switch c.Sessions.Backend {
	case "memory":
	case "sqlite":
		if c.Sessions.Path == "" {
			return fmt.Errorf("sessions.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown sessions.backend %q", c.Sessions.Backend)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.InputTimeout.Duration <= 0 {
		return fmt.Errorf("server.input_timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// RetryPolicy materializes the retry section as the llm package's policy.
func (c *Config) RetryPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		InitialDelay: c.Retry.InitialDelay.Duration,
		Base:         c.Retry.Base,
		MaxDelay:     c.Retry.MaxDelay.Duration,
		MaxRetries:   c.Retry.MaxRetries,
	}
}
