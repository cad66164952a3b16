package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is the classified error surface adapters produce and the retry
// layer branches on. Only transient classes (rate limited, unavailable)
// report Retryable; everything else propagates immediately.
type Error interface {
	error
	Retryable() bool
}

type InvalidRequestError struct {
	Provider string
	Message  string
}

func (e *InvalidRequestError) Error() string {
	return formatError(e.Provider, "invalid request", e.Message)
}
func (e *InvalidRequestError) Retryable() bool { return false }

type AuthenticationError struct {
	Provider string
	Message  string
}

func (e *AuthenticationError) Error() string {
	return formatError(e.Provider, "authentication failed", e.Message)
}
func (e *AuthenticationError) Retryable() bool { return false }

type AccessDeniedError struct {
	Provider string
	Message  string
}

func (e *AccessDeniedError) Error() string {
	return formatError(e.Provider, "access denied", e.Message)
}
func (e *AccessDeniedError) Retryable() bool { return false }

type NotFoundError struct {
	Provider string
	Message  string
}

func (e *NotFoundError) Error() string   { return formatError(e.Provider, "not found", e.Message) }
func (e *NotFoundError) Retryable() bool { return false }

type RequestTimeoutError struct {
	Provider string
	Message  string
}

func NewRequestTimeoutError(provider, message string) *RequestTimeoutError {
	return &RequestTimeoutError{Provider: provider, Message: message}
}

func (e *RequestTimeoutError) Error() string {
	return formatError(e.Provider, "request timed out", e.Message)
}
func (e *RequestTimeoutError) Retryable() bool { return false }

type ContextLengthError struct {
	Provider string
	Message  string
}

func (e *ContextLengthError) Error() string {
	return formatError(e.Provider, "context length exceeded", e.Message)
}
func (e *ContextLengthError) Retryable() bool { return false }

// RateLimitError signals quota or rate pressure (HTTP 429). Transient:
// the default retry classifier accepts it.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter *time.Duration
}

func (e *RateLimitError) Error() string {
	return formatError(e.Provider, "rate limited", e.Message)
}
func (e *RateLimitError) Retryable() bool { return true }

// UnavailableError signals transient service unavailability (HTTP 503).
// Transient: the default retry classifier accepts it.
type UnavailableError struct {
	Provider   string
	Message    string
	RetryAfter *time.Duration
}

func (e *UnavailableError) Error() string {
	return formatError(e.Provider, "service unavailable", e.Message)
}
func (e *UnavailableError) Retryable() bool { return true }

type ServerError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ServerError) Error() string {
	return formatError(e.Provider, fmt.Sprintf("server error (HTTP %d)", e.Status), e.Message)
}
func (e *ServerError) Retryable() bool { return false }

type UnknownHTTPError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UnknownHTTPError) Error() string {
	return formatError(e.Provider, fmt.Sprintf("unexpected HTTP status %d", e.Status), e.Message)
}
func (e *UnknownHTTPError) Retryable() bool { return false }

// MalformedChunkError reports a stream chunk that violates the content
// model (a part kind outside text/thought/blob). Permanent.
type MalformedChunkError struct {
	Kind    PartKind
	Message string
}

func (e *MalformedChunkError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("malformed chunk: %s", e.Message)
	}
	return fmt.Sprintf("malformed chunk: unknown part kind %q", string(e.Kind))
}
func (e *MalformedChunkError) Retryable() bool { return false }

// StreamError reports a protocol-level failure inside an established
// stream. Always terminal: establishment retry never applies to it.
type StreamError struct {
	Provider string
	Message  string
}

func NewStreamError(provider, message string) *StreamError {
	return &StreamError{Provider: provider, Message: message}
}

func (e *StreamError) Error() string   { return formatError(e.Provider, "stream failed", e.Message) }
func (e *StreamError) Retryable() bool { return false }

type AbortError struct {
	Message string
}

func NewAbortError(message string) *AbortError { return &AbortError{Message: message} }

func (e *AbortError) Error() string   { return fmt.Sprintf("aborted: %s", e.Message) }
func (e *AbortError) Retryable() bool { return false }

// ConfigurationError reports a call that cannot be attempted at all:
// missing model, unresolvable provider, contradictory inputs. Permanent.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string   { return fmt.Sprintf("configuration: %s", e.Message) }
func (e *ConfigurationError) Retryable() bool { return false }

// NoObjectGeneratedError reports that a structured-output call produced
// text that is not a schema-valid JSON document.
type NoObjectGeneratedError struct {
	Message string
	RawText string
}

func NewNoObjectGeneratedError(message, rawText string) *NoObjectGeneratedError {
	return &NoObjectGeneratedError{Message: message, RawText: rawText}
}

func (e *NoObjectGeneratedError) Error() string { return e.Message }

// ErrStructuredOutputUnsupported is returned at orchestration setup when
// the resolved model reports no JSON output mode.
var ErrStructuredOutputUnsupported = errors.New("structured output not supported by model")

func formatError(provider, class, message string) string {
	var b strings.Builder
	if provider != "" {
		b.WriteString(provider)
		b.WriteString(": ")
	}
	b.WriteString(class)
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	return b.String()
}

// IsRetryable reports whether err (or anything it wraps) is a classified
// transient error. Unclassified errors are never retryable.
func IsRetryable(err error) bool {
	var ce Error
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return false
}

// ErrorFromHTTPStatus classifies an HTTP failure status into the error
// taxonomy. retryAfter, when known, is attached to the transient classes;
// raw is the response body and is folded into the message when message is
// empty.
func ErrorFromHTTPStatus(provider string, status int, message string, retryAfter *time.Duration, raw []byte) error {
	if message == "" && len(raw) > 0 {
		message = strings.TrimSpace(string(raw))
	}
	switch {
	case status == 400 || status == 422:
		return &InvalidRequestError{Provider: provider, Message: message}
	case status == 401:
		return &AuthenticationError{Provider: provider, Message: message}
	case status == 403:
		return &AccessDeniedError{Provider: provider, Message: message}
	case status == 404:
		return &NotFoundError{Provider: provider, Message: message}
	case status == 408:
		return &RequestTimeoutError{Provider: provider, Message: message}
	case status == 413:
		return &ContextLengthError{Provider: provider, Message: message}
	case status == 429:
		return &RateLimitError{Provider: provider, Message: message, RetryAfter: retryAfter}
	case status == 503:
		return &UnavailableError{Provider: provider, Message: message, RetryAfter: retryAfter}
	case status >= 500 && status <= 599:
		return &ServerError{Provider: provider, Status: status, Message: message}
	default:
		return &UnknownHTTPError{Provider: provider, Status: status, Message: message}
	}
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds
// or an HTTP-date, relative to now. Returns nil when the value is absent
// or unparseable.
func ParseRetryAfter(value string, now time.Time) *time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
