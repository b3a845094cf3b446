package types

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes indexer failures. The kind drives retry behavior
// and health escalation.
type ErrorKind string

const (
	ErrKindNetwork    ErrorKind = "network"
	ErrKindAuth       ErrorKind = "auth"
	ErrKindCaptcha    ErrorKind = "captcha"
	ErrKindCloudflare ErrorKind = "cloudflare"
	ErrKindRateLimit  ErrorKind = "ratelimit"
	ErrKindParse      ErrorKind = "parse"
	ErrKindInternal   ErrorKind = "internal"
)

// IndexerError is a categorized failure from an indexer operation.
type IndexerError struct {
	Kind        ErrorKind
	Message     string
	IndexerID   int64
	IndexerName string
	Retryable   bool
	Cause       error
}

func (e *IndexerError) Error() string {
	if e.IndexerName != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.IndexerName, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *IndexerError) Unwrap() error {
	return e.Cause
}

// Is matches by kind so errors.Is works against the sentinel values.
func (e *IndexerError) Is(target error) bool {
	var t *IndexerError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNetwork    = &IndexerError{Kind: ErrKindNetwork, Message: "network error"}
	ErrAuth       = &IndexerError{Kind: ErrKindAuth, Message: "authentication failed"}
	ErrCaptcha    = &IndexerError{Kind: ErrKindCaptcha, Message: "captcha challenge"}
	ErrCloudflare = &IndexerError{Kind: ErrKindCloudflare, Message: "cloudflare challenge"}
	ErrRateLimit  = &IndexerError{Kind: ErrKindRateLimit, Message: "rate limit exceeded"}
	ErrParse      = &IndexerError{Kind: ErrKindParse, Message: "parse error"}
	ErrInternal   = &IndexerError{Kind: ErrKindInternal, Message: "internal error"}
)

// NewNetworkError wraps a transport failure. Retryable.
func NewNetworkError(indexerID int64, indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Kind:        ErrKindNetwork,
		Message:     "network error",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   true,
		Cause:       cause,
	}
}

// NewAuthError marks failed credentials. Not retryable until reconfigured.
func NewAuthError(indexerID int64, indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Kind:        ErrKindAuth,
		Message:     "authentication failed",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   false,
		Cause:       cause,
	}
}

// NewCaptchaError marks a captcha challenge page in place of results.
func NewCaptchaError(indexerID int64, indexerName string, provider string) *IndexerError {
	return &IndexerError{
		Kind:        ErrKindCaptcha,
		Message:     fmt.Sprintf("captcha challenge (%s)", provider),
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   false,
	}
}

// NewCloudflareError marks an anti-bot challenge page in place of results.
func NewCloudflareError(indexerID int64, indexerName string) *IndexerError {
	return &IndexerError{
		Kind:        ErrKindCloudflare,
		Message:     "cloudflare challenge",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   false,
	}
}

// NewRateLimitError marks a throttled request. Retryable after backoff.
func NewRateLimitError(indexerID int64, indexerName string) *IndexerError {
	return &IndexerError{
		Kind:        ErrKindRateLimit,
		Message:     "rate limit exceeded",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   true,
	}
}

// NewParseError marks an unreadable response, usually a definition bug.
func NewParseError(indexerID int64, indexerName string, message string, cause error) *IndexerError {
	return &IndexerError{
		Kind:        ErrKindParse,
		Message:     message,
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   false,
		Cause:       cause,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(indexerID int64, indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Kind:        ErrKindInternal,
		Message:     "internal error",
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Retryable:   false,
		Cause:       cause,
	}
}

// IsRetryable reports whether the operation can be retried as-is.
func IsRetryable(err error) bool {
	var indexerErr *IndexerError
	if errors.As(err, &indexerErr) {
		return indexerErr.Retryable
	}
	return false
}

// IsChallenge reports whether the error is a captcha or anti-bot page.
func IsChallenge(err error) bool {
	return errors.Is(err, ErrCaptcha) || errors.Is(err, ErrCloudflare)
}

// Kind extracts the error kind, or empty for uncategorized errors.
func Kind(err error) ErrorKind {
	var indexerErr *IndexerError
	if errors.As(err, &indexerErr) {
		return indexerErr.Kind
	}
	return ""
}
