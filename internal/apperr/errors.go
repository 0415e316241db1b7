// Package apperr defines the error taxonomy shared by every translator
// component and host.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind values returned by Kind.
const (
	KindInvalidInput      = "invalid_input"
	KindTransport         = "transport"
	KindAuth              = "auth"
	KindRateLimit         = "rate_limit"
	KindParse             = "parse"
	KindSchema            = "schema"
	KindTranslationFailed = "translation_failed"
	KindCanceled          = "canceled"
	KindTimeout           = "timeout"
	KindInternal          = "internal"
)

// InvalidInputError represents caller input that can never be translated.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// TransportError represents a failed exchange with the inference backend.
// Temporary is true for network failures, timeouts, 408 and 5xx responses.
type TransportError struct {
	Provider  string
	Status    int
	Message   string
	Temporary bool
	Err       error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": transport error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the backend rejected the configured credentials.
type AuthError struct {
	Provider string
	Status   int
	Message  string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: credentials rejected (status %d)", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: credentials rejected (status %d): %s", e.Provider, e.Status, e.Message)
}

// RateLimitError means the backend quota was exceeded. RetryAfter is zero
// when the backend did not say how long to wait.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	msg := e.Provider + ": rate limited"
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// ParseError means the model output was not a single well-formed JSON object.
type ParseError struct {
	Reason string
	Offset int64
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("not valid JSON: %s (at offset %d)", e.Reason, e.Offset)
	}
	return "not valid JSON: " + e.Reason
}

// SchemaError means the model output parsed but does not match the schema.
type SchemaError struct {
	Schema   string
	Problems []string
}

func (e *SchemaError) Error() string {
	prefix := "does not match schema"
	if e.Schema != "" {
		prefix = fmt.Sprintf("does not match schema %q", e.Schema)
	}
	return prefix + ": " + strings.Join(e.Problems, "; ")
}

// TranslationFailedError is returned once the retry budget is exhausted.
// Last holds the final concrete cause.
type TranslationFailedError struct {
	Attempts          int
	TransportFailures int
	Last              error
}

func (e *TranslationFailedError) Error() string {
	return fmt.Sprintf("translation failed after %d attempt(s), %d transport failure(s): %v",
		e.Attempts, e.TransportFailures, e.Last)
}

func (e *TranslationFailedError) Unwrap() error { return e.Last }

// Kind classifies err into one of the Kind* constants. The outermost known
// error wins, so a TranslationFailedError wrapping a SchemaError is
// translation_failed.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		invalid *InvalidInputError
		failed  *TranslationFailedError
		auth    *AuthError
		rate    *RateLimitError
		trans   *TransportError
		parse   *ParseError
		sch     *SchemaError
	)
	switch {
	case errors.As(err, &invalid):
		return KindInvalidInput
	case errors.As(err, &failed):
		return KindTranslationFailed
	case errors.As(err, &auth):
		return KindAuth
	case errors.As(err, &rate):
		return KindRateLimit
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &trans):
		return KindTransport
	case errors.As(err, &parse):
		return KindParse
	case errors.As(err, &sch):
		return KindSchema
	default:
		return KindInternal
	}
}

// Retryable reports whether err is a backend failure worth retrying after a
// backoff: rate limits and temporary transport errors.
func Retryable(err error) bool {
	var rate *RateLimitError
	if errors.As(err, &rate) {
		return true
	}
	var trans *TransportError
	if errors.As(err, &trans) {
		return trans.Temporary
	}
	return false
}

// IsValidation reports whether err is a Parse or Schema failure, which is
// retried with corrective feedback rather than backoff.
func IsValidation(err error) bool {
	var parse *ParseError
	var sch *SchemaError
	return errors.As(err, &parse) || errors.As(err, &sch)
}
