package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/command-translator/internal/apperr"
)

// classifyStatus maps a non-2xx HTTP response into the error taxonomy.
func classifyStatus(provider string, status int, header http.Header, body []byte) error {
	msg := errorMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &apperr.AuthError{Provider: provider, Status: status, Message: msg}
	case status == http.StatusTooManyRequests:
		return &apperr.RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(header.Get("Retry-After")), Message: msg}
	case status == http.StatusRequestTimeout || status >= 500:
		return &apperr.TransportError{Provider: provider, Status: status, Message: msg, Temporary: true}
	default:
		return &apperr.TransportError{Provider: provider, Status: status, Message: msg}
	}
}

// classifyRequestErr handles failures where no response arrived. A cancelled
// parent context wins over everything else; the per-call deadline becomes a
// temporary TransportError.
func classifyRequestErr(parent context.Context, provider string, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.TransportError{Provider: provider, Message: "request timed out", Temporary: true, Err: context.DeadlineExceeded}
	}
	return &apperr.TransportError{Provider: provider, Temporary: true, Err: err}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

// errorMessage pulls a human readable message out of a provider error body.
func errorMessage(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Error, &detail); err == nil && detail.Message != "" {
			return abbreviate(detail.Message, 300)
		}
		var s string
		if err := json.Unmarshal(env.Error, &s); err == nil && s != "" {
			return abbreviate(s, 300)
		}
	}
	return abbreviate(string(body), 300)
}

// abbreviate collapses s onto one line and keeps at most n runes.
func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
