package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Message is one chat turn sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Reply is a parsed successful backend response.
type Reply struct {
	Content string
	Usage   Usage
	// Model is the model name reported by the vendor, which may carry a
	// version suffix the configured name lacks.
	Model string
}

// Backend is one vendor's chat capability. Implementations live in
// internal/engine and are selected by configuration.
type Backend interface {
	Invoke(ctx context.Context, messages []Message) (Reply, error)
}

// RateLimitError signals an HTTP 429 or vendor equivalent. RetryAfter is zero
// when the vendor gave no hint.
type RateLimitError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (HTTP %d), retry after %s", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (HTTP %d)", e.Status)
}

// StatusError is a non-2xx vendor response other than a rate limit.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Client returns it instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ErrorForStatus converts a non-2xx HTTP response into the error the retry
// loop understands: 429 becomes a RateLimitError carrying the retry hint,
// request and credential errors become permanent, the rest stay transient.
func ErrorForStatus(status int, header http.Header, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Status: status, RetryAfter: ParseRetryAfter(header)}
	case status == http.StatusBadRequest, status == http.StatusUnauthorized,
		status == http.StatusForbidden, status == http.StatusNotFound:
		return Permanent(&StatusError{Status: status, Body: body})
	default:
		return &StatusError{Status: status, Body: body}
	}
}

// ParseRetryAfter reads the retry-after (seconds or HTTP date) and
// retry-after-ms headers. It returns zero when neither is usable.
func ParseRetryAfter(h http.Header) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	if v := strings.TrimSpace(h.Get("Retry-After-Ms")); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms >= 0 {
			return time.Duration(ms * float64(time.Millisecond))
		}
	}
	return 0
}
