package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a provider failure.
type Kind string

const (
	// KindRateLimited means the backend refused admission. The prompt
	// was never run, so sending it again is safe.
	KindRateLimited Kind = "rate-limited"
	KindUnavailable Kind = "unavailable"
	// KindMalformed means the reply was not JSON or broke the schema.
	KindMalformed Kind = "malformed"
	KindTruncated Kind = "truncated"
)

// Error is returned by every Provider in this package.
type Error struct {
	Kind     Kind
	Provider string
	// RetryAfter is the backend's requested wait, if it sent one.
	RetryAfter time.Duration
	// Content holds the offending reply for malformed and truncated
	// errors.
	Content json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("llm %s: %s", e.Provider, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the request can be re-sent without risking
// a second inference.
func (e *Error) Retryable() bool { return e.Kind == KindRateLimited }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// fromStatus classifies a transport failure by HTTP status. A zero
// status means the request never produced a response.
func fromStatus(provider string, status int, header http.Header, err error) *Error {
	e := &Error{Kind: KindUnavailable, Provider: provider, Err: err}
	if status == http.StatusTooManyRequests {
		e.Kind = KindRateLimited
		e.RetryAfter = retryAfter(header)
	}
	return e
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
