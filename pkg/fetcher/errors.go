package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout     Kind = "Timeout"
	KindRateLimited Kind = "RateLimited"
	KindNotFound    Kind = "NotFound"
	KindServerError Kind = "ServerError"
	KindMalformed   Kind = "Malformed"
)

// Transient reports whether the fetcher retries this kind.
func (k Kind) Transient() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	}
	return false
}

// ErrAborted is returned when the context ends before a request was sent.
var ErrAborted = errors.New("fetch aborted before dispatch")

// FetchError is a classified fetch failure.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
	// RetryAfter is the server-requested wait for rate limited responses
	RetryAfter time.Duration
	// Attempts is filled in on the terminal error returned by Fetch
	Attempts int
	// Interrupted is set when ctx ended while a retry was pending
	Interrupted bool
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Interrupted {
		msg += fmt.Sprintf(" (interrupted after %d attempt(s), retries not exhausted)", e.Attempts)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a rate limit error with an optional server hint.
func NewRateLimitError(retryAfter time.Duration, message string) *FetchError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return &FetchError{
		Kind:       KindRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// NewNotFoundError creates a permanent not-found error.
func NewNotFoundError(message string) *FetchError {
	return &FetchError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: message}
}

// NewMalformedError wraps a payload decoding problem.
func NewMalformedError(err error, message string) *FetchError {
	return &FetchError{Kind: KindMalformed, Message: message, Err: err}
}

// FromStatus maps an unexpected HTTP status to a FetchError.
func FromStatus(status int, header http.Header) *FetchError {
	msg := fmt.Sprintf("unexpected status code: %d", status)
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(parseRetryAfter(header.Get("Retry-After")), "")
	case status == http.StatusForbidden:
		// Steam answers throttled clients with 403
		fe := NewRateLimitError(parseRetryAfter(header.Get("Retry-After")), msg)
		fe.StatusCode = status
		return fe
	case status == http.StatusNotFound || status == http.StatusGone || status == http.StatusBadRequest:
		fe := NewNotFoundError(msg)
		fe.StatusCode = status
		return fe
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &FetchError{Kind: KindTimeout, StatusCode: status, Message: msg}
	case status >= 500:
		return &FetchError{Kind: KindServerError, StatusCode: status, Message: msg}
	default:
		return &FetchError{Kind: KindMalformed, StatusCode: status, Message: msg}
	}
}

// Classify turns any error returned by a request into a FetchError.
func Classify(err error) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewMalformedError(err, "invalid JSON payload")
	}

	// connection refused, reset, DNS failures
	return &FetchError{Kind: KindServerError, Message: "connection error", Err: err}
}

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
