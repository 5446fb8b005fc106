package model

import (
	"fmt"
	"net/http"
	"time"
)

// Failure categorizes why a link is broken.
//
// Design decision: iota constants instead of strings make sorting the report
// by seriousness a plain integer comparison; String gives the display name.
type Failure int

const (
	// FailureNone means the link is fine.
	FailureNone Failure = iota

	// FailureClientError is a 4xx response.
	FailureClientError

	// FailureServerError is a 5xx response.
	FailureServerError

	// FailureTransport means no response was received: DNS, TLS, refused
	// connection or timeout.
	FailureTransport
)

// String returns the display name of the failure.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "OK"
	case FailureClientError:
		return "CLIENT_ERROR"
	case FailureServerError:
		return "SERVER_ERROR"
	case FailureTransport:
		return "TRANSPORT_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ClassifyStatus maps an HTTP status code to a Failure.
// A status of 0 means the request never produced a response.
func ClassifyStatus(status int) Failure {
	switch {
	case status == 0:
		return FailureTransport
	case status >= 500:
		return FailureServerError
	case status >= 400:
		return FailureClientError
	default:
		return FailureNone
	}
}

// BrokenLink is a link whose target failed the broken-link predicate.
type BrokenLink struct {
	Link

	// StatusCode is the HTTP status received, or 0 for transport errors.
	StatusCode int `json:"status_code"`

	// Error is the transport error text, empty when a response was received.
	Error string `json:"error,omitempty"`

	// External is true when the target is on a different host than the start URL.
	External bool `json:"external,omitempty"`

	// CheckedAt is when the target was fetched.
	CheckedAt time.Time `json:"checked_at"`
}

// Failure returns the failure category of the link.
func (b BrokenLink) Failure() Failure {
	return ClassifyStatus(b.StatusCode)
}

// Reason returns a short human-readable cause, e.g. "404 Not Found".
func (b BrokenLink) Reason() string {
	if b.StatusCode == 0 {
		if b.Error == "" {
			return "no response"
		}
		return b.Error
	}
	if text := http.StatusText(b.StatusCode); text != "" {
		return fmt.Sprintf("%d %s", b.StatusCode, text)
	}
	return fmt.Sprintf("%d", b.StatusCode)
}
