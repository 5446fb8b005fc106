package crawler

import (
	"fmt"
	"net/http"
	"strings"
)

// BrokenPolicy decides whether an HTTP status marks a link as broken.
// A status of 0 (no response) is always broken regardless of the policy.
type BrokenPolicy func(status int) bool

// Names accepted by ParseBrokenPolicy.
const (
	PolicyDefault  = "default"
	PolicyNotFound = "not-found"
	PolicyStrict   = "strict"
)

// DefaultBrokenPolicy treats every 4xx and 5xx status as broken except
// 403 Forbidden, which usually means the page exists behind a login.
func DefaultBrokenPolicy(status int) bool {
	return status >= http.StatusBadRequest && status != http.StatusForbidden
}

// NotFoundPolicy only treats 404 Not Found and 410 Gone as broken.
func NotFoundPolicy(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}

// StrictPolicy treats every 4xx and 5xx status as broken.
func StrictPolicy(status int) bool {
	return status >= http.StatusBadRequest
}

// ParseBrokenPolicy returns the policy with the given name.
// An empty name selects the default policy.
func ParseBrokenPolicy(name string) (BrokenPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyDefault:
		return DefaultBrokenPolicy, nil
	case PolicyNotFound:
		return NotFoundPolicy, nil
	case PolicyStrict:
		return StrictPolicy, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

func (p BrokenPolicy) broken(status int) bool {
	return status == 0 || p(status)
}
