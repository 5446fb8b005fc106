package model

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Cache status values recorded for warmed pages.
const (
	CacheHit     = "HIT"
	CacheMiss    = "MISS"
	CacheUnknown = "UNKNOWN"
)

// PageResult is what fetching one page observed. Cache warming records one
// per page; link checking records them for pages it expanded.
type PageResult struct {
	// URL is the page URL after redirects.
	URL string `json:"url"`

	// StatusCode is the final HTTP status.
	StatusCode int `json:"status_code"`

	// ContentType is the media type from the Content-Type header.
	ContentType string `json:"content_type,omitempty"`

	// Bytes is the number of body bytes read.
	Bytes int64 `json:"bytes"`

	// Duration is the time from request start to the end of the body.
	Duration time.Duration `json:"duration"`

	// CacheStatus is HIT, MISS or UNKNOWN as reported by the edge.
	CacheStatus string `json:"cache_status,omitempty"`

	// Fingerprint is the hex SHA3-256 digest of the body, empty when the body
	// was not read in full.
	Fingerprint string `json:"fingerprint,omitempty"`

	// LinksFound is how many distinct hrefs the page contained.
	LinksFound int `json:"links_found"`
}

// Fingerprint returns the hex SHA3-256 digest of body.
//
// Design decision: SHA3 rather than SHA-256 because the fingerprints are
// compared across runs and the x/crypto implementation is already part of
// the dependency set.
func Fingerprint(body []byte) string {
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// IsHTML reports whether a Content-Type header value denotes an HTML document.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
