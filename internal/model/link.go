package model

import (
	"net/url"
	"strings"
)

// ResourceKind classifies what a link points at.
type ResourceKind int

const (
	// KindPage is a document that may contain further links.
	KindPage ResourceKind = iota
	// KindAsset is an image, script, stylesheet or other subresource.
	KindAsset
)

// String returns the lower-case name of the kind.
func (k ResourceKind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k ResourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name. Unknown names decode to KindPage.
func (k *ResourceKind) UnmarshalText(b []byte) error {
	if string(b) == "asset" {
		*k = KindAsset
	} else {
		*k = KindPage
	}
	return nil
}

// Link is one hyperlink discovered on a page.
type Link struct {
	// Referrer is the page the link was found on. Empty for a start URL.
	Referrer string `json:"referrer,omitempty"`

	// Target is the absolute URL the link points at.
	Target string `json:"target"`

	// Text is the anchor text, when known.
	Text string `json:"text,omitempty"`

	// Line is the 1-based source line of the anchor, or 0 when unknown.
	Line int `json:"line,omitempty"`

	// Kind tells pages from assets.
	Kind ResourceKind `json:"kind"`
}

// NewStartLink returns the link a crawl begins at.
func NewStartLink(target string) Link {
	return Link{Target: target, Kind: KindPage}
}

// Host returns the lower-cased host of the target, or "" if it does not parse.
func (l Link) Host() string {
	u, err := url.Parse(l.Target)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsStart reports whether the link has no referrer.
func (l Link) IsStart() bool { return l.Referrer == "" }
