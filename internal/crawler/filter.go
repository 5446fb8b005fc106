package crawler

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// DefaultExcludedExtensions are never followed as pages.
var DefaultExcludedExtensions = []string{".js", ".css"}

// NormalizeURL returns the key under which a URL is deduplicated.
//
// Design decision: the fragment is dropped and scheme and host are
// lower-cased because none of them change what the server returns;
// an empty path is the same resource as "/".
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// sameHost reports whether target is on host. Ports are significant.
func sameHost(host string, target *url.URL) bool {
	return strings.EqualFold(target.Host, host)
}

// skippedSchemes are href prefixes that never name a fetchable resource.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// resolveHref turns a raw href into an absolute http(s) URL without a
// fragment. It returns nil for hrefs that point nowhere fetchable.
func resolveHref(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return nil
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u
}

// Filter decides which same-host URLs may be crawled.
type Filter struct {
	// Ignore lists glob patterns of paths never crawled.
	Ignore []string

	// Follow lists glob patterns of paths allowed. Empty allows all.
	Follow []string

	// ExcludedExtensions lists lower-case path extensions not crawled as
	// pages, e.g. ".js".
	ExcludedExtensions []string
}

// Excluded reports whether the path has an excluded extension.
func (f *Filter) Excluded(u *url.URL) bool {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, e := range f.ExcludedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Allow applies the ignore and follow patterns to the URL path.
//
// Logic:
//  1. If the path matches any ignore pattern, it is skipped.
//  2. If follow patterns are set and none matches, it is skipped.
//  3. Otherwise it is crawled.
func (f *Filter) Allow(u *url.URL) bool {
	p := u.Path
	if p == "" {
		p = "/"
	}
	for _, pattern := range f.Ignore {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(f.Follow) == 0 {
		return true
	}
	for _, pattern := range f.Follow {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks a path against a glob pattern.
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.pdf" matches any path ending in .pdf
//   - other patterns use filepath.Match, and patterns without a slash are
//     also tried against the last path element
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	if matched, err := filepath.Match(pattern, p); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}
