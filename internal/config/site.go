package config

import (
	"maps"
	"net"
	"strings"
)

// SiteConfig is the per-host part of the site file.
type SiteConfig struct {
	// Cookie is sent with every request, e.g. "session=abc; lang=en".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are path globs never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawling to matching paths when set.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// ExcludedExtensions replaces the extensions never crawled as pages.
	ExcludedExtensions []string `yaml:"excludedExtensions,omitempty"`

	// MaxPages overrides the global page limit when positive.
	MaxPages int `yaml:"maxPages,omitempty"`

	// RateLimit overrides the global per-host rate when positive.
	RateLimit float64 `yaml:"rateLimit,omitempty"`
}

// File is the structure of the .linkprobe site file.
type File struct {
	// Sites maps a host ("example.com" or "example.com:8080") to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig merges the defaults with the entry for host. Lookup tries
// the host with its port first, then without.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.lookup(host)
	if !ok {
		return result
	}
	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	if len(site.ExcludedExtensions) > 0 {
		result.ExcludedExtensions = site.ExcludedExtensions
	}
	if site.MaxPages > 0 {
		result.MaxPages = site.MaxPages
	}
	if site.RateLimit > 0 {
		result.RateLimit = site.RateLimit
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.ToLower(host)
	if site, ok := cf.Sites[host]; ok {
		return site, true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		site, ok := cf.Sites[h]
		return site, ok
	}
	return SiteConfig{}, false
}
