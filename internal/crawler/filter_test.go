package crawler

import (
	"net/url"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "HTTP://Example.COM", want: "http://example.com/"},
		{in: "https://example.com/a#section", want: "https://example.com/a"},
		{in: "https://example.com/a?x=1#top", want: "https://example.com/a?x=1"},
		{in: "https://example.com/A", want: "https://example.com/A"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "https://example.com/docs/page.html")
	tests := []struct {
		href string
		want string
	}{
		{href: "/about", want: "https://example.com/about"},
		{href: "next.html", want: "https://example.com/docs/next.html"},
		{href: "../up", want: "https://example.com/up"},
		{href: "https://other.example/x#frag", want: "https://other.example/x"},
		{href: "//cdn.example/lib", want: "https://cdn.example/lib"},
		{href: "  /trimmed  ", want: "https://example.com/trimmed"},
		{href: "#top", want: ""},
		{href: "", want: ""},
		{href: "javascript:void(0)", want: ""},
		{href: "JavaScript:alert(1)", want: ""},
		{href: "mailto:me@example.com", want: ""},
		{href: "tel:+123", want: ""},
		{href: "data:text/plain,hi", want: ""},
		{href: "ftp://example.com/file", want: ""},
	}
	for _, tt := range tests {
		got := ""
		if u := resolveHref(base, tt.href); u != nil {
			got = u.String()
		}
		if got != tt.want {
			t.Errorf("resolveHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{pattern: "/admin/*", path: "/admin/users", want: true},
		{pattern: "/admin/*", path: "/admin", want: true},
		{pattern: "/admin/*", path: "/administrator", want: false},
		{pattern: "*.pdf", path: "/docs/report.pdf", want: true},
		{pattern: "*.pdf", path: "/docs/report.html", want: false},
		{pattern: "/api/v?", path: "/api/v2", want: true},
		{pattern: "/logout*", path: "/logout-now", want: true},
		{pattern: "report-*", path: "/files/report-2024", want: true},
		{pattern: "[", path: "/x", want: false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	t.Run("ignore wins", func(t *testing.T) {
		t.Parallel()
		f := Filter{Ignore: []string{"/private/*"}, Follow: []string{"/private/*", "/blog/*"}}
		if f.Allow(mustURL(t, "https://example.com/private/a")) {
			t.Error("ignored path allowed")
		}
		if !f.Allow(mustURL(t, "https://example.com/blog/post")) {
			t.Error("followed path rejected")
		}
		if f.Allow(mustURL(t, "https://example.com/shop")) {
			t.Error("path outside follow patterns allowed")
		}
	})

	t.Run("no patterns allow everything", func(t *testing.T) {
		t.Parallel()
		var f Filter
		if !f.Allow(mustURL(t, "https://example.com")) {
			t.Error("root rejected")
		}
	})

	t.Run("excluded extensions", func(t *testing.T) {
		t.Parallel()
		f := Filter{ExcludedExtensions: DefaultExcludedExtensions}
		for raw, want := range map[string]bool{
			"https://example.com/app.js":        true,
			"https://example.com/SITE.CSS":      true,
			"https://example.com/page.html":     false,
			"https://example.com/dir/":          false,
			"https://example.com/app.js?v=3":    true,
			"https://example.com/json.js/index": false,
		} {
			if got := f.Excluded(mustURL(t, raw)); got != want {
				t.Errorf("Excluded(%q) = %v, want %v", raw, got, want)
			}
		}
	})
}

func TestParseBrokenPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "", status: 404, want: true},
		{name: "default", status: 403, want: false},
		{name: "default", status: 500, want: true},
		{name: "default", status: 301, want: false},
		{name: "not-found", status: 404, want: true},
		{name: "not-found", status: 410, want: true},
		{name: "not-found", status: 500, want: false},
		{name: "strict", status: 403, want: true},
	}
	for _, tt := range tests {
		p, err := ParseBrokenPolicy(tt.name)
		if err != nil {
			t.Fatalf("ParseBrokenPolicy(%q): %v", tt.name, err)
		}
		if got := p.broken(tt.status); got != tt.want {
			t.Errorf("%q policy, status %d: broken = %v, want %v", tt.name, tt.status, got, tt.want)
		}
		if !p.broken(0) {
			t.Errorf("%q policy must treat status 0 as broken", tt.name)
		}
	}

	if _, err := ParseBrokenPolicy("lenient"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
