package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestResourceKind_Text(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Link{Target: "https://example.com/logo.png", Kind: KindAsset})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"kind":"asset"`) {
		t.Errorf("kind not encoded by name: %s", b)
	}

	var l Link
	if err := json.Unmarshal(b, &l); err != nil {
		t.Fatal(err)
	}
	if l.Kind != KindAsset {
		t.Errorf("Kind = %v, want asset", l.Kind)
	}
}

func TestLink_Host(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target string
		want   string
	}{
		{target: "https://Example.COM/a", want: "example.com"},
		{target: "http://example.com:8080/", want: "example.com:8080"},
		{target: "/relative", want: ""},
		{target: "http://[::1", want: ""},
	}
	for _, tt := range tests {
		if got := (Link{Target: tt.target}).Host(); got != tt.want {
			t.Errorf("Host(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
	if !NewStartLink("https://example.com").IsStart() {
		t.Error("start link must have no referrer")
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Failure
	}{
		{0, FailureTransport},
		{200, FailureNone},
		{301, FailureNone},
		{404, FailureClientError},
		{410, FailureClientError},
		{503, FailureServerError},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestBrokenLink_Reason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		b    BrokenLink
		want string
	}{
		{name: "status", b: BrokenLink{StatusCode: 404}, want: "404 Not Found"},
		{name: "unknown status", b: BrokenLink{StatusCode: 599}, want: "599"},
		{name: "transport", b: BrokenLink{Error: "dial tcp: connection refused"}, want: "dial tcp: connection refused"},
		{name: "nothing", b: BrokenLink{}, want: "no response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.b.Reason(); got != tt.want {
				t.Errorf("Reason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	// SHA3-256 of the empty string.
	const empty = "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"
	if got := Fingerprint(nil); got != empty {
		t.Errorf("Fingerprint(nil) = %s, want %s", got, empty)
	}
	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Error("different bodies must have different fingerprints")
	}
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	for ct, want := range map[string]bool{
		"text/html; charset=utf-8": true,
		"TEXT/HTML":                true,
		"application/xhtml+xml":    true,
		"application/json":         false,
		"":                         false,
	} {
		if got := IsHTML(ct); got != want {
			t.Errorf("IsHTML(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestCrawlReport(t *testing.T) {
	t.Parallel()

	r := NewCrawlReport("https://example.com/", ModeCheck)
	if r.ID == "" {
		t.Fatal("expected generated ID")
	}

	var wg sync.WaitGroup
	for _, target := range []string{"https://example.com/c", "https://example.com/a", "https://example.com/b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddBroken(BrokenLink{Link: Link{Target: target}, StatusCode: 404})
		}()
	}
	wg.Wait()
	r.AddBroken(BrokenLink{Link: Link{Target: "https://down.example/"}, Error: "timeout"})
	r.AddPage(PageResult{URL: "https://example.com/z", Bytes: 10, CacheStatus: CacheHit})
	r.AddPage(PageResult{URL: "https://example.com/y", Bytes: 5, CacheStatus: CacheMiss})
	r.AddError(errors.New("describe failed"))
	r.AddError(nil)

	time.Sleep(time.Millisecond)
	r.Finish(7, true)

	wantTargets := []string{
		"https://down.example/",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	if got := r.BrokenTargets(); !reflect.DeepEqual(got, wantTargets) {
		t.Errorf("BrokenTargets() = %q, want %q", got, wantTargets)
	}
	if r.Pages[0].URL != "https://example.com/y" {
		t.Errorf("pages not sorted: %+v", r.Pages)
	}
	if r.Duration() <= 0 {
		t.Error("expected positive duration")
	}
	if len(r.Errors) != 1 {
		t.Errorf("Errors = %v, want one entry", r.Errors)
	}

	s := r.Summarize()
	if s.LinksChecked != 7 || s.Broken != 4 || s.Pages != 2 || s.Bytes != 15 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.ByFailure[FailureClientError] != 3 || s.ByFailure[FailureTransport] != 1 {
		t.Errorf("ByFailure = %v", s.ByFailure)
	}
	if s.CacheHits != 1 || s.CacheMisses != 1 {
		t.Errorf("cache counts = %d/%d", s.CacheHits, s.CacheMisses)
	}
	if !r.Cancelled {
		t.Error("expected Cancelled")
	}
}
