package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/linkprobe/internal/extract"
	"github.com/nao1215/linkprobe/internal/model"
)

// hitCounter counts requests per method and path.
type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) add(r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hits == nil {
		h.hits = make(map[string]int)
	}
	h.hits[r.Method+" "+r.URL.Path]++
}

func (h *hitCounter) get(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[key]
}

// newExternalSite serves the cross-host targets linked from the test site.
func newExternalSite(t *testing.T, hits *hitCounter) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.add(r)
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/no-head":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestSite serves a small site that links to ext for cross-host targets.
func newTestSite(t *testing.T, ext string, hits *hitCounter) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	html := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /secret\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.add(r)
		switch r.URL.Path {
		case "/":
			w.Header().Set("X-Cache", "HIT from edge")
			html(w, `<html><head>
<link rel="stylesheet" href="/style.css">
<script src="/app.js"></script>
</head><body>
<img src="/logo.png" alt="">
<a href="/a">A</a>
<a href='/missing'>Missing</a>
<a href="/a?x=1&amp;y=2">A with query</a>
<a href="/secret/plans">Secret</a>
<a href="/forbidden">Forbidden</a>
<a href="#top">Top</a>
<a href="mailto:me@example.com">Mail</a>
<a href="`+ext+`/ok">OK</a>
<a href="`+ext+`/gone">Gone</a>
<a href="`+ext+`/no-head">No HEAD</a>
<a href="`+ext+`/gone#again">Gone again</a>
</body></html>`)
		case "/a":
			w.Header().Set("CF-Cache-Status", "MISS")
			html(w, `<a href="/">home</a><a href="b">b</a>`)
		case "/b":
			html(w, `<p>leaf</p>`)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/style.css":
			w.Header().Set("Content-Type", "text/css")
			fmt.Fprint(w, "body{color:red}")
		case "/app.js":
			w.Header().Set("Content-Type", "text/javascript")
			fmt.Fprint(w, "console.log(1)")
		case "/logo.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestExtractor(t *testing.T) *extract.Extractor {
	t.Helper()
	ex, err := extract.New()
	if err != nil {
		t.Fatalf("failed to create extractor: %v", err)
	}
	return ex
}

func crawlSite(t *testing.T, start string, proc *HTTPProcessor, report *model.CrawlReport) []Progress {
	t.Helper()
	ch, err := NewDriver(WithConcurrency(3)).Crawl(context.Background(), model.NewStartLink(start), proc)
	if err != nil {
		t.Fatalf("failed to start crawl: %v", err)
	}
	events := drain(t, ch)
	report.Finish(len(events), false)
	return events
}

func brokenTargets(r *model.CrawlReport) []string {
	out := make([]string, 0, len(r.Broken))
	for _, b := range r.Broken {
		out = append(out, b.Target)
	}
	return out
}

// TestHTTPProcessor_CheckMode tests link checking against a live site.
func TestHTTPProcessor_CheckMode(t *testing.T) {
	t.Parallel()

	var siteHits, extHits hitCounter
	ext := newExternalSite(t, &extHits)
	site := newTestSite(t, ext.URL, &siteHits)

	report := model.NewCrawlReport(site.URL+"/", model.ModeCheck)
	proc := NewHTTPProcessor(site.Client(), newTestExtractor(t), WithRecorder(report))
	events := crawlSite(t, site.URL+"/", proc, report)

	if got, want := brokenTargets(report), []string{site.URL + "/missing"}; !slices.Equal(got, want) {
		t.Errorf("broken = %v, want %v", got, want)
	}
	b := report.Broken[0]
	if b.StatusCode != http.StatusNotFound || b.Referrer != site.URL+"/" || b.External {
		t.Errorf("unexpected broken link: %+v", b)
	}

	for _, key := range []string{"GET /app.js", "GET /style.css", "GET /logo.png", "GET /secret/plans"} {
		if n := siteHits.get(key); n != 0 {
			t.Errorf("%s requested %d times", key, n)
		}
	}
	if n := siteHits.get("GET /a"); n != 2 {
		t.Errorf("/a requested %d times, want 2 (plain and with query)", n)
	}
	if n := siteHits.get("GET /b"); n != 1 {
		t.Errorf("/b requested %d times, want 1", n)
	}
	if n := extHits.get("HEAD /ok") + extHits.get("GET /ok"); n != 0 {
		t.Errorf("external site requested %d times with external checks off", n)
	}

	var robots int
	for _, e := range events {
		if errors.Is(e.Err, ErrDisallowedByRobots) {
			robots++
		}
	}
	if robots != 1 {
		t.Errorf("%d links disallowed by robots.txt, want 1", robots)
	}

	pages := make([]string, 0, len(report.Pages))
	for _, p := range report.Pages {
		pages = append(pages, strings.TrimPrefix(p.URL, site.URL))
	}
	if want := []string{"/", "/a", "/a?x=1&y=2", "/b"}; !slices.Equal(pages, want) {
		t.Errorf("pages = %v, want %v", pages, want)
	}
	if report.Pages[0].LinksFound == 0 {
		t.Error("start page reported no links")
	}
}

// TestHTTPProcessor_CheckExternal tests that cross-host targets are checked
// once each and never crawled.
func TestHTTPProcessor_CheckExternal(t *testing.T) {
	t.Parallel()

	var siteHits, extHits hitCounter
	ext := newExternalSite(t, &extHits)
	site := newTestSite(t, ext.URL, &siteHits)

	report := model.NewCrawlReport(site.URL+"/", model.ModeCheck)
	proc := NewHTTPProcessor(site.Client(), newTestExtractor(t),
		WithRecorder(report),
		WithCheckExternal(true),
	)
	crawlSite(t, site.URL+"/", proc, report)

	want := []string{ext.URL + "/gone", site.URL + "/missing"}
	slices.Sort(want)
	if got := brokenTargets(report); !slices.Equal(got, want) {
		t.Errorf("broken = %v, want %v", got, want)
	}
	for _, b := range report.Broken {
		if strings.HasPrefix(b.Target, ext.URL) && (!b.External || b.StatusCode != http.StatusGone) {
			t.Errorf("unexpected external broken link: %+v", b)
		}
	}
	if n := extHits.get("HEAD /gone"); n != 1 {
		t.Errorf("HEAD /gone sent %d times, want 1", n)
	}
	if n := extHits.get("HEAD /no-head"); n != 1 {
		t.Errorf("HEAD /no-head sent %d times, want 1", n)
	}
	if n := extHits.get("GET /no-head"); n != 1 {
		t.Errorf("GET fallback for /no-head sent %d times, want 1", n)
	}
	if n := extHits.get("GET /ok"); n != 0 {
		t.Errorf("external page crawled %d times", n)
	}
}

// TestHTTPProcessor_ExternalSharedByReferrers tests that concurrent pages
// linking to the same broken external target share one request and each
// get their own broken-link entry.
func TestHTTPProcessor_ExternalSharedByReferrers(t *testing.T) {
	t.Parallel()

	var hits hitCounter
	ext := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.add(r)
		time.Sleep(50 * time.Millisecond)
		http.NotFound(w, r)
	}))
	t.Cleanup(ext.Close)

	report := model.NewCrawlReport("http://site.test/", model.ModeCheck)
	proc := NewHTTPProcessor(ext.Client(), newTestExtractor(t),
		WithRecorder(report),
		WithCheckExternal(true),
	)

	referrers := []string{"http://site.test/a", "http://site.test/b", "http://site.test/c"}
	var wg sync.WaitGroup
	for _, ref := range referrers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc.checkExternal(context.Background(), model.Link{Referrer: ref, Target: ext.URL + "/slow-gone"})
		}()
	}
	wg.Wait()

	if n := hits.get("HEAD /slow-gone"); n != 1 {
		t.Errorf("HEAD /slow-gone sent %d times, want 1", n)
	}
	got := make([]string, 0, len(report.Broken))
	for _, b := range report.Broken {
		if b.StatusCode != http.StatusNotFound || !b.External {
			t.Errorf("unexpected broken link: %+v", b)
		}
		got = append(got, b.Referrer)
	}
	slices.Sort(got)
	if !slices.Equal(got, referrers) {
		t.Errorf("referrers = %v, want %v", got, referrers)
	}
}

// TestHTTPProcessor_RedirectedStart tests that the crawl scope follows a
// start URL that redirects to another host.
func TestHTTPProcessor_RedirectedStart(t *testing.T) {
	t.Parallel()

	var port string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Host, "127.0.0.1") {
			http.Redirect(w, r, "http://localhost:"+port+r.URL.Path, http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/a">A</a><a href="/b">B</a>`)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port = u.Port()

	proc := NewHTTPProcessor(srv.Client(), newTestExtractor(t), WithRobots(false))
	links, err := proc.Process(context.Background(), model.NewStartLink(srv.URL+"/"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := []string{"http://localhost:" + port + "/a", "http://localhost:" + port + "/b"}
	got := make([]string, 0, len(links))
	for _, l := range links {
		got = append(got, l.Target)
	}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("links = %v, want %v", got, want)
	}
}

// TestHTTPProcessor_Policies tests that the broken policy decides which
// statuses are recorded.
func TestHTTPProcessor_Policies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy BrokenPolicy
		want   []string
	}{
		{name: "default ignores 403", policy: DefaultBrokenPolicy, want: []string{"/missing"}},
		{name: "strict flags 403", policy: StrictPolicy, want: []string{"/forbidden", "/missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var hits hitCounter
			site := newTestSite(t, "https://external.invalid", &hits)
			report := model.NewCrawlReport(site.URL+"/", model.ModeCheck)
			proc := NewHTTPProcessor(site.Client(), newTestExtractor(t),
				WithRecorder(report),
				WithBrokenPolicy(tt.policy),
			)
			crawlSite(t, site.URL+"/", proc, report)

			got := brokenTargets(report)
			for i := range got {
				got[i] = strings.TrimPrefix(got[i], site.URL)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("broken = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestHTTPProcessor_Patterns tests ignore and follow patterns and robots.txt opt-out.
func TestHTTPProcessor_Patterns(t *testing.T) {
	t.Parallel()

	var hits hitCounter
	site := newTestSite(t, "https://external.invalid", &hits)
	report := model.NewCrawlReport(site.URL+"/", model.ModeCheck)
	proc := NewHTTPProcessor(site.Client(), newTestExtractor(t),
		WithRecorder(report),
		WithPatterns([]string{"/missing"}, nil),
		WithRobots(false),
	)
	crawlSite(t, site.URL+"/", proc, report)

	// /secret/plans is fetched once robots.txt is ignored, and 404s.
	if got, want := brokenTargets(report), []string{site.URL + "/secret/plans"}; !slices.Equal(got, want) {
		t.Errorf("broken = %v, want %v", got, want)
	}
	if n := hits.get("GET /missing"); n != 0 {
		t.Errorf("/missing requested %d times", n)
	}
	if n := hits.get("GET /secret/plans"); n != 1 {
		t.Errorf("/secret/plans requested %d times with robots disabled, want 1", n)
	}
}

// TestHTTPProcessor_WarmMode tests cache warming with subresources.
func TestHTTPProcessor_WarmMode(t *testing.T) {
	t.Parallel()

	var hits hitCounter
	site := newTestSite(t, "https://external.invalid", &hits)
	report := model.NewCrawlReport(site.URL+"/", model.ModeWarm)
	proc := NewHTTPProcessor(site.Client(), newTestExtractor(t),
		WithRecorder(report),
		WithMode(model.ModeWarm),
		WithAssets(true),
	)
	crawlSite(t, site.URL+"/", proc, report)

	byPath := make(map[string]model.PageResult)
	for _, p := range report.Pages {
		byPath[strings.TrimPrefix(p.URL, site.URL)] = p
	}
	for _, path := range []string{"/", "/a", "/b", "/style.css", "/app.js", "/logo.png"} {
		if _, ok := byPath[path]; !ok {
			t.Errorf("page %s not warmed", path)
		}
	}

	home := byPath["/"]
	if home.CacheStatus != model.CacheHit {
		t.Errorf("home cache status = %q, want HIT", home.CacheStatus)
	}
	if len(home.Fingerprint) != 64 {
		t.Errorf("home fingerprint = %q, want 64 hex chars", home.Fingerprint)
	}
	if home.Bytes == 0 || home.ContentType != "text/html" {
		t.Errorf("unexpected home result: %+v", home)
	}
	if got := byPath["/a"].CacheStatus; got != model.CacheMiss {
		t.Errorf("/a cache status = %q, want MISS", got)
	}
	if got := byPath["/logo.png"].Bytes; got != 4 {
		t.Errorf("/logo.png bytes = %d, want 4", got)
	}
	if n := hits.get("GET /style.css"); n != 1 {
		t.Errorf("/style.css requested %d times, want 1", n)
	}
}

// TestHTTPProcessor_TransportError tests that an unreachable target is
// recorded as broken with status 0.
func TestHTTPProcessor_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/"
	srv.Close()

	report := model.NewCrawlReport(target, model.ModeCheck)
	proc := NewHTTPProcessor(http.DefaultClient, newTestExtractor(t), WithRecorder(report))
	proc.Reset()

	links, err := proc.Process(context.Background(), model.NewStartLink(target))
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if len(links) != 0 {
		t.Errorf("links = %v, want none", links)
	}
	if len(report.Broken) != 1 {
		t.Fatalf("broken = %d, want 1", len(report.Broken))
	}
	b := report.Broken[0]
	if b.StatusCode != 0 || b.Error == "" || b.Failure() != model.FailureTransport {
		t.Errorf("unexpected broken link: %+v", b)
	}
	if strings.Contains(b.Error, target) {
		t.Errorf("error message repeats the URL: %q", b.Error)
	}
	if proc.Fetched() != 1 {
		t.Errorf("Fetched = %d, want 1", proc.Fetched())
	}
}

func TestCacheStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{name: "cloudflare hit", header: http.Header{"Cf-Cache-Status": {"HIT"}}, want: model.CacheHit},
		{name: "cloudflare expired", header: http.Header{"Cf-Cache-Status": {"EXPIRED"}}, want: model.CacheMiss},
		{name: "varnish miss", header: http.Header{"X-Cache": {"MISS, MISS"}}, want: model.CacheMiss},
		{name: "nginx bypass", header: http.Header{"X-Cache-Status": {"BYPASS"}}, want: model.CacheMiss},
		{name: "age only", header: http.Header{"Age": {"120"}}, want: model.CacheHit},
		{name: "age zero", header: http.Header{"Age": {"0"}}, want: model.CacheUnknown},
		{name: "nothing", header: http.Header{}, want: model.CacheUnknown},
	}
	for _, tt := range tests {
		if got := cacheStatus(tt.header); got != tt.want {
			t.Errorf("%s: cacheStatus = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMediaType(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"text/html; charset=utf-8": "text/html",
		"TEXT/HTML":                "text/html",
		"":                         "",
	} {
		if got := mediaType(in); got != want {
			t.Errorf("mediaType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithExcludedExtensions(t *testing.T) {
	t.Parallel()

	p := NewHTTPProcessor(http.DefaultClient, newTestExtractor(t), WithExcludedExtensions([]string{"PDF", " .zip ", ""}))
	if want := []string{".pdf", ".zip"}; !slices.Equal(p.filter.ExcludedExtensions, want) {
		t.Errorf("ExcludedExtensions = %v, want %v", p.filter.ExcludedExtensions, want)
	}
}

// TestHTTPProcessor_StartIgnoresRobots tests that robots.txt governs
// discovered links but never the start URL.
func TestHTTPProcessor_StartIgnoresRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/a">A</a>`)
	}))
	t.Cleanup(srv.Close)

	proc := NewHTTPProcessor(srv.Client(), newTestExtractor(t))
	links, err := proc.Process(context.Background(), model.NewStartLink(srv.URL+"/"))
	if err != nil {
		t.Fatalf("Process(start) error = %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if _, err := proc.Process(context.Background(), links[0]); !errors.Is(err, ErrDisallowedByRobots) {
		t.Errorf("Process(%s) error = %v, want ErrDisallowedByRobots", links[0].Target, err)
	}
}
