package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/linkprobe/internal/extract"
	"github.com/nao1215/linkprobe/internal/model"
)

// DefaultUserAgent identifies the crawler to servers and robots.txt.
const DefaultUserAgent = "linkprobe/1.0 (+https://github.com/nao1215/linkprobe)"

// DefaultMaxBodySize bounds how much of a page is read.
const DefaultMaxBodySize = 10 * 1024 * 1024

// Recorder receives crawl findings. *model.CrawlReport implements it.
type Recorder interface {
	AddBroken(model.BrokenLink)
	AddPage(model.PageResult)
}

// discardRecorder drops every finding.
type discardRecorder struct{}

func (discardRecorder) AddBroken(model.BrokenLink) {}
func (discardRecorder) AddPage(model.PageResult)   {}

// HTTPProcessor is the LinkProcessor used for real crawls. For every link it
// waits out jitter and the per-host rate limit, checks robots.txt, fetches
// the target, records broken links, streams HTML bodies through the href
// extractor and returns the same-host links worth following.
//
// The start link is always fetched: robots.txt only governs the links
// discovered from it, since the user asked for the start URL explicitly.
// Its host after redirects defines which links count as same-host.
type HTTPProcessor struct {
	client      *http.Client
	extractor   *extract.Extractor
	mode        model.Mode
	policy      BrokenPolicy
	recorder    Recorder
	userAgent   string
	maxBodySize int64
	jitter      Jitter
	limiter     *hostLimiter
	robots      *robotsCache
	useRobots   bool
	filter      Filter
	external    bool
	assets      bool
	logger      *slog.Logger

	// scope is the final host of the start link; only links on it are followed.
	scope atomic.Value

	// extCache holds finished external checks; extGroup makes concurrent
	// referrers of one target share a single request.
	extMu    sync.Mutex
	extCache map[string]extResult
	extGroup singleflight.Group

	fetched atomic.Int64
}

// ProcessorOption configures an HTTPProcessor.
type ProcessorOption func(*HTTPProcessor)

// WithMode selects link checking or cache warming.
func WithMode(m model.Mode) ProcessorOption {
	return func(p *HTTPProcessor) { p.mode = m }
}

// WithBrokenPolicy sets the predicate that flags broken links.
func WithBrokenPolicy(policy BrokenPolicy) ProcessorOption {
	return func(p *HTTPProcessor) {
		if policy != nil {
			p.policy = policy
		}
	}
}

// WithRecorder sets where broken links and page results go.
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *HTTPProcessor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ProcessorOption {
	return func(p *HTTPProcessor) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithMaxBodySize bounds how many body bytes are read per page.
func WithMaxBodySize(n int64) ProcessorOption {
	return func(p *HTTPProcessor) {
		if n > 0 {
			p.maxBodySize = n
		}
	}
}

// WithJitter sets the randomized pre-request delay.
func WithJitter(j Jitter) ProcessorOption {
	return func(p *HTTPProcessor) { p.jitter = j }
}

// WithRateLimit allows rps requests per second per host. 0 disables it.
func WithRateLimit(rps float64, burst int) ProcessorOption {
	return func(p *HTTPProcessor) { p.limiter = newHostLimiter(rps, burst) }
}

// WithRobots enables or disables robots.txt checks.
func WithRobots(enabled bool) ProcessorOption {
	return func(p *HTTPProcessor) { p.useRobots = enabled }
}

// WithPatterns sets the ignore and follow glob patterns.
func WithPatterns(ignore, follow []string) ProcessorOption {
	return func(p *HTTPProcessor) {
		p.filter.Ignore = ignore
		p.filter.Follow = follow
	}
}

// WithExcludedExtensions replaces the extensions never followed as pages.
func WithExcludedExtensions(exts []string) ProcessorOption {
	return func(p *HTTPProcessor) {
		p.filter.ExcludedExtensions = make([]string, 0, len(exts))
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			p.filter.ExcludedExtensions = append(p.filter.ExcludedExtensions, e)
		}
	}
}

// WithCheckExternal makes link checking also verify cross-host targets.
// They are checked once each and never crawled.
func WithCheckExternal(enabled bool) ProcessorOption {
	return func(p *HTTPProcessor) { p.external = enabled }
}

// WithAssets makes cache warming also fetch same-host subresources.
func WithAssets(enabled bool) ProcessorOption {
	return func(p *HTTPProcessor) { p.assets = enabled }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *HTTPProcessor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewHTTPProcessor returns a processor fetching through client and
// extracting with ex.
func NewHTTPProcessor(client *http.Client, ex *extract.Extractor, opts ...ProcessorOption) *HTTPProcessor {
	p := &HTTPProcessor{
		client:      client,
		extractor:   ex,
		mode:        model.ModeCheck,
		policy:      DefaultBrokenPolicy,
		recorder:    discardRecorder{},
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		limiter:     newHostLimiter(0, 1),
		useRobots:   true,
		filter:      Filter{ExcludedExtensions: DefaultExcludedExtensions},
		logger:      slog.Default(),
		extCache:    make(map[string]extResult),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.robots = newRobotsCache(client, p.userAgent, p.logger)
	return p
}

// Fetched returns how many requests the processor has issued for links.
func (p *HTTPProcessor) Fetched() int { return int(p.fetched.Load()) }

// Reset clears the robots.txt, rate limiter and external-link caches and
// forgets the crawl scope.
func (p *HTTPProcessor) Reset() {
	p.robots.reset()
	p.limiter.reset()
	p.extMu.Lock()
	p.extCache = make(map[string]extResult)
	p.extMu.Unlock()
	p.scope.Store("")
}

func (p *HTTPProcessor) scopeHost() string {
	s, _ := p.scope.Load().(string)
	return s
}

// Process fetches link and returns the links it leads to.
func (p *HTTPProcessor) Process(ctx context.Context, link model.Link) ([]model.Link, error) {
	target, err := url.Parse(link.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse link target: %w", err)
	}
	if link.IsStart() && p.scopeHost() == "" {
		p.scope.Store(strings.ToLower(target.Host))
	}

	if p.useRobots && !link.IsStart() && !p.robots.Allowed(ctx, target) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedByRobots, link.Target)
	}

	resp, elapsed, err := p.fetch(ctx, http.MethodGet, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.recordBroken(link, 0, err, false)
		return nil, fmt.Errorf("failed to fetch %s: %w", link.Target, err)
	}
	defer resp.Body.Close()

	// Redirects of the start URL move the scope along: a site served from
	// www. or another port is crawled where it actually lives.
	if link.IsStart() {
		p.scope.Store(strings.ToLower(resp.Request.URL.Host))
	}

	if p.policy.broken(resp.StatusCode) {
		p.recordBroken(link, resp.StatusCode, nil, false)
		return nil, fmt.Errorf("%w: %s returned %d", ErrBrokenLink, link.Target, resp.StatusCode)
	}

	page := model.PageResult{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		CacheStatus: cacheStatus(resp.Header),
	}
	body := &countingReader{r: io.LimitReader(resp.Body, p.maxBodySize)}
	started := time.Now()

	if link.Kind == model.KindAsset || !model.IsHTML(page.ContentType) {
		if p.mode == model.ModeWarm {
			_, _ = io.Copy(io.Discard, body)
			page.Bytes = body.n
			page.Duration = elapsed + time.Since(started)
			p.recorder.AddPage(page)
		}
		return nil, nil
	}

	var hrefs, assets []string
	if p.mode == model.ModeWarm {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", link.Target, err)
		}
		page.Fingerprint = model.Fingerprint(data)
		hrefs, err = p.extractor.ExtractBytes(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("failed to extract links from %s: %w", link.Target, err)
		}
		if p.assets {
			assets = findAssets(data)
		}
	} else {
		scratch := p.extractor.NewScratch()
		hrefs, err = p.extractor.Extract(ctx, body, scratch)
		scratch.Release()
		if err != nil {
			return nil, fmt.Errorf("failed to extract links from %s: %w", link.Target, err)
		}
	}
	page.Bytes = body.n
	page.Duration = elapsed + time.Since(started)
	page.LinksFound = len(hrefs)
	p.recorder.AddPage(page)

	return p.follow(ctx, link, resp.Request.URL, hrefs, assets), nil
}

// follow resolves extracted hrefs and keeps the links worth enqueueing.
// Cross-host links are checked in place when external checking is enabled.
func (p *HTTPProcessor) follow(ctx context.Context, from model.Link, base *url.URL, hrefs, assets []string) []model.Link {
	scope := p.scopeHost()
	referrer := base.String()
	out := make([]model.Link, 0, len(hrefs)+len(assets))
	taken := make(map[string]struct{}, len(hrefs)+len(assets))

	add := func(u *url.URL, kind model.ResourceKind) {
		s := u.String()
		if _, dup := taken[s]; dup {
			return
		}
		taken[s] = struct{}{}
		out = append(out, model.Link{Referrer: referrer, Target: s, Kind: kind})
	}

	if p.mode == model.ModeWarm && p.assets {
		for _, u := range resolveAssets(base, scope, assets) {
			add(u, model.KindAsset)
		}
	}

	for _, raw := range hrefs {
		u := resolveHref(base, html.UnescapeString(raw))
		if u == nil {
			continue
		}
		if !sameHost(scope, u) {
			s := u.String()
			if _, dup := taken[s]; dup || !p.external || p.mode != model.ModeCheck {
				continue
			}
			taken[s] = struct{}{}
			p.checkExternal(ctx, model.Link{Referrer: referrer, Target: s})
			continue
		}
		if !p.filter.Allow(u) {
			continue
		}
		if p.filter.Excluded(u) {
			if p.mode == model.ModeWarm && p.assets {
				add(u, model.KindAsset)
			}
			continue
		}
		add(u, model.KindPage)
	}

	p.logger.Debug("page expanded", "url", from.Target, "hrefs", len(hrefs), "links", len(out))
	return out
}

// extResult is the outcome of one external check. err is set for
// transport failures, with status 0.
type extResult struct {
	status int
	err    error
}

// checkExternal verifies a cross-host target once per crawl and records it
// for every referrer when it is broken. Referrers arriving while the check
// is in flight wait for its result.
func (p *HTTPProcessor) checkExternal(ctx context.Context, link model.Link) {
	key := NormalizeURL(link.Target)
	p.extMu.Lock()
	res, seen := p.extCache[key]
	p.extMu.Unlock()

	if !seen {
		v, err, _ := p.extGroup.Do(key, func() (any, error) {
			p.extMu.Lock()
			cached, ok := p.extCache[key]
			p.extMu.Unlock()
			if ok {
				return cached, nil
			}
			r := p.externalStatus(ctx, link.Target)
			if ctx.Err() != nil {
				return r, ctx.Err()
			}
			p.extMu.Lock()
			p.extCache[key] = r
			p.extMu.Unlock()
			return r, nil
		})
		if err != nil {
			return
		}
		res = v.(extResult)
	}

	if res.err != nil || p.policy.broken(res.status) {
		p.recordBroken(link, res.status, res.err, true)
	}
}

// externalStatus tries HEAD first; servers that reject it get a GET.
func (p *HTTPProcessor) externalStatus(ctx context.Context, target string) extResult {
	u, err := url.Parse(target)
	if err != nil {
		return extResult{err: err}
	}
	status, err := p.status(ctx, http.MethodHead, u)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = p.status(ctx, http.MethodGet, u)
	}
	if err != nil {
		return extResult{err: err}
	}
	return extResult{status: status}
}

func (p *HTTPProcessor) status(ctx context.Context, method string, target *url.URL) (int, error) {
	resp, _, err := p.fetch(ctx, method, target)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	return resp.StatusCode, nil
}

// fetch waits out jitter and the rate limit, then issues the request.
// elapsed covers the request up to the response headers.
func (p *HTTPProcessor) fetch(ctx context.Context, method string, target *url.URL) (*http.Response, time.Duration, error) {
	if err := p.jitter.Sleep(ctx); err != nil {
		return nil, 0, err
	}
	if err := p.limiter.Wait(ctx, target.Host); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	p.fetched.Add(1)
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

func (p *HTTPProcessor) recordBroken(link model.Link, status int, err error, external bool) {
	b := model.BrokenLink{
		Link:       link,
		StatusCode: status,
		External:   external,
		CheckedAt:  time.Now(),
	}
	if err != nil {
		b.Error = transportMessage(err)
	}
	p.logger.Debug("broken link", "url", link.Target, "referrer", link.Referrer, "status", status)
	p.recorder.AddBroken(b)
}

// transportMessage strips the request method and URL that *url.Error
// prepends, leaving the cause.
func transportMessage(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err.Error()
	}
	return err.Error()
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(contentType)
	}
	return mt
}

// cacheStatus reads the hit or miss verdict of common CDNs and proxies.
func cacheStatus(h http.Header) string {
	for _, name := range []string{"CF-Cache-Status", "X-Cache", "X-Cache-Status", "X-Proxy-Cache"} {
		v := strings.ToUpper(h.Get(name))
		switch {
		case v == "":
			continue
		case strings.Contains(v, "HIT"):
			return model.CacheHit
		case strings.Contains(v, "MISS"), strings.Contains(v, "EXPIRED"), strings.Contains(v, "BYPASS"):
			return model.CacheMiss
		}
	}
	if age := h.Get("Age"); age != "" && age != "0" {
		return model.CacheHit
	}
	return model.CacheUnknown
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
