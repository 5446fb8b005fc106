package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsCache fetches robots.txt once per host and answers allow queries.
// A host whose robots.txt cannot be fetched is treated as allowing everything.
type robotsCache struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

func newRobotsCache(client *http.Client, userAgent string, logger *slog.Logger) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		hosts:     make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the configured user agent may fetch u.
func (c *robotsCache) Allowed(ctx context.Context, u *url.URL) bool {
	group := c.group(ctx, u)
	if group == nil {
		return true
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return group.Test(p)
}

func (c *robotsCache) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	c.mu.Lock()
	group, ok := c.hosts[key]
	c.mu.Unlock()
	if ok {
		return group
	}

	group = c.fetch(ctx, key+"/robots.txt")

	// Two workers may fetch the same file concurrently; either result is fine.
	c.mu.Lock()
	c.hosts[key] = group
	c.mu.Unlock()
	return group
}

func (c *robotsCache) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("robots.txt unavailable", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		c.logger.Debug("robots.txt unparsable", "url", robotsURL, "error", err)
		return nil
	}
	return data.FindGroup(c.userAgent)
}

func (c *robotsCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hosts = make(map[string]*robotstxt.Group)
}
