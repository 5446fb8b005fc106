package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// DefaultMaxRedirects is how many redirects a request may follow.
const DefaultMaxRedirects = 10

// checkProxyTimeout bounds the SOCKS5 greeting done by CheckProxy.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 greeting bytes.
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// Client hands out HTTP clients that share one dialing policy.
//
// Design decision: every *http.Client built from the same Client gets its
// own Transport so that site-specific headers never leak between sites,
// while the dialer (and therefore the proxy) is shared.
type Client struct {
	proxyAddress string
	dialer       proxy.ContextDialer
	timeout      time.Duration
	maxRedirects int
	maxConns     int
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithProxy routes every connection through the SOCKS5 proxy at addr
// (host:port). An empty addr keeps direct dialing.
func WithProxy(addr string) ClientOption {
	return func(c *Client) error {
		if addr == "" {
			return nil
		}
		if !isValidProxyAddress(addr) {
			return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, addr)
		}
		d, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("failed to create SOCKS5 dialer: %T cannot dial with a context", d)
		}
		c.proxyAddress = addr
		c.dialer = cd
		return nil
	}
}

// WithMaxConnsPerHost sizes the idle connection pool per host. The crawl
// concurrency is a good value; anything smaller forces reconnects.
func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *Client) error {
		c.maxConns = max(1, n)
		return nil
	}
}

// WithMaxRedirects sets how many redirects a request may follow.
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) error {
		c.maxRedirects = max(0, n)
		return nil
	}
}

// NewClient returns a Client whose HTTP clients time out after timeout.
func NewClient(timeout time.Duration, opts ...ClientOption) (*Client, error) {
	c := &Client{
		dialer:       &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
		timeout:      timeout,
		maxRedirects: DefaultMaxRedirects,
		maxConns:     2,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ProxyAddress returns the SOCKS5 proxy in use, or "" for direct dialing.
func (c *Client) ProxyAddress() string { return c.proxyAddress }

// HTTPClient returns a client with a cookie jar and a connection pool sized
// for the crawl.
func (c *Client) HTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:         c.dialer.DialContext,
		ForceAttemptHTTP2:   c.proxyAddress == "",
		MaxIdleConns:        max(100, c.maxConns*2),
		MaxIdleConnsPerHost: c.maxConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if c.proxyAddress == "" {
		transport.Proxy = http.ProxyFromEnvironment
	}

	// cookiejar.New only fails on invalid options.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) //nolint:errcheck

	limit := c.maxRedirects
	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// HTTPClientWithConfig returns an HTTP client that adds cookie and headers
// to every request, redirects included.
func (c *Client) HTTPClientWithConfig(cookie string, headers map[string]string) *http.Client {
	client := c.HTTPClient()
	if cookie == "" && len(headers) == 0 {
		return client
	}
	client.Transport = &headerInjectingTransport{
		base:    client.Transport,
		cookie:  cookie,
		headers: headers,
	}
	return client
}

// CheckProxy performs a SOCKS5 greeting with the configured proxy.
// Direct clients always report OK.
func (c *Client) CheckProxy(ctx context.Context) ProxyStatus {
	if c.proxyAddress == "" {
		return ProxyStatusOK
	}
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// isValidProxyAddress reports whether address is host:port with a port
// in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// headerInjectingTransport adds a cookie and fixed headers to every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}
