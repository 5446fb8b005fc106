// Package transport builds the HTTP clients linkprobe crawls with.
//
// A Client owns the dialing policy (direct, through a SOCKS5 proxy, or
// through an embedded Tor daemon) and hands out *http.Client values whose
// connection pool is sized for the crawl concurrency. Site-specific cookies
// and headers from the configuration file are injected by a RoundTripper
// so that redirects and robots.txt requests carry them too.
package transport
