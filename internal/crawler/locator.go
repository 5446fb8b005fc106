package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/linkprobe/internal/model"
)

// Anchor is where a link appears in its referring page.
type Anchor struct {
	// Text is the whitespace-collapsed, NFC-normalized anchor text.
	Text string
	// Line is the 1-based line of the opening tag.
	Line int
}

// Locator is the DOM-based fallback used off the hot path. After a crawl it
// re-reads the pages that contain broken links and fills in the anchor text
// and line number the byte scanner does not track.
//
// Design decision: golang.org/x/net/html's tokenizer handles the malformed
// markup found on real sites and exposes the raw bytes of every token, which
// is what line counting needs.
type Locator struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger
}

// NewLocator returns a Locator fetching through client.
func NewLocator(client *http.Client, userAgent string, logger *slog.Logger) *Locator {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		client:      client,
		userAgent:   userAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      logger,
	}
}

// Describe returns a copy of broken with Text and Line filled in where the
// referring page could be fetched and the anchor found. Each referrer is
// fetched once.
func (l *Locator) Describe(ctx context.Context, broken []model.BrokenLink) []model.BrokenLink {
	out := make([]model.BrokenLink, len(broken))
	copy(out, broken)

	byReferrer := make(map[string][]int)
	for i, b := range out {
		if b.Referrer != "" {
			byReferrer[b.Referrer] = append(byReferrer[b.Referrer], i)
		}
	}

	for referrer, idx := range byReferrer {
		if ctx.Err() != nil {
			break
		}
		anchors, err := l.fetchAnchors(ctx, referrer)
		if err != nil {
			l.logger.Debug("could not describe referrer", "url", referrer, "error", err)
			continue
		}
		for _, i := range idx {
			if a, ok := anchors[NormalizeURL(out[i].Target)]; ok {
				out[i].Text = a.Text
				out[i].Line = a.Line
			}
		}
	}
	return out
}

func (l *Locator) fetchAnchors(ctx context.Context, pageURL string) (map[string]Anchor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("referrer returned %d", resp.StatusCode)
	}
	return Anchors(resp.Request.URL, io.LimitReader(resp.Body, l.maxBodySize))
}

// Anchors tokenizes an HTML document and maps the normalized absolute
// target of every <a>, <area> and <link> element to its first occurrence.
// Relative hrefs resolve against base.
func Anchors(base *url.URL, r io.Reader) (map[string]Anchor, error) {
	z := html.NewTokenizer(r)
	anchors := make(map[string]Anchor)

	line := 1
	var (
		open     string // normalized target of the <a> being read
		openAt   int
		text     strings.Builder
		inAnchor bool
	)
	closeAnchor := func() {
		if inAnchor && open != "" {
			if _, seen := anchors[open]; !seen {
				anchors[open] = Anchor{Text: cleanText(text.String()), Line: openAt}
			}
		}
		inAnchor = false
		open = ""
		text.Reset()
	}

	for {
		tt := z.Next()
		tokenLine := line
		line += bytes.Count(z.Raw(), []byte{'\n'})

		switch tt {
		case html.ErrorToken:
			closeAnchor()
			if err := z.Err(); err != nil && err != io.EOF {
				return anchors, err
			}
			return anchors, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			a := atom.Lookup(name)
			if a != atom.A && a != atom.Area && a != atom.Link {
				continue
			}
			href := ""
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					href = string(val)
					break
				}
			}
			target := resolveHref(base, href)
			if a != atom.A || tt == html.SelfClosingTagToken {
				if target != nil {
					key := NormalizeURL(target.String())
					if _, seen := anchors[key]; !seen {
						anchors[key] = Anchor{Line: tokenLine}
					}
				}
				continue
			}
			closeAnchor()
			if target != nil {
				inAnchor = true
				open = NormalizeURL(target.String())
				openAt = tokenLine
			}

		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.A {
				closeAnchor()
			}

		case html.TextToken:
			if inAnchor {
				text.Write(z.Text())
			}
		}
	}
}

// cleanText collapses whitespace and applies Unicode NFC so that anchor
// text compares equal across runs regardless of source encoding form.
func cleanText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
