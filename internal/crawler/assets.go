package crawler

import (
	"bytes"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// assetSelectors name the elements whose URL attribute loads a subresource.
var assetSelectors = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"script[src]", "src"},
	{"source[src]", "src"},
	{"video[src]", "src"},
	{"audio[src]", "src"},
	{"video[poster]", "poster"},
	{`link[rel~="stylesheet"][href]`, "href"},
	{`link[rel~="icon"][href]`, "href"},
	{`link[rel~="preload"][href]`, "href"},
}

// findAssets returns the raw subresource URLs referenced by an HTML
// document, in document order per selector.
//
// Design decision: this runs only in cache-warming mode with assets
// enabled, on a body already held in memory, so a DOM query is affordable
// and gives the element context the href scanner deliberately ignores.
func findAssets(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range assetSelectors {
		doc.Find(s.selector).Each(func(_ int, sel *goquery.Selection) {
			if v, ok := sel.Attr(s.attr); ok && v != "" {
				out = append(out, v)
			}
		})
	}
	return out
}

// resolveAssets resolves raw asset URLs against base and keeps the
// same-host ones.
func resolveAssets(base *url.URL, host string, raws []string) []*url.URL {
	out := make([]*url.URL, 0, len(raws))
	for _, raw := range raws {
		u := resolveHref(base, raw)
		if u == nil || !sameHost(host, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}
