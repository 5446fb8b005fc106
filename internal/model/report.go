package model

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode is what a crawl is for.
type Mode string

const (
	// ModeCheck looks for broken links.
	ModeCheck Mode = "check"
	// ModeWarm fetches every page to populate caches.
	ModeWarm Mode = "warm"
)

// CrawlReport is the outcome of crawling one start URL.
//
// Design decision: one flat struct that serializes to JSON as a whole, so the
// history database can store it in a single column and the report writers
// need no second model.
type CrawlReport struct {
	// ID identifies the run in the history database.
	ID string `json:"id"`

	// StartURL is the URL the crawl began at.
	StartURL string `json:"start_url"`

	// Mode is check or warm.
	Mode Mode `json:"mode"`

	// StartedAt and FinishedAt bracket the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// LinksChecked is the number of links dequeued and processed.
	LinksChecked int `json:"links_checked"`

	// Cancelled is true when the crawl was interrupted before the frontier
	// was exhausted.
	Cancelled bool `json:"cancelled"`

	// Broken lists every broken link found, sorted by target.
	Broken []BrokenLink `json:"broken,omitempty"`

	// Pages lists the pages fetched, sorted by URL.
	Pages []PageResult `json:"pages,omitempty"`

	// Errors collects non-fatal pipeline errors.
	Errors []string `json:"errors,omitempty"`

	mu sync.Mutex
}

// NewCrawlReport returns an empty report with a fresh ID.
func NewCrawlReport(startURL string, mode Mode) *CrawlReport {
	return &CrawlReport{
		ID:        uuid.NewString(),
		StartURL:  startURL,
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

// AddBroken records a broken link. Safe for concurrent use.
func (r *CrawlReport) AddBroken(b BrokenLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Broken = append(r.Broken, b)
}

// AddPage records a fetched page. Safe for concurrent use.
func (r *CrawlReport) AddPage(p PageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Pages = append(r.Pages, p)
}

// AddError records a non-fatal error. Safe for concurrent use.
func (r *CrawlReport) AddError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err.Error())
}

// Finish stamps the end time and sorts the collected results so that
// reports are stable across runs.
func (r *CrawlReport) Finish(linksChecked int, cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
	r.LinksChecked = linksChecked
	r.Cancelled = cancelled
	slices.SortStableFunc(r.Broken, func(a, b BrokenLink) int {
		return cmp.Or(cmp.Compare(a.Target, b.Target), cmp.Compare(a.Referrer, b.Referrer))
	})
	slices.SortStableFunc(r.Pages, func(a, b PageResult) int {
		return cmp.Compare(a.URL, b.URL)
	})
}

// Duration returns how long the crawl took.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary aggregates a report for display.
type Summary struct {
	LinksChecked int
	Broken       int
	ByFailure    map[Failure]int
	ByStatus     map[int]int
	Pages        int
	Bytes        int64
	CacheHits    int
	CacheMisses  int
}

// Summarize computes the counts shown at the top of every report format.
func (r *CrawlReport) Summarize() Summary {
	s := Summary{
		LinksChecked: r.LinksChecked,
		Broken:       len(r.Broken),
		ByFailure:    make(map[Failure]int),
		ByStatus:     make(map[int]int),
		Pages:        len(r.Pages),
	}
	for _, b := range r.Broken {
		s.ByFailure[b.Failure()]++
		s.ByStatus[b.StatusCode]++
	}
	for _, p := range r.Pages {
		s.Bytes += p.Bytes
		switch p.CacheStatus {
		case CacheHit:
			s.CacheHits++
		case CacheMiss:
			s.CacheMisses++
		}
	}
	return s
}

// BrokenTargets returns the distinct broken targets, sorted.
func (r *CrawlReport) BrokenTargets() []string {
	seen := make(map[string]struct{}, len(r.Broken))
	out := make([]string, 0, len(r.Broken))
	for _, b := range r.Broken {
		if _, ok := seen[b.Target]; ok {
			continue
		}
		seen[b.Target] = struct{}{}
		out = append(out, b.Target)
	}
	slices.Sort(out)
	return out
}
