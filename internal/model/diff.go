package model

import (
	"cmp"
	"slices"
)

// ReportDiff is what changed between two runs of the same site.
type ReportDiff struct {
	PreviousID string `json:"previous_id"`
	CurrentID  string `json:"current_id"`

	// NewBroken are targets broken now but not before.
	NewBroken []BrokenLink `json:"new_broken,omitempty"`

	// Fixed are targets broken before but not now.
	Fixed []BrokenLink `json:"fixed,omitempty"`

	// StillBroken are targets broken in both runs.
	StillBroken []BrokenLink `json:"still_broken,omitempty"`

	// ChangedPages are URLs whose body fingerprint differs. Only pages
	// fingerprinted in both runs are compared.
	ChangedPages []string `json:"changed_pages,omitempty"`
}

// HasChanges reports whether anything differs.
func (d ReportDiff) HasChanges() bool {
	return len(d.NewBroken) > 0 || len(d.Fixed) > 0 || len(d.ChangedPages) > 0
}

// CompareReports diffs prev against cur. Broken links are matched by
// target, so a link broken on several pages counts once.
func CompareReports(prev, cur *CrawlReport) ReportDiff {
	d := ReportDiff{PreviousID: prev.ID, CurrentID: cur.ID}

	before := firstByTarget(prev.Broken)
	after := firstByTarget(cur.Broken)
	for target, b := range after {
		if _, ok := before[target]; ok {
			d.StillBroken = append(d.StillBroken, b)
		} else {
			d.NewBroken = append(d.NewBroken, b)
		}
	}
	for target, b := range before {
		if _, ok := after[target]; !ok {
			d.Fixed = append(d.Fixed, b)
		}
	}

	prints := make(map[string]string, len(prev.Pages))
	for _, p := range prev.Pages {
		if p.Fingerprint != "" {
			prints[p.URL] = p.Fingerprint
		}
	}
	for _, p := range cur.Pages {
		if old, ok := prints[p.URL]; ok && p.Fingerprint != "" && old != p.Fingerprint {
			d.ChangedPages = append(d.ChangedPages, p.URL)
		}
	}

	byTarget := func(a, b BrokenLink) int { return cmp.Compare(a.Target, b.Target) }
	slices.SortFunc(d.NewBroken, byTarget)
	slices.SortFunc(d.Fixed, byTarget)
	slices.SortFunc(d.StillBroken, byTarget)
	slices.Sort(d.ChangedPages)
	d.ChangedPages = slices.Compact(d.ChangedPages)
	return d
}

func firstByTarget(links []BrokenLink) map[string]BrokenLink {
	m := make(map[string]BrokenLink, len(links))
	for _, b := range links {
		if _, ok := m[b.Target]; !ok {
			m[b.Target] = b
		}
	}
	return m
}
