package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"

	"github.com/nao1215/linkprobe/internal/crawler"
)

// progress shows a spinner with running counters on stderr. A disabled
// progress only counts.
type progress struct {
	s       *spinner.Spinner
	enabled bool
	checked atomic.Int64
	failed  atomic.Int64
}

func newProgress(w io.Writer, enabled bool) *progress {
	p := &progress{enabled: enabled}
	if enabled {
		p.s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		p.s.Suffix = " starting crawl..."
	}
	return p
}

// Start begins drawing.
func (p *progress) Start() {
	if p.enabled {
		p.s.Start()
	}
}

// Stop erases the spinner line.
func (p *progress) Stop() {
	if p.enabled {
		p.s.Stop()
	}
}

// Observe is called from several crawls at once.
func (p *progress) Observe(ev crawler.Progress) {
	checked := p.checked.Add(1)
	failed := p.failed.Load()
	if ev.Err != nil {
		failed = p.failed.Add(1)
	}
	if !p.enabled {
		return
	}
	p.s.Lock()
	p.s.Suffix = fmt.Sprintf(" %s links checked, %s queued, %s failed",
		humanize.Comma(checked), humanize.Comma(int64(ev.FrontierSize)), humanize.Comma(failed))
	p.s.Unlock()
}
