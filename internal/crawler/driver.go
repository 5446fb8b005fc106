package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/linkprobe/internal/model"
)

// LinkProcessor fetches the page behind a link and returns the links it
// should lead to. Implementations decide what is fetched, what is filtered
// out and what counts as broken. A returned error is reported in the
// Progress event for the link and never stops the crawl.
type LinkProcessor interface {
	// Process handles one link. It must honor ctx for blocking work.
	Process(ctx context.Context, link model.Link) ([]model.Link, error)

	// Reset clears any per-crawl cache. The Driver calls it before the
	// first wave.
	Reset()
}

// State is the lifecycle state of a Driver.
type State int32

const (
	// StateIdle means no crawl has started.
	StateIdle State = iota
	// StateRunning means links are being dispatched.
	StateRunning
	// StateDraining means the link limit was reached and in-flight work is finishing.
	StateDraining
	// StateCancelled means the context was cancelled and in-flight work is finishing.
	StateCancelled
	// StateTerminated means the crawl is over and the progress channel is closed.
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCancelled:
		return "cancelled"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Progress is emitted once per processed link, in processing order.
type Progress struct {
	// Link is the link that was processed.
	Link model.Link

	// LinksChecked counts processed links including this one. It increases
	// by exactly one per event.
	LinksChecked int

	// FrontierSize is the number of links waiting for the next wave.
	FrontierSize int

	// LinksEnqueued is the number of distinct URLs enqueued so far.
	LinksEnqueued int

	// Err is what the processor reported for the link, if anything.
	Err error
}

// Stats summarizes a finished or running crawl.
type Stats struct {
	LinksChecked  int
	LinksEnqueued int
	Waves         int
	MaxInFlight   int
	Cancelled     bool
	LimitReached  bool
}

// Driver runs wave-based breadth-first crawls with bounded concurrency.
// A Driver runs one crawl at a time and can be reused after the progress
// channel of the previous crawl has been closed.
type Driver struct {
	concurrency    int
	maxLinks       int
	progressBuffer int
	logger         *slog.Logger

	state    atomic.Int32
	frontier *Frontier

	mu         sync.Mutex
	stats      Stats
	dispatched int
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithConcurrency sets the maximum number of links processed at once.
// Values below 1 are treated as 1.
func WithConcurrency(n int) DriverOption {
	return func(d *Driver) {
		d.concurrency = max(1, n)
	}
}

// WithMaxLinks stops dispatching after n links. 0 means no limit.
func WithMaxLinks(n int) DriverOption {
	return func(d *Driver) {
		d.maxLinks = max(0, n)
	}
}

// WithProgressBuffer sets the capacity of the progress channel.
func WithProgressBuffer(n int) DriverOption {
	return func(d *Driver) {
		d.progressBuffer = max(0, n)
	}
}

// WithDriverLogger sets the logger.
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = l
	}
}

// NewDriver returns an idle Driver.
func NewDriver(opts ...DriverOption) *Driver {
	d := &Driver{
		concurrency:    1,
		progressBuffer: 64,
		logger:         slog.Default(),
		frontier:       NewFrontier(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Stats returns a snapshot of the crawl counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Crawl starts a crawl at start and returns the progress channel.
//
// The crawl ends when the frontier is empty and nothing is in flight, when
// the link limit is reached, or when ctx is cancelled. On cancellation no
// new link is dispatched, in-flight work finishes, and its events are still
// delivered while the caller keeps reading. The channel is closed after the
// last event. Until ctx is cancelled the crawl waits for the reader; after
// that, events nobody receives are dropped and the crawl still terminates.
func (d *Driver) Crawl(ctx context.Context, start model.Link, proc LinkProcessor) (<-chan Progress, error) {
	u, err := url.Parse(start.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStartURL, start.Target)
	}

	for {
		s := d.State()
		if s != StateIdle && s != StateTerminated {
			return nil, ErrAlreadyRunning
		}
		if d.state.CompareAndSwap(int32(s), int32(StateRunning)) {
			break
		}
	}

	d.mu.Lock()
	d.stats = Stats{}
	d.dispatched = 0
	d.mu.Unlock()

	proc.Reset()
	d.frontier.Reset()
	d.frontier.Enqueue(start)

	out := make(chan Progress, d.progressBuffer)
	go d.run(ctx, proc, out)
	return out, nil
}

func (d *Driver) run(ctx context.Context, proc LinkProcessor, out chan<- Progress) {
	defer func() {
		d.state.Store(int32(StateTerminated))
		close(out)
	}()

	for {
		if d.limitReached() {
			return
		}
		wave := d.frontier.TakeWave()
		if len(wave) == 0 {
			return
		}
		if ctx.Err() != nil {
			d.markCancelled()
			return
		}

		d.mu.Lock()
		d.stats.Waves++
		waveNo := d.stats.Waves
		d.mu.Unlock()
		d.logger.Debug("starting wave", "wave", waveNo, "links", len(wave))

		d.runWave(ctx, wave, proc, out)
	}
}

type outcome struct {
	link  model.Link
	found []model.Link
	err   error
}

// runWave processes one wave. A dispatcher goroutine starts workers under
// the semaphore while this goroutine merges their results, so discovered
// links are enqueued and events emitted by a single goroutine.
func (d *Driver) runWave(ctx context.Context, wave []model.Link, proc LinkProcessor, out chan<- Progress) {
	results := make(chan outcome, d.concurrency)
	sem := semaphore.NewWeighted(int64(d.concurrency))
	var inFlight atomic.Int64

	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(results)
		}()

		for _, link := range wave {
			if err := sem.Acquire(ctx, 1); err != nil {
				d.markCancelled()
				return
			}
			if ctx.Err() != nil {
				sem.Release(1)
				d.markCancelled()
				return
			}
			if !d.reserve() {
				sem.Release(1)
				return
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				d.observeInFlight(inFlight.Add(1))
				found, err := proc.Process(ctx, link)
				inFlight.Add(-1)
				results <- outcome{link: link, found: found, err: err}
			}()
		}
	}()

	for r := range results {
		for _, l := range r.found {
			d.frontier.Enqueue(l)
		}

		d.mu.Lock()
		d.stats.LinksChecked++
		checked := d.stats.LinksChecked
		d.stats.LinksEnqueued = d.frontier.Visited()
		enqueued := d.stats.LinksEnqueued
		d.mu.Unlock()

		if r.err != nil {
			d.logger.Debug("link processed with error", "url", r.link.Target, "error", r.err)
		}
		ev := Progress{
			Link:          r.link,
			LinksChecked:  checked,
			FrontierSize:  d.frontier.Len(),
			LinksEnqueued: enqueued,
			Err:           r.err,
		}
		// Results keep being drained after cancellation so that workers
		// never block on a reader that went away.
		select {
		case out <- ev:
		case <-ctx.Done():
			d.logger.Debug("progress event dropped after cancellation", "url", r.link.Target)
		}
	}
}

// reserve claims one dispatch against the link limit.
func (d *Driver) reserve() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.maxLinks > 0 && d.dispatched >= d.maxLinks {
		if !d.stats.LimitReached {
			d.stats.LimitReached = true
			d.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
			d.logger.Debug("link limit reached", "limit", d.maxLinks)
		}
		return false
	}
	d.dispatched++
	return true
}

func (d *Driver) limitReached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.LimitReached
}

func (d *Driver) markCancelled() {
	d.mu.Lock()
	d.stats.Cancelled = true
	d.mu.Unlock()
	d.state.CompareAndSwap(int32(StateRunning), int32(StateCancelled))
	d.state.CompareAndSwap(int32(StateDraining), int32(StateCancelled))
}

func (d *Driver) observeInFlight(n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.MaxInFlight = max(d.stats.MaxInFlight, int(n))
}
