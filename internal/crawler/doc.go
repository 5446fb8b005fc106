// Package crawler turns single-page href extraction into whole-site traversal.
//
// # Architecture
//
// The Driver runs a wave-based breadth-first crawl:
//
//	Frontier ──TakeWave──► dispatcher ──semaphore──► workers (LinkProcessor)
//	   ▲                                                  │
//	   └──────────── Enqueue (first writer wins) ◄────────┘
//	                         coordinator ──► Progress channel
//
// Each wave is the set of links pending when the previous wave finished.
// Workers run up to the configured concurrency; a single coordinator
// goroutine merges what they discover into the next wave and emits one
// Progress event per processed link.
//
// The Driver knows nothing about HTTP. Fetching, filtering and deciding
// what counts as broken belong to a LinkProcessor. HTTPProcessor is the
// production implementation; tests substitute their own.
//
// # Components
//
//   - Driver: wave loop, concurrency bound, cancellation, progress
//   - Frontier: pending queue plus visited set with insert-if-absent
//   - HTTPProcessor: jitter, rate limit, robots.txt, fetch, extract, filter
//   - Filter: same-host scope, ignore/follow glob patterns, excluded extensions
//   - Locator: DOM fallback that recovers anchor text and line numbers
//
// # Politeness
//
//   - randomized jitter before each request
//   - per-host token bucket rate limit
//   - robots.txt honored by default
//   - only same-host links are ever enqueued
//
// # Usage
//
//	d := crawler.NewDriver(crawler.WithConcurrency(4))
//	events, err := d.Crawl(ctx, model.NewStartLink("https://example.com/"), proc)
//	for ev := range events {
//	    fmt.Println(ev.LinksChecked, ev.Link.Target)
//	}
package crawler
