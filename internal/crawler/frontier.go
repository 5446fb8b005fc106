package crawler

import (
	"sync"

	"github.com/nao1215/linkprobe/internal/model"
)

// Frontier holds the links waiting for the next wave and the set of every
// URL ever enqueued. A URL is marked visited when it is enqueued, not when
// it is fetched, so the same URL is never in flight twice.
type Frontier struct {
	mu      sync.Mutex
	pending []model.Link
	visited map[string]struct{}
}

// NewFrontier returns an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{visited: make(map[string]struct{})}
}

// Enqueue adds l unless its target was seen before. It reports whether l
// was added. The first caller for a given URL wins.
func (f *Frontier) Enqueue(l model.Link) bool {
	key := NormalizeURL(l.Target)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.visited[key]; seen {
		return false
	}
	f.visited[key] = struct{}{}
	f.pending = append(f.pending, l)
	return true
}

// TakeWave removes and returns every pending link.
func (f *Frontier) TakeWave() []model.Link {
	f.mu.Lock()
	defer f.mu.Unlock()
	wave := f.pending
	f.pending = nil
	return wave
}

// Len returns the number of pending links.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Visited returns the number of distinct URLs ever enqueued.
func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Seen reports whether target was ever enqueued.
func (f *Frontier) Seen(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[NormalizeURL(target)]
	return ok
}

// Reset empties the queue and the visited set.
func (f *Frontier) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	f.visited = make(map[string]struct{})
}
