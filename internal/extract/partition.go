package extract

import (
	"bytes"
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultPartitionSize is the span each worker scans in ExtractBytes.
const DefaultPartitionSize = 256 * 1024

// WithPartitionSize sets the span each worker scans in ExtractBytes.
// It must be at least the longest possible token.
func WithPartitionSize(n int) Option {
	return func(e *Extractor) { e.partitionSize = n }
}

// WithParallelism bounds the number of partitions scanned at once.
func WithParallelism(n int) Option {
	return func(e *Extractor) { e.parallelism = n }
}

func defaultParallelism() int { return runtime.GOMAXPROCS(0) }

// partition is the scan of doc[start:limit]. Tokens are attributed to the
// partition in which their "href" begins; the scan may read up to one
// token length past limit to complete the last of them.
type partition struct {
	start int
	limit int
	steps []partStep
}

// partStep is one token visited by the scan.
type partStep struct {
	next int    // search position after this step
	url  string // empty when the token was skipped or rejected
}

// final returns the search position after the last step.
func (p *partition) final() int {
	if len(p.steps) == 0 {
		return p.start
	}
	return p.steps[len(p.steps)-1].next
}

// after reports the index of the first step taken from search position pos,
// if the scan passed through pos.
func (p *partition) after(pos int) (int, bool) {
	if pos == p.start {
		return 0, true
	}
	i := sort.Search(len(p.steps), func(i int) bool { return p.steps[i].next >= pos })
	if i < len(p.steps) && p.steps[i].next == pos {
		return i + 1, true
	}
	return 0, false
}

// ExtractBytes returns the distinct href values of an in-memory document in
// first-seen order, the same result ExtractHrefs gives for the same bytes.
//
// Documents larger than the partition size are split into partitions
// scanned concurrently. The scan state is a single search position, so the
// partitions are stitched together by replaying the sequential scan only
// where a token crosses a partition start, until it meets a position the
// partition's own scan also reached.
func (e *Extractor) ExtractBytes(ctx context.Context, doc []byte) ([]string, error) {
	if len(doc) <= e.partitionSize || e.parallelism == 1 {
		return e.ExtractHrefs(ctx, bytes.NewReader(doc))
	}

	parts := make([]partition, (len(doc)+e.partitionSize-1)/e.partitionSize)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for k := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := k * e.partitionSize
			parts[k] = e.scanPartition(doc, start, min(len(doc), start+e.partitionSize))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return e.merge(doc, parts), nil
}

func (e *Extractor) view(doc []byte, limit int) ([]byte, bool) {
	end := min(len(doc), limit+e.carrySize())
	return doc[:end], end == len(doc)
}

func (e *Extractor) scanPartition(doc []byte, start, limit int) partition {
	view, last := e.view(doc, limit)
	slot := make([]byte, e.maxURLLength)
	part := partition{start: start, limit: limit}

	for p := start; ; {
		t := e.next(view, p, last)
		if t.result == tokenNone || t.href >= limit {
			return part
		}
		step := partStep{next: t.next}
		if t.result == tokenFound {
			step.url = decodeString(slot, view[t.valueStart:t.valueEnd])
		}
		part.steps = append(part.steps, step)
		p = t.next
	}
}

func (e *Extractor) merge(doc []byte, parts []partition) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
		slot = make([]byte, e.maxURLLength)
	)
	emit := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	cursor := 0
	for k := range parts {
		part := &parts[k]
		from := 0
		if cursor > part.start {
			var synced bool
			cursor, from, synced = e.resync(doc, cursor, part, slot, emit)
			if !synced {
				continue
			}
		}
		for _, step := range part.steps[from:] {
			emit(step.url)
		}
		cursor = part.final()
	}
	return out
}

// resync continues the sequential scan from pos inside part until it reaches
// a search position that part's own scan passed through. It returns the
// position, the index of the next step of part to use, and whether the two
// scans met before the partition ended.
func (e *Extractor) resync(doc []byte, pos int, part *partition, slot []byte, emit func(string)) (int, int, bool) {
	view, last := e.view(doc, part.limit)
	for {
		if i, ok := part.after(pos); ok {
			return pos, i, true
		}
		if pos >= len(view) {
			return pos, 0, false
		}
		t := e.next(view, pos, last)
		if t.result == tokenNone || t.href >= part.limit {
			return pos, 0, false
		}
		if t.result == tokenFound {
			emit(decodeString(slot, view[t.valueStart:t.valueEnd]))
		}
		pos = t.next
	}
}

func decodeString(slot, value []byte) string {
	n := DecodeURL(slot, value)
	out := Materialize(nil, slot, []int{n}, 1, len(slot))
	if len(out) == 0 {
		return ""
	}
	return out[0]
}
