package extract

import "github.com/gobwas/pool/pbytes"

// staging is a fixed-stride slot buffer for decoded URLs awaiting
// conversion to strings.
type staging struct {
	slots   []byte
	lengths []int
	stride  int
	count   int
}

func (s *staging) full() bool { return s.count == len(s.lengths) }

// next returns the slot that the following decode writes into.
func (s *staging) next() []byte {
	off := s.count * s.stride
	return s.slots[off : off+s.stride]
}

func (s *staging) commit(n int) {
	s.lengths[s.count] = n
	s.count++
}

// flush materializes the staged slots into dst and empties the buffer.
func (s *staging) flush(dst []string) []string {
	dst = Materialize(dst, s.slots, s.lengths, s.count, s.stride)
	s.count = 0
	return dst
}

// Scratch holds the reusable buffers for one extraction at a time: the read
// window and the URL staging slots. It is not safe for concurrent use. Each
// crawl worker acquires its own Scratch and releases it when done.
type Scratch struct {
	window  []byte
	staging staging
}

// NewScratch allocates a Scratch sized for e from the shared byte pool.
func (e *Extractor) NewScratch() *Scratch {
	return &Scratch{
		window: pbytes.GetLen(e.windowSize()),
		staging: staging{
			slots:   pbytes.GetLen(e.slotCount * e.maxURLLength),
			lengths: make([]int, e.slotCount),
			stride:  e.maxURLLength,
		},
	}
}

// Release returns the buffers to the pool. The Scratch must not be used
// afterwards. Calling Release more than once is a no-op.
func (s *Scratch) Release() {
	if s == nil || s.window == nil {
		return
	}
	pbytes.Put(s.window)
	pbytes.Put(s.staging.slots)
	s.window = nil
	s.staging.slots = nil
	s.staging.lengths = nil
}

func (s *Scratch) fits(e *Extractor) error {
	if s.window == nil {
		return ErrScratchReleased
	}
	if len(s.window) < e.windowSize() ||
		s.staging.stride != e.maxURLLength ||
		len(s.staging.lengths) == 0 ||
		len(s.staging.slots) < len(s.staging.lengths)*s.staging.stride {
		return ErrScratchMismatch
	}
	return nil
}
