package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Default geometry of an Extractor.
const (
	DefaultBufferSize   = 32 * 1024
	DefaultMaxURLLength = 2048
	DefaultSlotCount    = 64
)

const (
	// MinMaxURLLength is the smallest accepted maximum URL length.
	MinMaxURLLength = 16

	// maxGap is how much whitespace may surround the '=' of a token.
	maxGap = 8

	// tokenSlack covers the bytes of a token other than its value:
	// "href", both gaps, '=' and the two quotes, rounded up.
	tokenSlack = 32
)

// Extractor extracts href values from HTML byte streams.
// An Extractor is immutable after New and safe for concurrent use; the
// mutable state of an extraction lives in a Scratch.
type Extractor struct {
	bufferSize    int
	maxURLLength  int
	slotCount     int
	partitionSize int
	parallelism   int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBufferSize sets how many bytes are read from the stream per iteration.
func WithBufferSize(n int) Option {
	return func(e *Extractor) { e.bufferSize = n }
}

// WithMaxURLLength sets the slot stride. Decoded URLs are truncated to n-1
// bytes, and quoted values longer than that are skipped. n must be between
// MinMaxURLLength and MaxQuoteLength+1.
func WithMaxURLLength(n int) Option {
	return func(e *Extractor) { e.maxURLLength = n }
}

// WithSlotCount sets how many URLs are staged before conversion to strings.
func WithSlotCount(n int) Option {
	return func(e *Extractor) { e.slotCount = n }
}

// New returns an Extractor configured by opts.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		bufferSize:    DefaultBufferSize,
		maxURLLength:  DefaultMaxURLLength,
		slotCount:     DefaultSlotCount,
		partitionSize: DefaultPartitionSize,
		parallelism:   defaultParallelism(),
	}
	for _, opt := range opts {
		opt(e)
	}

	switch {
	case e.bufferSize < 1:
		return nil, fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidOption, e.bufferSize)
	case e.maxURLLength < MinMaxURLLength || e.maxURLLength > MaxQuoteLength+1:
		return nil, fmt.Errorf("%w: max URL length must be between %d and %d, got %d",
			ErrInvalidOption, MinMaxURLLength, MaxQuoteLength+1, e.maxURLLength)
	case e.slotCount < 1:
		return nil, fmt.Errorf("%w: slot count must be positive, got %d", ErrInvalidOption, e.slotCount)
	case e.partitionSize < e.carrySize():
		return nil, fmt.Errorf("%w: partition size must be at least %d, got %d",
			ErrInvalidOption, e.carrySize(), e.partitionSize)
	case e.parallelism < 1:
		return nil, fmt.Errorf("%w: parallelism must be positive, got %d", ErrInvalidOption, e.parallelism)
	}
	return e, nil
}

// MaxURLLength returns the configured slot stride.
func (e *Extractor) MaxURLLength() int { return e.maxURLLength }

// carrySize is the longest byte range that can survive from one read to the
// next: a whole token with a maximum-length value.
func (e *Extractor) carrySize() int { return e.maxURLLength + tokenSlack }

func (e *Extractor) windowSize() int { return e.carrySize() + e.bufferSize }

// ExtractHrefs reads r to the end and returns every distinct href value in
// first-seen order. It uses a temporary Scratch.
func (e *Extractor) ExtractHrefs(ctx context.Context, r io.Reader) ([]string, error) {
	s := e.NewScratch()
	defer s.Release()
	return e.Extract(ctx, r, s)
}

// Extract is ExtractHrefs with a caller-owned Scratch.
//
// When reading fails, the values found so far are returned together with the
// error. Cancelling ctx stops the extraction before the next read.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, s *Scratch) ([]string, error) {
	if err := s.fits(e); err != nil {
		return nil, err
	}
	s.staging.count = 0

	var (
		out   []string
		seen  = make(map[string]struct{})
		carry int
	)
	flush := func() {
		start := len(out)
		out = s.staging.flush(out)
		out = dedupe(out, start, seen)
	}

	for {
		if err := ctx.Err(); err != nil {
			flush()
			return out, err
		}

		n, err := io.ReadFull(r, s.window[carry:carry+e.bufferSize])
		last := false
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		default:
			flush()
			return out, fmt.Errorf("failed to read stream: %w", err)
		}

		win := s.window[:carry+n]
		from := e.scanWindow(win, last, &s.staging, flush)
		if last {
			flush()
			return out, nil
		}
		carry = copy(s.window, win[from:])
	}
}

// dedupe removes values of out[start:] that were already seen.
func dedupe(out []string, start int, seen map[string]struct{}) []string {
	kept := out[:start]
	for _, v := range out[start:] {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		kept = append(kept, v)
	}
	return kept
}

// scanWindow stages every complete token in win and returns the offset from
// which bytes must be carried into the next window. With last set nothing
// is carried and the returned offset is len(win).
func (e *Extractor) scanWindow(win []byte, last bool, st *staging, flush func()) int {
	p := 0
	for {
		t := e.next(win, p, last)
		switch t.result {
		case tokenNone:
			if last {
				return len(win)
			}
			return len(win) - min(e.maxURLLength, len(win)-p)
		case tokenIncomplete:
			return t.href
		case tokenFound:
			if st.full() {
				flush()
			}
			st.commit(DecodeURL(st.next(), win[t.valueStart:t.valueEnd]))
		}
		p = t.next
	}
}

type tokenResult int

const (
	// tokenNone means no further "href" in the window.
	tokenNone tokenResult = iota
	// tokenFound means a complete quoted value was located.
	tokenFound
	// tokenSkipped means the "href" was a false positive.
	tokenSkipped
	// tokenIncomplete means the token may continue past the window end.
	tokenIncomplete
)

// token describes one step of the scan.
type token struct {
	result     tokenResult
	href       int // offset of "href"; valid unless result is tokenNone
	valueStart int
	valueEnd   int
	next       int // where the following search starts
}

// next locates the first token at or after p. Offsets are relative to win.
// Without last, a token that runs into the end of win is reported as
// incomplete instead of being skipped.
func (e *Extractor) next(win []byte, p int, last bool) token {
	rel := FindHref(win[p:])
	if rel < 0 {
		return token{result: tokenNone, href: -1}
	}
	h := p + rel
	skip := token{result: tokenSkipped, href: h, next: h + 4}
	incomplete := token{result: tokenIncomplete, href: h, next: h + 4}
	if last {
		incomplete = skip
	}

	i, ok := skipSpace(win, h+4)
	if !ok {
		return skip
	}
	if i == len(win) {
		return incomplete
	}
	if win[i] != '=' {
		return skip
	}
	if i, ok = skipSpace(win, i+1); !ok {
		return skip
	}
	if i == len(win) {
		return incomplete
	}
	if c := win[i]; c != '"' && c != '\'' {
		return skip
	}

	// The value may hold at most maxURLLength-1 bytes, so the closing quote
	// must appear within maxURLLength+1 bytes of the opening one.
	end := i + e.maxURLLength + 1
	if end > len(win) {
		qp := FindQuote(win[i:])
		if qp.Valid() && qp.Start() == 1 {
			return found(h, i, qp)
		}
		return incomplete
	}
	qp := FindQuote(win[i:end])
	if qp.Valid() && qp.Start() == 1 {
		return found(h, i, qp)
	}
	return skip
}

func found(h, open int, qp QuotePosition) token {
	start := open + qp.Start()
	return token{
		result:     tokenFound,
		href:       h,
		valueStart: start,
		valueEnd:   start + qp.Len(),
		next:       start + qp.Len() + 1,
	}
}

// skipSpace advances over at most maxGap whitespace bytes starting at i.
// ok is false when there are more.
func skipSpace(win []byte, i int) (int, bool) {
	for n := 0; i < len(win); i++ {
		switch win[i] {
		case ' ', '\t', '\n', '\r', '\f':
			n++
			if n > maxGap {
				return i, false
			}
		default:
			return i, true
		}
	}
	return i, true
}
