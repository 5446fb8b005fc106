package extract

import "math/bits"

// Field widths of a packed QuotePosition.
const (
	QuoteStartBits  = 20
	QuoteLengthBits = 11

	quoteStartMask  = 1<<QuoteStartBits - 1
	quoteLengthMask = 1<<QuoteLengthBits - 1
	quoteValidBit   = 1 << (QuoteStartBits + QuoteLengthBits)
)

// MaxQuoteStart and MaxQuoteLength are the largest values a QuotePosition
// can carry. Larger values are truncated to their low bits.
const (
	MaxQuoteStart  = quoteStartMask
	MaxQuoteLength = quoteLengthMask
)

// QuotePosition is the result of a quote match packed into one word:
// the offset of the first content byte, the content length, and a valid flag.
// The zero value is invalid. Start and Len are meaningless when Valid is false.
type QuotePosition uint32

// NewQuotePosition returns a valid position. start and length are masked to
// their field widths; out-of-range values are not preserved.
func NewQuotePosition(start, length int) QuotePosition {
	return QuotePosition(uint32(start)&quoteStartMask |
		(uint32(length)&quoteLengthMask)<<QuoteStartBits |
		quoteValidBit)
}

// Valid reports whether a matching pair of quotes was found.
func (q QuotePosition) Valid() bool { return q&quoteValidBit != 0 }

// Start returns the offset of the first byte after the opening quote.
func (q QuotePosition) Start() int { return int(q & quoteStartMask) }

// Len returns the number of bytes between the quotes.
func (q QuotePosition) Len() int { return int(q>>QuoteStartBits) & quoteLengthMask }

// quoteState remembers which quote characters already failed to close.
// Once an opener of a given kind has no closer, no later opener of that kind
// can have one either.
type quoteState struct {
	failedSingle bool
	failedDouble bool
}

func (s *quoteState) failed(c byte) bool {
	if c == '\'' {
		return s.failedSingle
	}
	return s.failedDouble
}

func (s *quoteState) fail(c byte) {
	if c == '\'' {
		s.failedSingle = true
	} else {
		s.failedDouble = true
	}
}

func (s *quoteState) exhausted() bool { return s.failedSingle && s.failedDouble }

// FindQuote finds the first quote character in buf that has a matching
// closing quote of the same kind. A quote immediately preceded by a
// backslash does not close the run. The first valid pair in buffer order wins.
func FindQuote(buf []byte) QuotePosition {
	var st quoteState
	i := 0
	for ; i+LaneWidth <= len(buf); i += LaneWidth {
		m := quoteLaneMask(buf[i : i+LaneWidth])
		for m != 0 {
			open := i + bits.TrailingZeros32(m)
			m &= m - 1
			if qp, done := resolveQuote(buf, open, &st); done {
				return qp
			}
		}
	}
	for ; i < len(buf); i++ {
		if c := buf[i]; c != '\'' && c != '"' {
			continue
		}
		if qp, done := resolveQuote(buf, i, &st); done {
			return qp
		}
	}
	return 0
}

// resolveQuote tries buf[open] as an opening quote. done is true when a pair
// was found or when neither quote kind can close anymore.
func resolveQuote(buf []byte, open int, st *quoteState) (QuotePosition, bool) {
	c := buf[open]
	if st.failed(c) {
		return 0, false
	}
	if end := closingQuote(buf, open); end >= 0 {
		return NewQuotePosition(open+1, end-open-1), true
	}
	st.fail(c)
	return 0, st.exhausted()
}

func closingQuote(buf []byte, open int) int {
	c := buf[open]
	for j := open + 1; j < len(buf); j++ {
		if buf[j] == c && buf[j-1] != '\\' {
			return j
		}
	}
	return -1
}
