package extract

import "math/bits"

// lowerBit folds ASCII upper case letters onto lower case.
const lowerBit = 0x20

// FindHref returns the offset of the first case-insensitive "href" in buf,
// or -1 when buf does not contain one. A miss is not an error: the caller
// should supply more input.
func FindHref(buf []byte) int {
	i := 0
	for ; i+LaneWidth <= len(buf); i += LaneWidth {
		m := hrefLaneMask(buf[i : i+LaneWidth])
		for m != 0 {
			j := i + bits.TrailingZeros32(m)
			m &= m - 1
			if isHref(buf, j) {
				return j
			}
		}
	}
	for ; i+4 <= len(buf); i++ {
		if isHref(buf, i) {
			return i
		}
	}
	return -1
}

func isHref(buf []byte, i int) bool {
	return i+4 <= len(buf) &&
		buf[i]|lowerBit == 'h' &&
		buf[i+1]|lowerBit == 'r' &&
		buf[i+2]|lowerBit == 'e' &&
		buf[i+3]|lowerBit == 'f'
}
