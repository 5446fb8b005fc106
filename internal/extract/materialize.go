package extract

import (
	"strings"
	"unicode/utf8"
)

// Materialize appends one string per staged slot to dst and returns it.
//
// slots holds count fixed-stride slots; lengths[i] is the number of bytes
// used in slot i. Slots whose length is zero or not smaller than stride were
// rejected earlier and are skipped. A multi-byte sequence cut short by
// truncation is dropped, and any other invalid UTF-8 is replaced with U+FFFD.
// count is clamped to what slots and lengths can actually hold.
func Materialize(dst []string, slots []byte, lengths []int, count, stride int) []string {
	if stride <= 0 || count <= 0 {
		return dst
	}
	count = min(count, len(lengths), len(slots)/stride)

	for i := 0; i < count; i++ {
		n := lengths[i]
		if n <= 0 || n >= stride {
			continue
		}
		b := trimPartialRune(slots[i*stride : i*stride+n])
		if len(b) == 0 {
			continue
		}
		s := string(b)
		if !utf8.ValidString(s) {
			s = strings.ToValidUTF8(s, string(utf8.RuneError))
		}
		dst = append(dst, s)
	}
	return dst
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i]
		}
		break
	}
	return b
}
