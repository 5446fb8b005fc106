package extract

// prefixCheckLen is how many leading bytes are validated before copying.
const prefixCheckLen = 8

// urlSafe marks the ASCII bytes allowed in a URL: the unreserved and
// reserved sets plus '%'.
var urlSafe = func() (t [128]bool) {
	const allowed = "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"0123456789" +
		"-._~" +
		":/?#[]@" +
		"!$&'()*+,;=" +
		"%"
	for i := 0; i < len(allowed); i++ {
		t[allowed[i]] = true
	}
	return t
}()

// hexValue maps an ASCII hex digit to its value and everything else to 0xff.
var hexValue = func() (t [256]byte) {
	for i := range t {
		t[i] = 0xff
	}
	for c := '0'; c <= '9'; c++ {
		t[c] = byte(c - '0')
	}
	for c := 'a'; c <= 'f'; c++ {
		t[c] = byte(c - 'a' + 10)
		t[c-'a'+'A'] = byte(c - 'a' + 10)
	}
	return t
}()

// DecodeURL validates src and copies it into dst, decoding %XX escapes.
// It returns the number of bytes written, or 0 when src was rejected.
//
// Only the first few bytes are validated: a non-ASCII or disallowed byte
// there rejects the candidate. Malformed escapes such as "%zz" or a "%2"
// at the end of src are copied literally. Output is capped at len(dst)-1
// bytes; the rest is truncated.
func DecodeURL(dst, src []byte) int {
	if len(src) == 0 || len(dst) < 2 {
		return 0
	}
	for _, c := range src[:min(len(src), prefixCheckLen)] {
		if c >= 0x80 || !urlSafe[c] {
			return 0
		}
	}

	limit := len(dst) - 1
	n := 0
	for i := 0; i < len(src) && n < limit; i++ {
		c := src[i]
		if c == '%' && i+2 < len(src) {
			hi, lo := hexValue[src[i+1]], hexValue[src[i+2]]
			if hi != 0xff && lo != 0xff {
				dst[n] = hi<<4 | lo
				n++
				i += 2
				continue
			}
		}
		dst[n] = c
		n++
	}
	return n
}
