package extract

import "encoding/binary"

// LaneWidth is the number of bytes examined per bulk comparison step.
const LaneWidth = 32

const (
	wordSize = 8
	ones     = 0x0101010101010101
	low7     = 0x7f7f7f7f7f7f7f7f

	singleQuotes = ones * '\''
	doubleQuotes = ones * '"'
	lowerBits    = ones * lowerBit
	hBytes       = ones * 'h'

	// gatherMagic moves bit 7 of each byte into bit 56+k of the product.
	// The partial products never overlap, so no carries disturb the result.
	gatherMagic = 0x0002040810204081
)

// zeroBytes sets bit 7 of every byte of x that is zero and clears all
// other bits. Unlike the classic haszero expression it has no false
// positives, because the addition cannot carry across byte boundaries.
func zeroBytes(x uint64) uint64 {
	t := (x & low7) + low7
	return ^(t | x | low7)
}

// gather packs the per-byte high bits of m into one byte, byte k of the
// word becoming bit k.
func gather(m uint64) uint32 {
	return uint32((m * gatherMagic) >> 56)
}

// quoteLaneMask returns a bitmask with bit i set when lane[i] is ' or ".
// lane must be exactly LaneWidth bytes.
func quoteLaneMask(lane []byte) uint32 {
	_ = lane[LaneWidth-1]
	var mask uint32
	for w := 0; w < LaneWidth/wordSize; w++ {
		x := binary.LittleEndian.Uint64(lane[w*wordSize:])
		m := zeroBytes(x^singleQuotes) | zeroBytes(x^doubleQuotes)
		mask |= gather(m) << (w * wordSize)
	}
	return mask
}

// hrefLaneMask returns a bitmask with bit i set when lane[i] is h or H.
func hrefLaneMask(lane []byte) uint32 {
	_ = lane[LaneWidth-1]
	var mask uint32
	for w := 0; w < LaneWidth/wordSize; w++ {
		x := binary.LittleEndian.Uint64(lane[w*wordSize:]) | lowerBits
		mask |= gather(zeroBytes(x^hBytes)) << (w * wordSize)
	}
	return mask
}
