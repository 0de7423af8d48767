package btree

// Variable-length integer encoding/decoding (SQLite format)

// MaxVarintLen is the longest encoding of a varint.
const MaxVarintLen = 9

// PutVarint writes a 64-bit unsigned integer to p and returns the number of bytes written.
// The integer is encoded as a variable-length integer using SQLite's encoding:
// - Lower 7 bits of each byte are used for data
// - High bit (0x80) set on all bytes except the last
// - Most significant byte first (big-endian)
// - Maximum of 9 bytes (last byte uses all 8 bits)
func PutVarint(p []byte, v uint64) int {
	if v <= 0x7f {
		p[0] = byte(v & 0x7f)
		return 1
	}
	if v <= 0x3fff {
		p[0] = byte((v>>7)&0x7f) | 0x80
		p[1] = byte(v & 0x7f)
		return 2
	}
	return putVarint64(p, v)
}

// putVarint64 handles the general case of encoding a 64-bit varint
func putVarint64(p []byte, v uint64) int {
	if v&(uint64(0xff000000)<<32) != 0 {
		// 9-byte case: all 8 bits of the 9th byte are used
		p[8] = byte(v)
		v >>= 8
		for i := 7; i >= 0; i-- {
			p[i] = byte((v & 0x7f) | 0x80)
			v >>= 7
		}
		return 9
	}

	n := 1
	temp := v >> 7
	for temp > 0 {
		n++
		temp >>= 7
	}

	for i := n - 1; i >= 0; i-- {
		shift := uint(i * 7)
		b := byte((v >> shift) & 0x7f)
		if i > 0 {
			b |= 0x80
		}
		p[n-1-i] = b
	}
	return n
}

// AppendVarint appends the varint encoding of v to dst.
func AppendVarint(dst []byte, v uint64) []byte {
	var buf [MaxVarintLen]byte
	n := PutVarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// GetVarint reads a 64-bit variable-length integer from p and returns
// the value and the number of bytes read. It returns (0, 0) when p ends
// before the varint does.
//
// Bytes one through eight contribute their low seven bits. A ninth byte,
// if reached, contributes all eight bits.
func GetVarint(p []byte) (uint64, int) {
	if len(p) == 0 {
		return 0, 0
	}

	// Fast path for 1-byte case
	if p[0] < 0x80 {
		return uint64(p[0]), 1
	}

	// Fast path for 2-byte case
	if len(p) > 1 && p[1] < 0x80 {
		return (uint64(p[0]&0x7f) << 7) | uint64(p[1]), 2
	}

	var v uint64
	for i := 0; i < MaxVarintLen && i < len(p); i++ {
		if i == 8 {
			return (v << 8) | uint64(p[i]), 9
		}
		v = (v << 7) | uint64(p[i]&0x7f)
		if p[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}

// VarintLen returns the number of bytes required to encode v as a varint
func VarintLen(v uint64) int {
	if v <= 0x7f {
		return 1
	}
	if v <= 0x3fff {
		return 2
	}
	if v <= 0x1fffff {
		return 3
	}
	if v <= 0xfffffff {
		return 4
	}
	if v <= 0x7ffffffff {
		return 5
	}
	if v <= 0x3ffffffffff {
		return 6
	}
	if v <= 0x1ffffffffffff {
		return 7
	}
	if v <= 0xffffffffffffff {
		return 8
	}
	return 9
}
