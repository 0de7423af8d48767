package carver

import (
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
)

// maxCodeLen bounds the varints the matcher accepts as serial types. Four
// bytes cover TEXT and BLOB values up to 128 MiB.
const maxCodeLen = 4

// Match is a header found by a Matcher.
type Match struct {
	Mode  Mode
	Start int // first matched byte
	End   int // first byte after the matched header, where the body starts
	// Codes holds the full serial type list of the record, including
	// columns that were synthesized rather than read.
	Codes []uint64
	// HeaderLen is the on-disk size the complete header would have.
	HeaderLen int
}

// Matcher finds serial type sequences that fit a pattern in a byte range.
type Matcher struct {
	Pattern *Pattern
	Mode    Mode
	// FirstColumn is the serial type assumed for a missing first column.
	FirstColumn uint64
}

// Find searches data[from:to] for the first position at which the pattern
// matches in m.Mode. A failed attempt restarts one byte later.
func (m *Matcher) Find(data []byte, from, to int) (Match, bool) {
	idx := int(m.Mode)
	if idx >= len(m.Pattern.Constraints) {
		return Match{}, false
	}
	to = min(to, len(data))
	for start := max(from, 0); start < to; start++ {
		if match, ok := m.matchAt(data, start, to, idx); ok {
			return match, true
		}
	}
	return Match{}, false
}

func (m *Matcher) matchAt(data []byte, start, to, idx int) (Match, bool) {
	cs := m.Pattern.Constraints
	codes := make([]uint64, 0, len(cs)-idx)
	pos := start
	for i := idx; i < len(cs); i++ {
		if pos >= to {
			return Match{}, false
		}
		code, n := btree.GetVarint(data[pos:to])
		if n == 0 || n > maxCodeLen || !cs[i].Match(code) {
			return Match{}, false
		}
		codes = append(codes, code)
		pos += n
	}

	match := Match{Mode: m.Mode, Start: start, End: pos}
	switch m.Mode {
	case Normal:
		// The header length must describe exactly what was matched.
		if codes[0] != uint64(pos-start) {
			return Match{}, false
		}
		match.HeaderLen = int(codes[0])
		match.Codes = codes[1:]
	case ColumnsOnly:
		match.Codes = codes
		match.HeaderLen = headerLen(pos - start)
	case FirstColumnMissing:
		match.Codes = append([]uint64{m.FirstColumn}, codes...)
		match.HeaderLen = headerLen(pos - start + btree.VarintLen(m.FirstColumn))
	}

	if allZero(match.Codes) {
		return Match{}, false
	}
	return match, true
}

// headerLen returns the header length of a record whose serial types take
// n bytes.
func headerLen(n int) int {
	if n+1 <= 127 {
		return n + 1
	}
	return n + btree.VarintLen(uint64(n+2))
}

func allZero[T uint64 | byte](s []T) bool {
	for _, v := range s {
		if v != 0 {
			return false
		}
	}
	return true
}
