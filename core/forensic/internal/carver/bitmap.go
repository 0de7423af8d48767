package carver

import "math/bits"

// MinGap is the shortest unvisited run worth carving. Smaller runs cannot
// hold a record header and a body.
const MinGap = 11

// Bitmap marks the bytes of one page that are attributed to a record or
// known padding. Each recovery task owns its own bitmap.
type Bitmap struct {
	words []uint64
	n     int
}

// NewBitmap creates a bitmap for n bytes, none visited.
func NewBitmap(n int) *Bitmap {
	return &Bitmap{words: make([]uint64, (n+63)/64), n: n}
}

// Len returns the number of bytes covered.
func (b *Bitmap) Len() int {
	return b.n
}

// Set marks [from, to) visited. The range is clipped to the bitmap.
func (b *Bitmap) Set(from, to int) {
	from, to = max(from, 0), min(to, b.n)
	for i := from; i < to; i++ {
		b.words[i>>6] |= 1 << (uint(i) & 63)
	}
}

// IsSet reports whether byte i is visited. Bytes outside the bitmap count
// as visited.
func (b *Bitmap) IsSet(i int) bool {
	if i < 0 || i >= b.n {
		return true
	}
	return b.words[i>>6]&(1<<(uint(i)&63)) != 0
}

// AnySet reports whether any byte of [from, to) is visited.
func (b *Bitmap) AnySet(from, to int) bool {
	if from < 0 || to > b.n {
		return true
	}
	for i := from; i < to; i++ {
		if b.IsSet(i) {
			return true
		}
	}
	return false
}

// Count returns the number of visited bytes.
func (b *Bitmap) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Gap is an unvisited byte range [Start, End) of a page.
type Gap struct {
	Start int
	End   int
}

// Len returns the gap length.
func (g Gap) Len() int {
	return g.End - g.Start
}

// Gaps returns the maximal unvisited runs of at least minLen bytes in
// ascending order.
func (b *Bitmap) Gaps(minLen int) []Gap {
	var gaps []Gap
	start := -1
	for i := 0; i <= b.n; i++ {
		free := i < b.n && !b.IsSet(i)
		switch {
		case free && start < 0:
			start = i
		case !free && start >= 0:
			if i-start >= minLen {
				gaps = append(gaps, Gap{Start: start, End: i})
			}
			start = -1
		}
	}
	return gaps
}
