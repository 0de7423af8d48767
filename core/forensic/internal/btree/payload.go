package btree

// MaxLocal returns the largest payload stored entirely on a table leaf page.
func MaxLocal(usableSize int) int {
	return usableSize - 35
}

// MaxLocalIndex returns the largest payload stored entirely on an index
// page. WITHOUT ROWID tables are index b-trees and use it too.
func MaxLocalIndex(usableSize int) int {
	return (usableSize-12)*64/255 - 23
}

// MinLocal returns the minimum payload kept on page once a cell overflows.
func MinLocal(usableSize int) int {
	return ((usableSize-12)*32/255 - 23)
}

// LocalPayload returns how many bytes of a payload of length p stay inline on
// a page with usable size u. The remainder spills to overflow pages.
//
//	x = u-35
//	m = ((u-12)*32/255)-23
//	k = m + ((p-m) % (u-4))
//
// The result is p if p <= x, otherwise k if k <= x, otherwise m.
func LocalPayload(p, u int) int {
	return localPayload(p, u, MaxLocal(u))
}

// LocalIndexPayload is LocalPayload for index cells, with x replaced by
// MaxLocalIndex.
func LocalIndexPayload(p, u int) int {
	return localPayload(p, u, MaxLocalIndex(u))
}

func localPayload(p, u, x int) int {
	if p <= x {
		return p
	}
	m := MinLocal(u)
	k := m + (p-m)%(u-4)
	if k <= x {
		return k
	}
	return m
}

// OverflowPageCount returns the number of overflow pages a payload of length
// p needs on a page with usable size u.
func OverflowPageCount(p, u int) int {
	local := LocalPayload(p, u)
	if local >= p {
		return 0
	}
	per := u - 4
	return (p - local + per - 1) / per
}
