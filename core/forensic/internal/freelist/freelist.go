// Package freelist walks a database's list of unused pages.
//
// The freelist is a chain of trunk pages starting at the page number stored
// at offset 32 of the file header. Each trunk page holds:
//
//	Offset  Size  Description
//	0       4     Page number of the next trunk page, 0 for the last
//	4       4     Number of leaf page numbers that follow (L)
//	8       4*L   Leaf page numbers
//
// Leaf pages carry no structure; their bytes are whatever the page held
// before it was freed.
package freelist

import (
	"encoding/binary"

	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// TrunkHeaderSize is the size of the fixed part of a trunk page.
const TrunkHeaderSize = 8

// List is the result of a freelist walk.
type List struct {
	Trunks []uint32
	Leaves []uint32
	// Anomalies lists what stopped or shortened the walk, if anything.
	Anomalies []string
}

// Pages returns trunk and leaf pages together, trunks first. A page listed
// both as a trunk and as a leaf appears once, as a trunk.
func (l *List) Pages() []uint32 {
	out := make([]uint32, 0, len(l.Trunks)+len(l.Leaves))
	trunks := make(map[uint32]struct{}, len(l.Trunks))
	for _, t := range l.Trunks {
		trunks[t] = struct{}{}
		out = append(out, t)
	}
	for _, p := range l.Leaves {
		if _, ok := trunks[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// Walk follows the trunk chain from first. A trunk page seen twice means
// the list was tampered with or corrupted: the walk stops there and the
// pages gathered so far are returned. Walk never fails; unreadable or
// out-of-range pages end the walk with a logged warning.
func Walk(src btree.PageSource, first uint32, usableSize int) *List {
	l := &List{}
	limit := src.PageCount()
	maxLeaves := uint32(usableSize/4 - 2)
	seen := make(map[uint32]struct{})
	leafSeen := make(map[uint32]struct{})

	for trunk := first; trunk != 0; {
		if trunk > limit {
			l.anomaly("freelist_trunk_out_of_range", trunk)
			break
		}
		if _, ok := seen[trunk]; ok {
			l.anomaly("freelist_cycle", trunk)
			break
		}
		seen[trunk] = struct{}{}
		if _, ok := leafSeen[trunk]; ok {
			l.anomaly("freelist_trunk_is_leaf", trunk)
		}

		data, err := src.ReadPage(trunk)
		if err != nil || len(data) < TrunkHeaderSize {
			logging.SkippedRead(trunk, err)
			l.anomaly("freelist_trunk_unreadable", trunk)
			break
		}
		l.Trunks = append(l.Trunks, trunk)

		count := binary.BigEndian.Uint32(data[4:8])
		if count > maxLeaves {
			l.anomaly("freelist_leaf_count_too_large", trunk)
			count = maxLeaves
		}
		for i := uint32(0); i < count; i++ {
			off := TrunkHeaderSize + int(i)*4
			if off+4 > len(data) {
				break
			}
			leaf := binary.BigEndian.Uint32(data[off:])
			if leaf == 0 || leaf > limit {
				l.anomaly("freelist_leaf_out_of_range", trunk)
				continue
			}
			if _, dup := leafSeen[leaf]; dup {
				continue
			}
			if _, ok := seen[leaf]; ok {
				l.anomaly("freelist_trunk_is_leaf", leaf)
				continue
			}
			leafSeen[leaf] = struct{}{}
			l.Leaves = append(l.Leaves, leaf)
		}

		trunk = binary.BigEndian.Uint32(data[0:4])
	}
	return l
}

// LeafArrayEnd returns the offset just past the leaf array of a trunk
// page. Bytes after it are unused.
func LeafArrayEnd(trunk []byte) int {
	if len(trunk) < TrunkHeaderSize {
		return len(trunk)
	}
	count := int(binary.BigEndian.Uint32(trunk[4:8]))
	end := TrunkHeaderSize + 4*min(count, len(trunk)/4)
	return min(end, len(trunk))
}

func (l *List) anomaly(kind string, page uint32) {
	l.Anomalies = append(l.Anomalies, kind)
	logging.Anomaly(kind, page)
}
