package btree

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"strings"
	"testing"

	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

const testPageSize = 512

// memPages is an in-memory PageSource.
type memPages map[uint32][]byte

func (m memPages) ReadPage(n uint32) ([]byte, error) {
	return m[n], nil
}

func (m memPages) PageCount() uint32 {
	var max uint32
	for n := range m {
		if n > max {
			max = n
		}
	}
	return max
}

func leafPage(pageType byte) []byte {
	p := make([]byte, testPageSize)
	p[0] = pageType
	return p
}

// interiorPage builds an interior table page whose cells point at children.
func interiorPage(children []uint32, right uint32) []byte {
	p := make([]byte, testPageSize)
	p[0] = PageTypeInteriorTable
	binary.BigEndian.PutUint16(p[3:], uint16(len(children)))
	binary.BigEndian.PutUint32(p[8:], right)
	cellOff := testPageSize
	for i, child := range children {
		cellOff -= 8
		binary.BigEndian.PutUint32(p[cellOff:], child)
		p[cellOff+4] = byte(i + 1) // rowid key varint
		binary.BigEndian.PutUint16(p[12+2*i:], uint16(cellOff))
	}
	binary.BigEndian.PutUint16(p[5:], uint16(cellOff))
	return p
}

func captureWarnings(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := logging.GetLogger()
	logging.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { logging.SetLogger(old) })
	return &buf
}

func TestTraverseVisitsLeavesInOrder(t *testing.T) {
	pages := memPages{
		1: leafPage(PageTypeLeafTable),
		2: interiorPage([]uint32{3, 4}, 5),
		3: leafPage(PageTypeLeafTable),
		4: interiorPage([]uint32{6}, 7),
		5: leafPage(PageTypeLeafTable),
		6: leafPage(PageTypeLeafTable),
		7: leafPage(PageTypeLeafTable),
	}
	// page 1 carries the file header before its b-tree header
	pages[1] = make([]byte, testPageSize)
	pages[1][FileHeaderSize] = PageTypeLeafTable

	w := NewWalker(pages)
	var got []uint32
	entered := w.Traverse(2, func(n uint32, _ byte) { got = append(got, n) })

	want := []uint32{3, 6, 7, 5}
	if len(got) != len(want) {
		t.Fatalf("visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visited %v, want %v", got, want)
		}
	}
	if entered != 6 {
		t.Errorf("entered = %d, want 6", entered)
	}

	var root1 []uint32
	w.Traverse(1, func(n uint32, _ byte) { root1 = append(root1, n) })
	if len(root1) != 1 || root1[0] != 1 {
		t.Errorf("page 1 traversal = %v, want [1]", root1)
	}
}

func TestTraverseSkipsOutOfRangeAndCycles(t *testing.T) {
	pages := memPages{
		2: interiorPage([]uint32{0, 99, 3}, 2), // self-cycle through the right child
		3: interiorPage([]uint32{2}, 4),        // back edge to the root
		4: leafPage(PageTypeLeafIndex),
	}
	w := NewWalker(pages)
	var got []uint32
	w.Traverse(2, func(n uint32, typ byte) {
		if typ != PageTypeLeafIndex {
			t.Errorf("page %d reported type 0x%02x", n, typ)
		}
		got = append(got, n)
	})
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("visited %v, want [4]", got)
	}
}

func TestTraverseReportsIndexInteriorWithoutDescending(t *testing.T) {
	idx := make([]byte, testPageSize)
	idx[0] = PageTypeInteriorIndex
	binary.BigEndian.PutUint32(idx[8:], 3)
	pages := memPages{2: idx, 3: leafPage(PageTypeLeafIndex)}

	var got []uint32
	NewWalker(pages).Traverse(2, func(n uint32, _ byte) { got = append(got, n) })
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("visited %v, want [2]", got)
	}
}

func TestTwoRootsShareOneLeaf(t *testing.T) {
	logs := captureWarnings(t)

	pages := memPages{
		2: interiorPage([]uint32{3}, 4),
		5: interiorPage([]uint32{4}, 6), // corrupted: also points at page 4
		3: leafPage(PageTypeLeafTable),
		4: leafPage(PageTypeLeafTable),
		6: leafPage(PageTypeLeafTable),
	}
	w := NewWalker(pages)
	assign := NewAssignments(pages.PageCount())

	claims := 0
	for owner, root := range []uint32{2, 5} {
		w.Traverse(root, func(n uint32, _ byte) {
			claims++
			assign.Claim(n, owner)
		})
	}

	if claims != 4 {
		t.Errorf("leaf callbacks = %d, want 4", claims)
	}
	if got := assign.Owner(4); got != 0 {
		t.Errorf("Owner(4) = %d, want first root's owner 0", got)
	}
	if got := assign.Owner(6); got != 1 {
		t.Errorf("Owner(6) = %d, want 1", got)
	}
	if got := assign.Conflicts(); got != 1 {
		t.Errorf("Conflicts() = %d, want 1", got)
	}
	if n := strings.Count(logs.String(), "page_claimed_twice"); n != 1 {
		t.Errorf("logged %d double-claim warnings, want 1: %s", n, logs.String())
	}
}

func TestAssignmentsClaim(t *testing.T) {
	a := NewAssignments(3)
	if a.Pages() != 3 {
		t.Errorf("Pages() = %d", a.Pages())
	}
	if got := a.Owner(2); got != Unowned {
		t.Errorf("Owner() of fresh page = %d", got)
	}
	if _, ok := a.Claim(0, 1); ok {
		t.Error("page 0 must not be claimable")
	}
	if _, ok := a.Claim(4, 1); ok {
		t.Error("page beyond count must not be claimable")
	}
	if owner, ok := a.Claim(2, 7); !ok || owner != 7 {
		t.Errorf("Claim() = (%d, %v)", owner, ok)
	}
	if owner, ok := a.Claim(2, 7); !ok || owner != 7 {
		t.Errorf("repeat Claim() by same owner = (%d, %v)", owner, ok)
	}
	if a.Conflicts() != 0 {
		t.Error("same-owner reclaim is not a conflict")
	}
}
