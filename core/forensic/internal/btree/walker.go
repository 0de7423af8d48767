package btree

import (
	"encoding/binary"
)

// PageSource is an interface for page access (file-backed store or in-memory fixture)
type PageSource interface {
	ReadPage(pageNum uint32) ([]byte, error)
	PageCount() uint32
}

// VisitFunc is called once for every leaf page reached by a traversal.
// Index interior pages are reported too, since their cells hold keys, but
// their children are not followed.
type VisitFunc func(pageNum uint32, pageType byte)

// Walker visits the pages of a b-tree starting from its root.
type Walker struct {
	src PageSource
}

// NewWalker creates a walker reading pages from src.
func NewWalker(src PageSource) *Walker {
	return &Walker{src: src}
}

// Traverse walks the b-tree rooted at root depth-first, children left to
// right followed by the right-most child. Page numbers outside 1..PageCount
// and unreadable pages are skipped silently. Each page is entered at most
// once per call, so cyclic child pointers terminate. It returns the number
// of pages entered.
func (w *Walker) Traverse(root uint32, visit VisitFunc) int {
	limit := w.src.PageCount()
	seen := make(map[uint32]struct{})
	stack := []uint32{root}
	entered := 0

	for len(stack) > 0 {
		pageNum := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if pageNum == 0 || pageNum > limit {
			continue
		}
		if _, ok := seen[pageNum]; ok {
			continue
		}
		seen[pageNum] = struct{}{}

		data, err := w.src.ReadPage(pageNum)
		if err != nil || data == nil {
			continue
		}
		entered++

		switch PageTypeOf(data, pageNum) {
		case PageTypeLeafTable:
			visit(pageNum, PageTypeLeafTable)
		case PageTypeLeafIndex:
			visit(pageNum, PageTypeLeafIndex)
		case PageTypeInteriorIndex:
			visit(pageNum, PageTypeInteriorIndex)
		case PageTypeInteriorTable:
			children := interiorChildren(data, pageNum)
			// Pushed in reverse so the left-most child is popped first.
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
	return entered
}

// interiorChildren returns the child page numbers of an interior table page,
// left to right, ending with the right-most child.
func interiorChildren(data []byte, pageNum uint32) []uint32 {
	h, err := ParsePageHeader(data, pageNum)
	if err != nil {
		return nil
	}
	ptrs := h.GetCellPointers(data)
	children := make([]uint32, 0, len(ptrs)+1)
	for _, ptr := range ptrs {
		off := int(ptr)
		if off+4 > len(data) {
			continue
		}
		children = append(children, binary.BigEndian.Uint32(data[off:]))
	}
	if h.RightChild != 0 {
		children = append(children, h.RightChild)
	}
	return children
}
