package btree

import (
	"encoding/binary"
	"fmt"
)

// Page type constants (first byte of page header)
const (
	PageTypeFree          = 0x00 // Overflow, freelist, or zeroed page
	PageTypeInteriorIndex = 0x02 // Interior index b-tree page
	PageTypeInteriorTable = 0x05 // Interior table b-tree page
	PageTypeLeafIndex     = 0x0a // Leaf index b-tree page
	PageTypeLeafTable     = 0x0d // Leaf table b-tree page
)

// Page header offsets
const (
	PageHeaderOffsetType       = 0 // Page type (1 byte)
	PageHeaderOffsetFreeblock  = 1 // First freeblock offset (2 bytes)
	PageHeaderOffsetNumCells   = 3 // Number of cells (2 bytes)
	PageHeaderOffsetCellStart  = 5 // Start of cell content area (2 bytes)
	PageHeaderOffsetFragmented = 7 // Fragmented free bytes (1 byte)
	PageHeaderOffsetRightChild = 8 // Right-most child pointer (4 bytes, interior only)
)

// Header sizes
const (
	PageHeaderSizeLeaf     = 8   // Leaf pages: 8 bytes
	PageHeaderSizeInterior = 12  // Interior pages: 12 bytes (includes right child pointer)
	FileHeaderSize         = 100 // Database file header on page 1
)

// PageHeader represents the parsed header of a B-tree page
type PageHeader struct {
	PageType         byte   // Page type (0x02, 0x05, 0x0a, 0x0d)
	FirstFreeblock   uint16 // Offset to first freeblock (0 if none)
	NumCells         uint16 // Number of cells on this page
	CellContentStart uint16 // Start of cell content area
	FragmentedBytes  byte   // Number of fragmented free bytes
	RightChild       uint32 // Right-most child page number (interior pages only)

	IsLeaf        bool
	IsTable       bool
	HeaderOffset  int // 100 on page 1, 0 elsewhere
	HeaderSize    int // 8 or 12
	CellPtrOffset int // Offset where cell pointer array starts
}

// HeaderOffset returns where the b-tree header begins on the given page.
func HeaderOffset(pageNum uint32) int {
	if pageNum == 1 {
		return FileHeaderSize
	}
	return 0
}

// PageTypeOf returns the type byte of a page, or PageTypeFree if the page
// is too short to carry one.
func PageTypeOf(data []byte, pageNum uint32) byte {
	off := HeaderOffset(pageNum)
	if off >= len(data) {
		return PageTypeFree
	}
	return data[off]
}

// IsBtreePage reports whether t is one of the four b-tree page types.
func IsBtreePage(t byte) bool {
	switch t {
	case PageTypeInteriorIndex, PageTypeInteriorTable, PageTypeLeafIndex, PageTypeLeafTable:
		return true
	}
	return false
}

// ParsePageHeader parses the B-tree page header from raw page data
func ParsePageHeader(data []byte, pageNum uint32) (*PageHeader, error) {
	offset := HeaderOffset(pageNum)
	if len(data) < offset+PageHeaderSizeLeaf {
		return nil, fmt.Errorf("page %d data too small: %d bytes", pageNum, len(data))
	}

	h := &PageHeader{
		PageType:         data[offset+PageHeaderOffsetType],
		FirstFreeblock:   binary.BigEndian.Uint16(data[offset+PageHeaderOffsetFreeblock:]),
		NumCells:         binary.BigEndian.Uint16(data[offset+PageHeaderOffsetNumCells:]),
		CellContentStart: binary.BigEndian.Uint16(data[offset+PageHeaderOffsetCellStart:]),
		FragmentedBytes:  data[offset+PageHeaderOffsetFragmented],
		HeaderOffset:     offset,
	}

	if !IsBtreePage(h.PageType) {
		return nil, fmt.Errorf("invalid page type: 0x%02x", h.PageType)
	}

	h.IsLeaf = h.PageType == PageTypeLeafTable || h.PageType == PageTypeLeafIndex
	h.IsTable = h.PageType == PageTypeLeafTable || h.PageType == PageTypeInteriorTable

	if !h.IsLeaf {
		if len(data) < offset+PageHeaderSizeInterior {
			return nil, fmt.Errorf("interior page data too small: %d bytes", len(data))
		}
		h.RightChild = binary.BigEndian.Uint32(data[offset+PageHeaderOffsetRightChild:])
		h.HeaderSize = PageHeaderSizeInterior
	} else {
		h.HeaderSize = PageHeaderSizeLeaf
	}

	h.CellPtrOffset = offset + h.HeaderSize
	return h, nil
}

// GetCellPointer returns the offset of the i-th cell in the page
func (h *PageHeader) GetCellPointer(data []byte, cellIndex int) (uint16, error) {
	if cellIndex < 0 || cellIndex >= int(h.NumCells) {
		return 0, fmt.Errorf("cell index out of range: %d (max %d)", cellIndex, int(h.NumCells)-1)
	}

	ptrOffset := h.CellPtrOffset + (cellIndex * 2)
	if ptrOffset+2 > len(data) {
		return 0, fmt.Errorf("cell pointer offset out of bounds: %d", ptrOffset)
	}

	return binary.BigEndian.Uint16(data[ptrOffset:]), nil
}

// GetCellPointers returns the cell pointers that fit in the page. A cell
// count that runs past the end of the page is clipped rather than rejected.
func (h *PageHeader) GetCellPointers(data []byte) []uint16 {
	pointers := make([]uint16, 0, h.NumCells)
	for i := 0; i < int(h.NumCells); i++ {
		ptr, err := h.GetCellPointer(data, i)
		if err != nil {
			break
		}
		pointers = append(pointers, ptr)
	}
	return pointers
}

// CellPointerEnd returns the first byte after the cell pointer array.
func (h *PageHeader) CellPointerEnd() int {
	return h.CellPtrOffset + 2*int(h.NumCells)
}

// ContentStart returns the start of the cell content area. A stored value
// of zero means 65536.
func (h *PageHeader) ContentStart() int {
	if h.CellContentStart == 0 {
		return 65536
	}
	return int(h.CellContentStart)
}

// String returns a string representation of the page header
func (h *PageHeader) String() string {
	return fmt.Sprintf("PageHeader{type=0x%02x, cells=%d, contentStart=%d, rightChild=%d}",
		h.PageType, h.NumCells, h.CellContentStart, h.RightChild)
}
