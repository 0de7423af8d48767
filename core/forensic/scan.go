package forensic

import (
	"fmt"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/carver"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/freelist"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/schema"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// scanner recovers the rows of one page image. Each task builds its own
// scanner, so nothing in it is shared between goroutines.
type scanner struct {
	job    *Job
	reader *record.Reader

	// claim lets the scanner assign an unowned page to the table its
	// records match. Log frames and freelist pages never claim.
	claim bool
	// tag is the record type of rows carved outside the unallocated area.
	tag record.RecordType
	// free marks rows read from live-looking cells as freelist entries.
	free bool
	// patterns overrides the job's carving patterns.
	patterns []*carver.Pattern
	// trunk marks a freelist trunk page, whose leaf array is not carved.
	trunk bool
	carve bool
}

func (j *Job) newScanner() *scanner {
	return &scanner{
		job:    j,
		reader: j.newReader(),
		claim:  true,
		tag:    record.DeletedInPage,
		carve:  j.opts.Carve,
	}
}

// scanSafely runs scanPage outside the worker pool. A panic is logged and
// counted as a task failure of phase, and the page yields no rows.
func (s *scanner) scanSafely(phase string, data []byte, pageNum uint32) (rows []*record.Row) {
	defer func() {
		if r := recover(); r != nil {
			logging.TaskFailed(phase, pageNum, fmt.Sprintf("panic: %v", r))
			s.job.metrics.RecordFailure(phase)
			s.job.inlineFailures++
			rows = nil
		}
	}()
	return s.scanPage(data, pageNum)
}

// scanPage decodes the live cells of a b-tree page and carves everything
// else. Pages that are not b-tree pages are carved whole.
func (s *scanner) scanPage(data []byte, pageNum uint32) []*record.Row {
	j := s.job
	bm := carver.NewBitmap(len(data))
	if pageNum == 1 {
		bm.Set(0, btree.FileHeaderSize)
	}
	if s.trunk {
		bm.Set(0, freelist.LeafArrayEnd(data))
	}
	if j.usable < len(data) {
		bm.Set(j.usable, len(data))
	}

	owner := j.assign.Owner(pageNum)
	unallocFrom, unallocTo := 0, 0
	var rows []*record.Row

	if h, err := btree.ParsePageHeader(data, pageNum); err == nil && !s.trunk {
		bm.Set(h.HeaderOffset, h.CellPointerEnd())
		unallocFrom, unallocTo = h.CellPointerEnd(), min(h.ContentStart(), len(data))

		// Cells on a database page no b-tree reaches are no longer live.
		orphan := s.claim && owner == btree.Unowned
		var layout record.Layout
		owner, layout = s.resolve(data, pageNum, h, owner)
		rows = s.readCells(data, pageNum, h, layout, bm)
		if orphan && !s.free {
			for _, row := range rows {
				row.Type = s.tag
			}
		}

		if !j.opts.CarveUnallocated && unallocTo > unallocFrom {
			bm.Set(unallocFrom, unallocTo)
		}
	}

	if !s.carve {
		return rows
	}
	before := bm.Count()
	c := carver.New(s.reader, s.carvePatterns(owner))
	tag := func(off int) record.RecordType {
		if off >= unallocFrom && off < unallocTo {
			return record.UnallocatedSpace
		}
		return s.tag
	}
	for _, res := range c.Carve(data, pageNum, bm, tag) {
		if s.free {
			res.Row.Type = record.FreelistEntry
		}
		rows = append(rows, res.Row)
	}
	j.metrics.RecordCarved(bm.Count() - before)
	return rows
}

// readCells decodes every cell the pointer array references and marks its
// bytes visited. A cell that cannot be decoded is skipped.
func (s *scanner) readCells(data []byte, pageNum uint32, h *btree.PageHeader, layout record.Layout, bm *carver.Bitmap) []*record.Row {
	var rows []*record.Row
	for _, ptr := range h.GetCellPointers(data) {
		off := int(ptr)
		if off < h.CellPointerEnd() || off >= len(data) {
			continue
		}

		start := off
		switch h.PageType {
		case btree.PageTypeInteriorTable:
			// Child pointer and integer key; no record.
			if off+4 < len(data) {
				_, n := btree.GetVarint(data[off+4:])
				bm.Set(off, off+4+n)
			}
			continue
		case btree.PageTypeInteriorIndex:
			start = off + 4
		}
		if start >= len(data) {
			continue
		}

		row, end, err := s.readCell(data, pageNum, start, layout)
		if err != nil {
			logging.Debug("cell dropped", "page", pageNum, "offset", off, "error", err)
			continue
		}
		bm.Set(off, end)
		if s.free {
			row.Type = record.FreelistEntry
		}
		rows = append(rows, row)
	}
	return rows
}

// readCell decodes one cell. A panic while decoding drops only that cell.
func (s *scanner) readCell(data []byte, pageNum uint32, off int, layout record.Layout) (row *record.Row, end int, err error) {
	defer func() {
		if r := recover(); r != nil {
			row, end = nil, 0
			err = errors.NewFormat("cell", "", fmt.Sprintf("page %d offset %d: %v", pageNum, off, r))
		}
	}()
	return s.reader.ReadCell(data, pageNum, off, layout)
}

// resolve returns the owner and cell layout of a b-tree page. A page no
// root reached is matched against the catalog by the storage classes of
// its first record.
func (s *scanner) resolve(data []byte, pageNum uint32, h *btree.PageHeader, owner int) (int, record.Layout) {
	j := s.job
	if d := j.catalog.Get(owner); d != nil && owner != j.unassignedID {
		return owner, d.Layout()
	}

	generic := record.UnassignedLayout
	if !h.IsTable {
		generic.HasRowID = false
		generic.Index = true
	}
	if h.PageType == btree.PageTypeInteriorTable {
		return btree.Unowned, generic
	}

	ptrs := h.GetCellPointers(data)
	if len(ptrs) == 0 {
		return btree.Unowned, generic
	}
	off := int(ptrs[0])
	if h.PageType == btree.PageTypeInteriorIndex {
		off += 4
	}
	first, _, err := s.readCell(data, pageNum, off, generic)
	if err != nil {
		return btree.Unowned, generic
	}
	id, ok := j.catalog.Match(first.Signature(), h.IsTable)
	if !ok {
		return btree.Unowned, generic
	}
	if s.claim {
		won, _ := j.assign.Claim(pageNum, id)
		if won >= 0 {
			id = won
		}
		logging.Debug("page matched", "page", pageNum, "table", j.catalog.Get(id).Name)
	}
	return id, j.catalog.Get(id).Layout()
}

// carvePatterns returns the carving patterns with the owner's first.
func (s *scanner) carvePatterns(owner int) []*carver.Pattern {
	if s.patterns != nil {
		return s.patterns
	}
	j := s.job
	p, ok := j.patternOf[owner]
	if !ok {
		return j.patterns
	}
	out := make([]*carver.Pattern, 0, len(j.patterns))
	out = append(out, p)
	for _, q := range j.patterns {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}

// inferColumns gives a table whose SQL could not be parsed columns taken
// from the first record of its left-most leaf.
func (j *Job) inferColumns(d *schema.Descriptor) {
	var leaf uint32
	btree.NewWalker(j.store).Traverse(d.RootPage, func(pageNum uint32, pageType byte) {
		if leaf == 0 && pageType == btree.PageTypeLeafTable {
			leaf = pageNum
		}
	})
	if leaf == 0 {
		return
	}
	data, err := j.store.ReadPage(leaf)
	if err != nil {
		logging.SkippedRead(leaf, err)
		return
	}
	h, err := btree.ParsePageHeader(data, leaf)
	if err != nil {
		return
	}
	ptrs := h.GetCellPointers(data)
	if len(ptrs) == 0 {
		return
	}
	layout := record.Layout{Table: d.Name, HasRowID: d.HasRowID(), RowIDColumn: -1, Index: !d.HasRowID()}
	row, _, err := j.newReader().ReadCell(data, leaf, int(ptrs[0]), layout)
	if err != nil {
		return
	}
	d.InferColumns(row.Signature())
}
