package carver

import (
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// Tagger returns the record type of a row carved at a page offset.
type Tagger func(offset int) record.RecordType

// Tag returns a Tagger that always yields t.
func Tag(t record.RecordType) Tagger {
	return func(int) record.RecordType { return t }
}

// Result is one carved row and the pattern it matched.
type Result struct {
	Row   *record.Row
	Owner int
	Mode  Mode
}

// Carver recovers records from the unvisited bytes of pages. A Carver
// remembers the first-column types of records it carved in full and uses
// them when the first column is missing, so it must not be shared between
// goroutines.
type Carver struct {
	reader   *record.Reader
	patterns []*Pattern
	firstCol map[int]uint64
}

// New creates a carver that tries patterns in order.
func New(reader *record.Reader, patterns []*Pattern) *Carver {
	return &Carver{
		reader:   reader,
		patterns: patterns,
		firstCol: make(map[int]uint64),
	}
}

// Carve scans the gaps of bm in page until a full pass over all gaps,
// modes and patterns yields nothing. Gaps made only of zero bytes are
// marked visited without carving. Every carved record's bytes are marked
// visited, so carving the same page and bitmap again returns nothing.
func (c *Carver) Carve(page []byte, pageNum uint32, bm *Bitmap, tag Tagger) []Result {
	var out []Result
	for {
		found := false
		for _, g := range bm.Gaps(MinGap) {
			if allZero(page[g.Start:g.End]) {
				bm.Set(g.Start, g.End)
				continue
			}
			for _, mode := range Modes {
				for _, p := range c.patterns {
					rs := c.carveGap(page, pageNum, g, p, mode, bm, tag)
					if len(rs) > 0 {
						found = true
						out = append(out, rs...)
					}
				}
			}
		}
		if !found {
			return out
		}
	}
}

// carveGap applies one pattern in one mode across a gap.
func (c *Carver) carveGap(page []byte, pageNum uint32, g Gap, p *Pattern, mode Mode, bm *Bitmap, tag Tagger) []Result {
	if mode == FirstColumnMissing && p.Columns() < 2 {
		return nil
	}
	m := &Matcher{Pattern: p, Mode: mode, FirstColumn: c.firstColumn(p)}

	var out []Result
	pos := g.Start
	for pos < g.End {
		match, ok := m.Find(page, pos, g.End)
		if !ok {
			break
		}
		if bm.IsSet(match.Start) {
			pos = match.Start + 1
			continue
		}

		row, end, ok := c.decode(page, pageNum, match, p)
		if !ok || end > g.End || bm.AnySet(match.Start, end) {
			pos = match.Start + 1
			continue
		}

		bm.Set(match.Start, end)
		row.Type = tag(match.Start)
		c.noteFirstColumn(p, match)
		out = append(out, Result{Row: row, Owner: p.Owner, Mode: mode})
		pos = end
	}
	return out
}

func (c *Carver) decode(page []byte, pageNum uint32, match Match, p *Pattern) (*record.Row, int, bool) {
	types := make([]record.SerialType, len(match.Codes))
	for i, code := range match.Codes {
		types[i] = record.Classify(code)
	}
	row, end, err := c.reader.ReadBody(page, pageNum, match.End, match.HeaderLen, types, p.Layout())
	if err != nil {
		logging.Debug("carve candidate rejected", "page", pageNum, "offset", match.Start, "table", p.Desc.Name, "mode", match.Mode.String(), "error", err)
		return nil, 0, false
	}
	if row.Truncated {
		// Carved records whose overflow chain cannot be followed are dropped.
		return nil, 0, false
	}
	return row, end, true
}

// firstColumn returns the serial type assumed for a missing first column:
// the last one seen for the table, else NULL when the first column aliases
// the rowid, else a one-byte integer.
func (c *Carver) firstColumn(p *Pattern) uint64 {
	if code, ok := c.firstCol[p.Owner]; ok && code != 0 {
		return code
	}
	if p.Desc.IntegerPrimaryKey() {
		return record.SerialTypeNull
	}
	return record.SerialTypeInt8
}

func (c *Carver) noteFirstColumn(p *Pattern, match Match) {
	if match.Mode == FirstColumnMissing || len(match.Codes) == 0 {
		return
	}
	c.firstCol[p.Owner] = match.Codes[0]
}
