package record

import (
	"encoding/binary"

	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
)

// Layout describes the table a cell belongs to.
type Layout struct {
	Table       string
	HasRowID    bool // a rowid varint precedes the record
	RowIDColumn int  // column aliasing the rowid (INTEGER PRIMARY KEY), or -1
	// Index selects the index b-tree payload split, used by indexes and
	// WITHOUT ROWID tables.
	Index bool
}

// UnassignedLayout is used for table-leaf cells of unknown ownership.
var UnassignedLayout = Layout{Table: UnassignedTable, HasRowID: true, RowIDColumn: -1}

// Reader decodes cells and follows their overflow chains. A Reader is
// not shared between goroutines; the PageSource underneath may be.
type Reader struct {
	src      btree.PageSource
	usable   int
	encoding uint32
	base     func(pageNum uint32) int64
}

// NewReader creates a reader for pages of the given usable size.
func NewReader(src btree.PageSource, pageSize, usableSize int, encoding uint32) *Reader {
	return &Reader{
		src:      src,
		usable:   usableSize,
		encoding: encoding,
		base: func(pageNum uint32) int64 {
			return int64(pageNum-1) * int64(pageSize)
		},
	}
}

// WithBase returns a copy of r that computes absolute offsets with base.
// Log readers use it because their page images are not at (n-1)*pageSize.
func (r *Reader) WithBase(base func(pageNum uint32) int64) *Reader {
	c := *r
	c.base = base
	return &c
}

// UsableSize returns the usable page size.
func (r *Reader) UsableSize() int {
	return r.usable
}

// Encoding returns the text encoding used for TEXT values.
func (r *Reader) Encoding() uint32 {
	return r.encoding
}

// ReadCell decodes the cell at offset within page. When the payload
// overflows, the chain is followed and concatenated before columns are
// decoded. A header that cannot be decoded yields a BufferUnderflowError;
// columns that run past the available bytes are truncated and the row is
// flagged instead.
func (r *Reader) ReadCell(page []byte, pageNum uint32, offset int, layout Layout) (*Row, int, error) {
	if offset < 0 || offset >= len(page) {
		return nil, 0, underflow("cell offset", offset+1, len(page))
	}
	pos := offset

	payloadLen, n := getVarint(page[pos:])
	if n == 0 {
		return nil, 0, underflow("payload length", pos+1, len(page))
	}
	pos += n

	row := &Row{Table: layout.Table, Type: Regular, Page: pageNum, Offset: r.base(pageNum) + int64(offset)}
	if layout.HasRowID {
		rowid, m := getVarint(page[pos:])
		if m == 0 {
			return nil, 0, underflow("rowid", pos+1, len(page))
		}
		row.RowID = int64(rowid)
		row.HasRowID = true
		pos += m
	}

	if payloadLen > uint64(1<<31) {
		return nil, 0, underflow("payload", int(min(payloadLen, 1<<31)), len(page)-pos)
	}
	payload, end, complete := r.assemble(page, pos, int(payloadLen), layout.Index)

	types, hl, err := ParseHeader(payload)
	if err != nil {
		return nil, 0, err
	}
	row.Values, row.Truncated = r.decodeColumns(types, payload[hl:])
	row.Truncated = row.Truncated || !complete
	applyRowIDAlias(row, layout)
	return row, end, nil
}

// ReadBody decodes a record whose header was reconstructed rather than
// read: types are the serial types and bodyStart is where the first
// column's bytes begin in page. headerLen is the size the header would
// have on disk, used to locate the overflow pointer. Unlike ReadCell, a
// body that does not fit is rejected, since a carved match that overruns
// the page is almost always a false positive.
func (r *Reader) ReadBody(page []byte, pageNum uint32, bodyStart, headerLen int, types []SerialType, layout Layout) (*Row, int, error) {
	bodyLen := BodyLen(types)
	payloadLen := headerLen + bodyLen
	local := r.localPayload(payloadLen, layout.Index)

	row := &Row{Table: layout.Table, Page: pageNum, Offset: r.base(pageNum) + int64(bodyStart-headerLen)}

	var body []byte
	end := bodyStart + bodyLen
	if local >= payloadLen {
		if end > len(page) {
			return nil, 0, underflow("carved body", bodyLen, len(page)-bodyStart)
		}
		body = page[bodyStart:end]
	} else {
		inline := local - headerLen
		if inline < 0 || bodyStart+inline+4 > len(page) {
			return nil, 0, underflow("carved body", inline+4, len(page)-bodyStart)
		}
		body = make([]byte, 0, r.chainCap(bodyLen, inline))
		body = append(body, page[bodyStart:bodyStart+inline]...)
		end = bodyStart + inline + 4
		next := binary.BigEndian.Uint32(page[bodyStart+inline:])
		if next > 0 && next <= r.src.PageCount() {
			body = r.followChain(body, next, bodyLen-inline)
		}
		if len(body) < bodyLen {
			row.Truncated = true
		}
	}

	var truncated bool
	row.Values, truncated = r.decodeColumns(types, body)
	row.Truncated = row.Truncated || truncated
	applyRowIDAlias(row, layout)
	return row, end, nil
}

// assemble returns the payload of a cell whose inline bytes start at pos,
// the offset just past the cell in page, and whether every payload byte was
// found.
func (r *Reader) assemble(page []byte, pos, payloadLen int, index bool) ([]byte, int, bool) {
	local := r.localPayload(payloadLen, index)
	if local >= payloadLen {
		end := pos + payloadLen
		if end > len(page) {
			return page[pos:], len(page), false
		}
		return page[pos:end], end, true
	}

	if pos+local+4 > len(page) {
		return page[pos:min(pos+local, len(page))], len(page), false
	}
	payload := make([]byte, 0, r.chainCap(payloadLen, local))
	payload = append(payload, page[pos:pos+local]...)
	next := binary.BigEndian.Uint32(page[pos+local:])
	payload = r.followChain(payload, next, payloadLen-local)
	return payload, pos + local + 4, len(payload) == payloadLen
}

func (r *Reader) localPayload(p int, index bool) int {
	if index {
		return btree.LocalIndexPayload(p, r.usable)
	}
	return btree.LocalPayload(p, r.usable)
}

// chainCap returns the capacity to reserve for a payload of length want
// with local bytes inline: no more than the file's overflow pages could
// supply. followChain grows the slice if the chain turns out longer.
func (r *Reader) chainCap(want, local int) int {
	supply := int64(local) + int64(r.src.PageCount())*int64(r.usable-4)
	return int(min(int64(want), supply))
}

// followChain appends up to want bytes read from the overflow chain that
// starts at page next. The walk is iterative and stops at a zero pointer,
// a page number outside the file, a page seen before, or after as many
// hops as the file has pages; whatever was gathered so far is returned.
func (r *Reader) followChain(dst []byte, next uint32, want int) []byte {
	limit := r.src.PageCount()
	seen := make(map[uint32]struct{})
	per := r.usable - 4

	for hops := uint32(0); want > 0 && next != 0 && hops < limit; hops++ {
		if next > limit {
			break
		}
		if _, ok := seen[next]; ok {
			break
		}
		seen[next] = struct{}{}

		ov, err := r.src.ReadPage(next)
		if err != nil || len(ov) < 4 {
			break
		}
		take := min(per, want, len(ov)-4)
		dst = append(dst, ov[4:4+take]...)
		want -= take
		next = binary.BigEndian.Uint32(ov[0:4])
	}
	return dst
}

// decodeColumns decodes each column in header order. Once the body runs out
// every remaining column is marked truncated.
func (r *Reader) decodeColumns(types []SerialType, body []byte) ([]Value, bool) {
	values := make([]Value, len(types))
	truncated := false
	pos := 0
	for i, st := range types {
		values[i] = DecodeValue(st, body[pos:], r.encoding)
		if values[i].Truncated {
			truncated = true
		}
		if st.Len > len(body)-pos {
			pos = len(body)
		} else {
			pos += st.Len
		}
	}
	return values, truncated
}

// applyRowIDAlias fills the INTEGER PRIMARY KEY column, which is stored as
// NULL because its value is the rowid.
func applyRowIDAlias(row *Row, layout Layout) {
	i := layout.RowIDColumn
	if !row.HasRowID || i < 0 || i >= len(row.Values) {
		return
	}
	if row.Values[i].Type.Kind == KindNull {
		row.Values[i] = IntValue(row.RowID)
	}
}
