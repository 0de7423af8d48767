// Package carver recovers records from page bytes that no cell pointer
// refers to. It searches unvisited byte ranges for sequences of serial type
// codes that fit a table's declared column types and decodes the body that
// follows.
package carver

import (
	"fmt"
	"math"
	"strings"

	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/schema"
)

// Mode selects how much of a record header is expected to survive.
type Mode int

const (
	// Normal expects the header length varint followed by every serial type.
	Normal Mode = iota
	// ColumnsOnly expects the serial types without the header length,
	// which is usually overwritten by a freeblock header.
	ColumnsOnly
	// FirstColumnMissing expects the serial types from the second column
	// on.
	FirstColumnMissing
)

// Modes lists the modes in the order they are tried.
var Modes = []Mode{Normal, ColumnsOnly, FirstColumnMissing}

func (m Mode) String() string {
	switch m {
	case Normal:
		return "NORMAL"
	case ColumnsOnly:
		return "COLUMNSONLY"
	case FirstColumnMissing:
		return "FIRSTCOLUMNMISSING"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// parity restricts a constraint to odd or even codes.
type parity int8

const (
	anyParity parity = iota
	odd
	even
)

// Constraint accepts serial type codes in [Min, Max] of the given parity.
type Constraint struct {
	Min    uint64
	Max    uint64
	parity parity
}

// Match reports whether code satisfies the constraint.
func (c Constraint) Match(code uint64) bool {
	if code < c.Min || code > c.Max {
		return false
	}
	switch c.parity {
	case odd:
		return code%2 == 1
	case even:
		return code%2 == 0
	}
	return true
}

func (c Constraint) String() string {
	switch {
	case c.parity == odd:
		return "text"
	case c.parity == even:
		return "blob"
	case c.Max == math.MaxUint64:
		return "any"
	case c.Min == c.Max:
		return fmt.Sprintf("%02x", c.Min)
	}
	return fmt.Sprintf("%02x..%02x", c.Min, c.Max)
}

// IntegerConstraint accepts the integer serial types 0..6, or 1..6 for a
// NOT NULL column.
func IntegerConstraint(notNull bool) Constraint {
	c := Constraint{Min: 0, Max: record.SerialTypeInt64}
	if notNull {
		c.Min = record.SerialTypeInt8
	}
	return c
}

// TextConstraint accepts any TEXT serial type.
func TextConstraint() Constraint {
	return Constraint{Min: 13, Max: math.MaxUint64, parity: odd}
}

// BlobConstraint accepts any BLOB serial type.
func BlobConstraint() Constraint {
	return Constraint{Min: 12, Max: math.MaxUint64, parity: even}
}

// RealConstraint accepts the float serial type.
func RealConstraint() Constraint {
	return Constraint{Min: record.SerialTypeFloat64, Max: record.SerialTypeFloat64}
}

// NumericConstraint accepts any serial type.
func NumericConstraint() Constraint {
	return Constraint{Min: 0, Max: math.MaxUint64}
}

// Pattern is the constraint sequence of one b-tree's records: the header
// length first, then one constraint per column.
type Pattern struct {
	Owner       int // catalog id of the descriptor
	Desc        *schema.Descriptor
	Constraints []Constraint
}

// NewPattern builds the pattern of a descriptor. The rowid alias column is
// always stored as NULL.
func NewPattern(owner int, d *schema.Descriptor) *Pattern {
	n := uint64(len(d.Columns))
	p := &Pattern{Owner: owner, Desc: d}
	p.Constraints = append(p.Constraints, Constraint{Min: n + 1, Max: 4*n + 1})
	for i, col := range d.Columns {
		if i == d.RowIDColumn {
			p.Constraints = append(p.Constraints, Constraint{Min: 0, Max: 0})
			continue
		}
		p.Constraints = append(p.Constraints, columnConstraint(col))
	}
	return p
}

func columnConstraint(col schema.Column) Constraint {
	switch col.Affinity {
	case schema.AFF_INTEGER:
		return IntegerConstraint(col.NotNull)
	case schema.AFF_TEXT:
		return TextConstraint()
	case schema.AFF_BLOB:
		return BlobConstraint()
	case schema.AFF_REAL:
		return RealConstraint()
	default:
		return NumericConstraint()
	}
}

// Columns returns the number of columns the pattern describes.
func (p *Pattern) Columns() int {
	return len(p.Constraints) - 1
}

// Layout returns the layout carved rows are decoded with. Carved records
// have lost their rowid.
func (p *Pattern) Layout() record.Layout {
	l := p.Desc.Layout()
	l.HasRowID = false
	return l
}

func (p *Pattern) String() string {
	parts := make([]string, len(p.Constraints))
	for i, c := range p.Constraints {
		parts[i] = c.String()
	}
	return p.Desc.Name + "[" + strings.Join(parts, " ") + "]"
}
