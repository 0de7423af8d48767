// Package schema describes the tables and indexes found in a database's
// sqlite_master table and parses their CREATE statements.
package schema

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
)

// Kind distinguishes the descriptor variants.
type Kind int

const (
	KindTable Kind = iota
	KindIndex
	KindUnassigned
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindIndex:
		return "index"
	default:
		return "unassigned"
	}
}

// MasterTable is the name of the schema table rooted at page 1.
const MasterTable = "sqlite_master"

// UnassignedColumns is the column count of the table that collects rows of
// unknown ownership.
const UnassignedColumns = 20

// Column is one declared column.
type Column struct {
	Name       string
	Type       string // declared type, as written
	Affinity   Affinity
	NotNull    bool
	PrimaryKey bool

	descKey bool
}

// Descriptor describes a b-tree: a table, an index or the catch-all for
// unassigned pages. Descriptors are built during schema discovery and are
// not modified afterwards.
type Descriptor struct {
	Kind     Kind
	Name     string
	RootPage uint32
	Columns  []Column
	SQL      string

	// Table fields.
	PrimaryKey   []string
	WithoutRowID bool
	Virtual      bool
	RowIDColumn  int // INTEGER PRIMARY KEY column, or -1

	// Index fields.
	Table string

	// Dropped is set for descriptors recovered from deleted sqlite_master
	// entries.
	Dropped bool
}

// ColumnNames returns the column names in declaration order.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// HasRowID reports whether cells of this b-tree carry a rowid varint.
func (d *Descriptor) HasRowID() bool {
	switch d.Kind {
	case KindTable:
		return !d.WithoutRowID
	case KindUnassigned:
		return true
	default:
		return false
	}
}

// IntegerPrimaryKey reports whether the first column aliases the rowid, in
// which case it is stored as NULL in every record.
func (d *Descriptor) IntegerPrimaryKey() bool {
	return d.RowIDColumn == 0
}

// Layout returns the cell layout used by record.Reader.
func (d *Descriptor) Layout() record.Layout {
	return record.Layout{Table: d.Name, HasRowID: d.HasRowID(), RowIDColumn: d.RowIDColumn, Index: !d.HasRowID()}
}

// Signature is one affinity letter per column, see Affinity.Letter.
func (d *Descriptor) Signature() string {
	var sb strings.Builder
	for _, c := range d.Columns {
		sb.WriteByte(c.Affinity.Letter())
	}
	return sb.String()
}

// Compatible reports whether a record whose storage classes are sig (as
// returned by record.Row.Signature) could belong to this b-tree, and
// returns how many columns matched exactly. Records may carry fewer
// columns than declared after ALTER TABLE ADD COLUMN.
func (d *Descriptor) Compatible(sig string) (bool, int) {
	if len(sig) == 0 || len(sig) > len(d.Columns) {
		return false, 0
	}
	exact := 0
	for i := 0; i < len(sig); i++ {
		aff := d.Columns[i].Affinity
		if i == d.RowIDColumn && sig[i] == 'N' {
			exact++
			continue
		}
		if !aff.Accepts(sig[i]) {
			return false, 0
		}
		if aff.Letter() == sig[i] {
			exact++
		}
	}
	return true, exact
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s root=%d sig=%s", d.Kind, d.Name, d.RootPage, d.Signature())
}

// Unassigned returns the descriptor of the table that collects rows whose
// b-tree could not be identified: TEXT columns col1..col20.
func Unassigned() *Descriptor {
	d := &Descriptor{Kind: KindUnassigned, Name: record.UnassignedTable, RowIDColumn: -1}
	for i := 1; i <= UnassignedColumns; i++ {
		d.Columns = append(d.Columns, Column{Name: fmt.Sprintf("col%d", i), Type: "TEXT", Affinity: AFF_TEXT})
	}
	return d
}

// Master returns the descriptor of sqlite_master.
func Master() *Descriptor {
	return &Descriptor{
		Kind:        KindTable,
		Name:        MasterTable,
		RootPage:    1,
		RowIDColumn: -1,
		Columns: []Column{
			{Name: "type", Type: "TEXT", Affinity: AFF_TEXT},
			{Name: "name", Type: "TEXT", Affinity: AFF_TEXT},
			{Name: "tbl_name", Type: "TEXT", Affinity: AFF_TEXT},
			{Name: "rootpage", Type: "INTEGER", Affinity: AFF_INTEGER},
			{Name: "sql", Type: "TEXT", Affinity: AFF_TEXT},
		},
	}
}

// MasterEntry is one row of sqlite_master.
type MasterEntry struct {
	Type     string
	Name     string
	Table    string
	RootPage uint32
	SQL      string
}

// EntryFromRow converts a decoded sqlite_master row.
func EntryFromRow(row *record.Row) (MasterEntry, bool) {
	if len(row.Values) < 5 {
		return MasterEntry{}, false
	}
	v := row.Values
	if v[0].Type.Kind != record.KindText || v[1].Type.Kind != record.KindText {
		return MasterEntry{}, false
	}
	e := MasterEntry{Type: v[0].Text, Name: v[1].Text, Table: v[2].Text, SQL: v[4].Text}
	if v[3].Int > 0 && v[3].Int <= 1<<32-1 {
		e.RootPage = uint32(v[3].Int)
	}
	return e, true
}

// FromEntry builds a descriptor from a sqlite_master entry. Entries other
// than tables and indexes, and tables without a root page (views,
// triggers), return ok=false. Automatic indexes have no SQL and get a
// descriptor without columns; ResolveIndexes fills them in where possible.
func FromEntry(e MasterEntry) (*Descriptor, bool, error) {
	if e.RootPage == 0 || (e.Type != "table" && e.Type != "index") {
		return nil, false, nil
	}
	if e.SQL == "" {
		d := &Descriptor{Kind: KindIndex, Name: e.Name, Table: e.Table, RootPage: e.RootPage, RowIDColumn: -1}
		if e.Type == "table" {
			d.Kind = KindTable
		}
		return d, true, nil
	}

	d, err := ParseCreate(e.SQL)
	if err != nil {
		return nil, false, err
	}
	d.Name = e.Name
	d.RootPage = e.RootPage
	d.SQL = e.SQL
	if d.Kind == KindIndex && d.Table == "" {
		d.Table = e.Table
	}
	return d, true, nil
}

// InferColumns replaces the columns of a descriptor whose SQL could not be
// parsed with one column per storage class letter in sig, named col1..colN.
// It is only called during discovery.
func (d *Descriptor) InferColumns(sig string) {
	d.Columns = d.Columns[:0]
	for i := 0; i < len(sig); i++ {
		typ := classType(sig[i])
		d.Columns = append(d.Columns, Column{
			Name:     fmt.Sprintf("col%d", i+1),
			Type:     typ,
			Affinity: AffinityFromType(typ),
		})
	}
}

func classType(c byte) string {
	switch c {
	case 'I':
		return "INTEGER"
	case 'F':
		return "REAL"
	case 'T':
		return "TEXT"
	case 'B':
		return "BLOB"
	}
	return ""
}
