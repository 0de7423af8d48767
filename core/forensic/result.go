package forensic

import (
	"time"

	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/pager"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/schema"
)

// Types shared with the decoding packages.
type (
	Row        = record.Row
	Value      = record.Value
	RecordType = record.RecordType
	Provenance = record.Provenance
	Source     = record.Source
	Header     = pager.DatabaseHeader
)

// Record types.
const (
	Regular          = record.Regular
	DeletedInPage    = record.DeletedInPage
	FreelistEntry    = record.FreelistEntry
	UnallocatedSpace = record.UnallocatedSpace
)

// Row sources.
const (
	SourceDatabase = record.SourceDatabase
	SourceWAL      = record.SourceWAL
	SourceJournal  = record.SourceJournal
)

// UnassignedTable collects rows whose table could not be determined.
const UnassignedTable = record.UnassignedTable

// Table is the recovered content of one table or index.
type Table struct {
	Name      string
	Kind      string // "table", "index" or "unassigned"
	Columns   []string
	Signature string
	RootPage  uint32
	SQL       string
	Dropped   bool // only known from a carved sqlite_master entry
	Rows      []*Row
}

func newTable(d *schema.Descriptor) *Table {
	return &Table{
		Name:      d.Name,
		Kind:      d.Kind.String(),
		Columns:   d.ColumnNames(),
		Signature: d.Signature(),
		RootPage:  d.RootPage,
		SQL:       d.SQL,
		Dropped:   d.Dropped,
	}
}

// Count returns the number of rows of the given types, or of all rows when
// none are given.
func (t *Table) Count(types ...RecordType) int {
	if len(types) == 0 {
		return len(t.Rows)
	}
	n := 0
	for _, r := range t.Rows {
		for _, want := range types {
			if r.Type == want {
				n++
				break
			}
		}
	}
	return n
}

// Stats summarizes a run.
type Stats struct {
	Pages         uint32
	FreelistPages int
	Tasks         int64
	TaskFailures  int64
	PageConflicts int64
	Anomalies     []string
	Phases        map[string]time.Duration
}

// Result is the outcome of Recover.
type Result struct {
	RunID  string
	Path   string
	Header *Header
	Tables []*Table // sqlite_master first, then in schema order, __UNASSIGNED last
	Stats  Stats

	WAL     *LogInfo
	Journal *LogInfo
}

// Table returns the named table.
func (r *Result) Table(name string) (*Table, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Rows returns the total number of recovered rows.
func (r *Result) Rows() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Rows)
	}
	return n
}
