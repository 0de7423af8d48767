package record

import (
	"sync"
)

// UnassignedTable names rows whose owning table could not be determined.
const UnassignedTable = "__UNASSIGNED"

// RecordType tags how a row was recovered.
type RecordType int

const (
	// Regular rows were reached through a live cell pointer.
	Regular RecordType = iota
	// DeletedInPage rows were carved from unreferenced bytes of a b-tree page.
	DeletedInPage
	// FreelistEntry rows were carved from a page on the freelist.
	FreelistEntry
	// UnallocatedSpace rows were carved from the gap between the cell
	// pointer array and the cell content area.
	UnallocatedSpace
)

// Tag returns the short marker used in exports.
func (t RecordType) Tag() string {
	switch t {
	case DeletedInPage:
		return "D"
	case FreelistEntry:
		return "F"
	case UnallocatedSpace:
		return "U"
	default:
		return ""
	}
}

func (t RecordType) String() string {
	switch t {
	case DeletedInPage:
		return "deleted-in-page"
	case FreelistEntry:
		return "freelist-entry"
	case UnallocatedSpace:
		return "unallocated-space"
	default:
		return "regular"
	}
}

// Source identifies the file a row came from.
type Source string

const (
	SourceDatabase Source = "db"
	SourceWAL      Source = "wal"
	SourceJournal  Source = "journal"
)

// Provenance records where a row recovered from a log file was found.
type Provenance struct {
	Source Source
	Frame  int  // frame index within the log, 0-based
	Commit bool // the WAL frame is a commit frame
	Salt1  uint32
	Salt2  uint32
}

// Row is one recovered record.
type Row struct {
	Table     string
	Type      RecordType
	Offset    int64 // absolute byte offset of the record in its source file
	Page      uint32
	RowID     int64
	HasRowID  bool
	Values    []Value
	Truncated bool
	Origin    Provenance

	columns []string
	once    sync.Once
	index   map[string]int
}

// SetColumns attaches the column names used by Column.
func (r *Row) SetColumns(names []string) {
	r.columns = names
}

// Column returns the index of the named column, resolving the name map on
// first use. It returns -1 for unknown names.
func (r *Row) Column(name string) int {
	r.once.Do(func() {
		r.index = make(map[string]int, len(r.columns))
		for i, c := range r.columns {
			if _, dup := r.index[c]; !dup {
				r.index[c] = i
			}
		}
	})
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

// Get returns the value of the named column.
func (r *Row) Get(name string) (Value, bool) {
	i := r.Column(name)
	if i < 0 || i >= len(r.Values) {
		return Value{}, false
	}
	return r.Values[i], true
}

// Strings renders every value.
func (r *Row) Strings() []string {
	out := make([]string, len(r.Values))
	for i, v := range r.Values {
		out[i] = v.String()
	}
	return out
}

// Signature returns the storage class letters of the row's values.
func (r *Row) Signature() string {
	b := make([]byte, len(r.Values))
	for i, v := range r.Values {
		b[i] = v.Type.StorageClass()
	}
	return string(b)
}

// PadTo appends NULL placeholders until the row has n values. Records
// written before an ALTER TABLE ADD COLUMN carry fewer columns than the
// current schema declares.
func (r *Row) PadTo(n int) {
	for len(r.Values) < n {
		r.Values = append(r.Values, NullValue())
	}
}
