package schema

import "strings"

// Catalog holds the descriptors of one database. A descriptor's position
// in the catalog is its owner id in btree.Assignments. The catalog is
// filled during schema discovery and read-only afterwards.
type Catalog struct {
	descs  []*Descriptor
	byName map[string]int
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]int)}
}

// Add registers d and returns its id. A second descriptor with the same
// name keeps the first one's id, unless the first came from a dropped
// entry and the new one is live.
func (c *Catalog) Add(d *Descriptor) int {
	key := strings.ToLower(d.Name)
	if id, ok := c.byName[key]; ok {
		if c.descs[id].Dropped && !d.Dropped {
			c.descs[id] = d
		}
		return id
	}
	c.descs = append(c.descs, d)
	id := len(c.descs) - 1
	c.byName[key] = id
	return id
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.descs)
}

// Get returns the descriptor with the given id, or nil.
func (c *Catalog) Get(id int) *Descriptor {
	if id < 0 || id >= len(c.descs) {
		return nil
	}
	return c.descs[id]
}

// Lookup finds a descriptor by name, ignoring case.
func (c *Catalog) Lookup(name string) (*Descriptor, int, bool) {
	id, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return nil, -1, false
	}
	return c.descs[id], id, true
}

// All returns every descriptor in id order.
func (c *Catalog) All() []*Descriptor {
	return c.descs
}

// Carvable returns the ids of descriptors whose records can be carved:
// tables and indexes with known columns.
func (c *Catalog) Carvable() []int {
	var ids []int
	for id, d := range c.descs {
		if d.Kind == KindUnassigned || d.Virtual || len(d.Columns) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ResolveIndexes gives index columns the declared types of their table's
// columns and appends the trailing rowid (or, for WITHOUT ROWID tables,
// the primary key columns) that every index record carries.
func (c *Catalog) ResolveIndexes() {
	for _, d := range c.descs {
		if d.Kind != KindIndex {
			continue
		}
		tbl, _, ok := c.Lookup(d.Table)
		if !ok || tbl.Kind != KindTable {
			continue
		}

		if len(d.Columns) == 0 {
			// Automatic index backing a UNIQUE or PRIMARY KEY constraint.
			for _, pk := range tbl.PrimaryKey {
				d.Columns = append(d.Columns, Column{Name: pk})
			}
			if len(d.Columns) == 0 {
				continue
			}
		}

		for i := range d.Columns {
			for _, tc := range tbl.Columns {
				if strings.EqualFold(tc.Name, d.Columns[i].Name) {
					d.Columns[i].Type = tc.Type
					d.Columns[i].Affinity = tc.Affinity
					d.Columns[i].NotNull = tc.NotNull
				}
			}
		}

		if tbl.WithoutRowID {
			for _, pk := range tbl.PrimaryKey {
				if !d.hasColumn(pk) {
					col := Column{Name: pk}
					for _, tc := range tbl.Columns {
						if strings.EqualFold(tc.Name, pk) {
							col = tc
						}
					}
					d.Columns = append(d.Columns, col)
				}
			}
		} else if !d.hasColumn("rowid") {
			d.Columns = append(d.Columns, Column{Name: "rowid", Type: "INTEGER", Affinity: AFF_INTEGER, NotNull: true})
		}
	}
}

func (d *Descriptor) hasColumn(name string) bool {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Match returns the id of the table whose columns best fit a record of
// storage classes sig. Descriptors are compared by exact matches first and
// by column count difference second; the catalog order breaks ties.
func (c *Catalog) Match(sig string, wantRowID bool) (int, bool) {
	best, bestExact, bestDiff := -1, -1, 0
	for id, d := range c.descs {
		if d.Kind == KindUnassigned || d.Virtual || d.HasRowID() != wantRowID {
			continue
		}
		ok, exact := d.Compatible(sig)
		if !ok {
			continue
		}
		diff := len(d.Columns) - len(sig)
		if exact > bestExact || (exact == bestExact && diff < bestDiff) {
			best, bestExact, bestDiff = id, exact, diff
		}
	}
	return best, best >= 0
}
