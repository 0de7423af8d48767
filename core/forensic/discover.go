package forensic

import (
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/carver"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/schema"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// discover reads the header and the schema, then assigns every page a
// b-tree reaches to its table or index. A bad header is fatal.
func (j *Job) discover() error {
	h, err := j.store.ReadHeader()
	if err != nil {
		return err
	}
	j.header = h
	j.usable = h.UsableSize()
	for _, kind := range h.Anomalies() {
		j.anomaly(kind)
		logging.Anomaly(kind, 1)
	}

	j.catalog = schema.NewCatalog()
	master := schema.Master()
	j.masterID = j.catalog.Add(master)
	j.assign = btree.NewAssignments(j.store.PageCount())

	live, dropped, rows := j.readMaster(master)

	for _, e := range live {
		j.addEntry(e, false)
	}
	for _, e := range dropped {
		j.addEntry(e, true)
	}
	j.unassignedID = j.catalog.Add(schema.Unassigned())
	j.catalog.ResolveIndexes()

	walker := btree.NewWalker(j.store)
	for id, d := range j.catalog.All() {
		if id == j.masterID || d.RootPage == 0 || d.Kind == schema.KindUnassigned {
			continue
		}
		// A dropped b-tree's root may have been reused by a live one.
		if d.Dropped && j.assign.Owner(d.RootPage) != btree.Unowned {
			continue
		}
		walker.Traverse(d.RootPage, func(pageNum uint32, _ byte) {
			j.assign.Claim(pageNum, id)
		})
	}

	j.patternOf = make(map[int]*carver.Pattern)
	for _, id := range j.catalog.Carvable() {
		p := carver.NewPattern(id, j.catalog.Get(id))
		j.patterns = append(j.patterns, p)
		j.patternOf[id] = p
	}

	j.tables = make([][]*record.Row, j.catalog.Len())
	j.collect(rows)
	logging.LoggerFromContext(j.ctx).Info("schema discovered",
		"descriptors", j.catalog.Len()-2, "dropped", len(dropped), "page_size", j.store.PageSize(), "pages", j.store.PageCount())
	return nil
}

// readMaster decodes sqlite_master and, when enabled, carves its pages for
// deleted entries. It returns live and dropped entries and every row read.
func (j *Job) readMaster(master *schema.Descriptor) (live, dropped []schema.MasterEntry, rows []*record.Row) {
	s := j.newScanner()
	s.carve = j.opts.CarveMaster
	s.patterns = []*carver.Pattern{carver.NewPattern(j.masterID, master)}

	var pages []uint32
	btree.NewWalker(j.store).Traverse(1, func(pageNum uint32, pageType byte) {
		if pageType == btree.PageTypeLeafTable {
			j.assign.Claim(pageNum, j.masterID)
			pages = append(pages, pageNum)
		}
	})

	for _, pn := range pages {
		j.masterPages[pn] = true
		data, err := j.store.ReadPage(pn)
		if err != nil {
			logging.SkippedRead(pn, err)
			continue
		}
		for _, row := range s.scanSafely(PhaseDiscovery, data, pn) {
			rows = append(rows, row)
			e, ok := schema.EntryFromRow(row)
			if !ok {
				continue
			}
			if row.Type == record.Regular {
				live = append(live, e)
			} else {
				dropped = append(dropped, e)
			}
		}
	}
	return live, dropped, rows
}

// addEntry registers the descriptor of one schema entry. Statements the
// parser rejects still yield a table whose columns are inferred from its
// first record.
func (j *Job) addEntry(e schema.MasterEntry, dropped bool) {
	d, ok, err := schema.FromEntry(e)
	if err != nil {
		logging.Warn("schema entry not parsed", "name", e.Name, "error", err)
		if e.RootPage == 0 || (e.Type != "table" && e.Type != "index") {
			return
		}
		d = &schema.Descriptor{Kind: schema.KindTable, Name: e.Name, RootPage: e.RootPage, SQL: e.SQL, RowIDColumn: -1}
		if e.Type == "index" {
			d.Kind = schema.KindIndex
			d.Table = e.Table
		}
		ok = true
		if !dropped {
			j.inferColumns(d)
		}
	}
	if !ok {
		return
	}
	d.Dropped = dropped
	if dropped {
		logging.Info("dropped schema entry", "type", e.Type, "name", e.Name, "root", e.RootPage)
	}
	j.catalog.Add(d)
}
