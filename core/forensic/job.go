// Package forensic recovers live, deleted and residual records from the
// raw bytes of a SQLite database, its write-ahead log and its rollback
// journal.
//
// A run has four phases:
//
//  1. Schema discovery (single-threaded): sqlite_master is read from page 1,
//     dropped schema entries are carved, and every b-tree is walked to
//     assign its pages to their table or index.
//  2. Freelist recovery (parallel, one task per free page), then a barrier.
//  3. Carve scan (parallel, one task per remaining page): live cells are
//     decoded and the unattributed bytes are carved.
//  4. Log reconstruction (single-threaded): every WAL frame and journal
//     record goes through the same page scan.
//
// Recovery is best effort. Carved rows may be false positives.
package forensic

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/carver"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/freelist"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/pager"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/schema"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
	"github.com/FocuswithJustin/sqlforensic/internal/metrics"
	"github.com/FocuswithJustin/sqlforensic/internal/parallel"
)

// Phase names used in logs and metrics.
const (
	PhaseDiscovery = "discovery"
	PhaseFreelist  = "freelist"
	PhaseCarve     = "carve"
	PhaseLogs      = "logs"
)

// Job holds the state of one recovery run. Everything set during
// discovery is read-only once the parallel phases start; the page
// assignments are write-once per page.
type Job struct {
	ctx     context.Context
	opts    Options
	path    string
	runID   string
	metrics *metrics.Registry

	store  *pager.Store
	header *pager.DatabaseHeader
	usable int

	catalog      *schema.Catalog
	assign       *btree.Assignments
	patterns     []*carver.Pattern
	patternOf    map[int]*carver.Pattern
	masterID     int
	unassignedID int

	masterPages map[uint32]bool
	freePages   map[uint32]bool

	tables    [][]*record.Row // by catalog id, filled between phases
	stats     Stats
	anomalies []string
	// inlineFailures counts pages that panicked outside the pool.
	inlineFailures int64
}

// Recover runs every recovery phase over the database at path. Only a
// missing file or a bad database header fails the run; everything else is
// logged and skipped.
func Recover(ctx context.Context, path string, opts Options) (*Result, error) {
	j, err := NewJob(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	return j.Run()
}

// NewJob opens the database and prepares a run.
func NewJob(ctx context.Context, path string, opts Options) (*Job, error) {
	var storeOpts []pager.Option
	if opts.WindowSize > 0 {
		storeOpts = append(storeOpts, pager.WithWindowSize(opts.WindowSize))
	}
	if opts.CacheBytes > 0 {
		storeOpts = append(storeOpts, pager.WithPageCache(opts.CacheBytes))
	}
	store, err := pager.Open(path, storeOpts...)
	if err != nil {
		return nil, err
	}
	runID := uuid.New().String()
	return &Job{
		ctx:         logging.WithRunID(ctx, runID),
		opts:        opts,
		path:        path,
		runID:       runID,
		metrics:     opts.metrics(),
		store:       store,
		masterPages: make(map[uint32]bool),
		freePages:   make(map[uint32]bool),
		stats:       Stats{Phases: make(map[string]time.Duration)},
	}, nil
}

// Close releases the database file.
func (j *Job) Close() error {
	return j.store.Close()
}

// Run executes the phases in order.
func (j *Job) Run() (*Result, error) {
	log := logging.LoggerFromContext(j.ctx)
	log.Info("recovery started", "path", j.path, "workers", j.opts.Workers)

	var err error
	j.timed(PhaseDiscovery, func() { err = j.discover() })
	if err != nil {
		return nil, err
	}

	pool, err := parallel.NewPool(j.opts.Workers, parallel.WithFailureHook(func(t parallel.Task, _ any) {
		j.metrics.RecordFailure(t.Phase)
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}
	defer pool.Close()

	if j.opts.CarveFreelist {
		j.timed(PhaseFreelist, func() { j.recoverFreelist(pool) })
	}
	j.timed(PhaseCarve, func() { j.scanPages(pool) })

	res := &Result{RunID: j.runID, Path: j.path, Header: j.header}
	j.timed(PhaseLogs, func() { j.replayLogs(res) })

	j.stats.Pages = j.store.PageCount()
	j.stats.TaskFailures = pool.Failures() + j.inlineFailures
	j.stats.PageConflicts = j.assign.Conflicts()
	j.stats.Anomalies = j.anomalies
	res.Stats = j.stats
	res.Tables = j.buildTables()

	cs := j.store.CacheStats()
	log.Info("recovery finished", "rows", res.Rows(), "tables", len(res.Tables), "failures", j.stats.TaskFailures,
		"cache_hits", cs.Hits, "cache_misses", cs.Misses)
	return res, nil
}

func (j *Job) timed(phase string, fn func()) {
	start := time.Now()
	fn()
	d := time.Since(start)
	j.stats.Phases[phase] = d
	j.metrics.RecordPhase(phase, d)
	logging.PhaseDone(j.ctx, phase, int(j.stats.Tasks), d)
}

func (j *Job) newReader() *record.Reader {
	return record.NewReader(j.store, j.store.PageSize(), j.usable, j.header.TextEncoding)
}

func (j *Job) anomaly(kind string) {
	j.anomalies = append(j.anomalies, kind)
	j.metrics.RecordAnomaly(kind)
}

// collect appends rows to their tables. It runs between phases, on one
// goroutine.
func (j *Job) collect(rows []*record.Row) {
	for _, row := range rows {
		d, id, ok := j.catalog.Lookup(row.Table)
		if !ok {
			d, id = j.catalog.Get(j.unassignedID), j.unassignedID
			row.Table = d.Name
		}
		if id == j.unassignedID {
			row.PadTo(schema.UnassignedColumns)
		}
		if row.Origin.Source == "" {
			row.Origin.Source = record.SourceDatabase
		}
		row.SetColumns(d.ColumnNames())
		j.metrics.RecordRows(d.Name, row.Type.String(), 1)
		if j.opts.DeletedOnly && row.Type == record.Regular {
			continue
		}
		j.tables[id] = append(j.tables[id], row)
	}
}

// runTasks submits one task per page and waits for all of them. Each task
// writes only its own slot, so slots need no locking.
func (j *Job) runTasks(pool *parallel.Pool, phase string, pages []uint32, scan func(i int, pageNum uint32) []*record.Row) {
	slots := make([][]*record.Row, len(pages))
	for i, pn := range pages {
		pool.Submit(parallel.Task{Phase: phase, Page: pn, Run: func() error {
			slots[i] = scan(i, pn)
			j.metrics.RecordPage(phase)
			return nil
		}})
	}
	pool.Wait(j.opts.PollInterval)
	j.stats.Tasks += int64(len(pages))
	for _, rows := range slots {
		j.collect(rows)
	}
}

// recoverFreelist scans every page on the freelist.
func (j *Job) recoverFreelist(pool *parallel.Pool) {
	list := freelist.Walk(j.store, j.header.FreelistTrunk, j.usable)
	for _, kind := range list.Anomalies {
		j.anomaly(kind)
	}
	trunks := make(map[uint32]bool, len(list.Trunks))
	for _, t := range list.Trunks {
		trunks[t] = true
	}
	pages := list.Pages()
	for _, pn := range pages {
		j.freePages[pn] = true
	}
	j.stats.FreelistPages = len(pages)

	j.runTasks(pool, PhaseFreelist, pages, func(_ int, pn uint32) []*record.Row {
		data, err := j.store.ReadPage(pn)
		if err != nil {
			logging.SkippedRead(pn, err)
			return nil
		}
		s := j.newScanner()
		s.claim = false
		s.free = true
		s.tag = record.FreelistEntry
		s.trunk = trunks[pn]
		return s.scanPage(data, pn)
	})
}

// scanPages runs the carve scan over every page not already handled by
// discovery or the freelist phase.
func (j *Job) scanPages(pool *parallel.Pool) {
	var pages []uint32
	for pn := uint32(1); pn <= j.store.PageCount(); pn++ {
		if j.masterPages[pn] || j.freePages[pn] {
			continue
		}
		pages = append(pages, pn)
	}
	j.runTasks(pool, PhaseCarve, pages, func(_ int, pn uint32) []*record.Row {
		data, err := j.store.ReadPage(pn)
		if err != nil {
			logging.SkippedRead(pn, err)
			return nil
		}
		return j.newScanner().scanPage(data, pn)
	})
}

func (j *Job) buildTables() []*Table {
	out := make([]*Table, 0, j.catalog.Len())
	var unassigned *Table
	for id, d := range j.catalog.All() {
		t := newTable(d)
		t.Rows = j.tables[id]
		if id == j.unassignedID {
			unassigned = t
			continue
		}
		out = append(out, t)
	}
	if unassigned != nil {
		out = append(out, unassigned)
	}
	return out
}
