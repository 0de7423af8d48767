package forensic

import (
	"time"

	"github.com/FocuswithJustin/sqlforensic/internal/config"
	"github.com/FocuswithJustin/sqlforensic/internal/metrics"
)

// Options controls a recovery run.
type Options struct {
	// Workers is the worker pool size. 1 runs every task inline.
	Workers int
	// WindowSize is the read-ahead window of the page store.
	WindowSize int
	// CacheBytes bounds the in-memory page cache. 0 disables it.
	CacheBytes int64
	// PollInterval is how often a phase checks for outstanding tasks.
	PollInterval time.Duration

	// DeletedOnly drops regular rows from the result.
	DeletedOnly bool

	Carve            bool // carve gaps of b-tree and unknown pages
	CarveFreelist    bool // scan freelist pages
	CarveUnallocated bool // carve between the cell pointer array and the content area
	CarveMaster      bool // carve dropped sqlite_master entries

	// WALPath and JournalPath override the conventional <db>-wal and
	// <db>-journal locations. NoWAL and NoJournal skip the logs.
	WALPath     string
	JournalPath string
	NoWAL       bool
	NoJournal   bool

	// Metrics receives run counters. Nil uses metrics.DefaultRegistry.
	Metrics *metrics.Registry
}

// DefaultOptions returns options with every recovery source enabled.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig maps loaded configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:          cfg.Workers,
		WindowSize:       cfg.WindowSize,
		CacheBytes:       cfg.CacheBytes,
		PollInterval:     cfg.PollInterval,
		DeletedOnly:      cfg.DeletedOnly,
		Carve:            cfg.Carve.Enabled,
		CarveFreelist:    cfg.Carve.Freelist,
		CarveUnallocated: cfg.Carve.Unallocated,
		CarveMaster:      cfg.Carve.Master,
		NoWAL:            !cfg.Logs.WAL,
		NoJournal:        !cfg.Logs.Journal,
	}
}

func (o *Options) metrics() *metrics.Registry {
	if o.Metrics == nil {
		return metrics.DefaultRegistry()
	}
	return o.Metrics
}
