package forensic

import (
	"os"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/journal"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/pager"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/record"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/wal"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// Companion file suffixes.
const (
	WALSuffix     = "-wal"
	JournalSuffix = "-journal"
)

// FrameInfo describes one page image in a log file.
type FrameInfo struct {
	Index      int
	PageNumber uint32
	Offset     int64
	Commit     bool
	Salt1      uint32
	Salt2      uint32
	Valid      bool
}

// CheckpointInfo is a run of WAL frames sharing a salt pair.
type CheckpointInfo struct {
	Salt1  uint32
	Salt2  uint32
	Frames []int // frame indexes, in log order
}

// LogInfo summarizes a WAL or rollback journal.
type LogInfo struct {
	Path        string
	Source      Source
	PageSize    int
	HeaderValid bool
	Frames      []FrameInfo
	Checkpoints []CheckpointInfo // WAL only

	// Rollback journal header fields.
	Nonce        uint32
	InitialPages uint32
	SectorSize   uint32
}

// replayLogs scans every page image of the WAL and the rollback journal.
// A missing or empty log is skipped; a log with a bad header is logged
// and skipped, since the database itself was already recovered.
func (j *Job) replayLogs(res *Result) {
	if !j.opts.NoWAL {
		path := j.opts.WALPath
		if path == "" {
			path = j.path + WALSuffix
		}
		if info, err := j.replay(path, SourceWAL); err != nil {
			logging.Warn("wal skipped", "path", path, "error", err)
		} else {
			res.WAL = info
		}
	}
	if !j.opts.NoJournal {
		path := j.opts.JournalPath
		if path == "" {
			path = j.path + JournalSuffix
		}
		if info, err := j.replay(path, SourceJournal); err != nil {
			logging.Warn("journal skipped", "path", path, "error", err)
		} else {
			res.Journal = info
		}
	}
}

func (j *Job) replay(path string, src Source) (*LogInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	store, err := pager.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	info, frames, err := readLog(store, path, src, j.store.PageSize())
	if err != nil || info == nil {
		return info, err
	}
	if info.PageSize != j.store.PageSize() {
		return info, errors.NewFormat(string(src), path, "page size differs from the database")
	}

	var rows []*record.Row
	for i, f := range frames {
		fi := info.Frames[i]
		j.metrics.RecordFrame(string(src), fi.Valid)

		s := j.newScanner()
		s.claim = false
		s.reader = s.reader.WithBase(func(uint32) int64 { return fi.Offset })
		for _, row := range s.scanSafely(PhaseLogs, f, fi.PageNumber) {
			row.Origin = record.Provenance{
				Source: src,
				Frame:  fi.Index,
				Commit: fi.Commit,
				Salt1:  fi.Salt1,
				Salt2:  fi.Salt2,
			}
			rows = append(rows, row)
		}
	}
	j.stats.Tasks += int64(len(frames))
	j.collect(rows)
	logging.LoggerFromContext(j.ctx).Info("log replayed", "source", string(src), "frames", len(frames), "rows", len(rows))
	return info, nil
}

// readLog parses a log file into its summary and page images. It returns
// a nil summary for a file too short to hold a single frame.
func readLog(store *pager.Store, path string, src Source, dbPageSize int) (*LogInfo, [][]byte, error) {
	info := &LogInfo{Path: path, Source: src}
	var images [][]byte

	switch src {
	case SourceWAL:
		r, ok, err := wal.NewReader(store, dbPageSize)
		if err != nil || !ok {
			return nil, nil, err
		}
		frames, err := r.Frames()
		if err != nil {
			return nil, nil, err
		}
		info.PageSize = r.PageSize()
		info.HeaderValid = r.HeaderValid()
		for _, f := range frames {
			info.Frames = append(info.Frames, FrameInfo{
				Index: f.Index, PageNumber: f.PageNumber, Offset: f.Offset,
				Commit: f.Commit(), Salt1: f.Salt1, Salt2: f.Salt2, Valid: f.Valid,
			})
			images = append(images, f.Data)
		}
		for _, cp := range wal.Group(frames) {
			ci := CheckpointInfo{Salt1: cp.Salt1, Salt2: cp.Salt2}
			for _, f := range cp.Frames {
				ci.Frames = append(ci.Frames, f.Index)
			}
			info.Checkpoints = append(info.Checkpoints, ci)
		}

	case SourceJournal:
		r, ok, err := journal.NewReader(store, dbPageSize)
		if err != nil || !ok {
			return nil, nil, err
		}
		frames, err := r.Frames()
		if err != nil {
			return nil, nil, err
		}
		h := r.Header()
		info.PageSize = r.PageSize()
		info.HeaderValid = true
		info.Nonce, info.InitialPages, info.SectorSize = h.Nonce, h.InitialPages, h.SectorSize
		for _, f := range frames {
			info.Frames = append(info.Frames, FrameInfo{
				Index: f.Index, PageNumber: f.PageNumber, Offset: f.Offset, Valid: f.Valid,
			})
			images = append(images, f.Data)
		}

	default:
		return nil, nil, errors.NewUnsupported("log source", string(src))
	}
	return info, images, nil
}

// InspectLog reads the frame layout of a WAL or rollback journal without
// recovering rows. dbPageSize is used when the log's own page size field
// is unusable.
func InspectLog(path string, src Source, dbPageSize int) (*LogInfo, error) {
	store, err := pager.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	info, _, err := readLog(store, path, src, dbPageSize)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return &LogInfo{Path: path, Source: src}, nil
	}
	return info, nil
}

// ReadHeader parses the 100-byte header of a database file.
func ReadHeader(path string) (*Header, error) {
	store, err := pager.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.ReadHeader()
}
