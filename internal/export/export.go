// Package export writes recovery results to disk: one CSV file per table
// and a YAML report describing the run.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/core/forensic"
	"github.com/FocuswithJustin/sqlforensic/internal/evidence"
	"github.com/FocuswithJustin/sqlforensic/internal/validation"
)

// Leading CSV columns written before the table's own columns.
var metaColumns = []string{"_type", "_source", "_frame", "_page", "_offset", "_rowid"}

// WriteCSV writes the rows of one table. The first columns describe where
// each row was found; the record type column uses the short tag, empty for
// regular rows.
func WriteCSV(w io.Writer, t *forensic.Table) (retErr error) {
	cw := csv.NewWriter(w)
	defer func() {
		cw.Flush()
		if err := cw.Error(); err != nil && retErr == nil {
			retErr = fmt.Errorf("csv flush: %w", err)
		}
	}()

	header := append(append([]string{}, metaColumns...), t.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range t.Rows {
		rec := make([]string, 0, len(header))
		frame := ""
		if r.Origin.Source != forensic.SourceDatabase {
			frame = strconv.Itoa(r.Origin.Frame)
		}
		rowid := ""
		if r.HasRowID {
			rowid = strconv.FormatInt(r.RowID, 10)
		}
		rec = append(rec,
			r.Type.Tag(),
			string(r.Origin.Source),
			frame,
			strconv.FormatUint(uint64(r.Page), 10),
			strconv.FormatInt(r.Offset, 10),
			rowid,
		)
		values := r.Strings()
		for i := range t.Columns {
			if i < len(values) {
				rec = append(rec, values[i])
			} else {
				rec = append(rec, "")
			}
		}
		// Carved rows may carry more values than the schema declares.
		if len(values) > len(t.Columns) {
			rec = append(rec, values[len(t.Columns):]...)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	return nil
}

// FileName returns the CSV file name of a table.
func FileName(t *forensic.Table) string {
	name, err := validation.SanitizeFilename(t.Name)
	if err != nil {
		name = "unnamed"
	}
	if t.Dropped {
		name += ".dropped"
	}
	return name + ".csv"
}

// WriteTables writes a CSV file into dir for every table with at least one
// row and returns the paths written.
func WriteTables(dir string, res *forensic.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewIO("mkdir", dir, err)
	}
	var paths []string
	for _, t := range res.Tables {
		if len(t.Rows) == 0 {
			continue
		}
		path := filepath.Join(dir, FileName(t))
		f, err := os.Create(path)
		if err != nil {
			return paths, errors.NewIO("create", path, err)
		}
		if err := WriteCSV(f, t); err != nil {
			f.Close()
			return paths, errors.Wrapf(err, "export %s", t.Name)
		}
		if err := f.Close(); err != nil {
			return paths, errors.NewIO("close", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Report is the YAML summary of a run.
type Report struct {
	RunID     string            `yaml:"run_id"`
	Generated time.Time         `yaml:"generated"`
	Path      string            `yaml:"path"`
	Evidence  []evidence.Digest `yaml:"evidence,omitempty"`
	Header    HeaderSummary     `yaml:"header"`
	Stats     StatsSummary      `yaml:"stats"`
	Tables    []TableSummary    `yaml:"tables"`
	WAL       *LogSummary       `yaml:"wal,omitempty"`
	Journal   *LogSummary       `yaml:"journal,omitempty"`
	Verify    []VerifySummary   `yaml:"verify,omitempty"`
	Files     []string          `yaml:"files,omitempty"`
}

// HeaderSummary holds the database header fields an examiner reads first.
type HeaderSummary struct {
	PageSize      int    `yaml:"page_size"`
	ReservedSpace uint8  `yaml:"reserved_space"`
	DatabaseSize  uint32 `yaml:"database_size"`
	FreelistTrunk uint32 `yaml:"freelist_trunk"`
	FreelistCount uint32 `yaml:"freelist_count"`
	TextEncoding  string `yaml:"text_encoding"`
	ChangeCounter uint32 `yaml:"change_counter"`
	SchemaCookie  uint32 `yaml:"schema_cookie"`
	UserVersion   uint32 `yaml:"user_version"`
	ApplicationID uint32 `yaml:"application_id"`
	SQLiteVersion uint32 `yaml:"sqlite_version"`
	WriteVersion  uint8  `yaml:"write_version"`
	ReadVersion   uint8  `yaml:"read_version"`

	Anomalies []string `yaml:"anomalies,omitempty"`
}

// StatsSummary mirrors forensic.Stats with durations as strings.
type StatsSummary struct {
	Pages         uint32            `yaml:"pages"`
	FreelistPages int               `yaml:"freelist_pages"`
	Tasks         int64             `yaml:"tasks"`
	TaskFailures  int64             `yaml:"task_failures"`
	PageConflicts int64             `yaml:"page_conflicts"`
	Anomalies     []string          `yaml:"anomalies,omitempty"`
	Phases        map[string]string `yaml:"phases"`
}

// TableSummary counts the rows of one table by record type.
type TableSummary struct {
	Name    string         `yaml:"name"`
	Kind    string         `yaml:"kind"`
	Root    uint32         `yaml:"root_page"`
	Dropped bool           `yaml:"dropped,omitempty"`
	Total   int            `yaml:"total"`
	Rows    map[string]int `yaml:"rows,omitempty"`
}

// LogSummary describes a replayed WAL or journal.
type LogSummary struct {
	Path        string `yaml:"path"`
	PageSize    int    `yaml:"page_size"`
	HeaderValid bool   `yaml:"header_valid"`
	Frames      int    `yaml:"frames"`
	ValidFrames int    `yaml:"valid_frames"`
	Checkpoints int    `yaml:"checkpoints,omitempty"`
}

// VerifySummary is one live row count comparison.
type VerifySummary struct {
	Table     string `yaml:"table"`
	Live      int64  `yaml:"live"`
	Recovered int    `yaml:"recovered"`
	OK        bool   `yaml:"ok"`
	Error     string `yaml:"error,omitempty"`
}

// NewReport summarizes a result. digests and checks may be nil.
func NewReport(res *forensic.Result, digests []evidence.Digest, checks []forensic.Check) *Report {
	r := &Report{
		RunID:     res.RunID,
		Generated: time.Now().UTC(),
		Path:      res.Path,
		Evidence:  digests,
		WAL:       summarizeLog(res.WAL),
		Journal:   summarizeLog(res.Journal),
	}
	if res.Header != nil {
		r.Header = SummarizeHeader(res.Header)
	}

	s := res.Stats
	r.Stats = StatsSummary{
		Pages:         s.Pages,
		FreelistPages: s.FreelistPages,
		Tasks:         s.Tasks,
		TaskFailures:  s.TaskFailures,
		PageConflicts: s.PageConflicts,
		Anomalies:     s.Anomalies,
		Phases:        make(map[string]string, len(s.Phases)),
	}
	for phase, d := range s.Phases {
		r.Stats.Phases[phase] = d.String()
	}

	for _, t := range res.Tables {
		ts := TableSummary{Name: t.Name, Kind: t.Kind, Root: t.RootPage, Dropped: t.Dropped, Total: len(t.Rows)}
		for _, row := range t.Rows {
			if ts.Rows == nil {
				ts.Rows = make(map[string]int)
			}
			ts.Rows[row.Type.String()]++
		}
		r.Tables = append(r.Tables, ts)
	}

	for _, c := range checks {
		v := VerifySummary{Table: c.Table, Live: c.Live, Recovered: c.Recovered, OK: c.OK()}
		if c.Err != nil {
			v.Error = c.Err.Error()
		}
		r.Verify = append(r.Verify, v)
	}
	return r
}

// SummarizeHeader extracts the reported fields of a database header.
func SummarizeHeader(h *forensic.Header) HeaderSummary {
	return HeaderSummary{
		PageSize:      h.GetPageSize(),
		ReservedSpace: h.ReservedSpace,
		DatabaseSize:  h.DatabaseSize,
		FreelistTrunk: h.FreelistTrunk,
		FreelistCount: h.FreelistCount,
		TextEncoding:  encodingName(h.TextEncoding),
		ChangeCounter: h.FileChangeCounter,
		SchemaCookie:  h.SchemaCookie,
		UserVersion:   h.UserVersion,
		ApplicationID: h.ApplicationID,
		SQLiteVersion: h.SQLiteVersion,
		WriteVersion:  h.FileFormatWrite,
		ReadVersion:   h.FileFormatRead,
		Anomalies:     h.Anomalies(),
	}
}

func summarizeLog(info *forensic.LogInfo) *LogSummary {
	if info == nil {
		return nil
	}
	s := &LogSummary{
		Path:        info.Path,
		PageSize:    info.PageSize,
		HeaderValid: info.HeaderValid,
		Frames:      len(info.Frames),
		Checkpoints: len(info.Checkpoints),
	}
	for _, f := range info.Frames {
		if f.Valid {
			s.ValidFrames++
		}
	}
	return s
}

func encodingName(enc uint32) string {
	switch enc {
	case 1:
		return "UTF-8"
	case 2:
		return "UTF-16le"
	case 3:
		return "UTF-16be"
	default:
		return fmt.Sprintf("unknown(%d)", enc)
	}
}

// Write encodes the report as YAML.
func (r *Report) Write(w io.Writer) error {
	sort.Strings(r.Files)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the report to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	if err := r.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadReport decodes a report written by Write.
func ReadReport(rd io.Reader) (*Report, error) {
	var r Report
	if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
		return nil, errors.NewParse("yaml", "report", err.Error())
	}
	return &r, nil
}
