package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/sqlforensic/core/forensic"
	"github.com/FocuswithJustin/sqlforensic/core/sqlite"
	"github.com/FocuswithJustin/sqlforensic/internal/evidence"
	"github.com/FocuswithJustin/sqlforensic/internal/metrics"
)

func recoverFixture(t *testing.T) (string, *forensic.Result) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	for _, s := range []string{
		"PRAGMA secure_delete=OFF",
		"CREATE TABLE contacts (id INTEGER PRIMARY KEY, name TEXT, note TEXT)",
		"INSERT INTO contacts VALUES (1, 'ann', 'first, with comma')",
		"INSERT INTO contacts VALUES (2, 'ben', 'second')",
		"INSERT INTO contacts VALUES (3, 'cat', 'third')",
		"DELETE FROM contacts WHERE id = 2",
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	db.Close()

	opts := forensic.DefaultOptions()
	opts.Workers = 1
	opts.Metrics = metrics.NewRegistry()
	res, err := forensic.Recover(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	return path, res
}

func TestWriteCSV(t *testing.T) {
	_, res := recoverFixture(t)
	tbl, ok := res.Table("contacts")
	if !ok {
		t.Fatal("contacts not recovered")
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv output does not parse: %v", err)
	}
	if got := strings.Join(records[0], ","); got != "_type,_source,_frame,_page,_offset,_rowid,id,name,note" {
		t.Errorf("header = %s", got)
	}
	if len(records)-1 != len(tbl.Rows) {
		t.Errorf("records = %d, rows = %d", len(records)-1, len(tbl.Rows))
	}

	var sawComma bool
	for _, rec := range records[1:] {
		if rec[1] != "db" {
			t.Errorf("source = %q", rec[1])
		}
		if rec[0] == "" && rec[7] == "ann" {
			if rec[5] != "1" || rec[8] != "first, with comma" {
				t.Errorf("ann row = %v", rec)
			}
			sawComma = true
		}
	}
	if !sawComma {
		t.Error("regular row for ann missing")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		table forensic.Table
		want  string
	}{
		{forensic.Table{Name: "users"}, "users.csv"},
		{forensic.Table{Name: "a/b:c"}, "a_b_c.csv"},
		{forensic.Table{Name: ".."}, "unnamed.csv"},
		{forensic.Table{Name: "old", Dropped: true}, "old.dropped.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FileName(&tt.table); got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteTables(t *testing.T) {
	_, res := recoverFixture(t)
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteTables(dir, res)
	if err != nil {
		t.Fatalf("WriteTables() error = %v", err)
	}

	want := map[string]bool{"contacts.csv": false, "sqlite_master.csv": false}
	for _, p := range paths {
		if _, ok := want[filepath.Base(p)]; ok {
			want[filepath.Base(p)] = true
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("%s not written; got %v", name, paths)
		}
	}
}

func TestReportRoundTrip(t *testing.T) {
	path, res := recoverFixture(t)
	d, err := evidence.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	checks, err := forensic.Verify(context.Background(), path, res)
	if err != nil {
		t.Fatal(err)
	}

	rep := NewReport(res, []evidence.Digest{d}, checks)
	var buf bytes.Buffer
	if err := rep.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	text := buf.String()
	for _, want := range []string{"run_id: " + res.RunID, "text_encoding: UTF-8", "sha256: " + d.SHA256, "name: contacts"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}

	back, err := ReadReport(&buf)
	if err != nil {
		t.Fatalf("ReadReport() error = %v", err)
	}
	if back.RunID != res.RunID || back.Header.PageSize != res.Header.GetPageSize() {
		t.Errorf("round trip = %+v", back.Header)
	}
	var contacts *TableSummary
	for i := range back.Tables {
		if back.Tables[i].Name == "contacts" {
			contacts = &back.Tables[i]
		}
	}
	if contacts == nil || contacts.Rows["regular"] != 2 {
		t.Errorf("contacts summary = %+v", contacts)
	}
	for _, v := range back.Verify {
		if !v.OK {
			t.Errorf("verify %s: live %d recovered %d", v.Table, v.Live, v.Recovered)
		}
	}
}

func TestReadReportInvalid(t *testing.T) {
	if _, err := ReadReport(strings.NewReader("run_id: [unterminated")); err == nil {
		t.Error("ReadReport() accepted invalid YAML")
	}
}
