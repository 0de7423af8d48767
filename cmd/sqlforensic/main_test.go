package main

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/sqlforensic/core/sqlite"
	"github.com/FocuswithJustin/sqlforensic/internal/export"
)

// runCLI parses args against the real command tree and runs the selected
// command, returning what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	stdout, logOutput = &out, io.Discard
	t.Cleanup(func() { stdout, logOutput = os.Stdout, os.Stderr })

	parser, err := kong.New(&CLI, kong.Name("sqlforensic"), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("kong.New() error = %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return out.String(), err
	}
	err = ctx.Run(ctx)
	return out.String(), err
}

func createTestDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "case.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	for _, s := range []string{
		"PRAGMA secure_delete=OFF",
		"CREATE TABLE messages (id INTEGER PRIMARY KEY, sender TEXT, body TEXT)",
		"INSERT INTO messages VALUES (1, 'kim', 'see you at noon')",
		"INSERT INTO messages VALUES (2, 'lee', 'bring the documents')",
		"INSERT INTO messages VALUES (3, 'kim', 'running late')",
		"DELETE FROM messages WHERE id = 2",
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func TestRecoverCmd(t *testing.T) {
	dir := t.TempDir()
	path := createTestDB(t, dir)
	outDir := filepath.Join(dir, "csv")
	report := filepath.Join(dir, "report.yaml")
	metricsFile := filepath.Join(dir, "metrics.prom")

	out, err := runCLI(t, "recover", path,
		"--out", outDir, "--report", report, "--metrics-file", metricsFile,
		"--workers", "2", "--verify")
	if err != nil {
		t.Fatalf("recover error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "messages") || !strings.Contains(out, "OK") {
		t.Errorf("summary missing table or verify status:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(outDir, "messages.csv")); err != nil {
		t.Errorf("messages.csv not written: %v", err)
	}

	f, err := os.Open(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	defer f.Close()
	rep, err := export.ReadReport(f)
	if err != nil {
		t.Fatal(err)
	}
	if rep.RunID == "" || len(rep.Evidence) != 1 || len(rep.Files) == 0 {
		t.Errorf("report = run %q, %d digests, %d files", rep.RunID, len(rep.Evidence), len(rep.Files))
	}

	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(prom), "sqlforensic_rows_recovered_total") {
		t.Error("metrics file has no row counters")
	}
}

func TestRecoverCmdCompressedEvidence(t *testing.T) {
	dir := t.TempDir()
	path := createTestDB(t, dir)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := path + ".gz"
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	if err := os.WriteFile(gz, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "recover", gz, "--workers", "1")
	if err != nil {
		t.Fatalf("recover error = %v", err)
	}
	if !strings.Contains(out, "messages") {
		t.Errorf("compressed evidence not recovered:\n%s", out)
	}
}

func TestRecoverCmdDeletedOnly(t *testing.T) {
	path := createTestDB(t, t.TempDir())
	out, err := runCLI(t, "recover", path, "--deleted-only", "--no-unallocated")
	if err != nil {
		t.Fatalf("recover error = %v", err)
	}
	if strings.Contains(out, "sqlite_master") {
		t.Errorf("sqlite_master has only regular rows and should be omitted:\n%s", out)
	}
}

func TestRecoverCmdMissingFile(t *testing.T) {
	if _, err := runCLI(t, "recover", filepath.Join(t.TempDir(), "absent.db")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestHeaderCmd(t *testing.T) {
	path := createTestDB(t, t.TempDir())
	out, err := runCLI(t, "header", path)
	if err != nil {
		t.Fatalf("header error = %v", err)
	}
	for _, want := range []string{"page_size: 4096", "text_encoding: UTF-8"} {
		if !strings.Contains(out, want) {
			t.Errorf("header output missing %q:\n%s", want, out)
		}
	}
}

func TestHeaderCmdRejectsNonDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, bytes.Repeat([]byte("plain text "), 20), 0o600)
	if _, err := runCLI(t, "header", path); err == nil {
		t.Error("expected a format error")
	}
}

func TestWALCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	for _, s := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA wal_autocheckpoint=0",
		"CREATE TABLE t (x TEXT)",
		"INSERT INTO t VALUES ('in the log')",
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	wal, err := os.ReadFile(path + "-wal")
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
	copyPath := filepath.Join(dir, "copy.db-wal")
	if err := os.WriteFile(copyPath, wal, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "wal", copyPath)
	if err != nil {
		t.Fatalf("wal error = %v", err)
	}
	if !strings.Contains(out, "header checksum valid: true") || !strings.Contains(out, "Checkpoints: 1") {
		t.Errorf("unexpected wal output:\n%s", out)
	}
}

func TestJournalCmd(t *testing.T) {
	const pageSize, nonce = 512, 0x1234
	buf := make([]byte, 512+4+pageSize+4)
	copy(buf, []byte{0xd9, 0xd5, 0x05, 0xf9, 0x20, 0xa1, 0x63, 0xd7})
	binary.BigEndian.PutUint32(buf[8:], 1)
	binary.BigEndian.PutUint32(buf[12:], nonce)
	binary.BigEndian.PutUint32(buf[16:], 3)
	binary.BigEndian.PutUint32(buf[20:], 512)
	binary.BigEndian.PutUint32(buf[24:], pageSize)
	binary.BigEndian.PutUint32(buf[512:], 2)
	// An all-zero page checksums to the nonce.
	binary.BigEndian.PutUint32(buf[512+4+pageSize:], nonce)

	path := filepath.Join(t.TempDir(), "x.db-journal")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "journal", path)
	if err != nil {
		t.Fatalf("journal error = %v", err)
	}
	if !strings.Contains(out, "initial pages: 3") {
		t.Errorf("header not printed:\n%s", out)
	}
	var record string
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) == 4 && f[0] == "0" {
			record = line
		}
	}
	if f := strings.Fields(record); len(f) != 4 || f[1] != "2" || f[2] != "516" || f[3] != "true" {
		t.Errorf("record line = %q", record)
	}
}

func TestVerifyCmd(t *testing.T) {
	path := createTestDB(t, t.TempDir())
	out, err := runCLI(t, "verify", path)
	if err != nil {
		t.Fatalf("verify error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "messages") || strings.Contains(out, "MISMATCH") {
		t.Errorf("unexpected verify output:\n%s", out)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("version output = %q", out)
	}
	info := sqlite.GetInfo()
	if !strings.Contains(out, info.Package) || !strings.Contains(out, info.DriverType) {
		t.Errorf("version output %q lacks driver info %+v", out, info)
	}
}
