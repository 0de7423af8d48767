package evidence

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/internal/validation"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(data)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func xzed(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	w.Write(data)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.db")
	data := []byte("SQLite format 3\x00 evidence")
	writeFile(t, path, data)

	d, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	sh := sha256.Sum256(data)
	b3 := blake3.Sum256(data)
	if d.SHA256 != hex.EncodeToString(sh[:]) || d.BLAKE3 != hex.EncodeToString(b3[:]) {
		t.Errorf("HashFile() = %+v", d)
	}
	if d.Size != int64(len(data)) {
		t.Errorf("Size = %d", d.Size)
	}
}

func TestOpenPlainWithCompanions(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "chat.db")
	writeFile(t, db, []byte("SQLite format 3\x00"))
	writeFile(t, db+WALSuffix, []byte("wal"))

	s, err := Open(db)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if s.DB.Path != db || s.DB.Compressed {
		t.Errorf("DB = %+v", s.DB)
	}
	if s.DB.Kind != validation.KindDatabase {
		t.Errorf("DB kind = %s", s.DB.Kind)
	}
	if s.WAL == nil || s.WAL.Path != db+WALSuffix {
		t.Fatalf("WAL = %+v", s.WAL)
	}
	// A companion with the wrong content is still opened.
	if s.WAL.Kind != validation.KindUnknown {
		t.Errorf("WAL kind = %s", s.WAL.Kind)
	}
	if s.Journal != nil {
		t.Errorf("Journal = %+v, want nil", s.Journal)
	}
	if len(s.Digests()) != 2 {
		t.Errorf("Digests() = %d entries", len(s.Digests()))
	}
}

func TestOpenCompressed(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("page"), 300)
	db := filepath.Join(dir, "chat.db.gz")
	writeFile(t, db, gzipped(t, content))
	writeFile(t, filepath.Join(dir, "chat.db-journal.xz"), xzed(t, []byte("journal")))

	s, err := Open(db)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !s.DB.Compressed || filepath.Base(s.DB.Path) != "chat.db" {
		t.Errorf("DB = %+v", s.DB)
	}
	got, err := os.ReadFile(s.DB.Path)
	if err != nil || !bytes.Equal(got, content) {
		t.Errorf("decompressed db differs: %v", err)
	}
	if s.Journal == nil {
		t.Fatal("compressed journal not found")
	}
	got, _ = os.ReadFile(s.Journal.Path)
	if string(got) != "journal" {
		t.Errorf("journal = %q", got)
	}

	// Digests cover the files as received, not the decompressed copies.
	want, _ := HashFile(db)
	if s.DB.Digest.SHA256 != want.SHA256 {
		t.Error("digest should be of the compressed file")
	}

	tmp := filepath.Dir(s.DB.Path)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temp dir %s still exists", tmp)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Error("Open() of a missing file should fail")
	}
	if _, err := Open("bad\x00name.db"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Open() of an invalid path error = %v", err)
	}
}
