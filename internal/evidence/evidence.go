// Package evidence prepares input files for analysis: it digests them
// before anything reads them, transparently decompresses .xz and .gz
// copies, and locates the WAL and rollback journal next to a database.
package evidence

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
	"github.com/FocuswithJustin/sqlforensic/internal/validation"
)

// Companion file suffixes.
const (
	WALSuffix     = "-wal"
	JournalSuffix = "-journal"
)

var compressedSuffixes = []string{".xz", ".gz"}

// Digest holds the hashes of an evidence file as received.
type Digest struct {
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size" yaml:"size"`
	SHA256 string `json:"sha256" yaml:"sha256"`
	BLAKE3 string `json:"blake3" yaml:"blake3"`
}

// Item is one evidence file ready to be read.
type Item struct {
	Original   string // path as given
	Path       string // path to read, decompressed if needed
	Compressed bool
	Kind       validation.Kind // detected from the bytes to be read
	Digest     Digest
}

// Set is a database with its optional companions.
type Set struct {
	DB      *Item
	WAL     *Item
	Journal *Item

	tmpDir string
}

// HashFile computes SHA-256 and BLAKE3 over the file in one pass.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.NewIO("open", path, err)
	}
	defer f.Close()

	sh := sha256.New()
	b3 := blake3.New()
	n, err := io.Copy(io.MultiWriter(sh, b3), f)
	if err != nil {
		return Digest{}, errors.NewIO("read", path, err)
	}
	return Digest{
		Path:   path,
		Size:   n,
		SHA256: hex.EncodeToString(sh.Sum(nil)),
		BLAKE3: hex.EncodeToString(b3.Sum(nil)),
	}, nil
}

// Open digests dbPath and any companions found next to it, decompressing
// compressed files into a private temporary directory. Close removes it.
func Open(dbPath string) (*Set, error) {
	if err := validation.ValidatePath(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	s := &Set{}
	db, err := s.prepare(dbPath, validation.KindDatabase)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.DB = db

	base := trimCompressed(dbPath)
	if p, ok := findCompanion(base + WALSuffix); ok {
		if s.WAL, err = s.prepare(p, validation.KindWAL); err != nil {
			s.Close()
			return nil, err
		}
	}
	if p, ok := findCompanion(base + JournalSuffix); ok {
		if s.Journal, err = s.prepare(p, validation.KindJournal); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Digests returns the digests of every file in the set.
func (s *Set) Digests() []Digest {
	var out []Digest
	for _, it := range []*Item{s.DB, s.WAL, s.Journal} {
		if it != nil {
			out = append(out, it.Digest)
		}
	}
	return out
}

// Close removes decompressed copies.
func (s *Set) Close() error {
	if s.tmpDir == "" {
		return nil
	}
	err := os.RemoveAll(s.tmpDir)
	s.tmpDir = ""
	return err
}

// prepare digests path, decompresses it if needed and checks that its
// content looks like want. A mismatch is only logged: damaged evidence is
// still analysed.
func (s *Set) prepare(path string, want validation.Kind) (*Item, error) {
	d, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	logging.Info("evidence", "path", path, "size", d.Size, "sha256", d.SHA256, "blake3", d.BLAKE3)

	it := &Item{Original: path, Path: path, Digest: d}
	if trimCompressed(path) != path {
		if s.tmpDir == "" {
			if s.tmpDir, err = os.MkdirTemp("", "sqlforensic-*"); err != nil {
				return nil, errors.NewIO("mkdir", os.TempDir(), err)
			}
		}
		out := filepath.Join(s.tmpDir, filepath.Base(trimCompressed(path)))
		if err := Decompress(path, out); err != nil {
			return nil, err
		}
		it.Path = out
		it.Compressed = true
	}

	if it.Kind, err = detect(it.Path); err != nil {
		return nil, err
	}
	if it.Kind != want {
		logging.Warn("evidence content does not match its role", "path", it.Path, "want", string(want), "got", string(it.Kind))
	}
	return it, nil
}

func detect(path string) (validation.Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return validation.KindUnknown, errors.NewIO("open", path, err)
	}
	defer f.Close()
	return validation.DetectKind(f)
}

// Decompress writes the decompressed contents of src to dst, choosing the
// codec by src's suffix.
func Decompress(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.NewIO("open", src, err)
	}
	defer f.Close()

	var r io.Reader
	switch {
	case strings.HasSuffix(src, ".xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("xz reader: %w", err)
		}
		r = xzr
	case strings.HasSuffix(src, ".gz"):
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	default:
		return errors.NewUnsupported("compression", filepath.Ext(src))
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.NewIO("create", dst, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.NewIO("decompress", src, err)
	}
	return out.Close()
}

func trimCompressed(path string) string {
	for _, sfx := range compressedSuffixes {
		if strings.HasSuffix(path, sfx) {
			return strings.TrimSuffix(path, sfx)
		}
	}
	return path
}

// findCompanion looks for path itself or a compressed copy of it.
func findCompanion(path string) (string, bool) {
	for _, p := range append([]string{path}, path+".xz", path+".gz") {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}
