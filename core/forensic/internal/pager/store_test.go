package pager

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/sqlforensic/core/cache"
	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

// buildImage returns a file image of n pages of size ps whose every byte
// encodes its page number, with a valid header on page 1.
func buildImage(t *testing.T, ps, n int) []byte {
	t.Helper()
	img := make([]byte, ps*n)
	for p := 0; p < n; p++ {
		for i := 0; i < ps; i++ {
			img[p*ps+i] = byte(p + 1)
		}
	}
	h := NewDatabaseHeader(ps)
	h.DatabaseSize = uint32(n)
	copy(img, h.Serialize())
	return img
}

func TestParseDatabaseHeader(t *testing.T) {
	h := NewDatabaseHeader(4096)
	h.FreelistTrunk = 7
	h.FreelistCount = 3
	h.TextEncoding = EncodingUTF16LE
	h.UserVersion = 42
	h.SQLiteVersion = 3045000
	h.ReservedSpace = 8

	got, err := ParseDatabaseHeader(h.Serialize())
	if err != nil {
		t.Fatalf("ParseDatabaseHeader() error = %v", err)
	}
	if got.GetPageSize() != 4096 || got.UsableSize() != 4088 {
		t.Errorf("page size = %d usable = %d", got.GetPageSize(), got.UsableSize())
	}
	if got.FreelistTrunk != 7 || got.FreelistCount != 3 {
		t.Errorf("freelist = %d/%d", got.FreelistTrunk, got.FreelistCount)
	}
	if got.TextEncoding != EncodingUTF16LE || got.UserVersion != 42 || got.SQLiteVersion != 3045000 {
		t.Errorf("unexpected header %+v", got)
	}
	if a := got.Anomalies(); len(a) != 0 {
		t.Errorf("Anomalies() = %v", a)
	}
}

func TestParseDatabaseHeaderPageSizeOne(t *testing.T) {
	h := NewDatabaseHeader(MaxPageSize)
	if h.PageSize != 1 {
		t.Fatalf("stored page size = %d, want 1", h.PageSize)
	}
	got, err := ParseDatabaseHeader(h.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if got.GetPageSize() != 65536 {
		t.Errorf("GetPageSize() = %d, want 65536", got.GetPageSize())
	}
}

func TestParseDatabaseHeaderErrors(t *testing.T) {
	good := NewDatabaseHeader(1024).Serialize()

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "SQLite format 2\x00")

	badSize := append([]byte(nil), good...)
	badSize[OffsetPageSize] = 0x03
	badSize[OffsetPageSize+1] = 0x00

	tests := []struct {
		name string
		data []byte
	}{
		{"short", good[:50]},
		{"bad magic", badMagic},
		{"page size not a power of two", badSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDatabaseHeader(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsFatal(err) {
				t.Errorf("error %v should be a fatal FormatError", err)
			}
		})
	}
}

func TestHeaderAnomalies(t *testing.T) {
	h := NewDatabaseHeader(4096)
	h.FileFormatRead = 9
	h.MaxPayloadFrac = 1
	h.TextEncoding = 7
	if got := len(h.Anomalies()); got != 3 {
		t.Errorf("Anomalies() returned %d entries, want 3: %v", got, h.Anomalies())
	}
}

func TestStoreReadPage(t *testing.T) {
	const ps = 1024
	img := buildImage(t, ps, 5)
	s := NewStore(bytes.NewReader(img), int64(len(img)), WithWindowSize(2048))

	if _, err := s.ReadPage(1); err == nil {
		t.Error("ReadPage before ReadHeader should fail")
	}

	h, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if h.GetPageSize() != ps || s.PageSize() != ps || s.PageCount() != 5 {
		t.Fatalf("page size %d count %d", s.PageSize(), s.PageCount())
	}

	// Jump around so the window is refilled in both directions.
	for _, n := range []uint32{3, 5, 2, 4, 2, 1} {
		page, err := s.ReadPage(n)
		if err != nil {
			t.Fatalf("ReadPage(%d) error = %v", n, err)
		}
		if len(page) != ps {
			t.Fatalf("ReadPage(%d) len = %d", n, len(page))
		}
		if page[ps-1] != byte(n) {
			t.Errorf("ReadPage(%d) last byte = %d", n, page[ps-1])
		}
	}
}

func TestStoreOutOfRangeIsSoft(t *testing.T) {
	img := buildImage(t, 512, 2)
	s := NewStore(bytes.NewReader(img), int64(len(img)))
	if _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	for _, n := range []uint32{0, 3, 1000} {
		page, err := s.ReadPage(n)
		if page != nil {
			t.Errorf("ReadPage(%d) returned data", n)
		}
		if !errors.Is(err, errors.ErrOutOfBounds) {
			t.Errorf("ReadPage(%d) error = %v, want ErrOutOfBounds", n, err)
		}
		if errors.IsFatal(err) {
			t.Errorf("ReadPage(%d) error must not be fatal", n)
		}
	}

	if _, err := s.ReadAt(1000, 100); !errors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("ReadAt past end error = %v", err)
	}
	if _, err := s.ReadAt(-1, 4); !errors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("ReadAt negative error = %v", err)
	}
}

func TestStoreTrailingPartialPage(t *testing.T) {
	img := buildImage(t, 512, 3)
	img = img[:512*2+100]
	s := NewStore(bytes.NewReader(img), int64(len(img)))
	if _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if s.PageCount() != 3 {
		t.Fatalf("PageCount() = %d, want 3", s.PageCount())
	}
	page, err := s.ReadPage(3)
	if err != nil {
		t.Fatal(err)
	}
	if page[99] != 3 || page[100] != 0 || len(page) != 512 {
		t.Errorf("partial page not zero padded: %d %d %d", page[99], page[100], len(page))
	}
}

func TestStoreLargeReadBypassesWindow(t *testing.T) {
	img := buildImage(t, 512, 8)
	s := NewStore(bytes.NewReader(img), int64(len(img)), WithWindowSize(600))
	data, err := s.ReadAt(512, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 2 || data[2047] != 5 {
		t.Errorf("unexpected bytes %d %d", data[0], data[2047])
	}
}

func TestOpenBadMagicIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.db")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, 4096), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, err = s.ReadHeader()
	var fe *errors.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("ReadHeader() error = %v, want FormatError", err)
	}
	if fe.Path != path {
		t.Errorf("FormatError.Path = %q, want %q", fe.Path, path)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	var ioErr *errors.IOError
	if !errors.As(err, &ioErr) {
		t.Errorf("Open() error = %v, want IOError", err)
	}
}

func TestStorePageCache(t *testing.T) {
	const ps = 512
	img := buildImage(t, ps, 4)
	s := NewStore(bytes.NewReader(img), int64(len(img)), WithPageCache(2*ps))
	if _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	for _, n := range []uint32{2, 2, 3, 2, 4, 3} {
		page, err := s.ReadPage(n)
		if err != nil {
			t.Fatal(err)
		}
		if page[ps-1] != byte(n) {
			t.Fatalf("ReadPage(%d) last byte = %d", n, page[ps-1])
		}
		// Callers own the returned slice.
		page[ps-1] = 0xff
	}

	st := s.CacheStats()
	if st.Hits != 2 || st.Misses != 4 || st.Size != 2 || st.Evictions != 2 {
		t.Errorf("CacheStats() = %+v", st)
	}

	plain := NewStore(bytes.NewReader(img), int64(len(img)))
	if st := plain.CacheStats(); st != (cache.Stats{}) {
		t.Errorf("store without cache reported %+v", st)
	}
}
