package pager

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FocuswithJustin/sqlforensic/core/cache"
	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

// DefaultWindowSize is the size of the read-ahead window.
const DefaultWindowSize = 64 * 1024

// Store is a read-only, page-addressed view of a file. Reads are served
// from a sliding window that is refilled whenever a read falls outside it.
// A single mutex serializes seek+read so workers may share one Store.
type Store struct {
	mu     sync.Mutex
	r      io.ReadSeeker
	closer io.Closer
	path   string
	size   int64

	window    []byte
	winStart  int64
	winLen    int
	winSize   int
	pageSize  int
	header    *DatabaseHeader
	pageCount uint32

	pages *cache.LRU[uint32, []byte] // nil unless WithPageCache
}

// Option configures a Store.
type Option func(*Store)

// WithWindowSize sets the read-ahead window size.
func WithWindowSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.winSize = n
		}
	}
}

// WithPageCache keeps up to maxBytes of recently read pages in memory.
func WithPageCache(maxBytes int64) Option {
	return func(s *Store) {
		if maxBytes > 0 {
			s.pages = cache.NewBytes[uint32](maxBytes)
		}
	}
}

// Open opens path for page reads. The header is not parsed until ReadHeader.
func Open(path string, opts ...Option) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewIO("stat", path, err)
	}
	s := NewStore(f, info.Size(), opts...)
	s.closer = f
	s.path = path
	return s, nil
}

// NewStore wraps an already open reader of the given size.
func NewStore(r io.ReadSeeker, size int64, opts ...Option) *Store {
	s := &Store{
		r:        r,
		size:     size,
		winSize:  DefaultWindowSize,
		winStart: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.window = make([]byte, s.winSize)
	return s
}

// Close releases the underlying file, if the Store opened it.
func (s *Store) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Path returns the file path, or "" for stores built with NewStore.
func (s *Store) Path() string {
	return s.path
}

// Size returns the file size in bytes.
func (s *Store) Size() int64 {
	return s.size
}

// ReadHeader reads and validates the 100-byte database header and adopts
// its page size. A bad magic string returns a FormatError, which is fatal
// to a recovery run.
func (s *Store) ReadHeader() (*DatabaseHeader, error) {
	data, err := s.ReadAt(0, DatabaseHeaderSize)
	if err != nil {
		return nil, errors.NewFormat("database", s.path, "file shorter than the 100-byte header")
	}
	h, err := ParseDatabaseHeader(data)
	if err != nil {
		var fe *errors.FormatError
		if errors.As(err, &fe) {
			fe.Path = s.path
		}
		return nil, err
	}
	s.header = h
	s.SetPageSize(h.GetPageSize())
	return h, nil
}

// Header returns the header parsed by ReadHeader, or nil.
func (s *Store) Header() *DatabaseHeader {
	return s.header
}

// SetPageSize sets the page size used for page-number addressing. Log files
// call this with the page size found in their own headers.
func (s *Store) SetPageSize(ps int) {
	if s.pages != nil && ps != s.pageSize {
		s.pages.Clear()
	}
	s.pageSize = ps
	if ps > 0 {
		s.pageCount = uint32((s.size + int64(ps) - 1) / int64(ps))
	}
}

// PageSize returns the page size in bytes.
func (s *Store) PageSize() int {
	return s.pageSize
}

// PageCount returns the number of pages in the file, counting a trailing
// partial page. The header's own size field is advisory and not used.
func (s *Store) PageCount() uint32 {
	return s.pageCount
}

// ReadPage returns a copy of page n (1-based). A trailing partial page is
// zero-padded. Page numbers outside the file return an IOBoundsError.
func (s *Store) ReadPage(n uint32) ([]byte, error) {
	if s.pageSize <= 0 {
		return nil, fmt.Errorf("page size not set")
	}
	if n == 0 || n > s.pageCount {
		return nil, errors.NewBounds(int64(n-1)*int64(s.pageSize), s.pageSize, s.size)
	}
	if s.pages != nil {
		if page, ok := s.pages.Get(n); ok {
			return append([]byte(nil), page...), nil
		}
	}
	page, err := s.readPage(n)
	if err != nil {
		return nil, err
	}
	if s.pages != nil {
		s.pages.Put(n, append([]byte(nil), page...))
	}
	return page, nil
}

func (s *Store) readPage(n uint32) ([]byte, error) {
	offset := int64(n-1) * int64(s.pageSize)
	size := s.pageSize
	if offset+int64(size) <= s.size {
		return s.ReadAt(offset, size)
	}
	part, err := s.ReadAt(offset, int(s.size-offset))
	if err != nil {
		return nil, err
	}
	page := make([]byte, size)
	copy(page, part)
	return page, nil
}

// CacheStats returns the page cache statistics; zero without a cache.
func (s *Store) CacheStats() cache.Stats {
	if s.pages == nil {
		return cache.Stats{}
	}
	return s.pages.Stats()
}

// ReadAt returns a copy of size bytes at offset. A range that leaves the
// file returns nil and an IOBoundsError.
func (s *Store) ReadAt(offset int64, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+int64(size) > s.size {
		return nil, errors.NewBounds(offset, size, s.size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, size)
	if size > s.winSize {
		if err := s.readDirect(offset, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	if s.winStart < 0 || offset < s.winStart || offset+int64(size) > s.winStart+int64(s.winLen) {
		if err := s.fill(offset); err != nil {
			return nil, err
		}
	}
	start := int(offset - s.winStart)
	copy(out, s.window[start:start+size])
	return out, nil
}

// fill reloads the window starting at offset. Caller holds s.mu.
func (s *Store) fill(offset int64) error {
	n := s.winSize
	if remaining := s.size - offset; remaining < int64(n) {
		n = int(remaining)
	}
	if err := s.readDirect(offset, s.window[:n]); err != nil {
		s.winStart = -1
		return err
	}
	s.winStart = offset
	s.winLen = n
	return nil
}

// readDirect seeks and reads len(buf) bytes. Caller holds s.mu.
func (s *Store) readDirect(offset int64, buf []byte) error {
	if _, err := s.r.Seek(offset, io.SeekStart); err != nil {
		return errors.NewIO("seek", s.path, err)
	}
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return errors.NewIO("read", s.path, err)
	}
	return nil
}
