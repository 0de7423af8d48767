// Package pager reads SQLite files page by page for recovery.
//
// It never writes. Reads past the end of the file fail softly with an
// IOBoundsError so that callers can log and continue; only a bad magic
// header is fatal.
package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

// File format constants
const (
	// DatabaseHeaderSize is the size of the database file header (first 100 bytes).
	DatabaseHeaderSize = 100

	// MinPageSize is the minimum allowed page size (512 bytes).
	MinPageSize = 512

	// MaxPageSize is the maximum allowed page size (65536 bytes).
	MaxPageSize = 65536

	// MagicHeaderString is the magic header string for SQLite 3 database files.
	// Must be exactly 16 bytes including the null terminator.
	MagicHeaderString = "SQLite format 3\x00"
)

// Database header byte offsets
const (
	OffsetMagic             = 0  // 16 bytes
	OffsetPageSize          = 16 // 2 bytes; 1 means 65536
	OffsetFileFormatWrite   = 18 // 1 byte
	OffsetFileFormatRead    = 19 // 1 byte
	OffsetReservedSpace     = 20 // 1 byte, unused bytes at the end of each page
	OffsetMaxPayloadFrac    = 21 // 1 byte, must be 64
	OffsetMinPayloadFrac    = 22 // 1 byte, must be 32
	OffsetLeafPayloadFrac   = 23 // 1 byte, must be 32
	OffsetFileChangeCounter = 24
	OffsetDatabaseSize      = 28 // in pages
	OffsetFreelistTrunk     = 32
	OffsetFreelistCount     = 36
	OffsetSchemaCookie      = 40
	OffsetSchemaFormat      = 44
	OffsetDefaultCacheSize  = 48
	OffsetLargestRootPage   = 52 // non-zero in auto-vacuum mode
	OffsetTextEncoding      = 56
	OffsetUserVersion       = 60
	OffsetIncrementalVacuum = 64
	OffsetApplicationID     = 68
	OffsetVersionValidFor   = 92
	OffsetSQLiteVersion     = 96
)

// Text encoding values
const (
	EncodingUTF8    = 1
	EncodingUTF16LE = 2
	EncodingUTF16BE = 3
)

// DatabaseHeader represents the 100-byte header at the beginning of every SQLite database file.
type DatabaseHeader struct {
	Magic             [16]byte
	PageSize          uint16 // as stored; see GetPageSize
	FileFormatWrite   uint8
	FileFormatRead    uint8
	ReservedSpace     uint8
	MaxPayloadFrac    uint8
	MinPayloadFrac    uint8
	LeafPayloadFrac   uint8
	FileChangeCounter uint32
	DatabaseSize      uint32
	FreelistTrunk     uint32
	FreelistCount     uint32
	SchemaCookie      uint32
	SchemaFormat      uint32
	DefaultCacheSize  uint32
	LargestRootPage   uint32
	TextEncoding      uint32
	UserVersion       uint32
	IncrementalVacuum uint32
	ApplicationID     uint32
	VersionValidFor   uint32
	SQLiteVersion     uint32
}

// ParseDatabaseHeader parses the 100-byte database header from raw bytes.
// A wrong magic string or an impossible page size yields a FormatError.
func ParseDatabaseHeader(data []byte) (*DatabaseHeader, error) {
	if len(data) < DatabaseHeaderSize {
		return nil, errors.NewFormat("database", "", fmt.Sprintf("header too short: got %d bytes, want %d", len(data), DatabaseHeaderSize))
	}

	header := &DatabaseHeader{}

	copy(header.Magic[:], data[OffsetMagic:OffsetMagic+16])
	if string(header.Magic[:]) != MagicHeaderString {
		return nil, errors.NewFormat("database", "", fmt.Sprintf("invalid magic header: got %q, want %q", header.Magic[:], MagicHeaderString))
	}

	header.PageSize = binary.BigEndian.Uint16(data[OffsetPageSize:])
	if !isValidPageSize(header.GetPageSize()) {
		return nil, errors.NewFormat("database", "", fmt.Sprintf("invalid page size: %d", header.PageSize))
	}

	header.FileFormatWrite = data[OffsetFileFormatWrite]
	header.FileFormatRead = data[OffsetFileFormatRead]
	header.ReservedSpace = data[OffsetReservedSpace]
	header.MaxPayloadFrac = data[OffsetMaxPayloadFrac]
	header.MinPayloadFrac = data[OffsetMinPayloadFrac]
	header.LeafPayloadFrac = data[OffsetLeafPayloadFrac]

	u32 := func(off int) uint32 { return binary.BigEndian.Uint32(data[off : off+4]) }
	header.FileChangeCounter = u32(OffsetFileChangeCounter)
	header.DatabaseSize = u32(OffsetDatabaseSize)
	header.FreelistTrunk = u32(OffsetFreelistTrunk)
	header.FreelistCount = u32(OffsetFreelistCount)
	header.SchemaCookie = u32(OffsetSchemaCookie)
	header.SchemaFormat = u32(OffsetSchemaFormat)
	header.DefaultCacheSize = u32(OffsetDefaultCacheSize)
	header.LargestRootPage = u32(OffsetLargestRootPage)
	header.TextEncoding = u32(OffsetTextEncoding)
	header.UserVersion = u32(OffsetUserVersion)
	header.IncrementalVacuum = u32(OffsetIncrementalVacuum)
	header.ApplicationID = u32(OffsetApplicationID)
	header.VersionValidFor = u32(OffsetVersionValidFor)
	header.SQLiteVersion = u32(OffsetSQLiteVersion)

	return header, nil
}

// Serialize serializes the database header to 100 bytes.
func (h *DatabaseHeader) Serialize() []byte {
	data := make([]byte, DatabaseHeaderSize)

	copy(data[OffsetMagic:], h.Magic[:])
	binary.BigEndian.PutUint16(data[OffsetPageSize:], h.PageSize)

	data[OffsetFileFormatWrite] = h.FileFormatWrite
	data[OffsetFileFormatRead] = h.FileFormatRead
	data[OffsetReservedSpace] = h.ReservedSpace
	data[OffsetMaxPayloadFrac] = h.MaxPayloadFrac
	data[OffsetMinPayloadFrac] = h.MinPayloadFrac
	data[OffsetLeafPayloadFrac] = h.LeafPayloadFrac

	binary.BigEndian.PutUint32(data[OffsetFileChangeCounter:], h.FileChangeCounter)
	binary.BigEndian.PutUint32(data[OffsetDatabaseSize:], h.DatabaseSize)
	binary.BigEndian.PutUint32(data[OffsetFreelistTrunk:], h.FreelistTrunk)
	binary.BigEndian.PutUint32(data[OffsetFreelistCount:], h.FreelistCount)
	binary.BigEndian.PutUint32(data[OffsetSchemaCookie:], h.SchemaCookie)
	binary.BigEndian.PutUint32(data[OffsetSchemaFormat:], h.SchemaFormat)
	binary.BigEndian.PutUint32(data[OffsetDefaultCacheSize:], h.DefaultCacheSize)
	binary.BigEndian.PutUint32(data[OffsetLargestRootPage:], h.LargestRootPage)
	binary.BigEndian.PutUint32(data[OffsetTextEncoding:], h.TextEncoding)
	binary.BigEndian.PutUint32(data[OffsetUserVersion:], h.UserVersion)
	binary.BigEndian.PutUint32(data[OffsetIncrementalVacuum:], h.IncrementalVacuum)
	binary.BigEndian.PutUint32(data[OffsetApplicationID:], h.ApplicationID)
	binary.BigEndian.PutUint32(data[OffsetVersionValidFor:], h.VersionValidFor)
	binary.BigEndian.PutUint32(data[OffsetSQLiteVersion:], h.SQLiteVersion)

	return data
}

// NewDatabaseHeader creates a header with SQLite's defaults, used to build
// synthetic images.
func NewDatabaseHeader(pageSize int) *DatabaseHeader {
	stored := uint16(pageSize)
	if pageSize == MaxPageSize {
		stored = 1
	}

	header := &DatabaseHeader{
		PageSize:        stored,
		FileFormatWrite: 1,
		FileFormatRead:  1,
		MaxPayloadFrac:  64,
		MinPayloadFrac:  32,
		LeafPayloadFrac: 32,
		SchemaFormat:    4,
		TextEncoding:    EncodingUTF8,
	}
	copy(header.Magic[:], MagicHeaderString)
	return header
}

// isValidPageSize checks if a page size is a power of 2 between 512 and 65536.
func isValidPageSize(size int) bool {
	if size < MinPageSize || size > MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}

// GetPageSize returns the actual page size, handling the special case where
// a stored value of 1 means 65536.
func (h *DatabaseHeader) GetPageSize() int {
	if h.PageSize == 1 {
		return MaxPageSize
	}
	return int(h.PageSize)
}

// UsableSize returns the page size minus the reserved tail bytes.
func (h *DatabaseHeader) UsableSize() int {
	return h.GetPageSize() - int(h.ReservedSpace)
}

// Anomalies lists header values a well-behaved SQLite would never write.
// They are reported, not enforced, since an examined file may be damaged
// or tampered with.
func (h *DatabaseHeader) Anomalies() []string {
	var out []string
	if h.FileFormatWrite != 1 && h.FileFormatWrite != 2 {
		out = append(out, fmt.Sprintf("file format write version %d", h.FileFormatWrite))
	}
	if h.FileFormatRead != 1 && h.FileFormatRead != 2 {
		out = append(out, fmt.Sprintf("file format read version %d", h.FileFormatRead))
	}
	if h.MaxPayloadFrac != 64 || h.MinPayloadFrac != 32 || h.LeafPayloadFrac != 32 {
		out = append(out, fmt.Sprintf("payload fractions %d/%d/%d", h.MaxPayloadFrac, h.MinPayloadFrac, h.LeafPayloadFrac))
	}
	if h.SchemaFormat > 4 {
		out = append(out, fmt.Sprintf("schema format %d", h.SchemaFormat))
	}
	if h.TextEncoding > EncodingUTF16BE {
		out = append(out, fmt.Sprintf("text encoding %d", h.TextEncoding))
	}
	return out
}
