// Package journal reads the page images saved in a rollback journal.
//
// A rollback journal starts with a header padded to one sector:
//
//	Offset  Size  Description
//	0       8     Magic: d9 d5 05 f9 20 a1 63 d7
//	8       4     Number of page records in this segment
//	12      4     Random nonce for the checksum
//	16      4     Initial size of the database in pages
//	20      4     Sector size
//	24      4     Page size
//
// Page records start at offset 512. Each record is:
//
//	[4 bytes: page number in the database]
//	[page size bytes: original page content]
//	[4 bytes: checksum]
package journal

import (
	"bytes"
	"encoding/binary"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

// Journal header constants
const (
	// HeaderSize is the size of the meaningful part of the header.
	HeaderSize = 28

	// FrameOffset is where the first page record begins.
	FrameOffset = 512
)

// Magic is the 8-byte signature at the start of a journal file.
var Magic = []byte{0xd9, 0xd5, 0x05, 0xf9, 0x20, 0xa1, 0x63, 0xd7}

// Header is the parsed journal header.
type Header struct {
	PageCount    uint32 // Number of page records, 0xffffffff if unknown
	Nonce        uint32 // Random nonce
	InitialPages uint32 // Database size in pages before the transaction
	SectorSize   uint32 // Sector size
	PageSize     uint32 // Database page size
}

// ParseHeader validates the magic and decodes the header fields.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, errors.NewFormat("journal", "", "header too short")
	}
	if !bytes.Equal(data[:8], Magic) {
		return nil, errors.NewFormat("journal", "", "bad magic")
	}
	return &Header{
		PageCount:    binary.BigEndian.Uint32(data[8:12]),
		Nonce:        binary.BigEndian.Uint32(data[12:16]),
		InitialPages: binary.BigEndian.Uint32(data[16:20]),
		SectorSize:   binary.BigEndian.Uint32(data[20:24]),
		PageSize:     binary.BigEndian.Uint32(data[24:28]),
	}, nil
}

// Serialize encodes the header into a FrameOffset-byte block.
func (h *Header) Serialize() []byte {
	data := make([]byte, FrameOffset)
	copy(data, Magic)
	binary.BigEndian.PutUint32(data[8:12], h.PageCount)
	binary.BigEndian.PutUint32(data[12:16], h.Nonce)
	binary.BigEndian.PutUint32(data[16:20], h.InitialPages)
	binary.BigEndian.PutUint32(data[20:24], h.SectorSize)
	binary.BigEndian.PutUint32(data[24:28], h.PageSize)
	return data
}

// Source is the byte access the reader needs; *pager.Store provides it.
type Source interface {
	ReadAt(offset int64, size int) ([]byte, error)
	Size() int64
}

// Frame is one saved page image.
type Frame struct {
	Index      int    // 0-based record number
	PageNumber uint32 // page number in the database
	Offset     int64  // file offset of the page image
	Data       []byte
	Checksum   uint32
	Valid      bool // the stored checksum matches
}

// Reader iterates the page records of a journal.
type Reader struct {
	src      Source
	header   *Header
	pageSize int
}

// NewReader parses the journal header. dbPageSize is used when the
// header's page size field is not a valid page size. A journal no larger
// than FrameOffset holds no records and yields ok=false.
func NewReader(src Source, dbPageSize int) (*Reader, bool, error) {
	if src.Size() <= FrameOffset {
		return nil, false, nil
	}
	data, err := src.ReadAt(0, HeaderSize)
	if err != nil {
		return nil, false, err
	}
	h, err := ParseHeader(data)
	if err != nil {
		return nil, false, err
	}
	ps := int(h.PageSize)
	if !validPageSize(ps) {
		ps = dbPageSize
	}
	return &Reader{src: src, header: h, pageSize: ps}, true, nil
}

// Header returns the parsed header.
func (r *Reader) Header() *Header {
	return r.header
}

// PageSize returns the page size used to split records.
func (r *Reader) PageSize() int {
	return r.pageSize
}

// Frames reads every complete record from FrameOffset to the end of the
// file. The header's record count is advisory: journals left behind by a
// crash often have it zeroed.
func (r *Reader) Frames() ([]Frame, error) {
	recSize := int64(4 + r.pageSize + 4)
	var frames []Frame
	for off := int64(FrameOffset); off+recSize <= r.src.Size(); off += recSize {
		rec, err := r.src.ReadAt(off, int(recSize))
		if err != nil {
			return frames, err
		}
		f := Frame{
			Index:      len(frames),
			PageNumber: binary.BigEndian.Uint32(rec[0:4]),
			Offset:     off + 4,
			Data:       rec[4 : 4+r.pageSize],
			Checksum:   binary.BigEndian.Uint32(rec[4+r.pageSize:]),
		}
		f.Valid = f.Checksum == Checksum(r.header.Nonce, f.Data)
		frames = append(frames, f)
	}
	return frames, nil
}

// Checksum computes the record checksum SQLite stores: the nonce plus every
// 200th byte of the page, counting back from 200 bytes before its end.
func Checksum(nonce uint32, data []byte) uint32 {
	sum := nonce
	for i := len(data) - 200; i > 0; i -= 200 {
		sum += uint32(data[i])
	}
	return sum
}

func validPageSize(ps int) bool {
	return ps >= 512 && ps <= 65536 && ps&(ps-1) == 0
}
