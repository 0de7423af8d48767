// Package wal reads the frames of a write-ahead log.
//
// WAL header (32 bytes, big-endian):
//
//	Offset  Size  Description
//	0       4     Magic: 0x377f0682 (little-endian checksums) or 0x377f0683 (big-endian)
//	4       4     File format version (3007000)
//	8       4     Database page size
//	12      4     Checkpoint sequence number
//	16      4     Salt-1
//	20      4     Salt-2
//	24      4     Checksum-1
//	28      4     Checksum-2
//
// Each frame is a 24-byte header followed by one page image:
//
//	0       4     Page number
//	4       4     Database size in pages after a commit, 0 otherwise
//	8       4     Salt-1 copied from the WAL header
//	12      4     Salt-2 copied from the WAL header
//	16      4     Checksum-1
//	20      4     Checksum-2
package wal

import (
	"encoding/binary"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

// WAL format constants
const (
	HeaderSize      = 32
	FrameHeaderSize = 24

	MagicLittleEndian uint32 = 0x377f0682
	MagicBigEndian    uint32 = 0x377f0683

	FormatVersion = 3007000
)

// Header is the parsed WAL header.
type Header struct {
	Magic        uint32
	Version      uint32
	PageSize     uint32
	CheckpointSq uint32
	Salt1        uint32
	Salt2        uint32
	Checksum1    uint32
	Checksum2    uint32
}

// ParseHeader validates the magic and decodes the header fields.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, errors.NewFormat("wal", "", "header too short")
	}
	h := &Header{
		Magic:        binary.BigEndian.Uint32(data[0:4]),
		Version:      binary.BigEndian.Uint32(data[4:8]),
		PageSize:     binary.BigEndian.Uint32(data[8:12]),
		CheckpointSq: binary.BigEndian.Uint32(data[12:16]),
		Salt1:        binary.BigEndian.Uint32(data[16:20]),
		Salt2:        binary.BigEndian.Uint32(data[20:24]),
		Checksum1:    binary.BigEndian.Uint32(data[24:28]),
		Checksum2:    binary.BigEndian.Uint32(data[28:32]),
	}
	if h.Magic != MagicLittleEndian && h.Magic != MagicBigEndian {
		return nil, errors.NewFormat("wal", "", "bad magic")
	}
	return h, nil
}

// Serialize encodes the header, computing its checksum.
func (h *Header) Serialize() []byte {
	data := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(data[0:4], h.Magic)
	binary.BigEndian.PutUint32(data[4:8], h.Version)
	binary.BigEndian.PutUint32(data[8:12], h.PageSize)
	binary.BigEndian.PutUint32(data[12:16], h.CheckpointSq)
	binary.BigEndian.PutUint32(data[16:20], h.Salt1)
	binary.BigEndian.PutUint32(data[20:24], h.Salt2)
	h.Checksum1, h.Checksum2 = Checksum(h.bigEndian(), 0, 0, data[:24])
	binary.BigEndian.PutUint32(data[24:28], h.Checksum1)
	binary.BigEndian.PutUint32(data[28:32], h.Checksum2)
	return data
}

func (h *Header) bigEndian() bool {
	return h.Magic == MagicBigEndian
}

// Source is the byte access the reader needs; *pager.Store provides it.
type Source interface {
	ReadAt(offset int64, size int) ([]byte, error)
	Size() int64
}

// Frame is one page image in the log.
type Frame struct {
	Index      int // 0-based frame number
	PageNumber uint32
	CommitSize uint32
	Salt1      uint32
	Salt2      uint32
	Checksum1  uint32
	Checksum2  uint32
	Offset     int64 // file offset of the page image
	Data       []byte

	// Valid is set when the frame's salts match the header and its
	// checksum continues the running checksum of the frames before it.
	Valid bool
}

// Commit reports whether the frame ends a transaction.
func (f *Frame) Commit() bool {
	return f.CommitSize != 0
}

// Checkpoint is a run of frames sharing one salt pair, in log order.
type Checkpoint struct {
	Salt1  uint32
	Salt2  uint32
	Frames []Frame
}

// Reader iterates the frames of a WAL file.
type Reader struct {
	src      Source
	header   *Header
	pageSize int
}

// NewReader parses the WAL header. dbPageSize is used when the header's
// page size is not a valid page size. A file too short to hold one frame
// yields ok=false.
func NewReader(src Source, dbPageSize int) (*Reader, bool, error) {
	if src.Size() < HeaderSize+FrameHeaderSize {
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

// PageSize returns the page size used to split frames.
func (r *Reader) PageSize() int {
	return r.pageSize
}

// HeaderValid reports whether the header checksum matches.
func (r *Reader) HeaderValid() bool {
	data, err := r.src.ReadAt(0, HeaderSize)
	if err != nil {
		return false
	}
	s1, s2 := Checksum(r.header.bigEndian(), 0, 0, data[:24])
	return s1 == r.header.Checksum1 && s2 == r.header.Checksum2
}

// Frames reads every complete frame in the file. Frames left over from
// earlier checkpoints are returned too, with Valid false; their page
// images are still worth carving.
func (r *Reader) Frames() ([]Frame, error) {
	frameSize := int64(FrameHeaderSize + r.pageSize)
	be := r.header.bigEndian()
	s1, s2 := r.header.Checksum1, r.header.Checksum2
	chained := true

	var frames []Frame
	for off := int64(HeaderSize); off+frameSize <= r.src.Size(); off += frameSize {
		raw, err := r.src.ReadAt(off, int(frameSize))
		if err != nil {
			return frames, err
		}
		f := Frame{
			Index:      len(frames),
			PageNumber: binary.BigEndian.Uint32(raw[0:4]),
			CommitSize: binary.BigEndian.Uint32(raw[4:8]),
			Salt1:      binary.BigEndian.Uint32(raw[8:12]),
			Salt2:      binary.BigEndian.Uint32(raw[12:16]),
			Checksum1:  binary.BigEndian.Uint32(raw[16:20]),
			Checksum2:  binary.BigEndian.Uint32(raw[20:24]),
			Offset:     off + FrameHeaderSize,
			Data:       raw[FrameHeaderSize:],
		}
		if chained && f.Salt1 == r.header.Salt1 && f.Salt2 == r.header.Salt2 {
			c1, c2 := Checksum(be, s1, s2, raw[:8])
			c1, c2 = Checksum(be, c1, c2, f.Data)
			if c1 == f.Checksum1 && c2 == f.Checksum2 {
				f.Valid = true
				s1, s2 = c1, c2
			} else {
				chained = false
			}
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Group splits frames into checkpoints by salt pair, in order of first
// appearance.
func Group(frames []Frame) []Checkpoint {
	var out []Checkpoint
	index := make(map[[2]uint32]int)
	for _, f := range frames {
		key := [2]uint32{f.Salt1, f.Salt2}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Checkpoint{Salt1: f.Salt1, Salt2: f.Salt2})
		}
		out[i].Frames = append(out[i].Frames, f)
	}
	return out
}

// Checksum extends the running WAL checksum (s1, s2) over data, whose
// length must be a multiple of 8. Words are read big-endian when be is
// set, little-endian otherwise.
func Checksum(be bool, s1, s2 uint32, data []byte) (uint32, uint32) {
	var order binary.ByteOrder = binary.LittleEndian
	if be {
		order = binary.BigEndian
	}
	for i := 0; i+8 <= len(data); i += 8 {
		s1 += order.Uint32(data[i:]) + s2
		s2 += order.Uint32(data[i+4:]) + s1
	}
	return s1, s2
}

// AppendFrame encodes a frame after the given running checksum and
// returns the new checksum. It is used to build logs in tests and tools.
func AppendFrame(dst []byte, h *Header, pgno, commit uint32, page []byte, s1, s2 uint32) ([]byte, uint32, uint32) {
	fh := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(fh[0:4], pgno)
	binary.BigEndian.PutUint32(fh[4:8], commit)
	binary.BigEndian.PutUint32(fh[8:12], h.Salt1)
	binary.BigEndian.PutUint32(fh[12:16], h.Salt2)
	s1, s2 = Checksum(h.bigEndian(), s1, s2, fh[:8])
	s1, s2 = Checksum(h.bigEndian(), s1, s2, page)
	binary.BigEndian.PutUint32(fh[16:20], s1)
	binary.BigEndian.PutUint32(fh[20:24], s2)
	dst = append(dst, fh...)
	return append(dst, page...), s1, s2
}

func validPageSize(ps int) bool {
	return ps >= 512 && ps <= 65536 && ps&(ps-1) == 0
}
