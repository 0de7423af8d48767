package journal

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/pager"
)

const testPageSize = 1024

func buildJournal(h *Header, pages map[uint32][]byte, order []uint32, corrupt int) []byte {
	buf := h.Serialize()
	for i, pgno := range order {
		data := pages[pgno]
		rec := make([]byte, 4+len(data)+4)
		binary.BigEndian.PutUint32(rec, pgno)
		copy(rec[4:], data)
		sum := Checksum(h.Nonce, data)
		if i == corrupt {
			sum++
		}
		binary.BigEndian.PutUint32(rec[4+len(data):], sum)
		buf = append(buf, rec...)
	}
	return buf
}

func filledPage(b byte) []byte {
	p := make([]byte, testPageSize)
	for i := range p {
		p[i] = b + byte(i%7)
	}
	return p
}

func storeOf(buf []byte) *pager.Store {
	return pager.NewStore(bytes.NewReader(buf), int64(len(buf)))
}

func TestParseHeader(t *testing.T) {
	h := &Header{PageCount: 2, Nonce: 0xdeadbeef, InitialPages: 7, SectorSize: 512, PageSize: testPageSize}
	got, err := ParseHeader(h.Serialize())
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if *got != *h {
		t.Errorf("ParseHeader() = %+v, want %+v", got, h)
	}

	bad := h.Serialize()
	bad[0] = 0
	if _, err := ParseHeader(bad); !errors.Is(err, errors.ErrFormat) {
		t.Errorf("bad magic error = %v, want ErrFormat", err)
	}
	if _, err := ParseHeader(bad[:10]); !errors.Is(err, errors.ErrFormat) {
		t.Errorf("short header error = %v, want ErrFormat", err)
	}
}

func TestFrames(t *testing.T) {
	h := &Header{PageCount: 2, Nonce: 12345, InitialPages: 4, SectorSize: 512, PageSize: testPageSize}
	pages := map[uint32][]byte{2: filledPage(1), 3: filledPage(9)}
	buf := buildJournal(h, pages, []uint32{2, 3}, 1)
	// A torn trailing record is ignored.
	buf = append(buf, 0, 0, 0, 5, 1, 2)

	r, ok, err := NewReader(storeOf(buf), 4096)
	if err != nil || !ok {
		t.Fatalf("NewReader() = %v, %v", ok, err)
	}
	if r.PageSize() != testPageSize {
		t.Errorf("PageSize() = %d", r.PageSize())
	}
	frames, err := r.Frames()
	if err != nil {
		t.Fatalf("Frames() error = %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}

	f := frames[0]
	if f.Index != 0 || f.PageNumber != 2 || f.Offset != FrameOffset+4 || !f.Valid {
		t.Errorf("frame 0 = {%d %d %d %v}", f.Index, f.PageNumber, f.Offset, f.Valid)
	}
	if !bytes.Equal(f.Data, pages[2]) {
		t.Error("frame 0 data differs from the saved page")
	}
	f = frames[1]
	if f.PageNumber != 3 || f.Valid {
		t.Errorf("frame 1 = page %d valid %v, want page 3 invalid", f.PageNumber, f.Valid)
	}
	if want := int64(FrameOffset + 4 + testPageSize + 4 + 4); f.Offset != want {
		t.Errorf("frame 1 offset = %d, want %d", f.Offset, want)
	}
}

func TestNewReaderSkipsEmptyJournal(t *testing.T) {
	h := &Header{PageSize: testPageSize}
	r, ok, err := NewReader(storeOf(h.Serialize()), testPageSize)
	if r != nil || ok || err != nil {
		t.Errorf("NewReader(header only) = %v, %v, %v", r, ok, err)
	}
}

func TestNewReaderFallsBackToDatabasePageSize(t *testing.T) {
	h := &Header{Nonce: 1, PageSize: 0}
	pages := map[uint32][]byte{1: make([]byte, 512)}
	buf := buildJournal(h, pages, []uint32{1}, -1)

	r, ok, err := NewReader(storeOf(buf), 512)
	if err != nil || !ok {
		t.Fatalf("NewReader() = %v, %v", ok, err)
	}
	frames, _ := r.Frames()
	if r.PageSize() != 512 || len(frames) != 1 || !frames[0].Valid {
		t.Errorf("PageSize() = %d, frames = %d", r.PageSize(), len(frames))
	}
}

func TestChecksum(t *testing.T) {
	data := make([]byte, 1024)
	data[824] = 3
	data[624] = 4
	data[24] = 5
	data[0] = 99 // never sampled
	if got := Checksum(10, data); got != 10+3+4+5 {
		t.Errorf("Checksum() = %d, want 22", got)
	}
}
