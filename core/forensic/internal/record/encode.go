package record

import (
	"encoding/binary"
	"math"

	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
)

// SerialTypeFor returns the serial type SQLite would choose for v.
func SerialTypeFor(v Value) uint64 {
	switch v.Type.Kind {
	case KindNull, KindReserved:
		return SerialTypeNull
	case KindFloat:
		return SerialTypeFloat64
	case KindText:
		return TextCode(len(v.textBytes()))
	case KindBlob:
		return BlobCode(len(v.Bytes))
	}
	i := v.Int
	switch {
	case i == 0:
		return SerialTypeZero
	case i == 1:
		return SerialTypeOne
	case i >= -128 && i <= 127:
		return SerialTypeInt8
	case i >= -32768 && i <= 32767:
		return SerialTypeInt16
	case i >= -8388608 && i <= 8388607:
		return SerialTypeInt24
	case i >= -2147483648 && i <= 2147483647:
		return SerialTypeInt32
	case i >= -140737488355328 && i <= 140737488355327:
		return SerialTypeInt48
	default:
		return SerialTypeInt64
	}
}

func (v Value) textBytes() []byte {
	if v.Bytes != nil {
		return v.Bytes
	}
	return []byte(v.Text)
}

// Encode builds a record (header and body) from values. It is the inverse
// of ParseHeader plus DecodeValue and is used to build synthetic pages.
func Encode(values []Value) []byte {
	codes := make([]uint64, len(values))
	var header []byte
	for i, v := range values {
		codes[i] = SerialTypeFor(v)
		header = btree.AppendVarint(header, codes[i])
	}

	// The header length counts its own varint.
	hl := len(header) + 1
	if btree.VarintLen(uint64(hl)) > 1 {
		hl = len(header) + btree.VarintLen(uint64(len(header)+2))
	}
	out := btree.AppendVarint(nil, uint64(hl))
	out = append(out, header...)

	for i, v := range values {
		st := Classify(codes[i])
		switch st.Kind {
		case KindInt:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(v.Int))
			out = append(out, buf[8-st.Len:]...)
		case KindFloat:
			out = binary.BigEndian.AppendUint64(out, math.Float64bits(v.Float))
		case KindText:
			out = append(out, v.textBytes()...)
		case KindBlob:
			out = append(out, v.Bytes...)
		}
	}
	return out
}

// EncodeTableLeafCell encodes a table leaf cell whose payload fits on the page.
// Format: varint(payload_size), varint(rowid), payload
func EncodeTableLeafCell(rowid int64, payload []byte) []byte {
	out := btree.AppendVarint(nil, uint64(len(payload)))
	out = btree.AppendVarint(out, uint64(rowid))
	return append(out, payload...)
}

// FloatValue creates a float value
func FloatValue(f float64) Value {
	return Value{Type: Classify(SerialTypeFloat64), Float: f}
}

// BlobValue creates a blob value
func BlobValue(b []byte) Value {
	return Value{Type: Classify(BlobCode(len(b))), Bytes: b}
}
