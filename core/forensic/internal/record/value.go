package record

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
)

var getVarint = btree.GetVarint

func underflow(what string, need, have int) error {
	return errors.NewUnderflow(what, need, have)
}

// Text encodings, matching the database header values.
const (
	EncodingUTF8    = 1
	EncodingUTF16LE = 2
	EncodingUTF16BE = 3
)

// Value is one decoded column.
type Value struct {
	Type      SerialType
	Int       int64
	Float     float64
	Bytes     []byte // raw body bytes for text and blob
	Text      string
	Truncated bool // fewer body bytes were available than declared
}

// IsNull reports whether the value carries no data.
func (v Value) IsNull() bool {
	return v.Type.Kind == KindNull || v.Type.Kind == KindReserved
}

// String renders the value the way recovered rows are exported: integers in
// decimal, floats with eight decimals, text as-is and blobs as hex.
func (v Value) String() string {
	switch v.Type.Kind {
	case KindInt, KindZero, KindOne:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return fmt.Sprintf("%.8f", v.Float)
	case KindText:
		return v.Text
	case KindBlob:
		return hex.EncodeToString(v.Bytes)
	default:
		return ""
	}
}

// DecodeValue decodes a column of type st from body. If body holds fewer
// bytes than st declares, the value is built from what is there and marked
// Truncated; numeric values that are cut short decode as zero.
func DecodeValue(st SerialType, body []byte, encoding uint32) Value {
	v := Value{Type: st}
	if len(body) < st.Len {
		v.Truncated = true
		if st.Kind == KindText || st.Kind == KindBlob {
			st.Len = len(body)
		} else {
			return v
		}
	}
	b := body[:st.Len]

	switch st.Kind {
	case KindZero:
		v.Int = 0
	case KindOne:
		v.Int = 1
	case KindInt:
		v.Int = decodeInt(b)
	case KindFloat:
		v.Float = math.Float64frombits(binary.BigEndian.Uint64(b))
	case KindBlob:
		v.Bytes = append([]byte(nil), b...)
	case KindText:
		v.Bytes = append([]byte(nil), b...)
		v.Text = decodeText(b, encoding)
	}
	return v
}

// decodeInt sign-extends a 1, 2, 3, 4, 6 or 8 byte big-endian integer.
func decodeInt(b []byte) int64 {
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	shift := uint(64 - 8*len(b))
	return int64(u<<shift) >> shift
}

func decodeText(b []byte, encoding uint32) string {
	switch encoding {
	case EncodingUTF16LE, EncodingUTF16BE:
		units := make([]uint16, len(b)/2)
		for i := range units {
			if encoding == EncodingUTF16LE {
				units[i] = binary.LittleEndian.Uint16(b[2*i:])
			} else {
				units[i] = binary.BigEndian.Uint16(b[2*i:])
			}
		}
		return string(utf16.Decode(units))
	default:
		return string(b)
	}
}

// IntValue creates an integer value
func IntValue(i int64) Value {
	return Value{Type: Classify(SerialTypeInt64), Int: i}
}

// TextValue creates a text value
func TextValue(s string) Value {
	return Value{Type: Classify(TextCode(len(s))), Text: s, Bytes: []byte(s)}
}

// NullValue creates a NULL value
func NullValue() Value {
	return Value{Type: Classify(SerialTypeNull)}
}
