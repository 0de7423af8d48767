// Package record decodes SQLite records from page bytes.
//
// A record consists of:
//  1. Header: varint header_size, followed by varint type codes for each column
//  2. Body: column values in sequence
//
// Serial type codes:
//
//	0: NULL (or the rowid alias of an INTEGER PRIMARY KEY column)
//	1: 8-bit signed integer
//	2: 16-bit big-endian signed integer
//	3: 24-bit big-endian signed integer
//	4: 32-bit big-endian signed integer
//	5: 48-bit big-endian signed integer
//	6: 64-bit big-endian signed integer
//	7: IEEE 754 float64 (big-endian)
//	8: integer constant 0 (no data stored)
//	9: integer constant 1 (no data stored)
//	10,11: Reserved for internal use, decoded as NULL
//	N>=12 (even): BLOB of (N-12)/2 bytes
//	N>=13 (odd): TEXT of (N-13)/2 bytes
package record

import "fmt"

// Kind is the storage class family of a serial type.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindZero
	KindOne
	KindReserved
	KindBlob
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindZero:
		return "zero"
	case KindOne:
		return "one"
	case KindReserved:
		return "reserved"
	case KindBlob:
		return "blob"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Serial type codes with fixed meaning.
const (
	SerialTypeNull    = 0
	SerialTypeInt8    = 1
	SerialTypeInt16   = 2
	SerialTypeInt24   = 3
	SerialTypeInt32   = 4
	SerialTypeInt48   = 5
	SerialTypeInt64   = 6
	SerialTypeFloat64 = 7
	SerialTypeZero    = 8
	SerialTypeOne     = 9
)

// MaxValueLen is the largest TEXT or BLOB length a serial type may claim.
// Longer codes only occur in corrupt headers and are clamped to it.
const MaxValueLen = 1<<31 - 1

// SerialType is a decoded column type code.
type SerialType struct {
	Code uint64
	Kind Kind
	Len  int
}

var intLens = [...]int{0, 1, 2, 3, 4, 6, 8}

// Classify maps a serial type code to its kind and body length.
func Classify(code uint64) SerialType {
	switch {
	case code == SerialTypeNull:
		return SerialType{Code: code, Kind: KindNull}
	case code <= SerialTypeInt64:
		return SerialType{Code: code, Kind: KindInt, Len: intLens[code]}
	case code == SerialTypeFloat64:
		return SerialType{Code: code, Kind: KindFloat, Len: 8}
	case code == SerialTypeZero:
		return SerialType{Code: code, Kind: KindZero}
	case code == SerialTypeOne:
		return SerialType{Code: code, Kind: KindOne}
	case code == 10 || code == 11:
		return SerialType{Code: code, Kind: KindReserved}
	case code%2 == 0:
		return SerialType{Code: code, Kind: KindBlob, Len: int(min((code-12)/2, MaxValueLen))}
	default:
		return SerialType{Code: code, Kind: KindText, Len: int(min((code-13)/2, MaxValueLen))}
	}
}

// BlobCode returns the serial type code of a BLOB of n bytes.
func BlobCode(n int) uint64 {
	return uint64(n)*2 + 12
}

// TextCode returns the serial type code of a TEXT of n bytes.
func TextCode(n int) uint64 {
	return uint64(n)*2 + 13
}

// StorageClass returns the one-letter class used in table signatures:
// N for null and reserved codes, I for integers and the two constants,
// F for floats, T for text and B for blobs.
func (s SerialType) StorageClass() byte {
	switch s.Kind {
	case KindInt, KindZero, KindOne:
		return 'I'
	case KindFloat:
		return 'F'
	case KindText:
		return 'T'
	case KindBlob:
		return 'B'
	default:
		return 'N'
	}
}

// BodyLen returns the total body length of a header's columns, saturating
// at MaxValueLen.
func BodyLen(types []SerialType) int {
	n := 0
	for _, t := range types {
		n += t.Len
		if n > MaxValueLen {
			return MaxValueLen
		}
	}
	return n
}

// ParseHeader decodes a record header at the start of data. It returns the
// serial types and the header length, which includes the length varint.
func ParseHeader(data []byte) ([]SerialType, int, error) {
	hl, n := getVarint(data)
	if n == 0 {
		return nil, 0, underflow("header length", 1, len(data))
	}
	if hl < uint64(n) || hl > uint64(len(data)) {
		return nil, 0, underflow("record header", int(min(hl, 1<<31)), len(data))
	}
	types := make([]SerialType, 0, hl)
	pos := n
	for pos < int(hl) {
		code, m := getVarint(data[pos:int(hl)])
		if m == 0 {
			return nil, 0, underflow("serial type", pos+1, int(hl))
		}
		types = append(types, Classify(code))
		pos += m
	}
	return types, int(hl), nil
}
