package schema

import (
	"fmt"
	"strings"
)

// Affinity represents SQLite column type affinity.
type Affinity byte

const (
	AFF_NONE    Affinity = 0x00 // No declared type
	AFF_BLOB    Affinity = 0x41 // 'A' - BLOB affinity
	AFF_TEXT    Affinity = 0x42 // 'B' - TEXT affinity
	AFF_NUMERIC Affinity = 0x43 // 'C' - NUMERIC affinity
	AFF_INTEGER Affinity = 0x44 // 'D' - INTEGER affinity
	AFF_REAL    Affinity = 0x45 // 'E' - REAL affinity
)

// String returns the string representation of affinity.
func (a Affinity) String() string {
	switch a {
	case AFF_NONE:
		return "NONE"
	case AFF_BLOB:
		return "BLOB"
	case AFF_TEXT:
		return "TEXT"
	case AFF_NUMERIC:
		return "NUMERIC"
	case AFF_INTEGER:
		return "INTEGER"
	case AFF_REAL:
		return "REAL"
	default:
		return fmt.Sprintf("Affinity(%d)", a)
	}
}

// Letter returns the signature letter of the affinity. Integer and real
// match the storage class letters of record.SerialType; columns without a
// declared type or with numeric affinity accept any class and use '*'.
func (a Affinity) Letter() byte {
	switch a {
	case AFF_INTEGER:
		return 'I'
	case AFF_REAL:
		return 'F'
	case AFF_TEXT:
		return 'T'
	case AFF_BLOB:
		return 'B'
	default:
		return '*'
	}
}

// AffinityFromType determines the affinity of a declared column type using
// SQLite's substring rules. Unlike the engine's rule an empty type yields
// AFF_NONE, since a column without a declared type constrains nothing when
// carving.
func AffinityFromType(typeName string) Affinity {
	if strings.TrimSpace(typeName) == "" {
		return AFF_NONE
	}

	upper := strings.ToUpper(typeName)

	// INTEGER affinity
	if strings.Contains(upper, "INT") {
		return AFF_INTEGER
	}

	// TEXT affinity
	if strings.Contains(upper, "CHAR") ||
		strings.Contains(upper, "CLOB") ||
		strings.Contains(upper, "TEXT") {
		return AFF_TEXT
	}

	// BLOB affinity
	if strings.Contains(upper, "BLOB") {
		return AFF_BLOB
	}

	// REAL affinity
	if strings.Contains(upper, "REAL") ||
		strings.Contains(upper, "FLOA") ||
		strings.Contains(upper, "DOUB") {
		return AFF_REAL
	}

	// Default to NUMERIC
	return AFF_NUMERIC
}

// Accepts reports whether a value of storage class c (a record.SerialType
// storage class letter) can be stored in a column of this affinity. NULL is
// accepted everywhere. REAL columns hold integral values as integers on disk
// and INTEGER columns keep non-integral values as floats.
func (a Affinity) Accepts(c byte) bool {
	if c == 'N' {
		return true
	}
	switch a {
	case AFF_INTEGER, AFF_REAL:
		return c == 'I' || c == 'F'
	case AFF_TEXT:
		return c == 'T' || c == 'B'
	default:
		return true
	}
}
