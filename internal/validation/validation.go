// Package validation checks user-supplied paths and identifies evidence
// files by their leading bytes.
package validation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Limits on user-supplied names.
const (
	MaxFilenameLength = 255
	MaxPathLength     = 4096
)

// Common validation errors.
var (
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
)

// ValidatePath rejects empty paths, overlong paths and paths containing
// NUL or control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	for _, r := range path {
		if r == 0 {
			return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
		}
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateFilename checks that name can be used as a single file name.
func ValidateFilename(name string) error {
	if name == "" {
		return ErrInvalidFilename
	}
	if len(name) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// SanitizeFilename turns an arbitrary string, such as a table name read
// from a damaged schema, into a usable file name. Characters that are
// unsafe on common file systems become underscores.
func SanitizeFilename(name string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsControl(r):
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), "-")
	if len(out) > MaxFilenameLength {
		out = out[:MaxFilenameLength]
	}
	if err := ValidateFilename(out); err != nil {
		return "", err
	}
	return out, nil
}

// Kind is the detected type of an evidence file.
type Kind string

const (
	KindDatabase Kind = "sqlite"
	KindWAL      Kind = "wal"
	KindJournal  Kind = "journal"
	KindXZ       Kind = "xz"
	KindGzip     Kind = "gzip"
	KindEmpty    Kind = "empty"
	KindUnknown  Kind = "unknown"
)

var signatures = []struct {
	kind  Kind
	magic []byte
}{
	{KindDatabase, []byte("SQLite format 3\x00")},
	{KindJournal, []byte{0xd9, 0xd5, 0x05, 0xf9, 0x20, 0xa1, 0x63, 0xd7}},
	{KindXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{KindGzip, []byte{0x1f, 0x8b}},
}

// DetectKind reads the leading bytes of r and reports what kind of file
// it is. A journal whose header was zeroed after a commit is reported as
// unknown.
func DetectKind(r io.Reader) (Kind, error) {
	buf := make([]byte, 16)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return KindUnknown, fmt.Errorf("read file header: %w", err)
	}
	buf = buf[:n]
	if n == 0 {
		return KindEmpty, nil
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.kind, nil
		}
	}
	if n >= 4 {
		if m := binary.BigEndian.Uint32(buf); m == 0x377f0682 || m == 0x377f0683 {
			return KindWAL, nil
		}
	}
	return KindUnknown, nil
}
