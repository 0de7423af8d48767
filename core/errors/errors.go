// Package errors provides the error types shared by the recovery engine.
//
// Errors fall into three severities. A FormatError is fatal and aborts a run.
// IOBoundsError and BufferUnderflowError are soft: the caller logs them and
// moves on to the next page or cell. Everything else is wrapped with context
// through Wrap and Wrapf.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrFormat indicates a file that is not in the expected binary format
	ErrFormat = errors.New("bad format")
	// ErrOutOfBounds indicates an offset or page number beyond the file extent
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrUnderflow indicates a buffer too short for the value being decoded
	ErrUnderflow = errors.New("buffer underflow")
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// FormatError reports a file whose magic header or fixed layout is wrong.
type FormatError struct {
	Format string // "database", "wal", "journal"
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid %s file %s: %s", e.Format, e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid %s file: %s", e.Format, e.Reason)
}

func (e *FormatError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrFormat
}

// IOBoundsError reports a read that starts or ends beyond the file.
type IOBoundsError struct {
	Offset int64
	Size   int
	Limit  int64
}

func (e *IOBoundsError) Error() string {
	return fmt.Sprintf("read of %d bytes at offset %d exceeds file size %d", e.Size, e.Offset, e.Limit)
}

func (e *IOBoundsError) Unwrap() error {
	return ErrOutOfBounds
}

// BufferUnderflowError reports a value that needs more bytes than remain.
type BufferUnderflowError struct {
	What string // what was being decoded
	Need int
	Have int
}

func (e *BufferUnderflowError) Error() string {
	return fmt.Sprintf("buffer underflow decoding %s: need %d bytes, have %d", e.What, e.Need, e.Have)
}

func (e *BufferUnderflowError) Unwrap() error {
	return ErrUnderflow
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "table", "page")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "open")
	Path      string // File path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a statement or record that could not be parsed
type ParseError struct {
	Format  string // Format being parsed (e.g., "CREATE TABLE", "record")
	Input   string // Offending input, possibly shortened
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("failed to parse %s %q: %s", e.Format, e.Input, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewFormat creates a FormatError
func NewFormat(format, path, reason string) *FormatError {
	return &FormatError{
		Format: format,
		Path:   path,
		Reason: reason,
	}
}

// NewBounds creates an IOBoundsError
func NewBounds(offset int64, size int, limit int64) *IOBoundsError {
	return &IOBoundsError{
		Offset: offset,
		Size:   size,
		Limit:  limit,
	}
}

// NewUnderflow creates a BufferUnderflowError
func NewUnderflow(what string, need, have int) *BufferUnderflowError {
	return &BufferUnderflowError{
		What: what,
		Need: need,
		Have: have,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, input, message string) *ParseError {
	if len(input) > 64 {
		input = input[:64] + "..."
	}
	return &ParseError{
		Format:  format,
		Input:   input,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// IsFatal reports whether err must abort a recovery run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFormat)
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
