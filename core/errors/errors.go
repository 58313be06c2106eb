// Package errors provides standardized error types and helpers for versecite.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedLocation indicates a location group that does not fit the
	// number/range/list/colon grammar
	ErrMalformedLocation = errors.New("malformed location group")
	// ErrDegenerateRange indicates a range whose start is greater than its end
	ErrDegenerateRange = errors.New("degenerate range")
	// ErrValueOutOfRange indicates a chapter or verse number outside the accepted bounds
	ErrValueOutOfRange = fmt.Errorf("%w: value out of range", ErrMalformedLocation)
	// ErrOrphanLocation indicates a location group seen before any book name
	ErrOrphanLocation = errors.New("location without a book")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "document")
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

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
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

// ParseError represents a failure to parse a piece of citation text
type ParseError struct {
	Format  string // What was being parsed (e.g., "location group", "list", "XML")
	Input   string // Offending input, if short enough to be useful
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

// RangeError reports a numeric range or value the expander refuses to expand.
type RangeError struct {
	Start int
	End   int
	Err   error // ErrDegenerateRange or ErrValueOutOfRange
}

func (e *RangeError) Error() string {
	if e.Start == e.End {
		return fmt.Sprintf("%v: %d", e.Err, e.Start)
	}
	return fmt.Sprintf("%v: %d-%d", e.Err, e.Start, e.End)
}

func (e *RangeError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedLocation
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
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
	return &ParseError{
		Format:  format,
		Input:   input,
		Message: message,
	}
}

// NewRange creates a RangeError
func NewRange(start, end int, err error) *RangeError {
	return &RangeError{
		Start: start,
		End:   end,
		Err:   err,
	}
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
