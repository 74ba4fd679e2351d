package invoice

import (
	"errors"
	"fmt"
)

// Common invoice import errors
var (
	// ErrNoInvoices is returned when an upload contains a header but no data rows.
	ErrNoInvoices = errors.New("no invoices found")

	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing required column")

	// ErrMalformedCSV is returned when the upload is not readable as CSV.
	ErrMalformedCSV = errors.New("malformed CSV")
)

// ParseError wraps failures of a whole upload.
type ParseError struct {
	// Op is the operation that failed (e.g. "ParseCSV").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("invoice: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("invoice: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ParseError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewParseError creates a new ParseError.
func NewParseError(op string, err error, details string) *ParseError {
	return &ParseError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// ValidationError describes a cell that could not be read as-is. Imports
// continue past validation errors; they are reported as warnings.
type ValidationError struct {
	Row     int // 1-based data row
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: validation error for field '%s': %s (value: %v)", e.Row, e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(row int, field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Row:     row,
		Field:   field,
		Value:   value,
		Message: message,
	}
}
