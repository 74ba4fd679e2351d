package allocation

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCustomerIdentity is returned when an invoice has neither a
	// customer name nor a customer phone, so it cannot be bucketed.
	ErrMissingCustomerIdentity = errors.New("invoice has no customer name or phone")

	// ErrDuplicateInvoiceNumber is returned when two invoices in one run share a number.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")
)

// InvalidInputError reports an invoice that violates the input contract.
// Any such error aborts the whole run.
type InvalidInputError struct {
	// Index is the position of the offending invoice in the input slice.
	Index int

	// InvoiceNumber identifies the invoice, if it has one.
	InvoiceNumber string

	// Field names the offending field.
	Field string

	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	if e.InvoiceNumber != "" {
		return fmt.Sprintf("invalid invoice %q at index %d (%s): %v", e.InvoiceNumber, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("invalid invoice at index %d (%s): %v", e.Index, e.Field, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *InvalidInputError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newInvalidInputError(index int, invoiceNumber, field string, err error) *InvalidInputError {
	return &InvalidInputError{
		Index:         index,
		InvoiceNumber: invoiceNumber,
		Field:         field,
		Err:           err,
	}
}
