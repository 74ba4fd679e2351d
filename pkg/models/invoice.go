package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DisplayDateLayout is the MM-DD-YYYY form used on every ledger line.
const DisplayDateLayout = "01-02-2006"

type Invoice struct {
	// Core identifiers
	ID            int    // Position in the uploaded file (1-based)
	InvoiceNumber string // Human-readable invoice number, unique within a run

	// Customer
	CustomerName  string // Customer column as exported by the accounting system
	CustomerPhone string // Phone extracted from the customer text (empty if none)

	// Dates
	InvoiceDate     time.Time // Parsed invoice date (zero if unparseable)
	InvoiceDateText string    // Original date text, kept for display

	// Amounts
	Amount decimal.Decimal // Face value of the invoice
}

// HasIdentity reports whether the invoice can be bucketed by customer.
func (i Invoice) HasIdentity() bool {
	return strings.TrimSpace(i.CustomerPhone) != "" || strings.TrimSpace(i.CustomerName) != ""
}

// DisplayDate returns the invoice date as MM-DD-YYYY, or the original text
// when the date could not be parsed.
func (i Invoice) DisplayDate() string {
	if i.InvoiceDate.IsZero() {
		return i.InvoiceDateText
	}
	return i.InvoiceDate.Format(DisplayDateLayout)
}
