package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one mobile-money receipt read from a channel sheet.
type Transaction struct {
	// Identity
	ID            string // Row id: transaction id column, else "<channel>-<row>"
	TransactionID string // Provider transaction id (may be empty)
	Channel       string // Ledger the row came from (boda, iphone, lipa, ...)

	// Sender
	CustomerName  string // Contract name column
	CustomerPhone string // Sender contacts column
	ContractName  string // Contract name column (alternate customer label)

	// Money
	Amount decimal.NullDecimal // Invalid until a usable amount was parsed

	// Received date
	ReceivedAt      time.Time // Zero when the date text could not be parsed
	ReceivedRaw     string    // e.g. "22 Jan 2026, 06:23 pm (EAT)"
	ReceivedDate    string    // Date label, e.g. "22 Jan 2026"
	ReceivedDateKey string    // YYYY-MM-DD, empty when unparsed

	// Free text
	PaymentChannel string // M-PESA, MIXX BY YAS, ...
	Message        string // Raw SMS body
}

// Ref identifies the transaction on ledger lines: the provider transaction id
// when present, otherwise the row id.
func (t Transaction) Ref() string {
	if t.TransactionID != "" {
		return t.TransactionID
	}
	return t.ID
}

// HasAmount reports whether the transaction carries money that can be allocated.
func (t Transaction) HasAmount() bool {
	return t.Amount.Valid && !t.Amount.Decimal.IsZero()
}

// ReceivedMillis returns the received time as epoch milliseconds, 0 when unknown.
func (t Transaction) ReceivedMillis() int64 {
	if t.ReceivedAt.IsZero() {
		return 0
	}
	return t.ReceivedAt.UnixMilli()
}

// DisplayName returns the best available human label for the sender.
func (t Transaction) DisplayName() string {
	switch {
	case t.CustomerName != "":
		return t.CustomerName
	case t.ContractName != "":
		return t.ContractName
	default:
		return t.CustomerPhone
	}
}

// EastAfrica is the fixed UTC+3 zone the mobile-money ledgers are written in.
var EastAfrica = time.FixedZone("EAT", 3*60*60)
