package services

import (
	"context"
	"io"

	"invoicepay/internal/invoice"
	"invoicepay/internal/reconciliation"
	"invoicepay/internal/review"
	"invoicepay/pkg/models"
)

// TransactionSource supplies mobile-money receipts for a reconciliation window.
// *reconciliation.DataReader implements it.
type TransactionSource interface {
	// Transactions returns the receipts inside w, in channel order.
	Transactions(ctx context.Context, w reconciliation.Window) ([]models.Transaction, error)
}

// InvoiceSource reads an accounting-system invoice export.
// *invoice.Importer implements it.
type InvoiceSource interface {
	ParseCSV(r io.Reader) (*invoice.ParseResult, error)
}

// LedgerSink stores exported ledger rows, e.g. in a spreadsheet tab.
// *sheets.Service implements it.
type LedgerSink interface {
	AppendRows(ctx context.Context, sheetName string, headers []string, rows [][]interface{}) error
}

// Advisor proposes invoices for receipts the allocation left unused.
// *review.Advisor implements it.
type Advisor interface {
	Review(ctx context.Context, payments []models.Payment, txns []models.Transaction) ([]review.Suggestion, error)
}
