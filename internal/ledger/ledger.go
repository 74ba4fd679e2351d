// Package ledger renders allocation results in the accounting import format.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"invoicepay/pkg/models"
)

// Headers are the import columns in order.
var Headers = []string{
	"Payment Date",
	"Customer",
	"Payment Method",
	"Deposit To Account Name",
	"Invoice No",
	"Journal No",
	"Amount",
	"Reference No",
	"Memo",
	"Country Code",
	"Exchange Rate",
}

// Row is one exported ledger line. Journal No, Reference No, Country Code
// and Exchange Rate are filled in by the accounting system on import.
type Row struct {
	PaymentDate    string `csv:"Payment Date"`
	Customer       string `csv:"Customer"`
	PaymentMethod  string `csv:"Payment Method"`
	DepositAccount string `csv:"Deposit To Account Name"`
	InvoiceNo      string `csv:"Invoice No"`
	JournalNo      string `csv:"Journal No"`
	Amount         string `csv:"Amount"`
	ReferenceNo    string `csv:"Reference No"`
	Memo           string `csv:"Memo"`
	CountryCode    string `csv:"Country Code"`
	ExchangeRate   string `csv:"Exchange Rate"`
}

// Options controls export formatting.
type Options struct {
	UppercaseCustomer bool
}

// NewRow maps a payment onto the export columns.
func NewRow(p models.Payment, opts Options) Row {
	customer := p.CustomerName
	if opts.UppercaseCustomer {
		customer = strings.ToUpper(customer)
	}
	return Row{
		PaymentDate:    p.Date,
		Customer:       customer,
		PaymentMethod:  p.Method,
		DepositAccount: p.DepositTo,
		InvoiceNo:      p.InvoiceNo(),
		Amount:         FormatAmount(p.Amount),
		Memo:           p.Memo,
	}
}

// Rows maps every payment onto the export columns.
func Rows(payments []models.Payment, opts Options) []Row {
	rows := make([]Row, len(payments))
	for i, p := range payments {
		rows[i] = NewRow(p, opts)
	}
	return rows
}

// WriteCSV writes the ledger with a header row.
func WriteCSV(w io.Writer, payments []models.Payment, opts Options) error {
	return WriteRows(w, Rows(payments, opts))
}

// WriteRows writes already mapped rows with a header row. With no rows only
// the header is written.
func WriteRows(w io.Writer, rows []Row) error {
	csvWriter := csv.NewWriter(w)
	if len(rows) == 0 {
		if err := csvWriter.Write(Headers); err != nil {
			return fmt.Errorf("error writing ledger CSV: %w", err)
		}
		csvWriter.Flush()
		return csvWriter.Error()
	}
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing ledger CSV: %w", err)
	}
	return nil
}

// Values returns the rows as spreadsheet cells in Headers order.
func Values(payments []models.Payment, opts Options) [][]interface{} {
	out := make([][]interface{}, len(payments))
	for i, r := range Rows(payments, opts) {
		out[i] = []interface{}{
			r.PaymentDate,
			r.Customer,
			r.PaymentMethod,
			r.DepositAccount,
			r.InvoiceNo,
			r.JournalNo,
			r.Amount,
			r.ReferenceNo,
			r.Memo,
			r.CountryCode,
			r.ExchangeRate,
		}
	}
	return out
}

// FormatAmount renders money with two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
