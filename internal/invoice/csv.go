package invoice

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"invoicepay/internal/logger"
	"invoicepay/pkg/models"
)

// Accepted header spellings, first match wins.
var (
	customerHeaders = []string{"Customer", "Customer Name"}
	numberHeaders   = []string{"Invoice No", "Invoice Number", "Num", "No."}
	amountHeaders   = []string{"Amount", "Total", "Open Balance"}
	dateHeaders     = []string{"Invoice Date", "Date"}
)

// ParseResult is the outcome of reading an invoice export.
type ParseResult struct {
	Invoices []models.Invoice
	Warnings []*ValidationError
}

// Importer reads accounting-system invoice exports.
type Importer struct {
	log zerolog.Logger
}

// NewImporter creates an invoice importer.
func NewImporter() *Importer {
	return &Importer{log: logger.WithComponent("invoice-import")}
}

// ParseCSV reads an invoice export with a header row. Unreadable amounts and
// dates become warnings, never errors; a missing column or an empty file
// fails the whole import.
func (im *Importer) ParseCSV(r io.Reader) (*ParseResult, error) {
	const op = "ParseCSV"

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewParseError(op, err, "reading upload")
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	rows, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return nil, NewParseError(op, fmt.Errorf("%w: %v", ErrMalformedCSV, err), "")
	}
	if len(rows) == 0 {
		return nil, NewParseError(op, ErrNoInvoices, "")
	}

	header, err := im.resolveHeader(data)
	if err != nil {
		return nil, NewParseError(op, err, "")
	}

	res := &ParseResult{Invoices: make([]models.Invoice, 0, len(rows))}
	for i, raw := range rows {
		rowNum := i + 1
		row := trimKeys(raw)
		if isEmptyRow(row) {
			continue
		}

		customer := strings.TrimSpace(row[header.customer])
		amountText := strings.TrimSpace(row[header.amount])
		dateText := ""
		if header.date != "" {
			dateText = strings.TrimSpace(row[header.date])
		}

		amount, err := ParseAmount(amountText)
		if err != nil {
			res.Warnings = append(res.Warnings, NewValidationError(rowNum, header.amount, amountText, "not a number, using 0"))
			amount = decimal.Zero
		}

		date, ok := ParseDate(dateText)
		if !ok && dateText != "" {
			res.Warnings = append(res.Warnings, NewValidationError(rowNum, header.date, dateText, "unrecognised date, invoice sorts last"))
		}

		res.Invoices = append(res.Invoices, models.Invoice{
			ID:              rowNum,
			InvoiceNumber:   strings.TrimSpace(row[header.number]),
			CustomerName:    customer,
			CustomerPhone:   ExtractPhone(customer),
			InvoiceDate:     date,
			InvoiceDateText: dateText,
			Amount:          amount,
		})
	}

	for _, w := range res.Warnings {
		im.log.Warn().Int("row", w.Row).Str("field", w.Field).Interface("value", w.Value).Msg(w.Message)
	}
	im.log.Info().
		Int("rows", len(rows)).
		Int("invoices", len(res.Invoices)).
		Int("warnings", len(res.Warnings)).
		Msg("Invoices imported")

	return res, nil
}

type columns struct {
	customer, number, amount, date string
}

func (im *Importer) resolveHeader(data []byte) (columns, error) {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return columns{}, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}

	pick := func(options []string) string {
		for _, o := range options {
			if present[o] {
				return o
			}
		}
		return ""
	}

	cols := columns{
		customer: pick(customerHeaders),
		number:   pick(numberHeaders),
		amount:   pick(amountHeaders),
		date:     pick(dateHeaders),
	}
	switch {
	case cols.customer == "":
		return cols, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(customerHeaders, " or "))
	case cols.number == "":
		return cols, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(numberHeaders, " or "))
	case cols.amount == "":
		return cols, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(amountHeaders, " or "))
	}
	if cols.date == "" {
		im.log.Warn().Msg("No invoice date column, every invoice will sort last")
	}
	return cols, nil
}

func trimKeys(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[strings.TrimSpace(k)] = v
	}
	return out
}

func isEmptyRow(row map[string]string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// TemplateRow is one line of the sample upload file.
type TemplateRow struct {
	Customer    string `csv:"Customer"`
	InvoiceNo   string `csv:"Invoice No"`
	Amount      string `csv:"Amount"`
	InvoiceDate string `csv:"Invoice Date"`
}

// TemplateRows returns the sample invoices offered to users as a starting point.
func TemplateRows() []TemplateRow {
	return []TemplateRow{
		{Customer: "JOHN DOE", InvoiceNo: "123456", Amount: "50000", InvoiceDate: "01/15/2026"},
		{Customer: "JANE SMITH", InvoiceNo: "123457", Amount: "75000", InvoiceDate: "01/16/2026"},
		{Customer: "MIKE JOHNSON", InvoiceNo: "123458", Amount: "30000", InvoiceDate: "01/17/2026"},
	}
}

// WriteTemplate writes the sample upload file as CSV.
func WriteTemplate(w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	if err := gocsv.MarshalCSV(TemplateRows(), gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing invoice template: %w", err)
	}
	return nil
}
