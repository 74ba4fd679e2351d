package invoice

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"invoicepay/pkg/models"
)

var phonePattern = regexp.MustCompile(`\d{10,}`)

// invoiceDateLayouts lists accepted invoice date forms. Slash dates are month
// first, as the accounting export writes them.
var invoiceDateLayouts = []string{
	"1/2/2006",
	"01-02-2006",
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	time.RFC3339,
}

// Input is an invoice as submitted by an API client, typically echoed back
// from a previous upload.
type Input struct {
	ID            int             `json:"id,omitempty"`
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Amount        decimal.Decimal `json:"amount"`
	InvoiceDate   string          `json:"invoiceDate"`
}

// FromModel converts an invoice back to its API form.
func FromModel(inv models.Invoice) Input {
	date := inv.InvoiceDateText
	if date == "" && !inv.InvoiceDate.IsZero() {
		date = inv.InvoiceDate.Format("01/02/2006")
	}
	return Input{
		ID:            inv.ID,
		CustomerName:  inv.CustomerName,
		CustomerPhone: inv.CustomerPhone,
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.Amount,
		InvoiceDate:   date,
	}
}

// Normalize turns an API invoice into the engine's model. Identity is not
// checked here; the allocation engine rejects invoices it cannot bucket.
func Normalize(in Input) models.Invoice {
	name := strings.TrimSpace(in.CustomerName)
	phone := strings.TrimSpace(in.CustomerPhone)
	if phone == "" {
		phone = ExtractPhone(name)
	}

	dateText := strings.TrimSpace(in.InvoiceDate)
	date, _ := ParseDate(dateText)

	return models.Invoice{
		ID:              in.ID,
		InvoiceNumber:   strings.TrimSpace(in.InvoiceNumber),
		CustomerName:    name,
		CustomerPhone:   phone,
		InvoiceDate:     date,
		InvoiceDateText: dateText,
		Amount:          in.Amount,
	}
}

// NormalizeAll normalises a batch, numbering invoices without an ID by position.
func NormalizeAll(inputs []Input) []models.Invoice {
	out := make([]models.Invoice, len(inputs))
	for i, in := range inputs {
		if in.ID == 0 {
			in.ID = i + 1
		}
		out[i] = Normalize(in)
	}
	return out
}

// ExtractPhone returns the first run of ten or more digits in text.
func ExtractPhone(text string) string {
	return phonePattern.FindString(text)
}

// ParseDate parses an invoice date. It returns the zero time and false when
// no known layout matches.
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAmount reads an invoice amount with thousands separators.
func ParseAmount(text string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	return decimal.NewFromString(cleaned)
}
