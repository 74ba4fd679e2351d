package ledger

import (
	"github.com/shopspring/decimal"
	"invoicepay/pkg/models"
)

// Status labels a ledger line for display.
type Status string

const (
	StatusFullyPaid Status = "Fully Paid"
	StatusPartial   Status = "Partial"
	StatusUnpaid    Status = "Unpaid"
	StatusUnused    Status = "Unused"
)

// StatusOf classifies a line by its invoice's final state.
func StatusOf(p models.Payment) Status {
	switch {
	case p.IsUnused():
		return StatusUnused
	case p.Allocation.FullyPaid:
		return StatusFullyPaid
	case p.Allocation.TotalPaid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// Summary totals one allocation run.
type Summary struct {
	Invoices       int             `json:"invoices"`
	FullyPaid      int             `json:"fullyPaid"`
	Partial        int             `json:"partial"`
	Unpaid         int             `json:"unpaid"`
	UnusedLines    int             `json:"unusedLines"`
	Allocated      decimal.Decimal `json:"allocated"`
	Overpayment    decimal.Decimal `json:"overpayment"`
	Unused         decimal.Decimal `json:"unused"`
	TotalReceived  decimal.Decimal `json:"totalReceived"`
	OutstandingDue decimal.Decimal `json:"outstandingDue"`
}

// Summarize totals a ledger. Each invoice is counted once however many lines
// it has.
func Summarize(payments []models.Payment) Summary {
	s := Summary{
		Allocated:      decimal.Zero,
		Overpayment:    decimal.Zero,
		Unused:         decimal.Zero,
		TotalReceived:  decimal.Zero,
		OutstandingDue: decimal.Zero,
	}
	seen := make(map[string]bool)

	for _, p := range payments {
		s.TotalReceived = s.TotalReceived.Add(p.Amount)

		if p.IsUnused() {
			s.UnusedLines++
			s.Unused = s.Unused.Add(p.Amount)
			continue
		}

		a := p.Allocation
		s.Allocated = s.Allocated.Add(p.Allocated())
		s.Overpayment = s.Overpayment.Add(a.Overpayment)

		if seen[a.InvoiceNo] {
			continue
		}
		seen[a.InvoiceNo] = true
		s.Invoices++

		switch StatusOf(p) {
		case StatusFullyPaid:
			s.FullyPaid++
		case StatusPartial:
			s.Partial++
		default:
			s.Unpaid++
		}
		if due := a.InvoiceAmount.Sub(a.TotalPaid); due.IsPositive() && !a.FullyPaid {
			s.OutstandingDue = s.OutstandingDue.Add(due)
		}
	}
	return s
}
