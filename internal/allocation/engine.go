// Package allocation applies mobile-money receipts to customer invoices.
//
// The engine is a pure function of its two inputs: it groups invoices and
// transactions by customer, walks each customer's transactions oldest first
// against their invoices newest first, and returns one ledger line per
// (transaction, invoice) pair plus an UNUSED line for every receipt that
// reached no invoice. It performs no I/O and keeps no state between calls.
package allocation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"invoicepay/pkg/models"
)

// DefaultDepositAccount is the account every ledger line is deposited to
// unless configured otherwise.
const DefaultDepositAccount = "Kijichi Collection AC"

// Options configures an Engine.
type Options struct {
	// DepositAccount is written to every ledger line.
	DepositAccount string

	// Tolerance is the absolute residue below which an invoice counts as
	// fully paid. Zero means the default of one currency unit.
	Tolerance decimal.Decimal

	// Location is the zone transaction timestamps are rendered in.
	Location *time.Location

	// Logger receives duplicate warnings and run summaries. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultOptions returns the options used by the reconciliation commands.
func DefaultOptions() Options {
	return Options{
		DepositAccount: DefaultDepositAccount,
		Tolerance:      decimal.NewFromInt(1),
		Location:       models.EastAfrica,
	}
}

// Engine allocates transactions to invoices. An Engine holds only its
// options, so one value may serve concurrent calls.
type Engine struct {
	opts Options
	log  zerolog.Logger
}

// NewEngine creates an engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.DepositAccount == "" {
		opts.DepositAccount = def.DepositAccount
	}
	if opts.Tolerance.IsZero() {
		opts.Tolerance = def.Tolerance
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Engine{opts: opts, log: log}
}

// Result is the outcome of one allocation run.
type Result struct {
	// Payments holds the customer lines in ascending customer key order,
	// followed by the UNUSED lines in transaction input order.
	Payments []models.Payment

	// InvoiceTotals maps invoice number to the money allocated to it,
	// excluding overpayment.
	InvoiceTotals map[string]decimal.Decimal

	// Used holds the refs of transactions that produced at least one line.
	Used map[string]bool

	Excluded   int // transactions without a usable amount
	Duplicates int // transactions dropped by fingerprint
	Ungrouped  int // transactions matching no invoiced customer
}

// invoiceBalance is the working state of one invoice during a customer's run.
type invoiceBalance struct {
	invoice   models.Invoice
	remaining decimal.Decimal
	fullyPaid bool
	lines     int
}

// run threads the per-call accumulators through the allocation steps.
type run struct {
	payments []models.Payment
	totals   map[string]decimal.Decimal
	consumed map[int]bool
}

// Allocate applies transactions to invoices and returns the resulting ledger.
// It fails only when an invoice cannot be bucketed or repeats an invoice
// number; in that case no partial ledger is returned.
func (e *Engine) Allocate(invoices []models.Invoice, transactions []models.Transaction) (*Result, error) {
	const op = "allocation.Allocate"

	buckets, keys, err := groupInvoices(invoices)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pool, stats := groupTransactions(transactions, buckets, e.log)

	r := &run{
		totals:   make(map[string]decimal.Decimal, len(invoices)),
		consumed: make(map[int]bool, len(pool)),
	}

	for _, key := range keys {
		b := buckets[key]
		sortInvoices(b.invoices)
		sortEntries(b.entries)
		e.allocateCustomer(r, b)
	}

	used := make(map[string]bool, len(r.consumed))
	unused := 0
	for _, ent := range pool {
		if r.consumed[ent.seq] {
			used[ent.txn.Ref()] = true
			continue
		}
		unused++
		r.payments = append(r.payments, models.NewUnusedPayment(
			e.transactionDate(ent.txn),
			ent.txn.DisplayName(),
			e.opts.DepositAccount,
			ent.txn,
		))
	}

	e.annotate(r)

	e.log.Info().
		Int("invoices", len(invoices)).
		Int("transactions", len(transactions)).
		Int("customers", len(keys)).
		Int("payments", len(r.payments)).
		Int("unused", unused).
		Int("excluded", stats.excluded).
		Int("duplicates", stats.duplicates).
		Int("ungrouped", stats.ungrouped).
		Msg("Allocation complete")

	return &Result{
		Payments:      r.payments,
		InvoiceTotals: r.totals,
		Used:          used,
		Excluded:      stats.excluded,
		Duplicates:    stats.duplicates,
		Ungrouped:     stats.ungrouped,
	}, nil
}

func (e *Engine) allocateCustomer(r *run, b *bucket) {
	if len(b.entries) == 0 {
		for _, inv := range b.invoices {
			r.payments = append(r.payments, e.zeroLine(inv))
		}
		return
	}

	balances := make([]*invoiceBalance, len(b.invoices))
	for i, inv := range b.invoices {
		balances[i] = &invoiceBalance{invoice: inv, remaining: inv.Amount}
	}

	cursor := 0
	for _, ent := range b.entries {
		remaining := ent.txn.Amount.Decimal
		first := -1

		for remaining.IsPositive() && cursor < len(balances) {
			bal := balances[cursor]
			if bal.fullyPaid {
				cursor++
				continue
			}
			if bal.remaining.IsNegative() {
				bal.fullyPaid = true
				bal.remaining = decimal.Zero
				cursor++
				continue
			}

			pay := decimal.Min(remaining, bal.remaining)
			if first < 0 {
				first = len(r.payments)
			}
			r.payments = append(r.payments, models.NewAllocationPayment(
				e.paymentDate(ent.txn, bal.invoice),
				bal.invoice.CustomerName,
				e.opts.DepositAccount,
				ent.txn.Ref(),
				bal.invoice,
				pay,
			))
			bal.lines++

			bal.remaining = bal.remaining.Sub(pay)
			remaining = remaining.Sub(pay)
			r.totals[bal.invoice.InvoiceNumber] = r.totals[bal.invoice.InvoiceNumber].Add(pay)

			if bal.remaining.LessThanOrEqual(e.opts.Tolerance) {
				bal.fullyPaid = true
				bal.remaining = decimal.Zero
				cursor++
			}
		}

		if first < 0 {
			continue
		}
		r.consumed[ent.seq] = true

		if remaining.IsPositive() {
			line := &r.payments[first]
			line.Amount = line.Amount.Add(remaining)
			line.Allocation.Overpayment = line.Allocation.Overpayment.Add(remaining)
			e.log.Debug().
				Str("transaction", ent.txn.Ref()).
				Str("invoice", line.Allocation.InvoiceNo).
				Stringer("overpayment", remaining).
				Msg("Attached overpayment to first invoice line")
		}
	}

	for _, bal := range balances {
		if !bal.fullyPaid && bal.lines == 0 {
			r.payments = append(r.payments, e.zeroLine(bal.invoice))
		}
	}
}

// annotate fills TotalPaid and FullyPaid on every allocation line.
func (e *Engine) annotate(r *run) {
	for i := range r.payments {
		a := r.payments[i].Allocation
		if a == nil {
			continue
		}
		a.TotalPaid = r.totals[a.InvoiceNo]
		a.FullyPaid = a.TotalPaid.Sub(a.InvoiceAmount).Abs().LessThanOrEqual(e.opts.Tolerance)
	}
}

func (e *Engine) zeroLine(inv models.Invoice) models.Payment {
	return models.NewAllocationPayment(inv.DisplayDate(), inv.CustomerName, e.opts.DepositAccount, "", inv, decimal.Zero)
}

// paymentDate renders the transaction's received date, falling back to the
// invoice date when the transaction has none.
func (e *Engine) paymentDate(txn models.Transaction, inv models.Invoice) string {
	if txn.ReceivedAt.IsZero() {
		return inv.DisplayDate()
	}
	return txn.ReceivedAt.In(e.opts.Location).Format(models.DisplayDateLayout)
}

func (e *Engine) transactionDate(txn models.Transaction) string {
	switch {
	case !txn.ReceivedAt.IsZero():
		return txn.ReceivedAt.In(e.opts.Location).Format(models.DisplayDateLayout)
	case txn.ReceivedDate != "":
		return txn.ReceivedDate
	default:
		return txn.ReceivedRaw
	}
}
