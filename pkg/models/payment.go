package models

import "github.com/shopspring/decimal"

const (
	// UnusedInvoiceNo is the invoice column value for money that reached no invoice.
	UnusedInvoiceNo = "UNUSED"

	// PaymentMethodCash is the payment method recorded on every ledger line.
	PaymentMethodCash = "Cash"
)

// Payment is one ledger line. Exactly one of Allocation and Unused is set;
// use NewAllocationPayment and NewUnusedPayment to build them.
type Payment struct {
	Date         string          // MM-DD-YYYY, or the raw source text when unparseable
	CustomerName string          // Invoice customer, or best-effort sender label for unused money
	Method       string          // Always PaymentMethodCash
	DepositTo    string          // Deposit account name
	Amount       decimal.Decimal // Money recorded on this line
	Memo         string          // Source transaction reference (empty for zero lines)

	Allocation *Allocation
	Unused     *Unused
}

// Allocation describes a line applied to a real invoice.
type Allocation struct {
	InvoiceNo     string
	InvoiceAmount decimal.Decimal

	// Overpayment is the part of Amount that exceeded every open balance the
	// transaction touched. It is included in Amount but not in TotalPaid.
	Overpayment decimal.Decimal

	// Filled in by the post-pass once every transaction has been consumed.
	TotalPaid decimal.Decimal
	FullyPaid bool
}

// Unused describes transaction money that reached no invoice.
type Unused struct {
	TransactionAmount decimal.Decimal
	ReceivedMillis    int64 // Receipt time of the source transaction, 0 when unknown
}

// NewAllocationPayment builds a ledger line for a real invoice.
func NewAllocationPayment(date, customer, depositTo, memo string, inv Invoice, amount decimal.Decimal) Payment {
	return Payment{
		Date:         date,
		CustomerName: customer,
		Method:       PaymentMethodCash,
		DepositTo:    depositTo,
		Amount:       amount,
		Memo:         memo,
		Allocation: &Allocation{
			InvoiceNo:     inv.InvoiceNumber,
			InvoiceAmount: inv.Amount,
		},
	}
}

// NewUnusedPayment builds a ledger line for money that reached no invoice.
func NewUnusedPayment(date, customer, depositTo string, txn Transaction) Payment {
	amount := txn.Amount.Decimal
	return Payment{
		Date:         date,
		CustomerName: customer,
		Method:       PaymentMethodCash,
		DepositTo:    depositTo,
		Amount:       amount,
		Memo:         txn.Ref(),
		Unused:       &Unused{TransactionAmount: amount, ReceivedMillis: txn.ReceivedMillis()},
	}
}

// IsUnused reports whether the line carries unallocated transaction money.
func (p Payment) IsUnused() bool {
	return p.Unused != nil
}

// InvoiceNo returns the invoice column value, UnusedInvoiceNo for unused money.
func (p Payment) InvoiceNo() string {
	if p.Allocation != nil {
		return p.Allocation.InvoiceNo
	}
	return UnusedInvoiceNo
}

// InvoiceAmount returns the invoice face value, zero for unused money.
func (p Payment) InvoiceAmount() decimal.Decimal {
	if p.Allocation != nil {
		return p.Allocation.InvoiceAmount
	}
	return decimal.Zero
}

// Allocated returns the amount that counts toward the invoice total, i.e.
// Amount without any attached overpayment.
func (p Payment) Allocated() decimal.Decimal {
	if p.Allocation == nil {
		return decimal.Zero
	}
	return p.Amount.Sub(p.Allocation.Overpayment)
}
