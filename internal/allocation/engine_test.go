package allocation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepay/pkg/models"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func amount(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(v))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, models.EastAfrica)
}

func invoice(number, customer, phone, amt string, date time.Time) models.Invoice {
	return models.Invoice{
		InvoiceNumber:   number,
		CustomerName:    customer,
		CustomerPhone:   phone,
		Amount:          dec(amt),
		InvoiceDate:     date,
		InvoiceDateText: date.Format("01/02/2006"),
	}
}

func txn(id, name, phone, amt string, received time.Time) models.Transaction {
	return models.Transaction{
		ID:            id,
		TransactionID: id,
		CustomerName:  name,
		CustomerPhone: phone,
		Amount:        amount(amt),
		ReceivedAt:    received,
	}
}

func allocate(t *testing.T, invoices []models.Invoice, txns []models.Transaction) *Result {
	t.Helper()
	res, err := NewEngine(DefaultOptions()).Allocate(invoices, txns)
	require.NoError(t, err)
	return res
}

func sumAmounts(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

func linesFor(payments []models.Payment, invoiceNo string) []models.Payment {
	var out []models.Payment
	for _, p := range payments {
		if p.InvoiceNo() == invoiceNo {
			out = append(out, p)
		}
	}
	return out
}

func TestAllocate_FIFOConsumption(t *testing.T) {
	invoices := []models.Invoice{
		invoice("INV-1", "Jane Doe", "0712345678", "50", day(2026, 1, 10)),
		invoice("INV-2", "Jane Doe", "0712345678", "100", day(2026, 1, 20)),
	}
	txns := []models.Transaction{
		txn("T2", "Jane Doe", "0712345678", "120", at(2026, 1, 22, 9, 0)),
		txn("T1", "Jane Doe", "0712345678", "30", at(2026, 1, 21, 9, 0)),
	}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 3)

	assert.Equal(t, "INV-2", res.Payments[0].InvoiceNo())
	assert.True(t, dec("30").Equal(res.Payments[0].Amount))
	assert.Equal(t, "T1", res.Payments[0].Memo)
	assert.Equal(t, "01-21-2026", res.Payments[0].Date)

	assert.Equal(t, "INV-2", res.Payments[1].InvoiceNo())
	assert.True(t, dec("70").Equal(res.Payments[1].Amount))
	assert.Equal(t, "T2", res.Payments[1].Memo)

	assert.Equal(t, "INV-1", res.Payments[2].InvoiceNo())
	assert.True(t, dec("50").Equal(res.Payments[2].Amount))
	assert.Equal(t, "T2", res.Payments[2].Memo)

	for _, p := range res.Payments {
		require.NotNil(t, p.Allocation)
		assert.True(t, p.Allocation.FullyPaid, "invoice %s should be fully paid", p.InvoiceNo())
		assert.True(t, p.Allocation.Overpayment.IsZero())
	}
	assert.True(t, dec("100").Equal(res.InvoiceTotals["INV-2"]))
	assert.True(t, dec("50").Equal(res.InvoiceTotals["INV-1"]))
	assert.True(t, res.Used["T1"])
	assert.True(t, res.Used["T2"])
}

func TestAllocate_OverpaymentAttachesToFirstLine(t *testing.T) {
	invoices := []models.Invoice{invoice("INV-9", "Sam", "", "40", day(2026, 1, 5))}
	txns := []models.Transaction{txn("T9", "sam ", "", "55", at(2026, 1, 6, 12, 0))}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 1)
	p := res.Payments[0]
	assert.False(t, p.IsUnused())
	assert.True(t, dec("55").Equal(p.Amount))
	assert.True(t, dec("15").Equal(p.Allocation.Overpayment))
	assert.True(t, dec("40").Equal(p.Allocated()))
	assert.True(t, dec("40").Equal(p.Allocation.TotalPaid))
	assert.True(t, p.Allocation.FullyPaid)
}

func TestAllocate_OverpaymentAcrossInvoices(t *testing.T) {
	invoices := []models.Invoice{
		invoice("A-1", "Kim", "0700000001", "20", day(2026, 1, 1)),
		invoice("A-2", "Kim", "0700000001", "30", day(2026, 1, 2)),
	}
	txns := []models.Transaction{txn("T1", "", "0700000001", "60", at(2026, 1, 3, 8, 0))}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 2)
	assert.Equal(t, "A-2", res.Payments[0].InvoiceNo())
	assert.True(t, dec("40").Equal(res.Payments[0].Amount), "newest line carries the remainder")
	assert.True(t, dec("10").Equal(res.Payments[0].Allocation.Overpayment))
	assert.Equal(t, "A-1", res.Payments[1].InvoiceNo())
	assert.True(t, dec("20").Equal(res.Payments[1].Amount))
}

func TestAllocate_UnusedTransaction(t *testing.T) {
	invoices := []models.Invoice{invoice("INV-A", "Alice", "", "100", day(2026, 1, 3))}
	txns := []models.Transaction{txn("TB", "Bob", "", "500", at(2026, 1, 4, 10, 30))}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 2)

	alice := res.Payments[0]
	assert.Equal(t, "INV-A", alice.InvoiceNo())
	assert.True(t, alice.Amount.IsZero())
	assert.Equal(t, "", alice.Memo)
	assert.Equal(t, "01-03-2026", alice.Date)
	assert.False(t, alice.Allocation.FullyPaid)

	bob := res.Payments[1]
	require.True(t, bob.IsUnused())
	assert.Equal(t, models.UnusedInvoiceNo, bob.InvoiceNo())
	assert.True(t, bob.InvoiceAmount().IsZero())
	assert.True(t, dec("500").Equal(bob.Amount))
	assert.True(t, dec("500").Equal(bob.Unused.TransactionAmount))
	assert.Equal(t, "Bob", bob.CustomerName)
	assert.Equal(t, "TB", bob.Memo)
	assert.Equal(t, "01-04-2026", bob.Date)

	assert.Equal(t, 1, res.Ungrouped)
	assert.Empty(t, res.Used)
}

func TestAllocate_ZeroTransactionCustomer(t *testing.T) {
	invoices := []models.Invoice{
		invoice("Z-1", "Zed", "", "10", day(2026, 2, 1)),
		invoice("Z-2", "Zed", "", "20", day(2026, 2, 2)),
	}

	res := allocate(t, invoices, nil)

	require.Len(t, res.Payments, 2)
	for _, p := range res.Payments {
		assert.True(t, p.Amount.IsZero())
		assert.Equal(t, "", p.Memo)
		assert.False(t, p.Allocation.FullyPaid)
		assert.True(t, p.Allocation.TotalPaid.IsZero())
	}
	assert.Equal(t, "Z-2", res.Payments[0].InvoiceNo())
	assert.Equal(t, "Z-1", res.Payments[1].InvoiceNo())
}

func TestAllocate_LeftoverInvoiceGetsZeroLine(t *testing.T) {
	invoices := []models.Invoice{
		invoice("L-1", "Lee", "", "100", day(2026, 1, 1)),
		invoice("L-2", "Lee", "", "100", day(2026, 1, 2)),
	}
	txns := []models.Transaction{txn("T1", "Lee", "", "40", at(2026, 1, 3, 0, 0))}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 2)
	assert.Equal(t, "L-2", res.Payments[0].InvoiceNo())
	assert.True(t, dec("40").Equal(res.Payments[0].Amount))
	assert.False(t, res.Payments[0].Allocation.FullyPaid)

	assert.Equal(t, "L-1", res.Payments[1].InvoiceNo())
	assert.True(t, res.Payments[1].Amount.IsZero())
	assert.Equal(t, "01-01-2026", res.Payments[1].Date)
}

func TestAllocate_ZeroAmountInvoice(t *testing.T) {
	invoices := []models.Invoice{
		invoice("A", "Alice", "", "100", day(2026, 1, 3)),
		invoice("Z", "Alice", "", "0", day(2026, 1, 2)),
		invoice("B", "Alice", "", "50", day(2026, 1, 1)),
	}

	t.Run("at the cursor", func(t *testing.T) {
		txns := []models.Transaction{txn("T1", "Alice", "", "150", at(2026, 1, 4, 0, 0))}

		res := allocate(t, invoices, txns)

		require.Len(t, res.Payments, 3)
		for i, want := range []struct{ invoiceNo, amount string }{{"A", "100"}, {"Z", "0"}, {"B", "50"}} {
			p := res.Payments[i]
			assert.Equal(t, want.invoiceNo, p.InvoiceNo())
			assert.True(t, dec(want.amount).Equal(p.Amount), "line %d amount %s", i, p.Amount)
			assert.Equal(t, "T1", p.Memo)
			assert.True(t, p.Allocation.FullyPaid)
		}
		assert.True(t, res.Used["T1"])
	})

	t.Run("never reached", func(t *testing.T) {
		txns := []models.Transaction{txn("T1", "Alice", "", "40", at(2026, 1, 4, 0, 0))}

		res := allocate(t, invoices, txns)

		require.Len(t, res.Payments, 3)
		assert.Equal(t, "A", res.Payments[0].InvoiceNo())
		z := linesFor(res.Payments, "Z")
		require.Len(t, z, 1)
		assert.True(t, z[0].Amount.IsZero())
		assert.Equal(t, "", z[0].Memo)
		assert.Len(t, linesFor(res.Payments, "B"), 1)
	})

	t.Run("no receipts", func(t *testing.T) {
		res := allocate(t, invoices, nil)

		require.Len(t, res.Payments, 3)
		assert.Len(t, linesFor(res.Payments, "Z"), 1)
	})
}

func TestAllocate_ToleranceMarksFullyPaid(t *testing.T) {
	invoices := []models.Invoice{
		invoice("T-1", "Ann", "", "100", day(2026, 1, 1)),
		invoice("T-2", "Ann", "", "100", day(2026, 1, 2)),
	}
	txns := []models.Transaction{
		txn("P1", "Ann", "", "99.5", at(2026, 1, 3, 0, 0)),
		txn("P2", "Ann", "", "10", at(2026, 1, 4, 0, 0)),
	}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 2)
	assert.Equal(t, "T-2", res.Payments[0].InvoiceNo())
	assert.True(t, res.Payments[0].Allocation.FullyPaid)
	assert.Equal(t, "T-1", res.Payments[1].InvoiceNo(), "residue under tolerance is not carried")
	assert.True(t, dec("10").Equal(res.Payments[1].Amount))
}

func TestAllocate_FullyPaidCustomerLeavesLaterMoneyUnused(t *testing.T) {
	invoices := []models.Invoice{invoice("F-1", "Fay", "", "50", day(2026, 1, 1))}
	txns := []models.Transaction{
		txn("P1", "Fay", "", "50", at(2026, 1, 2, 0, 0)),
		txn("P2", "Fay", "", "25", at(2026, 1, 3, 0, 0)),
	}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 2)
	assert.Equal(t, "F-1", res.Payments[0].InvoiceNo())
	assert.True(t, res.Payments[1].IsUnused())
	assert.Equal(t, "P2", res.Payments[1].Memo)
	assert.Equal(t, 0, res.Ungrouped)
}

func TestAllocate_ExcludesTransactionsWithoutAmount(t *testing.T) {
	invoices := []models.Invoice{invoice("E-1", "Eve", "", "10", day(2026, 1, 1))}
	zero := txn("Z", "Eve", "", "0", at(2026, 1, 2, 0, 0))
	missing := models.Transaction{ID: "boda-3", CustomerName: "Eve"}

	res := allocate(t, invoices, []models.Transaction{zero, missing})

	assert.Equal(t, 2, res.Excluded)
	require.Len(t, res.Payments, 1)
	assert.True(t, res.Payments[0].Amount.IsZero())
}

func TestAllocate_UnallocatableTransactionsBecomeUnused(t *testing.T) {
	invoices := []models.Invoice{invoice("U-1", "Uma", "0700111222", "100", day(2026, 1, 1))}

	tests := []struct {
		name string
		txn  models.Transaction
	}{
		{
			name: "no identity",
			txn:  txn("N1", "", "", "30", at(2026, 1, 2, 0, 0)),
		},
		{
			name: "negative amount",
			txn:  txn("R1", "Uma", "0700111222", "-20", at(2026, 1, 2, 0, 0)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := allocate(t, invoices, []models.Transaction{tt.txn})

			require.Len(t, res.Payments, 2)
			assert.Equal(t, "U-1", res.Payments[0].InvoiceNo())
			assert.True(t, res.Payments[0].Amount.IsZero())

			unused := res.Payments[1]
			assert.Equal(t, "UNUSED", unused.InvoiceNo())
			assert.Equal(t, tt.txn.Ref(), unused.Memo)
			assert.True(t, tt.txn.Amount.Decimal.Equal(unused.Unused.TransactionAmount))
			assert.True(t, tt.txn.Amount.Decimal.Equal(sumAmounts(res.Payments)))
			assert.Empty(t, res.Used)
		})
	}
}

func TestAllocate_GroupingPriority(t *testing.T) {
	invoices := []models.Invoice{
		invoice("PH-1", "Phone Owner", "0755000111", "100", day(2026, 1, 1)),
		invoice("CN-1", "Contract Co", "", "100", day(2026, 1, 1)),
		invoice("NM-1", "Named Person", "", "100", day(2026, 1, 1)),
	}

	byPhone := txn("T1", "Named Person", "0755000111", "10", at(2026, 1, 2, 0, 0))
	byPhone.ContractName = "Contract Co"
	byContract := txn("T2", "Named Person", "0799999999", "20", at(2026, 1, 2, 0, 0))
	byContract.ContractName = "  CONTRACT CO "
	byName := txn("T3", "named person", "", "30", at(2026, 1, 2, 0, 0))

	res := allocate(t, invoices, []models.Transaction{byPhone, byContract, byName})

	assert.True(t, dec("10").Equal(res.InvoiceTotals["PH-1"]))
	assert.True(t, dec("20").Equal(res.InvoiceTotals["CN-1"]))
	assert.True(t, dec("30").Equal(res.InvoiceTotals["NM-1"]))
	assert.Equal(t, 0, res.Ungrouped)
}

func TestAllocate_InvoiceOrderingTieBreak(t *testing.T) {
	invoices := []models.Invoice{
		invoice("100", "Tie", "", "5", day(2026, 3, 1)),
		invoice("101", "Tie", "", "5", day(2026, 3, 1)),
		{InvoiceNumber: "999", CustomerName: "Tie", Amount: dec("5"), InvoiceDateText: "not a date"},
	}
	txns := []models.Transaction{txn("T", "Tie", "", "15", at(2026, 3, 2, 0, 0))}

	res := allocate(t, invoices, txns)

	require.Len(t, res.Payments, 3)
	assert.Equal(t, "101", res.Payments[0].InvoiceNo())
	assert.Equal(t, "100", res.Payments[1].InvoiceNo())
	assert.Equal(t, "999", res.Payments[2].InvoiceNo(), "unparseable dates sort last")
}

func TestAllocate_MissingTimestampSortsFirstAndUsesInvoiceDate(t *testing.T) {
	invoices := []models.Invoice{invoice("D-1", "Dee", "", "100", day(2026, 4, 1))}
	late := txn("LATE", "Dee", "", "10", at(2026, 4, 5, 0, 0))
	undated := txn("NODATE", "Dee", "", "20", time.Time{})

	res := allocate(t, invoices, []models.Transaction{late, undated})

	require.Len(t, res.Payments, 2)
	assert.Equal(t, "NODATE", res.Payments[0].Memo)
	assert.Equal(t, "04-01-2026", res.Payments[0].Date)
	assert.Equal(t, "LATE", res.Payments[1].Memo)
	assert.Equal(t, "04-05-2026", res.Payments[1].Date)
}

func TestAllocate_UnusedDateFallsBackToLabel(t *testing.T) {
	stray := models.Transaction{
		ID:           "lipa-7",
		CustomerName: "Nobody",
		Amount:       amount("12"),
		ReceivedDate: "22 Jan 2026",
		ReceivedRaw:  "22 Jan 2026, garbled",
	}

	res := allocate(t, nil, []models.Transaction{stray})

	require.Len(t, res.Payments, 1)
	assert.Equal(t, "22 Jan 2026", res.Payments[0].Date)
	assert.Equal(t, "lipa-7", res.Payments[0].Memo)
}

func TestAllocate_DuplicateTransactionsAreIdempotent(t *testing.T) {
	invoices := []models.Invoice{invoice("I-1", "Dup", "", "100", day(2026, 1, 1))}
	once := []models.Transaction{txn("T1", "Dup", "", "60", at(2026, 1, 2, 0, 0))}
	twice := append(append([]models.Transaction{}, once...), once...)

	a := allocate(t, invoices, once)
	b := allocate(t, invoices, twice)

	assert.Equal(t, a.Payments, b.Payments)
	assert.Equal(t, 1, b.Duplicates)
}

func TestAllocate_DistinctTransactionsSharingRef(t *testing.T) {
	invoices := []models.Invoice{invoice("I-1", "Ref", "", "100", day(2026, 1, 1))}
	txns := []models.Transaction{
		txn("SAME", "Ref", "", "30", at(2026, 1, 2, 0, 0)),
		txn("SAME", "Ref", "", "30", at(2026, 1, 3, 0, 0)),
	}

	res := allocate(t, invoices, txns)

	assert.Equal(t, 0, res.Duplicates)
	assert.True(t, dec("60").Equal(res.InvoiceTotals["I-1"]))
}

func TestAllocate_Deterministic(t *testing.T) {
	invoices, txns := mixedFixture()

	first := allocate(t, invoices, txns)
	for i := 0; i < 10; i++ {
		again := allocate(t, invoices, txns)
		require.Equal(t, first.Payments, again.Payments)
	}
}

func TestAllocate_ConservationAndNoOverAllocation(t *testing.T) {
	invoices, txns := mixedFixture()

	res := allocate(t, invoices, txns)

	incoming := decimal.Zero
	for _, tx := range txns {
		if tx.HasAmount() {
			incoming = incoming.Add(tx.Amount.Decimal)
		}
	}
	// the fixture repeats one receipt
	incoming = incoming.Sub(dec("75"))

	assert.True(t, incoming.Equal(sumAmounts(res.Payments)), "incoming %s, ledger %s", incoming, sumAmounts(res.Payments))

	tol := decimal.NewFromInt(1)
	for _, inv := range invoices {
		allocated := decimal.Zero
		for _, p := range linesFor(res.Payments, inv.InvoiceNumber) {
			allocated = allocated.Add(p.Allocated())
		}
		assert.True(t, allocated.LessThanOrEqual(inv.Amount.Add(tol)), "invoice %s over-allocated", inv.InvoiceNumber)
		assert.True(t, allocated.Equal(res.InvoiceTotals[inv.InvoiceNumber]))
	}
}

func TestAllocate_CustomersInKeyOrder(t *testing.T) {
	invoices := []models.Invoice{
		invoice("B", "bravo", "", "1", day(2026, 1, 1)),
		invoice("A", "alpha", "", "1", day(2026, 1, 1)),
		invoice("P", "phone", "0711111111", "1", day(2026, 1, 1)),
	}

	res := allocate(t, invoices, nil)

	require.Len(t, res.Payments, 3)
	assert.Equal(t, "P", res.Payments[0].InvoiceNo())
	assert.Equal(t, "A", res.Payments[1].InvoiceNo())
	assert.Equal(t, "B", res.Payments[2].InvoiceNo())
}

func TestAllocate_InvalidInvoice(t *testing.T) {
	tests := []struct {
		name     string
		invoices []models.Invoice
		sentinel error
		index    int
		field    string
	}{
		{
			name: "missing identity",
			invoices: []models.Invoice{
				invoice("OK", "Someone", "", "1", day(2026, 1, 1)),
				invoice("BAD", "  ", "", "1", day(2026, 1, 1)),
			},
			sentinel: ErrMissingCustomerIdentity,
			index:    1,
			field:    "customerName",
		},
		{
			name: "duplicate number",
			invoices: []models.Invoice{
				invoice("X", "One", "", "1", day(2026, 1, 1)),
				invoice("X", "Two", "", "1", day(2026, 1, 1)),
			},
			sentinel: ErrDuplicateInvoiceNumber,
			index:    1,
			field:    "invoiceNumber",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewEngine(DefaultOptions()).Allocate(tt.invoices, nil)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.sentinel))

			var invalid *InvalidInputError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.index, invalid.Index)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(Options{})

	assert.Equal(t, DefaultDepositAccount, e.opts.DepositAccount)
	assert.True(t, decimal.NewFromInt(1).Equal(e.opts.Tolerance))
	assert.Equal(t, models.EastAfrica, e.opts.Location)
}

func TestAllocate_CustomDepositAccount(t *testing.T) {
	e := NewEngine(Options{DepositAccount: "Mixx Float"})
	res, err := e.Allocate([]models.Invoice{invoice("1", "C", "", "1", day(2026, 1, 1))}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Mixx Float", res.Payments[0].DepositTo)
	assert.Equal(t, models.PaymentMethodCash, res.Payments[0].Method)
}

func mixedFixture() ([]models.Invoice, []models.Transaction) {
	invoices := []models.Invoice{
		invoice("M-1", "Mary", "0711000001", "120", day(2026, 1, 2)),
		invoice("M-2", "Mary", "0711000001", "80", day(2026, 1, 9)),
		invoice("J-1", "John Bosco", "", "300", day(2026, 1, 4)),
		invoice("J-2", "John Bosco", "", "45.50", day(2026, 1, 4)),
		invoice("K-1", "Kassim", "", "60", day(2026, 1, 6)),
	}
	repeated := txn("R1", "John Bosco", "", "75", at(2026, 1, 10, 14, 5))
	txns := []models.Transaction{
		txn("M-A", "", "0711000001", "50", at(2026, 1, 10, 8, 0)),
		repeated,
		txn("M-B", "MARY", "0711000001", "200", at(2026, 1, 11, 9, 30)),
		repeated,
		txn("J-A", "john bosco", "", "100.25", at(2026, 1, 12, 7, 45)),
		txn("X-A", "Stranger", "0799000000", "33", at(2026, 1, 12, 8, 0)),
		{ID: "boda-9", CustomerName: "Kassim"},
		txn("J-B", "John Bosco", "", "400", at(2026, 1, 13, 16, 20)),
	}
	return invoices, txns
}
