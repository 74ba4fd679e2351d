package allocation

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"invoicepay/pkg/models"
)

// CustomerKey buckets invoices and transactions that belong to one customer:
// the phone number when known, otherwise the lower-cased trimmed name.
type CustomerKey string

// entry is a deduplicated, amount-bearing transaction with its position in
// the run's transaction pool.
type entry struct {
	txn models.Transaction
	seq int
}

type bucket struct {
	key      CustomerKey
	invoices []models.Invoice
	entries  []entry
}

// fingerprint identifies one physical receipt even when the source emits it
// more than once.
type fingerprint struct {
	ref    string
	millis int64
	amount string
}

type groupStats struct {
	excluded   int
	duplicates int
	ungrouped  int
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// InvoiceKey returns the customer bucket an invoice belongs to.
func InvoiceKey(inv models.Invoice) CustomerKey {
	if phone := strings.TrimSpace(inv.CustomerPhone); phone != "" {
		return CustomerKey(phone)
	}
	return CustomerKey(normalizeName(inv.CustomerName))
}

// CandidateKeys returns the keys a transaction may match, in priority order:
// sender phone, contract name, customer name. Empty candidates are dropped.
func CandidateKeys(txn models.Transaction) []CustomerKey {
	raw := []string{
		strings.TrimSpace(txn.CustomerPhone),
		normalizeName(txn.ContractName),
		normalizeName(txn.CustomerName),
	}
	keys := make([]CustomerKey, 0, len(raw))
	for _, k := range raw {
		if k != "" {
			keys = append(keys, CustomerKey(k))
		}
	}
	return keys
}

// groupInvoices buckets invoices by customer and returns the bucket keys in
// ascending order.
func groupInvoices(invoices []models.Invoice) (map[CustomerKey]*bucket, []CustomerKey, error) {
	buckets := make(map[CustomerKey]*bucket)
	seen := make(map[string]struct{}, len(invoices))

	for i, inv := range invoices {
		if !inv.HasIdentity() {
			return nil, nil, newInvalidInputError(i, inv.InvoiceNumber, "customerName", ErrMissingCustomerIdentity)
		}
		if _, dup := seen[inv.InvoiceNumber]; dup {
			return nil, nil, newInvalidInputError(i, inv.InvoiceNumber, "invoiceNumber", ErrDuplicateInvoiceNumber)
		}
		seen[inv.InvoiceNumber] = struct{}{}

		key := InvoiceKey(inv)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key}
			buckets[key] = b
		}
		b.invoices = append(b.invoices, inv)
	}

	keys := make([]CustomerKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return buckets, keys, nil
}

// groupTransactions deduplicates the amount-bearing transactions and assigns
// each to the first candidate key that already has invoices. Transactions
// never open a bucket of their own. The returned pool keeps input order.
func groupTransactions(transactions []models.Transaction, buckets map[CustomerKey]*bucket, log zerolog.Logger) ([]entry, groupStats) {
	var stats groupStats
	pool := make([]entry, 0, len(transactions))
	seen := make(map[fingerprint]struct{}, len(transactions))

	for _, txn := range transactions {
		if !txn.HasAmount() {
			stats.excluded++
			continue
		}

		fp := fingerprint{
			ref:    txn.Ref(),
			millis: txn.ReceivedMillis(),
			amount: txn.Amount.Decimal.String(),
		}
		if _, dup := seen[fp]; dup {
			stats.duplicates++
			log.Warn().
				Str("transaction", fp.ref).
				Str("amount", fp.amount).
				Int64("received_ms", fp.millis).
				Msg("Skipping duplicate transaction")
			continue
		}
		seen[fp] = struct{}{}

		e := entry{txn: txn, seq: len(pool)}
		pool = append(pool, e)

		matched := false
		for _, key := range CandidateKeys(txn) {
			if b, ok := buckets[key]; ok {
				b.entries = append(b.entries, e)
				matched = true
				break
			}
		}
		if !matched {
			stats.ungrouped++
			log.Debug().
				Str("transaction", fp.ref).
				Str("sender", txn.DisplayName()).
				Msg("Transaction matches no invoiced customer")
		}
	}

	return pool, stats
}

// sortInvoices orders a customer's invoices newest first, ties broken by
// descending invoice number. Unparsed dates are zero and sort last.
func sortInvoices(invoices []models.Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		a, b := invoices[i], invoices[j]
		if !a.InvoiceDate.Equal(b.InvoiceDate) {
			return a.InvoiceDate.After(b.InvoiceDate)
		}
		return a.InvoiceNumber > b.InvoiceNumber
	})
}

// sortEntries orders a customer's transactions oldest first. A missing
// timestamp counts as epoch 0.
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].txn.ReceivedMillis() < entries[j].txn.ReceivedMillis()
	})
}
