package server

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"invoicepay/internal/ledger"
	"invoicepay/pkg/models"
)

// PaymentDTO is a ledger line as the browser client sends and receives it.
type PaymentDTO struct {
	PaymentDate          string          `json:"paymentDate"`
	CustomerName         string          `json:"customerName"`
	PaymentMethod        string          `json:"paymentMethod"`
	DepositToAccountName string          `json:"depositToAccountName"`
	InvoiceNo            string          `json:"invoiceNo"`
	JournalNo            string          `json:"journalNo"`
	InvoiceAmount        decimal.Decimal `json:"invoiceAmount"`
	Amount               decimal.Decimal `json:"amount"`
	ReferenceNo          string          `json:"referenceNo"`
	Memo                 string          `json:"memo"`
	CountryCode          string          `json:"countryCode"`
	ExchangeRate         string          `json:"exchangeRate"`

	Overpayment decimal.Decimal `json:"overpayment"`
	TotalPaid   decimal.Decimal `json:"totalPaid"`
	FullyPaid   bool            `json:"fullyPaid"`
	Status      ledger.Status   `json:"status"`

	IsUnused          bool                `json:"isUnused,omitempty"`
	TransactionAmount decimal.NullDecimal `json:"transactionAmount"`
}

func newPaymentDTO(p models.Payment) PaymentDTO {
	dto := PaymentDTO{
		PaymentDate:          p.Date,
		CustomerName:         p.CustomerName,
		PaymentMethod:        p.Method,
		DepositToAccountName: p.DepositTo,
		InvoiceNo:            p.InvoiceNo(),
		InvoiceAmount:        p.InvoiceAmount(),
		Amount:               p.Amount,
		Memo:                 p.Memo,
		Status:               ledger.StatusOf(p),
	}
	if al := p.Allocation; al != nil {
		dto.Overpayment = al.Overpayment
		dto.TotalPaid = al.TotalPaid
		dto.FullyPaid = al.FullyPaid
	}
	if un := p.Unused; un != nil {
		dto.IsUnused = true
		dto.TransactionAmount = decimal.NewNullDecimal(un.TransactionAmount)
	}
	return dto
}

func newPaymentDTOs(payments []models.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = newPaymentDTO(p)
	}
	return out
}

// ledgerRow maps a client-side line back onto the export columns.
func (p PaymentDTO) ledgerRow(opts ledger.Options) ledger.Row {
	customer := p.CustomerName
	if opts.UppercaseCustomer {
		customer = strings.ToUpper(customer)
	}
	return ledger.Row{
		PaymentDate:    p.PaymentDate,
		Customer:       customer,
		PaymentMethod:  p.PaymentMethod,
		DepositAccount: p.DepositToAccountName,
		InvoiceNo:      p.InvoiceNo,
		JournalNo:      p.JournalNo,
		Amount:         ledger.FormatAmount(p.Amount),
		ReferenceNo:    p.ReferenceNo,
		Memo:           p.Memo,
		CountryCode:    p.CountryCode,
		ExchangeRate:   p.ExchangeRate,
	}
}

// TransactionDTO is a receipt as listed by the transactions endpoints and
// the transactions command.
type TransactionDTO struct {
	ID                 string              `json:"id"`
	Channel            string              `json:"channel"`
	PaymentChannel     string              `json:"paymentChannel"`
	TransactionMessage string              `json:"transactionMessage"`
	CustomerPhone      string              `json:"customerPhone"`
	CustomerName       string              `json:"customerName"`
	ContractName       string              `json:"contractName"`
	Amount             decimal.NullDecimal `json:"amount"`
	ReceivedRaw        string              `json:"receivedRaw"`
	ReceivedDate       string              `json:"receivedDate"`
	ReceivedDateKey    string              `json:"receivedDateKey"`
	ReceivedAt         *time.Time          `json:"receivedAt,omitempty"`
	TransactionID      string              `json:"transactionId"`
}

// NewTransactionDTOs converts receipts for JSON output.
func NewTransactionDTOs(txns []models.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txns))
	for i, t := range txns {
		dto := TransactionDTO{
			ID:                 t.ID,
			Channel:            t.Channel,
			PaymentChannel:     t.PaymentChannel,
			TransactionMessage: t.Message,
			CustomerPhone:      t.CustomerPhone,
			CustomerName:       t.CustomerName,
			ContractName:       t.ContractName,
			Amount:             t.Amount,
			ReceivedRaw:        t.ReceivedRaw,
			ReceivedDate:       t.ReceivedDate,
			ReceivedDateKey:    t.ReceivedDateKey,
			TransactionID:      t.TransactionID,
		}
		if !t.ReceivedAt.IsZero() {
			at := t.ReceivedAt
			dto.ReceivedAt = &at
		}
		out[i] = dto
	}
	return out
}

// RunStats counts what the allocation did with the fetched receipts.
type RunStats struct {
	Invoices     int `json:"invoices"`
	Transactions int `json:"transactions"`
	Excluded     int `json:"excluded"`
	Duplicates   int `json:"duplicates"`
	Ungrouped    int `json:"ungrouped"`
}
