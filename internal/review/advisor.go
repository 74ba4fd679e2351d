// Package review suggests which invoiced customer an UNUSED receipt most
// likely belongs to. Suggestions are advisory: the ledger is never changed.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"invoicepay/internal/logger"
	"invoicepay/pkg/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.GPT4oMini

const maxCandidates = 5

// ChatCompleter is the part of the OpenAI client the advisor needs.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Suggestion proposes an open invoice for one UNUSED receipt.
type Suggestion struct {
	TransactionRef string          `json:"transactionRef"`
	Sender         string          `json:"sender"`
	Amount         decimal.Decimal `json:"amount"`
	InvoiceNo      string          `json:"invoiceNo"`
	CustomerName   string          `json:"customerName"`
	OpenBalance    decimal.Decimal `json:"openBalance"`
	Confidence     float64         `json:"confidence"`
	Reason         string          `json:"reason"`
}

// MatchResult is the model's answer for one receipt.
type MatchResult struct {
	Matched        bool    `json:"matched"`
	CandidateIndex int     `json:"candidate_index"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

// openInvoice is an invoice that still has money due after allocation.
type openInvoice struct {
	InvoiceNo    string
	CustomerName string
	Balance      decimal.Decimal
}

type candidate struct {
	invoice openInvoice
	score   float64
}

// Advisor ranks open invoices for each UNUSED receipt and asks a chat model
// to pick one.
type Advisor struct {
	client        ChatCompleter
	model         string
	minConfidence float64
	log           zerolog.Logger
}

// receiptKey identifies a receipt the way the engine deduplicates them, so
// distinct receipts sharing a reference stay apart.
type receiptKey struct {
	ref    string
	amount string
	millis int64
}

// NewAdvisor creates an advisor. An empty model selects DefaultModel.
func NewAdvisor(client ChatCompleter, model string) *Advisor {
	if model == "" {
		model = DefaultModel
	}
	return &Advisor{
		client:        client,
		model:         model,
		minConfidence: 0.5,
		log:           logger.WithComponent("review-advisor"),
	}
}

// Review returns a suggestion for every UNUSED line the model could place.
// txns supplies sender details for the UNUSED lines and may be nil. A failed
// model call skips that line; only context cancellation aborts the review.
func (a *Advisor) Review(ctx context.Context, payments []models.Payment, txns []models.Transaction) ([]Suggestion, error) {
	const op = "Review"

	open := openInvoices(payments)
	byReceipt := make(map[receiptKey]models.Transaction, len(txns))
	for _, t := range txns {
		byReceipt[receiptKey{ref: t.Ref(), amount: t.Amount.Decimal.String(), millis: t.ReceivedMillis()}] = t
	}

	var suggestions []Suggestion
	unused := 0
	for _, p := range payments {
		if !p.IsUnused() {
			continue
		}
		unused++
		if err := ctx.Err(); err != nil {
			return suggestions, fmt.Errorf("%s: %w", op, err)
		}

		txn := byReceipt[receiptKey{ref: p.Memo, amount: p.Unused.TransactionAmount.String(), millis: p.Unused.ReceivedMillis}]
		candidates := rankCandidates(p, open)
		if len(candidates) == 0 {
			a.log.Debug().Str("transaction", p.Memo).Msg("No open invoice resembles this receipt")
			continue
		}

		match, err := a.ask(ctx, p, txn, candidates)
		if err != nil {
			a.log.Warn().Err(err).Str("transaction", p.Memo).Msg("Failed to get match from model, skipping")
			continue
		}
		if !match.Matched || match.CandidateIndex < 0 || match.CandidateIndex >= len(candidates) {
			continue
		}
		if match.Confidence < a.minConfidence {
			a.log.Debug().
				Str("transaction", p.Memo).
				Float64("confidence", match.Confidence).
				Msg("Discarding low-confidence suggestion")
			continue
		}

		inv := candidates[match.CandidateIndex].invoice
		suggestions = append(suggestions, Suggestion{
			TransactionRef: p.Memo,
			Sender:         p.CustomerName,
			Amount:         p.Amount,
			InvoiceNo:      inv.InvoiceNo,
			CustomerName:   inv.CustomerName,
			OpenBalance:    inv.Balance,
			Confidence:     match.Confidence,
			Reason:         match.Reason,
		})
	}

	a.log.Info().
		Int("unused", unused).
		Int("open_invoices", len(open)).
		Int("suggestions", len(suggestions)).
		Msg("Review completed")

	return suggestions, nil
}

// openInvoices collects invoices that are not fully paid, once each, in
// ledger order.
func openInvoices(payments []models.Payment) []openInvoice {
	var out []openInvoice
	seen := make(map[string]bool)
	for _, p := range payments {
		al := p.Allocation
		if al == nil || al.FullyPaid || seen[al.InvoiceNo] {
			continue
		}
		seen[al.InvoiceNo] = true
		balance := al.InvoiceAmount.Sub(al.TotalPaid)
		if !balance.IsPositive() {
			continue
		}
		out = append(out, openInvoice{
			InvoiceNo:    al.InvoiceNo,
			CustomerName: p.CustomerName,
			Balance:      balance,
		})
	}
	return out
}

// rankCandidates scores open invoices by name similarity (90%) and how close
// the receipt is to the open balance (10%). Invoices sharing no name token
// with the sender are not candidates.
func rankCandidates(p models.Payment, open []openInvoice) []candidate {
	sender := tokens(p.CustomerName)
	if len(sender) == 0 {
		return nil
	}

	var out []candidate
	for _, inv := range open {
		overlap := jaccard(sender, tokens(inv.CustomerName))
		if overlap == 0 {
			continue
		}
		out = append(out, candidate{
			invoice: inv,
			score:   overlap*0.9 + amountCloseness(p.Amount, inv.Balance)*0.1,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) > 1 {
			out[f] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func amountCloseness(amount, balance decimal.Decimal) float64 {
	larger := decimal.Max(amount.Abs(), balance.Abs())
	if larger.IsZero() {
		return 1
	}
	diff := amount.Sub(balance).Abs().Div(larger)
	f, _ := decimal.NewFromInt(1).Sub(diff).Float64()
	if f < 0 {
		return 0
	}
	return f
}

func (a *Advisor) ask(ctx context.Context, p models.Payment, txn models.Transaction, candidates []candidate) (*MatchResult, error) {
	const op = "ask"

	receiptJSON, err := json.MarshalIndent(map[string]interface{}{
		"reference": p.Memo,
		"date":      p.Date,
		"sender":    p.CustomerName,
		"phone":     txn.CustomerPhone,
		"amount":    p.Amount.StringFixed(2),
		"message":   txn.Message,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal receipt JSON: %w", op, err)
	}

	var candidatesData []map[string]interface{}
	for i, c := range candidates {
		candidatesData = append(candidatesData, map[string]interface{}{
			"index":        i,
			"invoice_no":   c.invoice.InvoiceNo,
			"customer":     c.invoice.CustomerName,
			"open_balance": c.invoice.Balance.StringFixed(2),
		})
	}
	candidatesJSON, err := json.MarshalIndent(candidatesData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal candidates JSON: %w", op, err)
	}

	prompt := fmt.Sprintf(`A mobile-money receipt could not be matched to a customer automatically.
Decide whether it belongs to one of these customers with open invoices.

RECEIPT:
%s

OPEN INVOICES:
%s

Consider:
1. Does the sender name refer to the same person or business as the customer?
2. Does the message mention the customer, a plate number or an invoice?
3. Is the amount plausible for the open balance?

Answer only with JSON in this format:
{
  "matched": true/false,
  "candidate_index": 0,
  "confidence": 0.9,
  "reason": "sender name matches customer"
}

If no invoice fits, set "matched": false and "candidate_index": -1.`, string(receiptJSON), string(candidatesJSON))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion failed: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no response choices", op)
	}

	var result MatchResult
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Choices[0].Message.Content)), &result); err != nil {
		return nil, fmt.Errorf("%s: failed to parse model response: %w", op, err)
	}

	a.log.Debug().
		Str("transaction", p.Memo).
		Bool("matched", result.Matched).
		Int("candidate_index", result.CandidateIndex).
		Float64("confidence", result.Confidence).
		Str("reason", result.Reason).
		Msg("Received match result")

	return &result, nil
}

// stripCodeFence removes a markdown code block around a JSON answer.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
