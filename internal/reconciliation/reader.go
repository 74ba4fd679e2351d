package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"invoicepay/internal/logger"
	"invoicepay/pkg/models"
)

// ErrUnknownChannel is returned when a window names a channel the reader has no sheet for.
var ErrUnknownChannel = errors.New("unknown channel")

// RangeReader reads A1-notation ranges from a spreadsheet.
// *sheets.Service satisfies it.
type RangeReader interface {
	ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error)
}

// DataReader reads mobile-money transactions from the channel ledger sheets.
type DataReader struct {
	reader   RangeReader
	channels []Channel
	log      zerolog.Logger
}

// NewDataReader creates a reader over the given channel sheets. With no
// channels it uses DefaultChannels.
func NewDataReader(reader RangeReader, channels ...Channel) *DataReader {
	if len(channels) == 0 {
		channels = DefaultChannels()
	}
	return &DataReader{
		reader:   reader,
		channels: channels,
		log:      logger.WithComponent("reconciliation-reader"),
	}
}

// Channels returns the configured channels in merge order.
func (dr *DataReader) Channels() []Channel {
	out := make([]Channel, len(dr.channels))
	copy(out, dr.channels)
	return out
}

// ReadChannel reads every row of one channel ledger.
func (dr *DataReader) ReadChannel(ctx context.Context, ch Channel) ([]models.Transaction, error) {
	const op = "ReadChannel"

	dr.log.Debug().Str("sheet", ch.Sheet).Str("channel", ch.Name).Msg("Reading channel ledger")

	values, err := dr.reader.ReadRange(ctx, ch.Sheet+ledgerRange)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read %s sheet: %w", op, ch.Sheet, err)
	}

	txns := make([]models.Transaction, 0, len(values))
	skipped := 0
	for i, row := range values {
		if isBlank(row) {
			skipped++
			continue
		}
		txns = append(txns, dr.parseRow(row, i, ch))
	}

	dr.log.Info().
		Str("channel", ch.Name).
		Int("rows", len(values)).
		Int("transactions", len(txns)).
		Int("blank_rows", skipped).
		Msg("Channel ledger read")

	return txns, nil
}

// ReadAll reads every configured channel concurrently and merges the rows in
// channel order. The first failing sheet cancels the others.
func (dr *DataReader) ReadAll(ctx context.Context) ([]models.Transaction, error) {
	return dr.read(ctx, dr.channels)
}

// Transactions reads the channels the window selects and filters the rows to it.
func (dr *DataReader) Transactions(ctx context.Context, w Window) ([]models.Transaction, error) {
	const op = "Transactions"

	var selected []Channel
	for _, ch := range dr.channels {
		if w.MatchesChannel(ch.Name) {
			selected = append(selected, ch)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnknownChannel, w.Channel)
	}

	all, err := dr.read(ctx, selected)
	if err != nil {
		return nil, err
	}

	filtered := w.Filter(all)
	dr.log.Info().
		Int("read", len(all)).
		Int("in_window", len(filtered)).
		Time("start", w.Start).
		Time("end", w.End).
		Str("channel", w.Channel).
		Msg("Transactions filtered")

	return filtered, nil
}

func (dr *DataReader) read(ctx context.Context, channels []Channel) ([]models.Transaction, error) {
	const op = "read"

	perChannel := make([][]models.Transaction, len(channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		g.Go(func() error {
			txns, err := dr.ReadChannel(gctx, ch)
			if err != nil {
				return err
			}
			perChannel[i] = txns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var merged []models.Transaction
	for _, txns := range perChannel {
		merged = append(merged, txns...)
	}
	return merged, nil
}

// parseRow never fails: bad cells degrade to empty fields so the row can
// still surface as an UNUSED line.
func (dr *DataReader) parseRow(row []interface{}, index int, ch Channel) models.Transaction {
	received := ParseReceived(getString(row, colReceived))
	txnID := getString(row, colTransactionID)
	contract := getString(row, colContract)

	id := txnID
	if id == "" {
		id = fmt.Sprintf("%s-%d", ch.Name, index+1)
	}

	amountText := getString(row, colAmount)
	amount := parseAmount(amountText)
	if amountText != "" && !amount.Valid {
		dr.log.Warn().
			Str("channel", ch.Name).
			Str("id", id).
			Str("amount", amountText).
			Msg("Unparseable amount, transaction will be excluded")
	}
	if received.Raw != "" && received.At.IsZero() {
		dr.log.Warn().
			Str("channel", ch.Name).
			Str("id", id).
			Str("received", received.Raw).
			Msg("Unparseable received date")
	}

	return models.Transaction{
		ID:              id,
		TransactionID:   txnID,
		Channel:         ch.Name,
		CustomerName:    contract,
		CustomerPhone:   getString(row, colPhone),
		ContractName:    contract,
		Amount:          amount,
		ReceivedAt:      received.At,
		ReceivedRaw:     received.Raw,
		ReceivedDate:    received.Label,
		ReceivedDateKey: received.Key,
		PaymentChannel:  getString(row, colPaymentChannel),
		Message:         getString(row, colMessage),
	}
}

// parseAmount reads a ledger amount such as "15,000" or "TZS 2,500.50".
// Empty or unparseable text yields an invalid NullDecimal.
func parseAmount(text string) decimal.NullDecimal {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(strings.ToUpper(cleaned), "TZS")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func isBlank(row []interface{}) bool {
	for i := range row {
		if getString(row, i) != "" {
			return false
		}
	}
	return true
}

// getString safely extracts a string value from a row slice
func getString(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[index]))
}
