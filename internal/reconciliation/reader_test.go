package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepay/pkg/models"
)

type fakeSheets struct {
	mu     sync.Mutex
	ranges map[string][][]interface{}
	fail   map[string]error
	calls  []string
}

func (f *fakeSheets) ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rangeSpec)
	f.mu.Unlock()

	if err := f.fail[rangeSpec]; err != nil {
		return nil, err
	}
	return f.ranges[rangeSpec], nil
}

func ledgerFixture() *fakeSheets {
	return &fakeSheets{
		ranges: map[string][][]interface{}{
			"DEV-BODA_LEDGER!A2:H": {
				{"1", "M-PESA", "22 Jan 2026, 06:23 pm (EAT)", "Confirmed...", "0712345678", "JOHN DOE", "15,000", "CHK8H2X1"},
				{"2", "M-PESA", "23 Jan 2026, 09:00 am (EAT)", "", "0712345678", "JOHN DOE", "", ""},
				{},
			},
			"DEV-IPHONE_MIXX!A2:H": {
				{"1", "MIXX BY YAS", "21/01/2026", "", "0755000111", "JANE SMITH", 2500.5, ""},
			},
			"DEV-LIPA_MIXX!A2:H": {
				{"1", "MIXX BY YAS", "someday", "", "", "MIKE", "abc", "LP-9"},
			},
		},
	}
}

func TestDataReader_ReadChannel(t *testing.T) {
	dr := NewDataReader(ledgerFixture())

	txns, err := dr.ReadChannel(context.Background(), DefaultChannels()[0])
	require.NoError(t, err)
	require.Len(t, txns, 2, "blank rows are skipped")

	first := txns[0]
	assert.Equal(t, "CHK8H2X1", first.ID)
	assert.Equal(t, "CHK8H2X1", first.Ref())
	assert.Equal(t, "boda", first.Channel)
	assert.Equal(t, "M-PESA", first.PaymentChannel)
	assert.Equal(t, "JOHN DOE", first.CustomerName)
	assert.Equal(t, "JOHN DOE", first.ContractName)
	assert.Equal(t, "0712345678", first.CustomerPhone)
	assert.True(t, first.Amount.Valid)
	assert.True(t, decimal.NewFromInt(15000).Equal(first.Amount.Decimal))
	assert.Equal(t, "22 Jan 2026", first.ReceivedDate)
	assert.Equal(t, "2026-01-22", first.ReceivedDateKey)
	assert.True(t, time.Date(2026, 1, 22, 18, 23, 0, 0, models.EastAfrica).Equal(first.ReceivedAt))

	second := txns[1]
	assert.Equal(t, "boda-2", second.ID)
	assert.Equal(t, "", second.TransactionID)
	assert.False(t, second.Amount.Valid)
	assert.False(t, second.HasAmount())
}

func TestDataReader_ReadAllMergesInChannelOrder(t *testing.T) {
	fake := ledgerFixture()
	dr := NewDataReader(fake)

	txns, err := dr.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, txns, 4)

	assert.Equal(t, "boda", txns[0].Channel)
	assert.Equal(t, "boda", txns[1].Channel)
	assert.Equal(t, "iphone", txns[2].Channel)
	assert.Equal(t, "lipa", txns[3].Channel)

	jane := txns[2]
	assert.Equal(t, "iphone-1", jane.ID)
	assert.True(t, decimal.RequireFromString("2500.5").Equal(jane.Amount.Decimal))
	assert.Equal(t, "2026-01-21", jane.ReceivedDateKey)

	mike := txns[3]
	assert.False(t, mike.Amount.Valid)
	assert.True(t, mike.ReceivedAt.IsZero())
	assert.Equal(t, "someday", mike.ReceivedDate)
	assert.Len(t, fake.calls, 3)
}

func TestDataReader_ReadAllPropagatesErrors(t *testing.T) {
	fake := ledgerFixture()
	boom := errors.New("quota exceeded")
	fake.fail = map[string]error{"DEV-IPHONE_MIXX!A2:H": boom}

	_, err := NewDataReader(fake).ReadAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestDataReader_TransactionsFiltersByWindow(t *testing.T) {
	fake := ledgerFixture()
	dr := NewDataReader(fake)

	w, err := NewWindow("2026-01-22", "2026-01-22", "", "", "boda")
	require.NoError(t, err)

	txns, err := dr.Transactions(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "CHK8H2X1", txns[0].ID)
	assert.Equal(t, []string{"DEV-BODA_LEDGER!A2:H"}, fake.calls, "only the selected channel is read")
}

func TestDataReader_TransactionsUnknownChannel(t *testing.T) {
	dr := NewDataReader(ledgerFixture())

	_, err := dr.Transactions(context.Background(), Window{Channel: "paypal"})
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"15000", "15000", true},
		{"15,000", "15000", true},
		{"TZS 2,500.50", "2500.5", true},
		{" 0 ", "0", true},
		{"", "", false},
		{"n/a", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseAmount(tt.in)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got.Decimal), "got %s", got.Decimal)
			}
		})
	}
}
