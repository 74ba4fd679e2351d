package reconciliation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepay/pkg/models"
)

func TestParseReceived(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		label string
		key   string
		at    time.Time
	}{
		{
			name:  "ledger format with clock",
			raw:   "22 Jan 2026, 06:23 pm (EAT)",
			label: "22 Jan 2026",
			key:   "2026-01-22",
			at:    time.Date(2026, 1, 22, 18, 23, 0, 0, models.EastAfrica),
		},
		{
			name:  "morning clock",
			raw:   "3 Feb 2026, 9:05 am",
			label: "3 Feb 2026",
			key:   "2026-02-03",
			at:    time.Date(2026, 2, 3, 9, 5, 0, 0, models.EastAfrica),
		},
		{
			name:  "day first slashes",
			raw:   "05/02/2026",
			label: "05/02/2026",
			key:   "2026-02-05",
			at:    time.Date(2026, 2, 5, 0, 0, 0, 0, models.EastAfrica),
		},
		{
			name:  "iso",
			raw:   "2026-01-31",
			label: "2026-01-31",
			key:   "2026-01-31",
			at:    time.Date(2026, 1, 31, 0, 0, 0, 0, models.EastAfrica),
		},
		{
			name:  "garbage keeps label",
			raw:   "yesterday, noon",
			label: "yesterday",
		},
		{
			name: "empty",
			raw:  "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReceived(tt.raw)
			assert.Equal(t, tt.label, got.Label)
			assert.Equal(t, tt.key, got.Key)
			if tt.at.IsZero() {
				assert.True(t, got.At.IsZero())
			} else {
				assert.True(t, tt.at.Equal(got.At), "got %s", got.At)
			}
		})
	}
}

func TestNewWindow(t *testing.T) {
	w, err := NewWindow("2026-01-01", "2026-01-31", "", "", "all")
	require.NoError(t, err)
	assert.True(t, w.Bounded())
	assert.True(t, time.Date(2026, 1, 1, 0, 0, 0, 0, models.EastAfrica).Equal(w.Start))
	assert.True(t, time.Date(2026, 1, 31, 23, 59, 59, 999e6, models.EastAfrica).Equal(w.End))

	w, err = NewWindow("2026-01-01", "2026-01-01", "08:00", "17:30", "")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 1, 1, 8, 0, 0, 0, models.EastAfrica).Equal(w.Start))
	assert.True(t, time.Date(2026, 1, 1, 17, 30, 59, 999e6, models.EastAfrica).Equal(w.End))

	w, err = NewWindow("", "", "", "", "lipa")
	require.NoError(t, err)
	assert.False(t, w.Bounded())
	assert.Equal(t, "lipa", w.Channel)
}

func TestNewWindow_Invalid(t *testing.T) {
	cases := map[string][4]string{
		"missing end":   {"2026-01-01", "", "", ""},
		"bad date":      {"01/01/2026", "2026-01-02", "", ""},
		"bad time":      {"2026-01-01", "2026-01-02", "8am", ""},
		"end precedes":  {"2026-01-05", "2026-01-01", "", ""},
		"clock reverse": {"2026-01-01", "2026-01-01", "10:00", "09:00"},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewWindow(c[0], c[1], c[2], c[3], "")
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestWindow_Filter(t *testing.T) {
	at := func(d, h int) time.Time { return time.Date(2026, 1, d, h, 0, 0, 0, models.EastAfrica) }
	txns := []models.Transaction{
		{ID: "a", Channel: "boda", ReceivedAt: at(1, 0)},
		{ID: "b", Channel: "lipa", ReceivedAt: at(15, 12)},
		{ID: "c", Channel: "boda", ReceivedAt: at(31, 23)},
		{ID: "d", Channel: "boda", ReceivedAt: at(1, 0).Add(-time.Second)},
		{ID: "e", Channel: "boda"},
	}

	ids := func(in []models.Transaction) []string {
		var out []string
		for _, tx := range in {
			out = append(out, tx.ID)
		}
		return out
	}

	w, err := NewWindow("2026-01-01", "2026-01-31", "", "", "all")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(w.Filter(txns)))

	w.Channel = "BODA"
	assert.Equal(t, []string{"a", "c"}, ids(w.Filter(txns)))

	unbounded := Window{Channel: "boda"}
	assert.Equal(t, []string{"a", "c", "d", "e"}, ids(unbounded.Filter(txns)), "undated rows pass an unbounded window")
}
