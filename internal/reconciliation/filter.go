package reconciliation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"invoicepay/pkg/models"
)

// AllChannels disables channel filtering.
const AllChannels = "all"

// ErrInvalidWindow is returned when a window's bounds cannot be parsed or are reversed.
var ErrInvalidWindow = errors.New("invalid reconciliation window")

// Window selects the transactions one reconciliation run works on. Bounds are
// inclusive and interpreted in EAT.
type Window struct {
	Start   time.Time // zero: unbounded
	End     time.Time // zero: unbounded
	Channel string    // "" or "all": every channel
}

// NewWindow builds a window from form values. Dates are YYYY-MM-DD, times
// HH:MM; startTime defaults to 00:00 and endTime to the end of the day.
// Both dates empty yields an unbounded window.
func NewWindow(startDate, endDate, startTime, endTime, channel string) (Window, error) {
	const op = "NewWindow"

	w := Window{Channel: strings.TrimSpace(channel)}
	if startDate == "" && endDate == "" {
		return w, nil
	}
	if startDate == "" || endDate == "" {
		return Window{}, fmt.Errorf("%s: %w: both start and end date are required", op, ErrInvalidWindow)
	}

	start, err := windowBound(startDate, startTime, 0)
	if err != nil {
		return Window{}, fmt.Errorf("%s: %w: start: %v", op, ErrInvalidWindow, err)
	}

	endOfDay := 24*time.Hour - time.Millisecond
	if endTime != "" {
		endOfDay = 59*time.Second + 999*time.Millisecond
	}
	end, err := windowBound(endDate, endTime, endOfDay)
	if err != nil {
		return Window{}, fmt.Errorf("%s: %w: end: %v", op, ErrInvalidWindow, err)
	}

	if end.Before(start) {
		return Window{}, fmt.Errorf("%s: %w: end %s is before start %s", op, ErrInvalidWindow,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	w.Start, w.End = start, end
	return w, nil
}

// windowBound parses date plus optional HH:MM and adds pad, which rounds an
// end bound up to the last instant it covers.
func windowBound(date, clock string, pad time.Duration) (time.Time, error) {
	day, err := time.ParseInLocation(DateKeyLayout, strings.TrimSpace(date), models.EastAfrica)
	if err != nil {
		return time.Time{}, err
	}
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return day.Add(pad), nil
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + pad), nil
}

// Bounded reports whether the window restricts received dates.
func (w Window) Bounded() bool {
	return !w.Start.IsZero() || !w.End.IsZero()
}

// MatchesChannel reports whether transactions from channel pass the window.
func (w Window) MatchesChannel(channel string) bool {
	if w.Channel == "" || strings.EqualFold(w.Channel, AllChannels) {
		return true
	}
	return strings.EqualFold(w.Channel, channel)
}

// Contains reports whether txn falls inside the window. In a bounded window
// transactions without a received timestamp never match.
func (w Window) Contains(txn models.Transaction) bool {
	if !w.MatchesChannel(txn.Channel) {
		return false
	}
	if !w.Bounded() {
		return true
	}
	if txn.ReceivedAt.IsZero() {
		return false
	}
	if !w.Start.IsZero() && txn.ReceivedAt.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && txn.ReceivedAt.After(w.End) {
		return false
	}
	return true
}

// Filter returns the transactions inside the window, preserving order.
func (w Window) Filter(txns []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(txns))
	for _, txn := range txns {
		if w.Contains(txn) {
			out = append(out, txn)
		}
	}
	return out
}
