package reconciliation

import (
	"fmt"
	"strings"
	"time"

	"invoicepay/pkg/models"
)

// DateKeyLayout is the YYYY-MM-DD form used to compare received dates.
const DateKeyLayout = "2006-01-02"

var labelLayouts = []string{
	"2 Jan 2006",
	"2 January 2006",
	"2/1/2006", // day first, as the ledgers write it
	"2-1-2006",
	DateKeyLayout,
}

var clockLayouts = []string{
	"3:04 pm",
	"3:04pm",
	"15:04",
	"15:04:05",
}

// ReceivedDate is a normalised "received" cell.
type ReceivedDate struct {
	Raw   string    // cell text, e.g. "22 Jan 2026, 06:23 pm (EAT)"
	Label string    // date part before the comma, e.g. "22 Jan 2026"
	Key   string    // YYYY-MM-DD, empty when unparseable
	At    time.Time // instant in EAT, zero when unparseable
}

// ParseReceived normalises the received-date text of a ledger row. It never
// fails: unparseable input keeps Raw and Label and leaves Key and At empty.
func ParseReceived(raw string) ReceivedDate {
	rd := ReceivedDate{Raw: strings.TrimSpace(raw)}
	if rd.Raw == "" {
		return rd
	}

	label, clock, _ := strings.Cut(rd.Raw, ",")
	rd.Label = strings.TrimSpace(label)

	date, err := parseLabel(rd.Label)
	if err != nil {
		return rd
	}
	rd.Key = date.Format(DateKeyLayout)
	rd.At = date

	if offset, ok := parseClock(clock); ok {
		rd.At = date.Add(offset)
	}
	return rd
}

func parseLabel(label string) (time.Time, error) {
	for _, layout := range labelLayouts {
		if t, err := time.ParseInLocation(layout, label, models.EastAfrica); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", label)
}

// parseClock reads the time-of-day part of a received cell, ignoring any
// trailing zone marker such as "(EAT)".
func parseClock(clock string) (time.Duration, bool) {
	clock = strings.TrimSpace(clock)
	if i := strings.Index(clock, "("); i >= 0 {
		clock = strings.TrimSpace(clock[:i])
	}
	if clock == "" {
		return 0, false
	}
	clock = strings.ToLower(clock)

	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		return time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second, true
	}
	return 0, false
}
