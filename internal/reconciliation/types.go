package reconciliation

// Channel maps a mobile-money ledger sheet to the channel name its
// transactions are tagged with.
type Channel struct {
	Name  string // boda, iphone, lipa
	Sheet string // DEV-BODA_LEDGER, ...
}

// DefaultChannels lists the ledgers in the order their transactions are merged.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: "boda", Sheet: "DEV-BODA_LEDGER"},
		{Name: "iphone", Sheet: "DEV-IPHONE_MIXX"},
		{Name: "lipa", Sheet: "DEV-LIPA_MIXX"},
	}
}

// Ledger column positions within the A:H range.
const (
	colPaymentChannel = 1 // B: M-PESA, MIXX BY YAS
	colReceived       = 2 // C: "22 Jan 2026, 06:23 pm (EAT)"
	colMessage        = 3 // D: SMS body
	colPhone          = 4 // E: sender contacts
	colContract       = 5 // F: contract name
	colAmount         = 6 // G
	colTransactionID  = 7 // H
)

// ledgerRange skips the header row.
const ledgerRange = "!A2:H"
