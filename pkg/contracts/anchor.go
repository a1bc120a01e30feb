package contracts

import "time"

// LedgerAnchor binds a content hash to a ledger transaction.
// Confirmed is only true once the ledger reported finality.
type LedgerAnchor struct {
	RecordID       string     `json:"record_id"`
	ContentHash    string     `json:"content_hash"`
	TransactionRef string     `json:"transaction_ref"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	Confirmed      bool       `json:"confirmed"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	Attempts       int        `json:"attempts"`
}
