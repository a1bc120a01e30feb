package anchor

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLedgerUnavailable means the ledger could not be reached or did not answer.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrTxNotFound means the ledger has no such transaction.
	ErrTxNotFound = errors.New("ledger transaction not found")
	// ErrRejected means the ledger refused the transaction; retrying will not help.
	ErrRejected = errors.New("ledger rejected transaction")
	// ErrAnchorMismatch means a final transaction does not carry the expected content hash.
	ErrAnchorMismatch = errors.New("ledger transaction does not carry the content hash")
)

// Receipt is the ledger's view of a submitted transaction.
type Receipt struct {
	Ref         string      `json:"ref"`
	Transaction Transaction `json:"transaction"`
	Height      uint64      `json:"height"`
	Final       bool        `json:"final"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Client talks to an external ledger. Implementations must be safe for concurrent use.
type Client interface {
	// Submit hands a signed transaction to the ledger and returns its reference.
	// Submitting the same transaction twice returns the same reference.
	Submit(ctx context.Context, tx Transaction) (string, error)
	// Lookup returns the current receipt for ref, or ErrTxNotFound.
	Lookup(ctx context.Context, ref string) (Receipt, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
