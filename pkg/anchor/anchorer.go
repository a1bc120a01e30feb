// Package anchor binds record content hashes to an external ledger.
//
// An Anchorer signs and submits anchor transactions through a Client and later
// checks them. A Worker runs anchoring in the background with a bounded retry
// budget so ledger trouble never holds up an upload.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

// Anchorer submits and verifies anchors.
type Anchorer struct {
	client       Client
	signer       *Signer
	clock        func() time.Time
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures an Anchorer.
type Option func(*Anchorer)

// WithClock sets the time source used for payload timestamps.
func WithClock(clock func() time.Time) Option {
	return func(a *Anchorer) { a.clock = clock }
}

// WithPollInterval sets how often AwaitConfirmation polls the ledger.
func WithPollInterval(d time.Duration) Option {
	return func(a *Anchorer) { a.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Anchorer) { a.logger = l }
}

// New creates an Anchorer.
func New(client Client, signer *Signer, opts ...Option) *Anchorer {
	a := &Anchorer{
		client:       client,
		signer:       signer,
		clock:        time.Now,
		pollInterval: 500 * time.Millisecond,
		logger:       slog.Default().With("component", "anchor"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Submit signs and submits an anchor for contentHash. The returned anchor is unconfirmed.
func (a *Anchorer) Submit(ctx context.Context, recordID, contentHash string) (contracts.LedgerAnchor, error) {
	now := a.clock()
	tx, err := a.signer.Sign(recordID, contentHash, now)
	if err != nil {
		return contracts.LedgerAnchor{}, err
	}
	ref, err := a.client.Submit(ctx, tx)
	if err != nil {
		if errors.Is(err, ErrRejected) || errors.Is(err, ErrLedgerUnavailable) {
			return contracts.LedgerAnchor{}, err
		}
		return contracts.LedgerAnchor{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return contracts.LedgerAnchor{
		RecordID:       recordID,
		ContentHash:    contentHash,
		TransactionRef: ref,
		SubmittedAt:    now,
	}, nil
}

// AwaitConfirmation polls until ref is final or timeout elapses.
// Transient lookup errors are tolerated until the deadline.
func (a *Anchorer) AwaitConfirmation(ctx context.Context, ref string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		r, err := a.client.Lookup(ctx, ref)
		if err == nil && r.Final {
			return true
		}
		if err != nil && !errors.Is(err, ErrTxNotFound) && ctx.Err() == nil {
			a.logger.DebugContext(ctx, "confirmation lookup failed", "ref", ref, "error", err)
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Inspect returns the ledger receipt for ref.
func (a *Anchorer) Inspect(ctx context.Context, ref string) (Receipt, error) {
	return a.client.Lookup(ctx, ref)
}

// Verify reports whether ref is final on the ledger and carries expectedHash.
// Missing, unconfirmed or unreadable transactions yield false.
func (a *Anchorer) Verify(ctx context.Context, ref, expectedHash string) bool {
	r, err := a.client.Lookup(ctx, ref)
	if err != nil || !r.Final {
		return false
	}
	return Matches(r, "", expectedHash)
}

// Matches reports whether a receipt carries a valid signature over expectedHash.
// recordID is checked when non-empty.
func Matches(r Receipt, recordID, expectedHash string) bool {
	if r.Transaction.VerifySignature() != nil {
		return false
	}
	if recordID != "" && r.Transaction.Payload.RecordID != recordID {
		return false
	}
	return r.Transaction.Payload.ContentHash == expectedHash
}

// Ping checks ledger connectivity.
func (a *Anchorer) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
