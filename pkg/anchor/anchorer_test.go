package anchor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnchorer(t *testing.T, ledger Client) *Anchorer {
	t.Helper()
	return New(ledger, testSigner(t),
		WithClock(func() time.Time { return testTime }),
		WithPollInterval(time.Millisecond),
	)
}

func TestAnchorer_SubmitIsUnconfirmed(t *testing.T) {
	ledger := NewMemoryClient()
	a := newTestAnchorer(t, ledger)

	anc, err := a.Submit(context.Background(), "rec-1", testHash)
	require.NoError(t, err)
	assert.False(t, anc.Confirmed)
	assert.Equal(t, "rec-1", anc.RecordID)
	assert.Equal(t, testHash, anc.ContentHash)
	assert.Equal(t, testTime, anc.SubmittedAt)
	assert.NotEmpty(t, anc.TransactionRef)
}

func TestAnchorer_SubmitUnavailable(t *testing.T) {
	ledger := NewMemoryClient()
	ledger.SetAvailable(false)
	a := newTestAnchorer(t, ledger)

	_, err := a.Submit(context.Background(), "rec-1", testHash)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestAnchorer_AwaitConfirmation(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryClient()
	ledger.SetConfirmAfter(3)
	a := newTestAnchorer(t, ledger)

	anc, err := a.Submit(ctx, "rec-1", testHash)
	require.NoError(t, err)

	assert.False(t, a.Verify(ctx, anc.TransactionRef, testHash), "not final yet")
	assert.True(t, a.AwaitConfirmation(ctx, anc.TransactionRef, time.Second))
	assert.True(t, a.Verify(ctx, anc.TransactionRef, testHash))
}

func TestAnchorer_AwaitConfirmationTimesOut(t *testing.T) {
	ledger := NewMemoryClient()
	ledger.SetConfirmAfter(1 << 30)
	a := newTestAnchorer(t, ledger)

	anc, err := a.Submit(context.Background(), "rec-1", testHash)
	require.NoError(t, err)

	start := time.Now()
	assert.False(t, a.AwaitConfirmation(context.Background(), anc.TransactionRef, 20*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnchorer_Verify(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryClient()
	a := newTestAnchorer(t, ledger)

	anc, err := a.Submit(ctx, "rec-1", testHash)
	require.NoError(t, err)

	assert.True(t, a.Verify(ctx, anc.TransactionRef, testHash))
	assert.False(t, a.Verify(ctx, anc.TransactionRef, "sha256:other"))
	assert.False(t, a.Verify(ctx, "0xunknown", testHash), "unknown tx is false, not an error")

	ledger.Tamper(anc.TransactionRef, "sha256:other")
	assert.False(t, a.Verify(ctx, anc.TransactionRef, "sha256:other"), "tampered payload fails signature check")

	ledger.SetAvailable(false)
	assert.False(t, a.Verify(ctx, anc.TransactionRef, testHash))
}

func TestMatches_RecordID(t *testing.T) {
	tx, err := testSigner(t).Sign("rec-1", testHash, testTime)
	require.NoError(t, err)
	r := Receipt{Transaction: tx, Final: true}

	assert.True(t, Matches(r, "rec-1", testHash))
	assert.False(t, Matches(r, "rec-2", testHash))
}
