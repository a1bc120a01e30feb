package resiliency

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("ledger", 2, 10*time.Second).WithClock(func() time.Time { return now })
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { t.Fatal("must not run while open"); return nil })
	assert.ErrorIs(t, err, ErrOpen)

	now = now.Add(11 * time.Second)
	require.True(t, cb.Allow(), "trial call allowed after reset timeout")
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one trial call at a time")

	cb.Success()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("s3", 1, time.Second).WithClock(func() time.Time { return now })

	cb.Failure()
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.True(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}
