package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
	"github.com/Mindburn-Labs/custody/pkg/store"
)

type fixture struct {
	ctl   *Controller
	store *store.MemoryStore
	now   time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemoryStore(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.ctl = NewController(f.store, f.store, WithClock(func() time.Time { return f.now }))
	require.NoError(t, f.store.CreateRecord(context.Background(), contracts.Record{
		ID:        "rec-1",
		OwnerID:   "alice",
		State:     contracts.StateStored,
		CreatedAt: f.now,
	}))
	return f
}

func TestCanRead_Owner(t *testing.T) {
	f := newFixture(t)
	ok, err := f.ctl.CanRead(context.Background(), "rec-1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.ctl.CanRead(context.Background(), "rec-1", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.ctl.CanRead(context.Background(), "rec-1", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrant_ExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.ctl.Grant(ctx, "rec-1", "alice", "bob", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "alice", g.GrantorID)
	assert.Equal(t, contracts.PermissionRead, g.Permission)
	require.NotNil(t, g.ExpiresAt)
	assert.Equal(t, f.now.Add(24*time.Hour), *g.ExpiresAt)

	ok, err := f.ctl.CanRead(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	f.advance(24 * time.Hour)
	ok, err = f.ctl.CanRead(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.False(t, ok, "expiry is exclusive: now == expiresAt is no longer effective")
}

func TestGrant_ZeroTTLNeverExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.ctl.Grant(ctx, "rec-1", "alice", "bob", 0)
	require.NoError(t, err)
	assert.Nil(t, g.ExpiresAt)

	f.advance(10 * 365 * 24 * time.Hour)
	ok, err := f.ctl.CanRead(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGrant_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctl.Grant(ctx, "rec-1", "mallory", "bob", time.Hour)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.ctl.Grant(ctx, "rec-1", "alice", "alice", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = f.ctl.Grant(ctx, "rec-1", "alice", "", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = f.ctl.Grant(ctx, "rec-1", "alice", "bob", -time.Hour)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = f.ctl.Grant(ctx, "missing", "alice", "bob", time.Hour)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.ctl.Grant(ctx, "rec-1", "alice", "bob", 48*time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, f.ctl.Revoke(ctx, "rec-1", g.ID, "bob"), ErrNotOwner)
	require.NoError(t, f.ctl.Revoke(ctx, "rec-1", g.ID, "alice"))
	require.NoError(t, f.ctl.Revoke(ctx, "rec-1", g.ID, "alice"), "revoking twice is idempotent")

	ok, err := f.ctl.CanRead(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.False(t, ok, "revoked before expiry still denies")

	assert.ErrorIs(t, f.ctl.Revoke(ctx, "rec-1", "no-such-grant", "alice"), ErrGrantNotFound)

	grants, err := f.ctl.ListGrants(ctx, "rec-1", "alice")
	require.NoError(t, err)
	require.Len(t, grants, 1, "revoked grants are kept")
	assert.True(t, grants[0].Revoked)
	require.NotNil(t, grants[0].RevokedAt)

	_, err = f.ctl.ListGrants(ctx, "rec-1", "bob")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestRevoke_GrantOfOtherRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateRecord(ctx, contracts.Record{ID: "rec-2", OwnerID: "alice", CreatedAt: f.now}))

	g, err := f.ctl.Grant(ctx, "rec-2", "alice", "bob", time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ctl.Revoke(ctx, "rec-1", g.ID, "alice"), ErrGrantNotFound)
}

func TestCanRead_AnyEffectiveGrantWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short, err := f.ctl.Grant(ctx, "rec-1", "alice", "bob", time.Hour)
	require.NoError(t, err)
	_, err = f.ctl.Grant(ctx, "rec-1", "alice", "bob", 72*time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.ctl.Revoke(ctx, "rec-1", short.ID, "alice"))
	ok, err := f.ctl.CanRead(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.True(t, ok, "second grant still effective")

	f.advance(73 * time.Hour)
	ok, err = f.ctl.CanRead(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanAudit_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctl.Grant(ctx, "rec-1", "alice", "bob", time.Hour)
	require.NoError(t, err)

	ok, err := f.ctl.CanAudit(ctx, "rec-1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.ctl.CanAudit(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.False(t, ok, "read grants do not confer audit")
}
