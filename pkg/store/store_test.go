package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

// backend is the surface both stores implement.
type backend interface {
	CreateRecord(ctx context.Context, r contracts.Record) error
	GetRecord(ctx context.Context, id string) (contracts.Record, error)
	ListRecords(ctx context.Context, ownerID string, f contracts.RecordFilter) ([]contracts.Record, int, error)
	ListRecordsByState(ctx context.Context, states ...contracts.RecordState) ([]contracts.Record, error)
	UpdateRecordState(ctx context.Context, id string, state contracts.RecordState, detail string, anchor *contracts.LedgerAnchor, at time.Time) error
	RecordOwner(ctx context.Context, recordID string) (string, error)
	GetAnchor(ctx context.Context, recordID string) (contracts.LedgerAnchor, error)
	CreateGrant(ctx context.Context, g contracts.AccessGrant) error
	GetGrant(ctx context.Context, grantID string) (contracts.AccessGrant, error)
	ListGrants(ctx context.Context, recordID string) ([]contracts.AccessGrant, error)
	ListGranteeGrants(ctx context.Context, recordID, granteeID string) ([]contracts.AccessGrant, error)
	RevokeGrant(ctx context.Context, grantID string, at time.Time) error
	AppendAudit(ctx context.Context, e contracts.AuditEntry) error
	ListAudit(ctx context.Context, recordID string) ([]contracts.AuditEntry, error)
	LastAudit(ctx context.Context, recordID string) (contracts.AuditEntry, error)
	Ping(ctx context.Context) error
}

var (
	_ backend = (*MemoryStore)(nil)
	_ backend = (*SQLStore)(nil)
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db, DialectSQLite)
	require.NoError(t, s.Init(context.Background()))
	return s
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleRecord(id, owner string, offset time.Duration) contracts.Record {
	return contracts.Record{
		ID:             id,
		OwnerID:        owner,
		RecordType:     "lab_result",
		ContentPointer: "sha256:" + fmt.Sprintf("%064x", int64(offset)),
		ContentHash:    "sha256:" + fmt.Sprintf("%064d", 7),
		EncryptedSize:  128,
		MimeType:       "application/pdf",
		FileName:       "report.pdf",
		AccessLevel:    contracts.AccessLevelPrivate,
		Metadata:       json.RawMessage(`{"clinic":"north"}`),
		Provenance:     contracts.ProvenanceFallback,
		State:          contracts.StateStored,
		CreatedAt:      base.Add(offset),
		UpdatedAt:      base.Add(offset),
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s backend)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQLite(t)) })
}

func TestRecords_RoundTrip(t *testing.T) {
	eachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		rec := sampleRecord("rec-1", "alice", 0)
		require.NoError(t, s.CreateRecord(ctx, rec))

		got, err := s.GetRecord(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, rec.OwnerID, got.OwnerID)
		assert.Equal(t, rec.ContentHash, got.ContentHash)
		assert.Equal(t, rec.EncryptedSize, got.EncryptedSize)
		assert.JSONEq(t, string(rec.Metadata), string(got.Metadata))
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.Anchor)

		owner, err := s.RecordOwner(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", owner)

		_, err = s.GetRecord(ctx, "missing")
		require.ErrorIs(t, err, contracts.ErrNotFound)
		_, err = s.RecordOwner(ctx, "missing")
		require.ErrorIs(t, err, contracts.ErrNotFound)
		require.Error(t, s.CreateRecord(ctx, rec))
	})
}

func TestRecords_ListPagesNewestFirst(t *testing.T) {
	eachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.CreateRecord(ctx, sampleRecord(fmt.Sprintf("rec-%d", i), "alice", time.Duration(i)*time.Minute)))
		}
		other := sampleRecord("rec-bob", "bob", 0)
		require.NoError(t, s.CreateRecord(ctx, other))
		imaging := sampleRecord("rec-img", "alice", time.Hour)
		imaging.RecordType = "imaging"
		require.NoError(t, s.CreateRecord(ctx, imaging))

		page, total, err := s.ListRecords(ctx, "alice", contracts.RecordFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		require.Len(t, page, 2)
		assert.Equal(t, "rec-4", page[0].ID)
		assert.Equal(t, "rec-3", page[1].ID)

		typed, total, err := s.ListRecords(ctx, "alice", contracts.RecordFilter{RecordType: "imaging"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, typed, 1)
		assert.Equal(t, "rec-img", typed[0].ID)

		none, total, err := s.ListRecords(ctx, "carol", contracts.RecordFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, none)
	})
}

func TestRecords_StateAndAnchor(t *testing.T) {
	eachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateRecord(ctx, sampleRecord("rec-1", "alice", 0)))
		require.NoError(t, s.CreateRecord(ctx, sampleRecord("rec-2", "alice", time.Minute)))

		anchor := &contracts.LedgerAnchor{
			ContentHash:    "sha256:" + fmt.Sprintf("%064d", 7),
			TransactionRef: "0xabc",
			SubmittedAt:    base.Add(time.Second),
			Attempts:       1,
		}
		require.NoError(t, s.UpdateRecordState(ctx, "rec-1", contracts.StateAnchoring, "", anchor, base.Add(time.Second)))

		confirmedAt := base.Add(2 * time.Second)
		anchor.Confirmed = true
		anchor.ConfirmedAt = &confirmedAt
		require.NoError(t, s.UpdateRecordState(ctx, "rec-1", contracts.StateAnchored, "", anchor, confirmedAt))
		require.NoError(t, s.UpdateRecordState(ctx, "rec-2", contracts.StateAnchorFailed, "ledger unavailable", nil, confirmedAt))

		got, err := s.GetRecord(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, contracts.StateAnchored, got.State)
		require.NotNil(t, got.Anchor)
		assert.Equal(t, "rec-1", got.Anchor.RecordID)
		assert.True(t, got.Anchor.Confirmed)
		require.NotNil(t, got.Anchor.ConfirmedAt)
		assert.True(t, confirmedAt.Equal(*got.Anchor.ConfirmedAt))

		a, err := s.GetAnchor(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, "0xabc", a.TransactionRef)
		_, err = s.GetAnchor(ctx, "rec-2")
		require.ErrorIs(t, err, contracts.ErrNotFound)

		failed, err := s.ListRecordsByState(ctx, contracts.StateAnchorFailed, contracts.StateAnchoring)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "rec-2", failed[0].ID)
		assert.Equal(t, "ledger unavailable", failed[0].StateDetail)

		err = s.UpdateRecordState(ctx, "missing", contracts.StateAnchored, "", nil, base)
		require.ErrorIs(t, err, contracts.ErrNotFound)
	})
}

func TestGrants_RevokeIsIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateRecord(ctx, sampleRecord("rec-1", "alice", 0)))
		expires := base.Add(24 * time.Hour)
		grants := []contracts.AccessGrant{
			{ID: "g-1", RecordID: "rec-1", GranteeID: "bob", GrantorID: "alice", Permission: contracts.PermissionRead, GrantedAt: base, ExpiresAt: &expires},
			{ID: "g-2", RecordID: "rec-1", GranteeID: "carol", GrantorID: "alice", Permission: contracts.PermissionRead, GrantedAt: base.Add(time.Minute)},
		}
		for _, g := range grants {
			require.NoError(t, s.CreateGrant(ctx, g))
		}

		all, err := s.ListGrants(ctx, "rec-1")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "g-1", all[0].ID)

		bobs, err := s.ListGranteeGrants(ctx, "rec-1", "bob")
		require.NoError(t, err)
		require.Len(t, bobs, 1)
		require.NotNil(t, bobs[0].ExpiresAt)
		assert.True(t, expires.Equal(*bobs[0].ExpiresAt))

		first := base.Add(time.Hour)
		require.NoError(t, s.RevokeGrant(ctx, "g-1", first))
		require.NoError(t, s.RevokeGrant(ctx, "g-1", first.Add(time.Hour)))
		g, err := s.GetGrant(ctx, "g-1")
		require.NoError(t, err)
		assert.True(t, g.Revoked)
		require.NotNil(t, g.RevokedAt)
		assert.True(t, first.Equal(*g.RevokedAt))

		require.ErrorIs(t, s.RevokeGrant(ctx, "g-404", first), contracts.ErrNotFound)
		_, err = s.GetGrant(ctx, "g-404")
		require.ErrorIs(t, err, contracts.ErrNotFound)
	})
}

func TestAudit_OrderedAndUnique(t *testing.T) {
	eachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		_, err := s.LastAudit(ctx, "rec-1")
		require.ErrorIs(t, err, contracts.ErrNotFound)

		for _, seq := range []uint64{2, 1, 3} {
			require.NoError(t, s.AppendAudit(ctx, contracts.AuditEntry{
				ID:        fmt.Sprintf("a-%d", seq),
				RecordID:  "rec-1",
				Sequence:  seq,
				ActorID:   "alice",
				Action:    contracts.ActionDownload,
				Outcome:   contracts.OutcomeSuccess,
				Metadata:  map[string]string{"ip": "10.0.0.1"},
				Timestamp: base.Add(time.Duration(seq) * time.Second),
				PrevHash:  "genesis",
				EntryHash: fmt.Sprintf("sha256:%d", seq),
			}))
		}
		dup := contracts.AuditEntry{ID: "a-dup", RecordID: "rec-1", Sequence: 2, ActorID: "x", Action: contracts.ActionVerify,
			Outcome: contracts.OutcomeSuccess, Timestamp: base, PrevHash: "genesis", EntryHash: "sha256:dup"}
		require.Error(t, s.AppendAudit(ctx, dup))

		entries, err := s.ListAudit(ctx, "rec-1")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for i, e := range entries {
			assert.Equal(t, uint64(i+1), e.Sequence)
		}
		assert.Equal(t, "10.0.0.1", entries[0].Metadata["ip"])

		last, err := s.LastAudit(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), last.Sequence)
	})
}

func TestMemoryStore_ConcurrentGrants(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateRecord(ctx, sampleRecord("rec-1", "alice", 0)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.CreateGrant(ctx, contracts.AccessGrant{
				ID: fmt.Sprintf("g-%d", i), RecordID: "rec-1", GranteeID: "bob", GrantorID: "alice",
				Permission: contracts.PermissionRead, GrantedAt: base,
			}))
		}(i)
	}
	wg.Wait()

	grants, err := s.ListGranteeGrants(ctx, "rec-1", "bob")
	require.NoError(t, err)
	assert.Len(t, grants, 20)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateRecord(ctx, sampleRecord("rec-1", "alice", 0)))

	got, err := s.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	got.Metadata[0] = 'X'

	again, err := s.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"clinic":"north"}`, string(again.Metadata))
}
