// Package audit keeps the append-only, per-record audit trail.
//
// Entries of one record form a hash chain ordered by a sequence number that is
// assigned under a per-record lock. Different records never contend.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

var (
	ErrChainBroken  = errors.New("audit hash chain is broken")
	ErrInvalidEntry = errors.New("invalid audit entry")
)

// GenesisHash is the PrevHash of the first entry of every record.
const GenesisHash = "genesis"

// Repository persists audit entries. It must reject a second entry with the same
// (record, sequence) and return entries ordered by sequence.
type Repository interface {
	AppendAudit(ctx context.Context, e contracts.AuditEntry) error
	ListAudit(ctx context.Context, recordID string) ([]contracts.AuditEntry, error)
	// LastAudit returns the highest-sequence entry or contracts.ErrNotFound.
	LastAudit(ctx context.Context, recordID string) (contracts.AuditEntry, error)
}

// DefaultMaxIdleHeads bounds the cached chain heads kept for records with no
// append in flight. Evicted heads are reloaded from the repository.
const DefaultMaxIdleHeads = 4096

type chainHead struct {
	mu     sync.Mutex
	refs   int // guarded by Log.mu
	loaded bool
	seq    uint64
	hash   string
}

// Log appends and reads audit entries.
type Log struct {
	repo    Repository
	clock   func() time.Time
	maxIdle int

	mu    sync.Mutex
	heads map[string]*chainHead
}

// NewLog creates a Log. A nil clock uses time.Now.
func NewLog(repo Repository, clock func() time.Time) *Log {
	if clock == nil {
		clock = time.Now
	}
	return &Log{
		repo:    repo,
		clock:   clock,
		maxIdle: DefaultMaxIdleHeads,
		heads:   make(map[string]*chainHead),
	}
}

// Append assigns the next sequence number of e.RecordID, chains and persists e.
func (l *Log) Append(ctx context.Context, e contracts.AuditEntry) (contracts.AuditEntry, error) {
	if e.RecordID == "" || e.ActorID == "" || e.Action == "" || e.Outcome == "" {
		return contracts.AuditEntry{}, fmt.Errorf("%w: record, actor, action and outcome are required", ErrInvalidEntry)
	}

	h := l.acquire(e.RecordID)
	defer l.release(h)
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		last, err := l.repo.LastAudit(ctx, e.RecordID)
		switch {
		case errors.Is(err, contracts.ErrNotFound):
			h.seq, h.hash = 0, GenesisHash
		case err != nil:
			return contracts.AuditEntry{}, fmt.Errorf("load audit head: %w", err)
		default:
			h.seq, h.hash = last.Sequence, last.EntryHash
		}
		h.loaded = true
	}

	e.ID = uuid.NewString()
	e.Sequence = h.seq + 1
	e.Timestamp = l.clock().UTC()
	e.PrevHash = h.hash
	hash, err := EntryHash(e)
	if err != nil {
		return contracts.AuditEntry{}, err
	}
	e.EntryHash = hash

	if err := l.repo.AppendAudit(ctx, e); err != nil {
		// Another writer may have advanced the chain; reload on next append.
		h.loaded = false
		return contracts.AuditEntry{}, fmt.Errorf("persist audit entry: %w", err)
	}
	h.seq, h.hash = e.Sequence, e.EntryHash
	return e, nil
}

// ListFor returns every entry of recordID, oldest first.
func (l *Log) ListFor(ctx context.Context, recordID string) ([]contracts.AuditEntry, error) {
	entries, err := l.repo.ListAudit(ctx, recordID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b contracts.AuditEntry) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		default:
			return 0
		}
	})
	return entries, nil
}

// VerifyChain recomputes the hash chain of recordID.
func (l *Log) VerifyChain(ctx context.Context, recordID string) error {
	entries, err := l.ListFor(ctx, recordID)
	if err != nil {
		return err
	}
	prev := GenesisHash
	for i, e := range entries {
		if e.Sequence != uint64(i+1) {
			return fmt.Errorf("%w: expected sequence %d, found %d", ErrChainBroken, i+1, e.Sequence)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: sequence %d does not link to its predecessor", ErrChainBroken, e.Sequence)
		}
		want, err := EntryHash(e)
		if err != nil {
			return err
		}
		if want != e.EntryHash {
			return fmt.Errorf("%w: sequence %d was modified", ErrChainBroken, e.Sequence)
		}
		prev = e.EntryHash
	}
	return nil
}

func (l *Log) acquire(recordID string) *chainHead {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.heads[recordID]
	if !ok {
		h = &chainHead{}
		l.heads[recordID] = h
	}
	h.refs++
	return h
}

// release drops a reference to h. Once the cache outgrows maxIdle, every head
// nobody holds is evicted; holders keep theirs, so appends stay serialized.
func (l *Log) release(h *chainHead) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h.refs--
	if len(l.heads) <= l.maxIdle {
		return
	}
	for id, other := range l.heads {
		if other.refs == 0 {
			delete(l.heads, id)
		}
	}
}

// EntryHash computes the chained hash of e. EntryHash itself is excluded.
func EntryHash(e contracts.AuditEntry) (string, error) {
	hashable := struct {
		ID        string                 `json:"id"`
		RecordID  string                 `json:"record_id"`
		Sequence  uint64                 `json:"sequence"`
		ActorID   string                 `json:"actor_id"`
		Action    contracts.AuditAction  `json:"action"`
		Outcome   contracts.AuditOutcome `json:"outcome"`
		Detail    string                 `json:"detail"`
		Metadata  map[string]string      `json:"metadata,omitempty"`
		Timestamp string                 `json:"timestamp"`
		PrevHash  string                 `json:"prev_hash"`
	}{
		ID:        e.ID,
		RecordID:  e.RecordID,
		Sequence:  e.Sequence,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Outcome:   e.Outcome,
		Detail:    e.Detail,
		Metadata:  e.Metadata,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		PrevHash:  e.PrevHash,
	}
	raw, err := json.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("marshal audit entry for hashing: %w", err)
	}
	data, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
