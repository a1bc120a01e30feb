// Package store persists records, ledger anchors, access grants and audit
// entries. MemoryStore backs tests and ephemeral runs; SQLStore backs
// SQLite (lite mode) and PostgreSQL deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

// ErrDuplicate is returned when a row with the same key already exists.
var ErrDuplicate = errors.New("duplicate key")

// MemoryStore is an in-process store. Values are copied in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]contracts.Record
	anchors map[string]contracts.LedgerAnchor
	grants  map[string]contracts.AccessGrant
	audit   map[string][]contracts.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]contracts.Record),
		anchors: make(map[string]contracts.LedgerAnchor),
		grants:  make(map[string]contracts.AccessGrant),
		audit:   make(map[string][]contracts.AuditEntry),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, contracts.ErrNotFound)
}

func (s *MemoryStore) CreateRecord(_ context.Context, r contracts.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("record %q: %w", r.ID, ErrDuplicate)
	}
	r.Anchor = nil
	r.Metadata = slices.Clone(r.Metadata)
	s.records[r.ID] = r
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (contracts.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return contracts.Record{}, notFound("record", id)
	}
	return s.withAnchor(r), nil
}

func (s *MemoryStore) withAnchor(r contracts.Record) contracts.Record {
	r.Metadata = slices.Clone(r.Metadata)
	if a, ok := s.anchors[r.ID]; ok {
		r.Anchor = &a
	}
	return r
}

// ListRecords returns the owner's records, newest first, and the unpaged total.
func (s *MemoryStore) ListRecords(_ context.Context, ownerID string, f contracts.RecordFilter) ([]contracts.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []contracts.Record
	for _, r := range s.records {
		if r.OwnerID != ownerID {
			continue
		}
		if f.RecordType != "" && r.RecordType != f.RecordType {
			continue
		}
		matched = append(matched, s.withAnchor(r))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	return page(matched, f.Offset, f.Limit), total, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ListRecordsByState returns records in any of states, oldest first.
func (s *MemoryStore) ListRecordsByState(_ context.Context, states ...contracts.RecordState) ([]contracts.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contracts.Record
	for _, r := range s.records {
		if slices.Contains(states, r.State) {
			out = append(out, s.withAnchor(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateRecordState moves a record to state and, when anchor is set, stores it in the same step.
func (s *MemoryStore) UpdateRecordState(_ context.Context, id string, state contracts.RecordState, detail string, anchor *contracts.LedgerAnchor, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return notFound("record", id)
	}
	r.State = state
	r.StateDetail = detail
	r.UpdatedAt = at
	s.records[id] = r
	if anchor != nil {
		a := *anchor
		a.RecordID = id
		s.anchors[id] = a
	}
	return nil
}

func (s *MemoryStore) RecordOwner(_ context.Context, recordID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return "", notFound("record", recordID)
	}
	return r.OwnerID, nil
}

func (s *MemoryStore) GetAnchor(_ context.Context, recordID string) (contracts.LedgerAnchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.anchors[recordID]
	if !ok {
		return contracts.LedgerAnchor{}, notFound("anchor", recordID)
	}
	return a, nil
}

func (s *MemoryStore) CreateGrant(_ context.Context, g contracts.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.ID]; ok {
		return fmt.Errorf("grant %q: %w", g.ID, ErrDuplicate)
	}
	if _, ok := s.records[g.RecordID]; !ok {
		return notFound("record", g.RecordID)
	}
	s.grants[g.ID] = g
	return nil
}

func (s *MemoryStore) GetGrant(_ context.Context, grantID string) (contracts.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID]
	if !ok {
		return contracts.AccessGrant{}, notFound("grant", grantID)
	}
	return g, nil
}

func (s *MemoryStore) ListGrants(_ context.Context, recordID string) ([]contracts.AccessGrant, error) {
	return s.filterGrants(func(g contracts.AccessGrant) bool { return g.RecordID == recordID }), nil
}

func (s *MemoryStore) ListGranteeGrants(_ context.Context, recordID, granteeID string) ([]contracts.AccessGrant, error) {
	return s.filterGrants(func(g contracts.AccessGrant) bool {
		return g.RecordID == recordID && g.GranteeID == granteeID
	}), nil
}

func (s *MemoryStore) filterGrants(keep func(contracts.AccessGrant) bool) []contracts.AccessGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []contracts.AccessGrant{}
	for _, g := range s.grants {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.Before(out[j].GrantedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RevokeGrant marks a grant revoked. Revoking twice keeps the first timestamp.
func (s *MemoryStore) RevokeGrant(_ context.Context, grantID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantID]
	if !ok {
		return notFound("grant", grantID)
	}
	if g.Revoked {
		return nil
	}
	g.Revoked = true
	g.RevokedAt = &at
	s.grants[grantID] = g
	return nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, e contracts.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.audit[e.RecordID] {
		if existing.Sequence == e.Sequence {
			return fmt.Errorf("audit %s#%d: %w", e.RecordID, e.Sequence, ErrDuplicate)
		}
	}
	e.Metadata = maps.Clone(e.Metadata)
	s.audit[e.RecordID] = append(s.audit[e.RecordID], e)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, recordID string) ([]contracts.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.AuditEntry, 0, len(s.audit[recordID]))
	for _, e := range s.audit[recordID] {
		e.Metadata = maps.Clone(e.Metadata)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) LastAudit(ctx context.Context, recordID string) (contracts.AuditEntry, error) {
	entries, _ := s.ListAudit(ctx, recordID)
	if len(entries) == 0 {
		return contracts.AuditEntry{}, notFound("audit trail", recordID)
	}
	return entries[len(entries)-1], nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
