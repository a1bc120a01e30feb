// Package access decides who may read, share and audit a record.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

var (
	ErrAccessDenied  = errors.New("access denied")
	ErrNotOwner      = errors.New("requester is not the record owner")
	ErrInvalidGrant  = errors.New("invalid grant")
	ErrGrantNotFound = errors.New("grant not found")
)

// GrantStore persists grants. Grants are never deleted.
type GrantStore interface {
	CreateGrant(ctx context.Context, g contracts.AccessGrant) error
	GetGrant(ctx context.Context, grantID string) (contracts.AccessGrant, error)
	ListGrants(ctx context.Context, recordID string) ([]contracts.AccessGrant, error)
	ListGranteeGrants(ctx context.Context, recordID, granteeID string) ([]contracts.AccessGrant, error)
	RevokeGrant(ctx context.Context, grantID string, at time.Time) error
}

// OwnerLookup resolves the owner of a record. It returns contracts.ErrNotFound for unknown records.
type OwnerLookup interface {
	RecordOwner(ctx context.Context, recordID string) (string, error)
}

// Controller evaluates ownership and grants. Grant effectiveness is computed on every call.
type Controller struct {
	owners OwnerLookup
	grants GrantStore
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time used to evaluate expiry.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a Controller.
func NewController(owners OwnerLookup, grants GrantStore, opts ...Option) *Controller {
	c := &Controller{
		owners: owners,
		grants: grants,
		clock:  time.Now,
		logger: slog.Default().With("component", "access"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanRead reports whether requester owns the record or holds any effective grant on it.
func (c *Controller) CanRead(ctx context.Context, recordID, requesterID string) (bool, error) {
	if requesterID == "" {
		return false, nil
	}
	owner, err := c.owners.RecordOwner(ctx, recordID)
	if err != nil {
		return false, fmt.Errorf("resolve owner of %s: %w", recordID, err)
	}
	if owner == requesterID {
		return true, nil
	}

	grants, err := c.grants.ListGranteeGrants(ctx, recordID, requesterID)
	if err != nil {
		return false, fmt.Errorf("list grants: %w", err)
	}
	now := c.clock()
	for _, g := range grants {
		if g.Permission == contracts.PermissionRead && g.EffectiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// CanAudit reports whether requester may read the audit trail. Only the owner may.
func (c *Controller) CanAudit(ctx context.Context, recordID, requesterID string) (bool, error) {
	owner, err := c.owners.RecordOwner(ctx, recordID)
	if err != nil {
		return false, fmt.Errorf("resolve owner of %s: %w", recordID, err)
	}
	return requesterID != "" && owner == requesterID, nil
}

// Grant gives granteeID read access for ttl. A zero ttl never expires.
func (c *Controller) Grant(ctx context.Context, recordID, grantorID, granteeID string, ttl time.Duration) (contracts.AccessGrant, error) {
	if err := c.requireOwner(ctx, recordID, grantorID); err != nil {
		return contracts.AccessGrant{}, err
	}
	switch {
	case granteeID == "":
		return contracts.AccessGrant{}, fmt.Errorf("%w: grantee is required", ErrInvalidGrant)
	case granteeID == grantorID:
		return contracts.AccessGrant{}, fmt.Errorf("%w: owner already has access", ErrInvalidGrant)
	case ttl < 0:
		return contracts.AccessGrant{}, fmt.Errorf("%w: negative ttl", ErrInvalidGrant)
	}

	now := c.clock()
	g := contracts.AccessGrant{
		ID:         uuid.NewString(),
		RecordID:   recordID,
		GranteeID:  granteeID,
		GrantorID:  grantorID,
		Permission: contracts.PermissionRead,
		GrantedAt:  now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		g.ExpiresAt = &exp
	}
	if err := c.grants.CreateGrant(ctx, g); err != nil {
		return contracts.AccessGrant{}, fmt.Errorf("persist grant: %w", err)
	}
	c.logger.InfoContext(ctx, "grant created", "record_id", recordID, "grant_id", g.ID, "grantee", granteeID)
	return g, nil
}

// Revoke marks a grant revoked. Revoking twice is not an error.
func (c *Controller) Revoke(ctx context.Context, recordID, grantID, requesterID string) error {
	if err := c.requireOwner(ctx, recordID, requesterID); err != nil {
		return err
	}
	g, err := c.grants.GetGrant(ctx, grantID)
	if errors.Is(err, contracts.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, grantID)
	}
	if err != nil {
		return fmt.Errorf("load grant: %w", err)
	}
	if g.RecordID != recordID {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, grantID)
	}
	if g.Revoked {
		return nil
	}
	if err := c.grants.RevokeGrant(ctx, grantID, c.clock()); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	c.logger.InfoContext(ctx, "grant revoked", "record_id", recordID, "grant_id", grantID)
	return nil
}

// ListGrants returns every grant on the record, including revoked and expired ones. Owner only.
func (c *Controller) ListGrants(ctx context.Context, recordID, requesterID string) ([]contracts.AccessGrant, error) {
	if err := c.requireOwner(ctx, recordID, requesterID); err != nil {
		return nil, err
	}
	return c.grants.ListGrants(ctx, recordID)
}

func (c *Controller) requireOwner(ctx context.Context, recordID, principalID string) error {
	owner, err := c.owners.RecordOwner(ctx, recordID)
	if err != nil {
		return fmt.Errorf("resolve owner of %s: %w", recordID, err)
	}
	if principalID == "" || owner != principalID {
		return ErrNotOwner
	}
	return nil
}
