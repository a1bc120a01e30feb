package catalog

import (
	"context"

	"github.com/Mindburn-Labs/custody/pkg/anchor"
	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

var _ anchor.Sink = (*Catalog)(nil)

// AnchorStarted moves a record to anchoring.
func (c *Catalog) AnchorStarted(ctx context.Context, recordID string) {
	c.transition(ctx, recordID, contracts.StateAnchoring, "", nil)
}

// AnchorSubmitted stores the unconfirmed anchor so a restart can resume polling it.
func (c *Catalog) AnchorSubmitted(ctx context.Context, a contracts.LedgerAnchor) {
	c.transition(ctx, a.RecordID, contracts.StateAnchoring, "", &a)
}

func (c *Catalog) AnchorConfirmed(ctx context.Context, a contracts.LedgerAnchor) {
	c.transition(ctx, a.RecordID, contracts.StateAnchored, "", &a)
}

// AnchorFailed marks the record anchor_failed. The record stays fully readable.
func (c *Catalog) AnchorFailed(ctx context.Context, recordID string, cause error) {
	detail := "anchoring failed"
	if cause != nil {
		detail = cause.Error()
	}
	c.transition(ctx, recordID, contracts.StateAnchorFailed, detail, nil)
}

func (c *Catalog) transition(ctx context.Context, recordID string, state contracts.RecordState, detail string, a *contracts.LedgerAnchor) {
	ctx = context.WithoutCancel(ctx)
	if err := c.records.UpdateRecordState(ctx, recordID, state, detail, a, c.clock().UTC()); err != nil {
		c.logger.ErrorContext(ctx, "record state transition failed", "record_id", recordID, "state", state, "error", err)
		return
	}
	c.cache.Invalidate(ctx, recordID)
}
