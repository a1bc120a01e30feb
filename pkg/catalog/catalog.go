// Package catalog orchestrates record custody: encryption, content storage,
// ledger anchoring, access control and the audit trail. It is the only
// component the HTTP boundary talks to.
//
// Record state moves uploading → stored → anchoring → anchored | anchor_failed.
// Every state past uploading serves reads.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/custody/pkg/access"
	"github.com/Mindburn-Labs/custody/pkg/anchor"
	"github.com/Mindburn-Labs/custody/pkg/audit"
	"github.com/Mindburn-Labs/custody/pkg/cache"
	"github.com/Mindburn-Labs/custody/pkg/contracts"
	"github.com/Mindburn-Labs/custody/pkg/guard"
	"github.com/Mindburn-Labs/custody/pkg/observability"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Repository persists records and their anchors.
type Repository interface {
	CreateRecord(ctx context.Context, r contracts.Record) error
	GetRecord(ctx context.Context, id string) (contracts.Record, error)
	ListRecords(ctx context.Context, ownerID string, f contracts.RecordFilter) ([]contracts.Record, int, error)
	ListRecordsByState(ctx context.Context, states ...contracts.RecordState) ([]contracts.Record, error)
	UpdateRecordState(ctx context.Context, id string, state contracts.RecordState, detail string, anchor *contracts.LedgerAnchor, at time.Time) error
	Ping(ctx context.Context) error
}

// ContentStore holds encrypted blobs by pointer.
type ContentStore interface {
	Put(ctx context.Context, ciphertext []byte) (string, contracts.Provenance, error)
	Get(ctx context.Context, pointer string) ([]byte, error)
	Health(ctx context.Context) map[string]error
}

// Cipher encrypts content and computes content hashes.
type Cipher interface {
	ComputeContentHash(b []byte) string
	MatchesHash(b []byte, expected string) bool
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Ledger reads anchors back from the ledger.
type Ledger interface {
	Inspect(ctx context.Context, ref string) (anchor.Receipt, error)
	Ping(ctx context.Context) error
}

// Scheduler accepts background anchoring jobs without blocking.
type Scheduler interface {
	Enqueue(job anchor.Job) bool
}

// Deps are the collaborators a Catalog needs.
type Deps struct {
	Records Repository
	Content ContentStore
	Cipher  Cipher
	Access  *access.Controller
	Audit   *audit.Log
	Ledger  Ledger
}

// UploadRequest carries the caller-supplied attributes of an upload.
type UploadRequest struct {
	FileName    string
	RecordType  string
	MimeType    string
	AccessLevel string
	Metadata    json.RawMessage
}

// Content is a decrypted, integrity-checked record body.
type Content struct {
	Data     []byte
	FileName string
	MimeType string
	Record   contracts.Record
}

// Catalog is safe for concurrent use. It holds no global lock.
type Catalog struct {
	records   Repository
	content   ContentStore
	cipher    Cipher
	access    *access.Controller
	audit     *audit.Log
	ledger    Ledger
	scheduler Scheduler
	admission *Admission
	cache     cache.RecordCache
	telemetry *observability.Provider
	checks    map[string]func(context.Context) error
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithClock(clock func() time.Time) Option {
	return func(c *Catalog) { c.clock = clock }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// WithAdmission replaces the default upload admission policy.
func WithAdmission(a *Admission) Option {
	return func(c *Catalog) { c.admission = a }
}

// WithCache serves record metadata through rc.
func WithCache(rc cache.RecordCache) Option {
	return func(c *Catalog) { c.cache = rc }
}

func WithTelemetry(p *observability.Provider) Option {
	return func(c *Catalog) { c.telemetry = p }
}

// WithHealthCheck adds a named dependency to Health. Failing extra checks degrade, never fail, health.
func WithHealthCheck(name string, check func(context.Context) error) Option {
	return func(c *Catalog) { c.checks[name] = check }
}

// New creates a Catalog. Anchoring stays idle until SetScheduler is called.
func New(d Deps, opts ...Option) (*Catalog, error) {
	if d.Records == nil || d.Content == nil || d.Cipher == nil || d.Access == nil || d.Audit == nil || d.Ledger == nil {
		return nil, errors.New("catalog: all dependencies are required")
	}
	c := &Catalog{
		records: d.Records,
		content: d.Content,
		cipher:  d.Cipher,
		access:  d.Access,
		audit:   d.Audit,
		ledger:  d.Ledger,
		cache:   cache.Nop{},
		checks:  make(map[string]func(context.Context) error),
		clock:   time.Now,
		logger:  slog.Default().With("component", "catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.admission == nil {
		a, err := NewAdmission(DefaultAdmissionPolicy)
		if err != nil {
			return nil, err
		}
		c.admission = a
	}
	return c, nil
}

// SetScheduler attaches the background anchoring queue. The catalog is the
// queue's Sink, so the two are wired after construction.
func (c *Catalog) SetScheduler(s Scheduler) {
	c.scheduler = s
}

func (c *Catalog) track(ctx context.Context, op, recordID string) (context.Context, func(error)) {
	return c.telemetry.TrackOperation(ctx, "catalog."+op,
		observability.AttrRecordID.String(recordID),
		observability.AttrPrincipal.String(contracts.PrincipalFrom(ctx)),
	)
}

// Upload encrypts and stores plaintext, creates the record in state stored,
// and schedules anchoring. Cancelling ctx aborts the upload only until the
// content is stored.
func (c *Catalog) Upload(ctx context.Context, ownerID string, plaintext []byte, req UploadRequest) (rec contracts.Record, err error) {
	ctx, done := c.track(ctx, "upload", "")
	defer func() { done(err) }()

	req, err = c.admission.Admit(ownerID, int64(len(plaintext)), req)
	if err != nil {
		return contracts.Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return contracts.Record{}, err
	}

	hash := c.cipher.ComputeContentHash(plaintext)
	ciphertext, err := c.cipher.Encrypt(plaintext)
	if err != nil {
		c.logger.ErrorContext(ctx, "encryption failed", "owner_id", ownerID, "error", err)
		return contracts.Record{}, fmt.Errorf("encrypt upload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return contracts.Record{}, err
	}

	pointer, provenance, err := c.content.Put(ctx, ciphertext)
	if err != nil {
		c.logger.ErrorContext(ctx, "content store rejected upload", "owner_id", ownerID, "error", err)
		return contracts.Record{}, fmt.Errorf("store upload: %w", err)
	}

	// Content is durable: from here the record must come into existence.
	ctx = context.WithoutCancel(ctx)
	now := c.clock().UTC()
	rec = contracts.Record{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		RecordType:     req.RecordType,
		ContentPointer: pointer,
		ContentHash:    hash,
		EncryptedSize:  int64(len(ciphertext)),
		MimeType:       req.MimeType,
		FileName:       req.FileName,
		AccessLevel:    req.AccessLevel,
		Metadata:       req.Metadata,
		Provenance:     provenance,
		State:          contracts.StateStored,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.records.CreateRecord(ctx, rec); err != nil {
		c.logger.ErrorContext(ctx, "record creation failed after content was stored",
			"owner_id", ownerID, "pointer", pointer, "error", err)
		return contracts.Record{}, fmt.Errorf("create record: %w", err)
	}
	observability.AddSpanEvent(ctx, "record.stored",
		observability.AttrRecordID.String(rec.ID),
		observability.AttrProvenance.String(string(provenance)),
	)

	meta := map[string]string{
		"file_name":   rec.FileName,
		"file_size":   fmt.Sprintf("%d", len(plaintext)),
		"record_type": rec.RecordType,
		"provenance":  string(provenance),
	}
	if keyID, err := guard.KeyIDOf(ciphertext); err == nil {
		meta["key_id"] = keyID
	}
	c.appendAudit(ctx, rec.ID, ownerID, contracts.ActionUpload, contracts.OutcomeSuccess, "", meta)

	c.scheduleAnchor(ctx, &rec)
	c.logger.InfoContext(ctx, "record uploaded", "record_id", rec.ID, "owner_id", ownerID, "provenance", provenance)
	return rec, nil
}

func (c *Catalog) scheduleAnchor(ctx context.Context, rec *contracts.Record) {
	if c.scheduler == nil {
		return
	}
	job := anchor.Job{RecordID: rec.ID, ContentHash: rec.ContentHash}
	if rec.Anchor != nil {
		job.Ref = rec.Anchor.TransactionRef
	}
	if c.scheduler.Enqueue(job) {
		return
	}
	const detail = "anchor queue full"
	c.logger.WarnContext(ctx, "anchoring not scheduled", "record_id", rec.ID, "reason", detail)
	if err := c.records.UpdateRecordState(ctx, rec.ID, contracts.StateAnchorFailed, detail, nil, c.clock().UTC()); err != nil {
		c.logger.ErrorContext(ctx, "failed to mark record anchor_failed", "record_id", rec.ID, "error", err)
		return
	}
	rec.State = contracts.StateAnchorFailed
	rec.StateDetail = detail
	c.cache.Invalidate(ctx, rec.ID)
}

// Download returns the decrypted content if requester may read it. The
// plaintext is only returned after its hash matches the record.
func (c *Catalog) Download(ctx context.Context, recordID, requesterID string) (out Content, err error) {
	ctx, done := c.track(ctx, "download", recordID)
	defer func() { done(err) }()

	rec, err := c.loadRecord(ctx, recordID)
	if err != nil {
		return Content{}, err
	}

	ok, err := c.access.CanRead(ctx, recordID, requesterID)
	if err != nil {
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionDownload, contracts.OutcomeError, "authorization check failed", nil)
		return Content{}, fmt.Errorf("authorize download: %w", err)
	}
	if !ok {
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionDownload, contracts.OutcomeDenied, "no effective grant", nil)
		return Content{}, ErrAccessDenied
	}
	if !rec.State.Readable() {
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionDownload, contracts.OutcomeError, "record not readable in state "+string(rec.State), nil)
		return Content{}, fmt.Errorf("%w: %s is %s", ErrRecordNotFound, recordID, rec.State)
	}

	ciphertext, err := c.content.Get(ctx, rec.ContentPointer)
	if err != nil {
		detail := "content unavailable"
		if errors.Is(err, ErrContentNotFound) {
			detail = "content missing from storage"
			c.logger.ErrorContext(ctx, "stored record has no content", "record_id", recordID, "pointer", rec.ContentPointer)
			err = fmt.Errorf("%w: %w", ErrRecordCorrupted, err)
		} else {
			err = fmt.Errorf("fetch content: %w", err)
		}
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionDownload, contracts.OutcomeError, detail, nil)
		return Content{}, err
	}

	plaintext, err := c.cipher.Decrypt(ciphertext)
	if err != nil {
		keyID, _ := guard.KeyIDOf(ciphertext)
		c.logger.ErrorContext(ctx, "integrity violation: decryption failed",
			"record_id", recordID, "key_id", keyID, "error", err)
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionDownload, contracts.OutcomeError, "decryption failed", nil)
		return Content{}, fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
	}
	if !c.cipher.MatchesHash(plaintext, rec.ContentHash) {
		c.logger.ErrorContext(ctx, "integrity violation: content hash mismatch",
			"record_id", recordID, "expected", rec.ContentHash, "actual", c.cipher.ComputeContentHash(plaintext))
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionDownload, contracts.OutcomeError, "content hash mismatch", nil)
		return Content{}, fmt.Errorf("%w: content hash mismatch", ErrIntegrityViolation)
	}

	// Content leaves custody only with a durable audit entry.
	if _, err := c.audit.Append(context.WithoutCancel(ctx), c.auditEntry(ctx, recordID, requesterID,
		contracts.ActionDownload, contracts.OutcomeSuccess, "", nil)); err != nil {
		c.logger.ErrorContext(ctx, "download withheld: audit append failed", "record_id", recordID, "error", err)
		return Content{}, fmt.Errorf("audit download: %w", err)
	}
	return Content{Data: plaintext, FileName: rec.FileName, MimeType: rec.MimeType, Record: rec}, nil
}

// Verify checks the record's anchor against the ledger for a requester who
// may read the record. A record that was never anchored yields a negative
// result, not an error. Finding a final, matching anchor for a record not yet
// marked anchored promotes it.
func (c *Catalog) Verify(ctx context.Context, recordID, requesterID string) (res contracts.VerificationResult, err error) {
	ctx, done := c.track(ctx, "verify", recordID)
	defer func() { done(err) }()

	actor := requesterID
	rec, err := c.loadRecord(ctx, recordID)
	if err != nil {
		return contracts.VerificationResult{}, err
	}
	ok, err := c.access.CanRead(ctx, recordID, requesterID)
	if err != nil {
		c.appendAudit(ctx, recordID, actor, contracts.ActionVerify, contracts.OutcomeError, "authorization check failed", nil)
		return contracts.VerificationResult{}, fmt.Errorf("authorize verify: %w", err)
	}
	if !ok {
		c.appendAudit(ctx, recordID, actor, contracts.ActionVerify, contracts.OutcomeDenied, "no effective grant", nil)
		return contracts.VerificationResult{}, ErrAccessDenied
	}
	res = contracts.VerificationResult{RecordID: recordID}
	if rec.Anchor == nil || rec.Anchor.TransactionRef == "" {
		c.appendAudit(ctx, recordID, actor, contracts.ActionVerify, contracts.OutcomeSuccess, "not anchored", nil)
		return res, nil
	}
	res.TransactionRef = rec.Anchor.TransactionRef

	receipt, err := c.ledger.Inspect(ctx, rec.Anchor.TransactionRef)
	switch {
	case errors.Is(err, anchor.ErrTxNotFound):
		c.appendAudit(ctx, recordID, actor, contracts.ActionVerify, contracts.OutcomeSuccess, "transaction not found", nil)
		return res, nil
	case err != nil:
		c.logger.WarnContext(ctx, "ledger lookup failed during verify", "record_id", recordID, "error", err)
		c.appendAudit(ctx, recordID, actor, contracts.ActionVerify, contracts.OutcomeError, "ledger unavailable", nil)
		return res, nil
	}

	res.OnChain = receipt.Final
	res.HashMatches = receipt.Final && anchor.Matches(receipt, recordID, rec.ContentHash)
	detail := ""
	switch {
	case !res.OnChain:
		detail = "transaction not final"
	case !res.HashMatches:
		detail = "ledger hash does not match record"
		c.logger.ErrorContext(ctx, "anchored hash mismatch", "record_id", recordID, "ref", res.TransactionRef)
	}
	c.appendAudit(ctx, recordID, actor, contracts.ActionVerify, contracts.OutcomeSuccess, detail, map[string]string{
		"transaction_ref": res.TransactionRef,
		"on_chain":        fmt.Sprintf("%t", res.OnChain),
		"hash_matches":    fmt.Sprintf("%t", res.HashMatches),
	})

	if res.OnChain && res.HashMatches && rec.State != contracts.StateAnchored {
		c.promote(ctx, rec, receipt)
	}
	return res, nil
}

func (c *Catalog) promote(ctx context.Context, rec contracts.Record, receipt anchor.Receipt) {
	ctx = context.WithoutCancel(ctx)
	now := c.clock().UTC()
	a := *rec.Anchor
	a.Confirmed = true
	a.ConfirmedAt = &now
	if err := c.records.UpdateRecordState(ctx, rec.ID, contracts.StateAnchored, "", &a, now); err != nil {
		c.logger.ErrorContext(ctx, "failed to promote verified record", "record_id", rec.ID, "error", err)
		return
	}
	c.cache.Invalidate(ctx, rec.ID)
	c.logger.InfoContext(ctx, "record promoted to anchored by verification",
		"record_id", rec.ID, "ref", receipt.Ref, "previous_state", rec.State)
}

// Share grants granteeID read access for ttl. A zero ttl never expires.
func (c *Catalog) Share(ctx context.Context, recordID, grantorID, granteeID string, ttl time.Duration) (g contracts.AccessGrant, err error) {
	ctx, done := c.track(ctx, "share", recordID)
	defer func() { done(err) }()

	if _, err := c.loadRecord(ctx, recordID); err != nil {
		return contracts.AccessGrant{}, err
	}
	g, err = c.access.Grant(ctx, recordID, grantorID, granteeID, ttl)
	meta := map[string]string{"target_user_id": granteeID, "permission": string(contracts.PermissionRead)}
	if err != nil {
		c.appendAudit(ctx, recordID, grantorID, contracts.ActionShare, outcomeOf(err), err.Error(), meta)
		return contracts.AccessGrant{}, err
	}
	if g.ExpiresAt != nil {
		meta["expires_at"] = g.ExpiresAt.UTC().Format(time.RFC3339)
	}
	meta["grant_id"] = g.ID
	c.appendAudit(ctx, recordID, grantorID, contracts.ActionShare, contracts.OutcomeSuccess, "", meta)
	return g, nil
}

// Revoke revokes a grant on the record. Revoking twice succeeds.
func (c *Catalog) Revoke(ctx context.Context, recordID, grantID, requesterID string) (err error) {
	ctx, done := c.track(ctx, "revoke", recordID)
	defer func() { done(err) }()

	if _, err := c.loadRecord(ctx, recordID); err != nil {
		return err
	}
	meta := map[string]string{"grant_id": grantID}
	if err := c.access.Revoke(ctx, recordID, grantID, requesterID); err != nil {
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionRevoke, outcomeOf(err), err.Error(), meta)
		return err
	}
	c.appendAudit(ctx, recordID, requesterID, contracts.ActionRevoke, contracts.OutcomeSuccess, "", meta)
	return nil
}

// Grants lists every grant on the record. Owner only.
func (c *Catalog) Grants(ctx context.Context, recordID, requesterID string) ([]contracts.AccessGrant, error) {
	if _, err := c.loadRecord(ctx, recordID); err != nil {
		return nil, err
	}
	return c.access.ListGrants(ctx, recordID, requesterID)
}

// ListAudit returns the record's audit trail oldest first. Owner only.
func (c *Catalog) ListAudit(ctx context.Context, recordID, requesterID string) (entries []contracts.AuditEntry, err error) {
	ctx, done := c.track(ctx, "audit_read", recordID)
	defer func() { done(err) }()

	if _, err := c.loadRecord(ctx, recordID); err != nil {
		return nil, err
	}
	ok, err := c.access.CanAudit(ctx, recordID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("authorize audit read: %w", err)
	}
	if !ok {
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionAuditRead, contracts.OutcomeDenied, "audit is owner only", nil)
		return nil, ErrAccessDenied
	}
	entries, err = c.audit.ListFor(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	c.appendAudit(ctx, recordID, requesterID, contracts.ActionAuditRead, contracts.OutcomeSuccess, "", nil)
	return entries, nil
}

// VerifyAuditChain recomputes the record's audit hash chain.
func (c *Catalog) VerifyAuditChain(ctx context.Context, recordID string) error {
	if _, err := c.loadRecord(ctx, recordID); err != nil {
		return err
	}
	return c.audit.VerifyChain(ctx, recordID)
}

// Get returns record metadata to anyone who may read the record.
func (c *Catalog) Get(ctx context.Context, recordID, requesterID string) (contracts.Record, error) {
	rec, hit := c.cache.Get(ctx, recordID)
	if !hit {
		var err error
		if rec, err = c.loadRecord(ctx, recordID); err != nil {
			return contracts.Record{}, err
		}
		c.cache.Set(ctx, rec)
	}
	ok, err := c.access.CanRead(ctx, recordID, requesterID)
	if err != nil {
		return contracts.Record{}, fmt.Errorf("authorize view: %w", err)
	}
	if !ok {
		c.appendAudit(ctx, recordID, requesterID, contracts.ActionView, contracts.OutcomeDenied, "no effective grant", nil)
		return contracts.Record{}, ErrAccessDenied
	}
	return rec, nil
}

// List returns the owner's records, newest first, with the unpaged total.
func (c *Catalog) List(ctx context.Context, ownerID string, f contracts.RecordFilter) ([]contracts.Record, int, error) {
	if ownerID == "" {
		return nil, 0, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return c.records.ListRecords(ctx, ownerID, f)
}

// ResumeAnchoring re-enqueues records whose anchoring did not finish,
// typically after a restart. It returns how many were scheduled.
func (c *Catalog) ResumeAnchoring(ctx context.Context) (int, error) {
	if c.scheduler == nil {
		return 0, nil
	}
	pending, err := c.records.ListRecordsByState(ctx, contracts.StateStored, contracts.StateAnchoring)
	if err != nil {
		return 0, fmt.Errorf("list unanchored records: %w", err)
	}
	scheduled := 0
	for i := range pending {
		c.scheduleAnchor(ctx, &pending[i])
		if pending[i].State != contracts.StateAnchorFailed {
			scheduled++
		}
	}
	if len(pending) > 0 {
		c.logger.InfoContext(ctx, "anchoring resumed", "records", len(pending), "scheduled", scheduled)
	}
	return scheduled, nil
}

func (c *Catalog) loadRecord(ctx context.Context, recordID string) (contracts.Record, error) {
	if recordID == "" {
		return contracts.Record{}, fmt.Errorf("%w: record id is required", ErrValidation)
	}
	rec, err := c.records.GetRecord(ctx, recordID)
	if errors.Is(err, contracts.ErrNotFound) {
		return contracts.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	if err != nil {
		return contracts.Record{}, fmt.Errorf("load record: %w", err)
	}
	return rec, nil
}

func (c *Catalog) auditEntry(ctx context.Context, recordID, actor string, action contracts.AuditAction, outcome contracts.AuditOutcome, detail string, meta map[string]string) contracts.AuditEntry {
	if actor == "" {
		actor = "anonymous"
	}
	if info, ok := contracts.RequestInfoFrom(ctx); ok {
		if meta == nil {
			meta = make(map[string]string, 2)
		}
		if info.RemoteAddr != "" {
			meta["ip_address"] = info.RemoteAddr
		}
		if info.UserAgent != "" {
			meta["user_agent"] = info.UserAgent
		}
	}
	return contracts.AuditEntry{
		RecordID: recordID,
		ActorID:  actor,
		Action:   action,
		Outcome:  outcome,
		Detail:   detail,
		Metadata: meta,
	}
}

// appendAudit records an entry, logging instead of failing when persistence fails.
func (c *Catalog) appendAudit(ctx context.Context, recordID, actor string, action contracts.AuditAction, outcome contracts.AuditOutcome, detail string, meta map[string]string) {
	e := c.auditEntry(ctx, recordID, actor, action, outcome, detail, meta)
	if _, err := c.audit.Append(context.WithoutCancel(ctx), e); err != nil {
		c.logger.ErrorContext(ctx, "audit append failed",
			"record_id", recordID, "action", action, "outcome", outcome, "error", err)
	}
	observability.AddSpanEvent(ctx, "audit."+string(action), observability.AttrOutcome.String(string(outcome)))
}

func outcomeOf(err error) contracts.AuditOutcome {
	if errors.Is(err, ErrNotOwner) || errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidGrant) {
		return contracts.OutcomeDenied
	}
	return contracts.OutcomeError
}
