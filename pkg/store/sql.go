package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements the store on database/sql. Timestamps are stored as
// RFC 3339 text so the same schema serves SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	record_type TEXT NOT NULL,
	content_pointer TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	encrypted_size BIGINT NOT NULL,
	mime_type TEXT,
	file_name TEXT,
	access_level TEXT NOT NULL,
	metadata TEXT,
	provenance TEXT NOT NULL,
	state TEXT NOT NULL,
	state_detail TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_records_owner ON records (owner_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_records_state ON records (state)`,
	`CREATE TABLE IF NOT EXISTS anchors (
	record_id TEXT PRIMARY KEY REFERENCES records (id),
	content_hash TEXT NOT NULL,
	transaction_ref TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	confirmed BOOLEAN NOT NULL,
	confirmed_at TEXT,
	attempts INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS grants (
	id TEXT PRIMARY KEY,
	record_id TEXT NOT NULL REFERENCES records (id),
	grantee_id TEXT NOT NULL,
	grantor_id TEXT NOT NULL,
	permission TEXT NOT NULL,
	granted_at TEXT NOT NULL,
	expires_at TEXT,
	revoked BOOLEAN NOT NULL,
	revoked_at TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_grants_record ON grants (record_id, grantee_id)`,
	`CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	record_id TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT,
	metadata TEXT,
	occurred_at TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL,
	UNIQUE (record_id, sequence)
)`,
}

// Init creates the schema if missing.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", v, err)
	}
	return t, nil
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

const recordColumns = `id, owner_id, record_type, content_pointer, content_hash, encrypted_size, mime_type, file_name,
	access_level, metadata, provenance, state, state_detail, created_at, updated_at`

func (s *SQLStore) CreateRecord(ctx context.Context, r contracts.Record) error {
	query := s.rebind(`INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.OwnerID, r.RecordType, r.ContentPointer, r.ContentHash, r.EncryptedSize,
		nullString(r.MimeType), nullString(r.FileName), r.AccessLevel, nullString(string(r.Metadata)),
		string(r.Provenance), string(r.State), nullString(r.StateDetail),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (contracts.Record, error) {
	var (
		r                                       contracts.Record
		mime, name, metadata, detail            sql.NullString
		provenance, state, createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.RecordType, &r.ContentPointer, &r.ContentHash, &r.EncryptedSize,
		&mime, &name, &r.AccessLevel, &metadata, &provenance, &state, &detail, &createdAt, &updatedAt)
	if err != nil {
		return contracts.Record{}, err
	}
	r.MimeType = mime.String
	r.FileName = name.String
	r.StateDetail = detail.String
	if metadata.Valid && metadata.String != "" {
		r.Metadata = json.RawMessage(metadata.String)
	}
	r.Provenance = contracts.Provenance(provenance)
	r.State = contracts.RecordState(state)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return contracts.Record{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return contracts.Record{}, err
	}
	return r, nil
}

func (s *SQLStore) GetRecord(ctx context.Context, id string) (contracts.Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+recordColumns+` FROM records WHERE id = ?`), id)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.Record{}, notFound("record", id)
		}
		return contracts.Record{}, fmt.Errorf("get record: %w", err)
	}
	if err := s.attachAnchor(ctx, &r); err != nil {
		return contracts.Record{}, err
	}
	return r, nil
}

func (s *SQLStore) attachAnchor(ctx context.Context, r *contracts.Record) error {
	a, err := s.GetAnchor(ctx, r.ID)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	r.Anchor = &a
	return nil
}

func (s *SQLStore) queryRecords(ctx context.Context, query string, args ...any) ([]contracts.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []contracts.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Anchors are attached after the cursor is closed; SQLite runs on a single connection.
	_ = rows.Close()
	for i := range out {
		if err := s.attachAnchor(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListRecords returns the owner's records, newest first, and the unpaged total.
func (s *SQLStore) ListRecords(ctx context.Context, ownerID string, f contracts.RecordFilter) ([]contracts.Record, int, error) {
	where := ` WHERE owner_id = ?`
	args := []any{ownerID}
	if f.RecordType != "" {
		where += ` AND record_type = ?`
		args = append(args, f.RecordType)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM records`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query := `SELECT ` + recordColumns + ` FROM records` + where + ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	} else if f.Offset > 0 {
		// Both dialects accept a large LIMIT in place of "no limit".
		query += ` LIMIT ? OFFSET ?`
		args = append(args, int64(1<<62), f.Offset)
	}
	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListRecordsByState returns records in any of states, oldest first.
func (s *SQLStore) ListRecordsByState(ctx context.Context, states ...contracts.RecordState) ([]contracts.Record, error) {
	if len(states) == 0 {
		return []contracts.Record{}, nil
	}
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(states)), ", ")
	query := `SELECT ` + recordColumns + ` FROM records WHERE state IN (` + placeholders + `) ORDER BY created_at ASC`
	return s.queryRecords(ctx, query, args...)
}

// UpdateRecordState moves a record to state and, when anchor is set, upserts it in the same transaction.
func (s *SQLStore) UpdateRecordState(ctx context.Context, id string, state contracts.RecordState, detail string, anchor *contracts.LedgerAnchor, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE records SET state = ?, state_detail = ?, updated_at = ? WHERE id = ?`),
		string(state), nullString(detail), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update record state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return notFound("record", id)
	}
	if anchor != nil {
		a := *anchor
		a.RecordID = id
		if err := s.upsertAnchor(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) upsertAnchor(ctx context.Context, db execer, a contracts.LedgerAnchor) error {
	query := s.rebind(`INSERT INTO anchors (record_id, content_hash, transaction_ref, submitted_at, confirmed, confirmed_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			transaction_ref = excluded.transaction_ref,
			submitted_at = excluded.submitted_at,
			confirmed = excluded.confirmed,
			confirmed_at = excluded.confirmed_at,
			attempts = excluded.attempts`)
	_, err := db.ExecContext(ctx, query,
		a.RecordID, a.ContentHash, a.TransactionRef, formatTime(a.SubmittedAt),
		a.Confirmed, formatTimePtr(a.ConfirmedAt), a.Attempts)
	if err != nil {
		return fmt.Errorf("upsert anchor: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAnchor(ctx context.Context, recordID string) (contracts.LedgerAnchor, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT record_id, content_hash, transaction_ref, submitted_at, confirmed, confirmed_at, attempts
		FROM anchors WHERE record_id = ?`), recordID)
	var (
		a           contracts.LedgerAnchor
		submittedAt string
		confirmedAt sql.NullString
	)
	if err := row.Scan(&a.RecordID, &a.ContentHash, &a.TransactionRef, &submittedAt, &a.Confirmed, &confirmedAt, &a.Attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.LedgerAnchor{}, notFound("anchor", recordID)
		}
		return contracts.LedgerAnchor{}, fmt.Errorf("get anchor: %w", err)
	}
	var err error
	if a.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return contracts.LedgerAnchor{}, err
	}
	if a.ConfirmedAt, err = parseTimePtr(confirmedAt); err != nil {
		return contracts.LedgerAnchor{}, err
	}
	return a, nil
}

func (s *SQLStore) RecordOwner(ctx context.Context, recordID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT owner_id FROM records WHERE id = ?`), recordID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("record", recordID)
		}
		return "", fmt.Errorf("get record owner: %w", err)
	}
	return owner, nil
}

const grantColumns = `id, record_id, grantee_id, grantor_id, permission, granted_at, expires_at, revoked, revoked_at`

func (s *SQLStore) CreateGrant(ctx context.Context, g contracts.AccessGrant) error {
	query := s.rebind(`INSERT INTO grants (` + grantColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		g.ID, g.RecordID, g.GranteeID, g.GrantorID, string(g.Permission),
		formatTime(g.GrantedAt), formatTimePtr(g.ExpiresAt), g.Revoked, formatTimePtr(g.RevokedAt))
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

func scanGrant(row rowScanner) (contracts.AccessGrant, error) {
	var (
		g                   contracts.AccessGrant
		permission, granted string
		expires, revokedAt  sql.NullString
	)
	if err := row.Scan(&g.ID, &g.RecordID, &g.GranteeID, &g.GrantorID, &permission, &granted, &expires, &g.Revoked, &revokedAt); err != nil {
		return contracts.AccessGrant{}, err
	}
	g.Permission = contracts.Permission(permission)
	var err error
	if g.GrantedAt, err = parseTime(granted); err != nil {
		return contracts.AccessGrant{}, err
	}
	if g.ExpiresAt, err = parseTimePtr(expires); err != nil {
		return contracts.AccessGrant{}, err
	}
	if g.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return contracts.AccessGrant{}, err
	}
	return g, nil
}

func (s *SQLStore) GetGrant(ctx context.Context, grantID string) (contracts.AccessGrant, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+grantColumns+` FROM grants WHERE id = ?`), grantID)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.AccessGrant{}, notFound("grant", grantID)
		}
		return contracts.AccessGrant{}, fmt.Errorf("get grant: %w", err)
	}
	return g, nil
}

func (s *SQLStore) queryGrants(ctx context.Context, query string, args ...any) ([]contracts.AccessGrant, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []contracts.AccessGrant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListGrants(ctx context.Context, recordID string) ([]contracts.AccessGrant, error) {
	return s.queryGrants(ctx, `SELECT `+grantColumns+` FROM grants WHERE record_id = ? ORDER BY granted_at ASC, id ASC`, recordID)
}

func (s *SQLStore) ListGranteeGrants(ctx context.Context, recordID, granteeID string) ([]contracts.AccessGrant, error) {
	return s.queryGrants(ctx, `SELECT `+grantColumns+` FROM grants WHERE record_id = ? AND grantee_id = ? ORDER BY granted_at ASC, id ASC`,
		recordID, granteeID)
}

// RevokeGrant marks a grant revoked. Revoking twice keeps the first timestamp.
func (s *SQLStore) RevokeGrant(ctx context.Context, grantID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE grants SET revoked = ?, revoked_at = ? WHERE id = ? AND revoked = ?`),
		true, formatTime(at), grantID, false)
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetGrant(ctx, grantID); err != nil {
			return err
		}
	}
	return nil
}

const auditColumns = `id, record_id, sequence, actor_id, action, outcome, detail, metadata, occurred_at, prev_hash, entry_hash`

func (s *SQLStore) AppendAudit(ctx context.Context, e contracts.AuditEntry) error {
	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}
	query := s.rebind(`INSERT INTO audit_entries (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.RecordID, int64(e.Sequence), e.ActorID, string(e.Action), string(e.Outcome),
		nullString(e.Detail), metadata, formatTime(e.Timestamp), e.PrevHash, e.EntryHash)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func scanAudit(row rowScanner) (contracts.AuditEntry, error) {
	var (
		e                      contracts.AuditEntry
		seq                    int64
		action, outcome, stamp string
		detail, metadata       sql.NullString
	)
	if err := row.Scan(&e.ID, &e.RecordID, &seq, &e.ActorID, &action, &outcome, &detail, &metadata, &stamp, &e.PrevHash, &e.EntryHash); err != nil {
		return contracts.AuditEntry{}, err
	}
	e.Sequence = uint64(seq)
	e.Action = contracts.AuditAction(action)
	e.Outcome = contracts.AuditOutcome(outcome)
	e.Detail = detail.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return contracts.AuditEntry{}, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	var err error
	if e.Timestamp, err = parseTime(stamp); err != nil {
		return contracts.AuditEntry{}, err
	}
	return e, nil
}

func (s *SQLStore) ListAudit(ctx context.Context, recordID string) ([]contracts.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+auditColumns+` FROM audit_entries WHERE record_id = ? ORDER BY sequence ASC`), recordID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []contracts.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) LastAudit(ctx context.Context, recordID string) (contracts.AuditEntry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+auditColumns+` FROM audit_entries WHERE record_id = ? ORDER BY sequence DESC LIMIT 1`), recordID)
	e, err := scanAudit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.AuditEntry{}, notFound("audit trail", recordID)
		}
		return contracts.AuditEntry{}, fmt.Errorf("last audit entry: %w", err)
	}
	return e, nil
}
