package contracts

import "time"

// AuditAction is what was attempted on a record.
type AuditAction string

const (
	ActionUpload    AuditAction = "upload"
	ActionDownload  AuditAction = "download"
	ActionShare     AuditAction = "share"
	ActionRevoke    AuditAction = "revoke"
	ActionVerify    AuditAction = "verify"
	ActionAuditRead AuditAction = "audit_read"
	ActionView      AuditAction = "view"
)

// AuditOutcome is how the attempt ended.
type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomeDenied  AuditOutcome = "denied"
	OutcomeError   AuditOutcome = "error"
)

// AuditEntry is an immutable fact about one action on one record.
// Entries of a record form a hash chain ordered by Sequence.
type AuditEntry struct {
	ID        string            `json:"id"`
	RecordID  string            `json:"record_id"`
	Sequence  uint64            `json:"sequence"`
	ActorID   string            `json:"actor_id"`
	Action    AuditAction       `json:"action"`
	Outcome   AuditOutcome      `json:"outcome"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	PrevHash  string            `json:"prev_hash"`
	EntryHash string            `json:"entry_hash"`
}
