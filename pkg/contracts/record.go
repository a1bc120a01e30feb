package contracts

import (
	"encoding/json"
	"time"
)

// RecordState tracks where a record sits in the custody lifecycle.
type RecordState string

const (
	StateUploading    RecordState = "uploading"
	StateStored       RecordState = "stored"
	StateAnchoring    RecordState = "anchoring"
	StateAnchored     RecordState = "anchored"
	StateAnchorFailed RecordState = "anchor_failed"
)

// Readable reports whether content can be served in this state.
// Every state past uploading is readable; anchoring outcomes never invalidate stored content.
func (s RecordState) Readable() bool {
	switch s {
	case StateStored, StateAnchoring, StateAnchored, StateAnchorFailed:
		return true
	default:
		return false
	}
}

// Provenance names the content backend that accepted a blob.
type Provenance string

const (
	ProvenancePrimary  Provenance = "primary"
	ProvenanceFallback Provenance = "fallback"
)

// AccessLevelPrivate is the default visibility of a new record.
const AccessLevelPrivate = "private"

// Record is a medical document held in custody. Owner, pointer and hash never change after creation.
type Record struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	RecordType     string          `json:"record_type"`
	ContentPointer string          `json:"content_pointer"`
	ContentHash    string          `json:"content_hash"`
	EncryptedSize  int64           `json:"encrypted_size"`
	MimeType       string          `json:"mime_type,omitempty"`
	FileName       string          `json:"file_name,omitempty"`
	AccessLevel    string          `json:"access_level"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Provenance     Provenance      `json:"provenance"`
	State          RecordState     `json:"state"`
	StateDetail    string          `json:"state_detail,omitempty"`
	Anchor         *LedgerAnchor   `json:"anchor,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RecordFilter narrows owner listings.
type RecordFilter struct {
	RecordType string
	Limit      int
	Offset     int
}

// VerificationResult is the outcome of checking a record against its ledger anchor.
type VerificationResult struct {
	RecordID       string `json:"record_id"`
	OnChain        bool   `json:"on_chain"`
	HashMatches    bool   `json:"hash_matches"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}
