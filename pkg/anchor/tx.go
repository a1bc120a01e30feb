package anchor

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// PayloadVersion tags the anchor payload schema.
const PayloadVersion = "custody.anchor/v1"

// Payload is what gets written on-chain for a record.
type Payload struct {
	Version     string `json:"version"`
	RecordID    string `json:"record_id"`
	ContentHash string `json:"content_hash"`
	IssuedAt    string `json:"issued_at"`
}

// Transaction is a signed Payload.
type Transaction struct {
	Payload   Payload `json:"payload"`
	PublicKey string  `json:"public_key"` // hex ed25519
	Signature string  `json:"signature"`  // hex ed25519 over CanonicalPayload
}

// ErrBadSignature is returned when a transaction signature does not verify.
var ErrBadSignature = errors.New("anchor: invalid transaction signature")

// CanonicalPayload returns the RFC 8785 encoding of p, the exact bytes that are signed.
func CanonicalPayload(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("anchor: marshal payload: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("anchor: canonicalize payload: %w", err)
	}
	return out, nil
}

// Ref derives the transaction reference: sha256 over the canonical payload and signature.
func (tx Transaction) Ref() (string, error) {
	canon, err := CanonicalPayload(tx.Payload)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canon)
	h.Write([]byte(tx.Signature))
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// VerifySignature checks tx against its embedded public key.
func (tx Transaction) VerifySignature() error {
	pub, err := hex.DecodeString(tx.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key", ErrBadSignature)
	}
	sig, err := hex.DecodeString(tx.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding", ErrBadSignature)
	}
	canon, err := CanonicalPayload(tx.Payload)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), canon, sig) {
		return ErrBadSignature
	}
	return nil
}

// Signer signs anchor payloads with an ed25519 key.
type Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	KeyID string
}

// NewSignerFromSeed builds a Signer from a 32-byte seed.
func NewSignerFromSeed(seed []byte, keyID string) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("anchor: signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey), KeyID: keyID}, nil
}

// PublicKey returns the hex public key.
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// Sign builds a Transaction for recordID and contentHash at issuedAt.
func (s *Signer) Sign(recordID, contentHash string, issuedAt time.Time) (Transaction, error) {
	p := Payload{
		Version:     PayloadVersion,
		RecordID:    recordID,
		ContentHash: contentHash,
		IssuedAt:    issuedAt.UTC().Format(time.RFC3339Nano),
	}
	canon, err := CanonicalPayload(p)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Payload:   p,
		PublicKey: s.PublicKey(),
		Signature: hex.EncodeToString(ed25519.Sign(s.priv, canon)),
	}, nil
}
