package guard

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrEncryption is returned when sealing fails because of key or configuration faults.
	ErrEncryption = errors.New("guard: encryption failed")
	// ErrDecryption is returned for tampered ciphertext, wrong or unknown keys, and malformed envelopes.
	ErrDecryption = errors.New("guard: decryption failed")
)

// Suite identifies the AEAD construction used for an envelope.
type Suite byte

const (
	SuiteAES256GCM         Suite = 1
	SuiteXChaCha20Poly1305 Suite = 2
)

// ParseSuite maps a configuration name to a Suite.
func ParseSuite(name string) (Suite, error) {
	switch name {
	case "", "aes-256-gcm":
		return SuiteAES256GCM, nil
	case "xchacha20-poly1305":
		return SuiteXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("guard: unknown cipher suite %q", name)
	}
}

func (s Suite) String() string {
	switch s {
	case SuiteAES256GCM:
		return "aes-256-gcm"
	case SuiteXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return fmt.Sprintf("suite(%d)", byte(s))
	}
}

const (
	envelopeMagic   = "CG"
	envelopeVersion = 1
	dataKeySalt     = "custody-record-encryption"
)

// Guard seals and opens record content. It is immutable after New and safe for concurrent use.
type Guard struct {
	activeID string
	suite    Suite
	aeads    map[string]map[Suite]cipher.AEAD
}

// Option configures a Guard.
type Option func(*Guard)

// WithSuite selects the AEAD used for new ciphertexts. Decryption accepts every suite.
func WithSuite(s Suite) Option {
	return func(g *Guard) { g.suite = s }
}

// New loads the key set from provider once and prepares one data key per key ID.
func New(ctx context.Context, provider SecretProvider, opts ...Option) (*Guard, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: no secret provider", ErrEncryption)
	}
	ks, err := provider.LoadKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load keys: %v", ErrEncryption, err)
	}
	if err := ks.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	g := &Guard{
		activeID: ks.ActiveID,
		suite:    SuiteAES256GCM,
		aeads:    make(map[string]map[Suite]cipher.AEAD, len(ks.Keys)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.suite != SuiteAES256GCM && g.suite != SuiteXChaCha20Poly1305 {
		return nil, fmt.Errorf("%w: unsupported suite %s", ErrEncryption, g.suite)
	}

	for id, master := range ks.Keys {
		dataKey, err := DeriveKey(master, dataKeySalt, id, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: derive key %q: %v", ErrEncryption, id, err)
		}
		block, err := aes.NewCipher(dataKey)
		if err != nil {
			return nil, fmt.Errorf("%w: aes cipher: %v", ErrEncryption, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: gcm: %v", ErrEncryption, err)
		}
		xc, err := chacha20poly1305.NewX(dataKey)
		if err != nil {
			return nil, fmt.Errorf("%w: xchacha: %v", ErrEncryption, err)
		}
		g.aeads[id] = map[Suite]cipher.AEAD{
			SuiteAES256GCM:         gcm,
			SuiteXChaCha20Poly1305: xc,
		}
	}
	return g, nil
}

// ActiveKeyID names the key used by Encrypt.
func (g *Guard) ActiveKeyID() string { return g.activeID }

// ComputeContentHash is a method form of the package function.
func (g *Guard) ComputeContentHash(b []byte) string { return ComputeContentHash(b) }

// MatchesHash is a method form of the package function.
func (g *Guard) MatchesHash(b []byte, expected string) bool { return MatchesHash(b, expected) }

// Encrypt seals plaintext under the active key with a fresh random nonce.
func (g *Guard) Encrypt(plaintext []byte) ([]byte, error) {
	return g.EncryptWithKey(g.activeID, plaintext)
}

// EncryptWithKey seals plaintext under a specific key ID.
func (g *Guard) EncryptWithKey(keyID string, plaintext []byte) ([]byte, error) {
	suites, ok := g.aeads[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrEncryption, keyID)
	}
	aead := suites[g.suite]

	header := encodeHeader(g.suite, keyID)
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrEncryption, err)
	}

	out := make([]byte, 0, len(header)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	// The header is authenticated so the suite and key ID cannot be swapped.
	return aead.Seal(out, nonce, plaintext, header), nil
}

// Decrypt opens an envelope produced by Encrypt. Any tampering yields ErrDecryption.
func (g *Guard) Decrypt(ciphertext []byte) ([]byte, error) {
	suite, keyID, headerLen, err := decodeHeader(ciphertext)
	if err != nil {
		return nil, err
	}
	suites, ok := g.aeads[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrDecryption, keyID)
	}
	aead, ok := suites[suite]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported suite %s", ErrDecryption, suite)
	}

	body := ciphertext[headerLen:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	nonce, sealed := body[:aead.NonceSize()], body[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, sealed, ciphertext[:headerLen])
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return pt, nil
}

// KeyIDOf returns the key ID recorded in an envelope without opening it.
func KeyIDOf(ciphertext []byte) (string, error) {
	_, keyID, _, err := decodeHeader(ciphertext)
	return keyID, err
}

// DeriveKey expands master into n bytes bound to purpose and id.
func DeriveKey(master []byte, purpose, id string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, master, []byte(purpose), []byte(id))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// header layout: magic(2) | version(1) | suite(1) | len(keyID)(1) | keyID
func encodeHeader(s Suite, keyID string) []byte {
	h := make([]byte, 0, 5+len(keyID))
	h = append(h, envelopeMagic...)
	h = append(h, envelopeVersion, byte(s), byte(len(keyID)))
	return append(h, keyID...)
}

func decodeHeader(b []byte) (Suite, string, int, error) {
	if len(b) < 5 || string(b[:2]) != envelopeMagic {
		return 0, "", 0, fmt.Errorf("%w: not a guard envelope", ErrDecryption)
	}
	if b[2] != envelopeVersion {
		return 0, "", 0, fmt.Errorf("%w: unsupported envelope version %d", ErrDecryption, b[2])
	}
	idLen := int(b[4])
	if idLen == 0 || len(b) < 5+idLen {
		return 0, "", 0, fmt.Errorf("%w: malformed key id", ErrDecryption)
	}
	return Suite(b[3]), string(b[5 : 5+idLen]), 5 + idLen, nil
}
