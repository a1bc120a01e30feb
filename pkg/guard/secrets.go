package guard

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MinKeyLen is the minimum master secret length in bytes.
const MinKeyLen = 32

// KeySet is the master key material available to a process.
type KeySet struct {
	ActiveID string
	Keys     map[string][]byte
}

// Validate checks that the active key exists and every key is usable.
func (ks KeySet) Validate() error {
	if ks.ActiveID == "" {
		return errors.New("no active key id")
	}
	if _, ok := ks.Keys[ks.ActiveID]; !ok {
		return fmt.Errorf("active key %q not in key set", ks.ActiveID)
	}
	for id, k := range ks.Keys {
		if id == "" || len(id) > 255 {
			return fmt.Errorf("invalid key id %q", id)
		}
		if len(k) < MinKeyLen {
			return fmt.Errorf("key %q too short: %d bytes (need %d)", id, len(k), MinKeyLen)
		}
	}
	return nil
}

// SecretProvider supplies master key material. Production wiring may back it with a vault.
type SecretProvider interface {
	LoadKeys(ctx context.Context) (KeySet, error)
}

// StaticSecrets serves a fixed key set. Intended for tests.
type StaticSecrets KeySet

// LoadKeys implements SecretProvider.
func (s StaticSecrets) LoadKeys(context.Context) (KeySet, error) {
	keys := make(map[string][]byte, len(s.Keys))
	for id, k := range s.Keys {
		keys[id] = append([]byte(nil), k...)
	}
	return KeySet{ActiveID: s.ActiveID, Keys: keys}, nil
}

// EnvSecrets reads a single base64 master key from the environment.
type EnvSecrets struct {
	KeyVar   string // default CUSTODY_MASTER_KEY
	KeyIDVar string // default CUSTODY_MASTER_KEY_ID
}

// LoadKeys implements SecretProvider.
func (e EnvSecrets) LoadKeys(context.Context) (KeySet, error) {
	keyVar, idVar := e.KeyVar, e.KeyIDVar
	if keyVar == "" {
		keyVar = "CUSTODY_MASTER_KEY"
	}
	if idVar == "" {
		idVar = "CUSTODY_MASTER_KEY_ID"
	}

	encoded := os.Getenv(keyVar)
	if encoded == "" {
		return KeySet{}, fmt.Errorf("guard: %s is not set", keyVar)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return KeySet{}, fmt.Errorf("guard: decode %s: %w", keyVar, err)
	}
	id := os.Getenv(idVar)
	if id == "" {
		id = "k1"
	}
	return KeySet{ActiveID: id, Keys: map[string][]byte{id: key}}, nil
}

// Keystore is the on-disk JSON format of a file-backed key set.
type Keystore struct {
	ActiveKey string            `json:"active_key"`
	Keys      map[string]string `json:"keys"` // key id -> base64 master secret
}

// FileSecrets loads a Keystore from disk. The file must already exist; see GenerateKeystore.
type FileSecrets struct {
	Path string
}

// LoadKeys implements SecretProvider.
func (f FileSecrets) LoadKeys(context.Context) (KeySet, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return KeySet{}, fmt.Errorf("guard: read keystore: %w", err)
	}
	var store Keystore
	if err := json.Unmarshal(data, &store); err != nil {
		return KeySet{}, fmt.Errorf("guard: parse keystore: %w", err)
	}

	ks := KeySet{ActiveID: store.ActiveKey, Keys: make(map[string][]byte, len(store.Keys))}
	for id, encoded := range store.Keys {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return KeySet{}, fmt.Errorf("guard: decode key %q: %w", id, err)
		}
		ks.Keys[id] = key
	}
	return ks, nil
}

// GenerateKeystore writes a new keystore with one random key. It refuses to overwrite.
func GenerateKeystore(path, keyID string) error {
	if keyID == "" {
		keyID = "k1"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("guard: keystore %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("guard: stat keystore: %w", err)
	}

	key := make([]byte, MinKeyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return fmt.Errorf("guard: generate key: %w", err)
	}

	store := Keystore{
		ActiveKey: keyID,
		Keys:      map[string]string{keyID: base64.StdEncoding.EncodeToString(key)},
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("guard: marshal keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("guard: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("guard: write keystore: %w", err)
	}
	return nil
}
