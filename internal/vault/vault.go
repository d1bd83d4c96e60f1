// Package vault persists OAuth token material outside the relational store,
// so a store export or corruption never leaks credentials and token
// rotation never involves a schema write.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

const (
	fileName = "vault.json"
	sumName  = "vault.sum"

	digestTime    = 2
	digestMemory  = 64 * 1024
	digestThreads = 2
	digestKeyLen  = 32
)

// ErrNotFound is returned when no token entry exists for a secret id.
var ErrNotFound = errors.New("vault: no token entry for secret")

// entry is the persisted shape for one Secret's token material. RefreshToken
// is omitted from the JSON when empty; Set (access-only) carries any
// previously stored refresh token forward so it is not lost.
type entry struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// document is the on-disk shape. Values may also appear as bare JSON strings
// for entries written before the access/refresh split; see unmarshalEntry.
type document map[string]json.RawMessage

// Vault is a file-backed map of secret id to token pair, guarded by a mutex
// for in-process access and by temp-file-then-rename for on-disk durability.
type Vault struct {
	mu   sync.Mutex
	path string
	// digestKey salts the integrity digest computed over the serialized
	// document on every save. It is not a confidentiality control — the file
	// on disk is plaintext JSON — only a tamper/corruption signal.
	digestKey []byte
	log       func(format string, args ...any)
}

// Open loads (or initializes) the vault file at dir/vault.json. digestKey
// seeds the integrity digest; pass nil to disable the digest check entirely.
func Open(dir string, digestKey []byte, log func(format string, args ...any)) (*Vault, error) {
	if log == nil {
		log = func(string, ...any) {}
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("vault: failed to create vault dir: %w", err)
	}
	v := &Vault{
		path:      filepath.Join(dir, fileName),
		digestKey: digestKey,
		log:       log,
	}
	if _, err := v.load(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vault) sumPath() string {
	return filepath.Join(filepath.Dir(v.path), sumName)
}

func (v *Vault) digest(data []byte) string {
	if v.digestKey == nil {
		return ""
	}
	sum := argon2.IDKey(data, v.digestKey, digestTime, digestMemory, digestThreads, digestKeyLen)
	return fmt.Sprintf("%x", sum)
}

// load reads the document from disk, returning an empty one if the file does
// not exist yet. A digest mismatch is logged, not returned as an error —
// vault corruption must not be fatal to the rest of the process.
func (v *Vault) load() (document, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return document{}, nil
		}
		return nil, fmt.Errorf("vault: failed to read vault file: %w", err)
	}

	if v.digestKey != nil {
		want, rerr := os.ReadFile(v.sumPath())
		if rerr == nil {
			if string(want) != v.digest(data) {
				v.log("vault: integrity digest mismatch for %s, proceeding anyway", v.path)
			}
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("vault: corrupted vault file: %w", err)
	}
	return doc, nil
}

// save writes the document atomically via temp-file-then-rename, then
// recomputes and persists its integrity digest as a sibling file.
func (v *Vault) save(doc document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal vault: %w", err)
	}

	dir := filepath.Dir(v.path)
	tmp, err := os.CreateTemp(dir, fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("vault: failed to create temp vault file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("vault: failed to write vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: failed to close temp vault file: %w", err)
	}
	if err := os.Rename(tmpPath, v.path); err != nil {
		return fmt.Errorf("vault: failed to rename vault file: %w", err)
	}
	ok = true

	if v.digestKey != nil {
		if err := os.WriteFile(v.sumPath(), []byte(v.digest(data)), 0600); err != nil {
			v.log("vault: failed to write integrity digest: %v", err)
		}
	}
	return nil
}

// unmarshalEntry accepts both the current {access_token, refresh_token}
// object shape and a legacy bare-string shape ("the access token itself").
func unmarshalEntry(raw json.RawMessage) (entry, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err == nil {
		return e, nil
	}
	var legacy string
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return entry{}, fmt.Errorf("vault: unrecognized entry shape: %w", err)
	}
	return entry{AccessToken: legacy}, nil
}

// Get returns the access token for id.
func (v *Vault) Get(id uuid.UUID) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return "", err
	}
	raw, ok := doc[id.String()]
	if !ok {
		return "", ErrNotFound
	}
	e, err := unmarshalEntry(raw)
	if err != nil {
		return "", err
	}
	return e.AccessToken, nil
}

// GetRefresh returns the refresh token for id, if one is stored.
func (v *Vault) GetRefresh(id uuid.UUID) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return "", err
	}
	raw, ok := doc[id.String()]
	if !ok {
		return "", ErrNotFound
	}
	e, err := unmarshalEntry(raw)
	if err != nil {
		return "", err
	}
	if e.RefreshToken == "" {
		return "", ErrNotFound
	}
	return e.RefreshToken, nil
}

// Set stores the access token for id, preserving any existing refresh token.
func (v *Vault) Set(id uuid.UUID, access string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return err
	}
	existing := entry{}
	if raw, ok := doc[id.String()]; ok {
		if e, err := unmarshalEntry(raw); err == nil {
			existing = e
		}
	}
	existing.AccessToken = access
	return v.putAndSave(doc, id, existing)
}

// SetTokens stores both the access and (optional) refresh token for id.
// Passing an empty refresh leaves any previously stored refresh token alone,
// matching Set's preservation behavior.
func (v *Vault) SetTokens(id uuid.UUID, access, refresh string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return err
	}
	e := entry{AccessToken: access, RefreshToken: refresh}
	if refresh == "" {
		if raw, ok := doc[id.String()]; ok {
			if prev, err := unmarshalEntry(raw); err == nil {
				e.RefreshToken = prev.RefreshToken
			}
		}
	}
	return v.putAndSave(doc, id, e)
}

func (v *Vault) putAndSave(doc document, id uuid.UUID, e entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal entry: %w", err)
	}
	doc[id.String()] = raw
	return v.save(doc)
}

// Delete removes id's token entry entirely. Deleting an absent id is a no-op.
func (v *Vault) Delete(id uuid.UUID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return err
	}
	delete(doc, id.String())
	return v.save(doc)
}
