// Package identity implements C1 of the agent core: deterministic peer-ID
// derivation, at-rest encryption of private keys via a host credential
// store, and replay- and rotation-aware signing. Grounded on the Ed25519 +
// XChaCha20-Poly1305 primitives in the teacher's core/security.go, adapted
// to the spec's fixed nonce(12)||ciphertext||tag(16) private-key layout
// (standard ChaCha20-Poly1305, not the X-variant the teacher uses
// elsewhere — see DESIGN.md).
package identity

import (
	crand "crypto/rand"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/p2p-ai-agents/agentnode/internal/credstore"
)

const (
	// PublicKeySize is the size in bytes of an agent's Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
	// PrivateKeySize is the size in bytes of the seed stored at rest (not
	// the expanded ed25519.PrivateKey).
	PrivateKeySize = ed25519.SeedSize
	// SignatureSize is the size in bytes of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	schemaVersion = 1

	pubFileName = "identity.pub"
	keyFileName = "identity.key"

	// defaultRotationWindow is how long a previous public key continues
	// to verify after Rotate, resolving the spec.md §9 open question.
	defaultRotationWindow = 24 * time.Hour
)

// previousKey records a rotated-out public key still valid for signature
// verification until expiry.
type previousKey struct {
	pub    ed25519.PublicKey
	expiry time.Time
}

// Metadata is the persisted, non-secret identity record metadata.
type Metadata struct {
	CreatedAt     time.Time `json:"created_at"`
	RotationCount int       `json:"rotation_count"`
	SchemaVersion int       `json:"schema_version"`
}

// Identity owns an Ed25519 keypair, its replay detector, and rotation
// history. All exported methods are safe for concurrent use.
type Identity struct {
	mu  sync.RWMutex
	pub ed25519.PublicKey
	priv ed25519.PrivateKey

	meta     Metadata
	previous []previousKey

	replay *ReplayGuard
	store  credstore.Store
	log    *logrus.Entry
}

// newIdentity wraps an existing keypair. Used internally by Generate, Load
// and ImportBackup.
func newIdentity(pub ed25519.PublicKey, priv ed25519.PrivateKey, meta Metadata, store credstore.Store) *Identity {
	return &Identity{
		pub:    pub,
		priv:   priv,
		meta:   meta,
		replay: NewReplayGuard(DefaultReplayCapacity, DefaultReplayWindow),
		store:  store,
		log:    logrus.WithField("component", "identity"),
	}
}

// Generate produces a fresh keypair from a cryptographic RNG.
func Generate(store credstore.Store) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	meta := Metadata{CreatedAt: time.Now().UTC(), RotationCount: 0, SchemaVersion: schemaVersion}
	return newIdentity(pub, priv, meta, store), nil
}

// LoadOrGenerate loads the identity persisted under dir, or generates and
// saves a fresh one if absent.
func LoadOrGenerate(dir string, store credstore.Store) (*Identity, error) {
	pubPath := filepath.Join(dir, pubFileName)
	keyPath := filepath.Join(dir, keyFileName)
	if _, err := os.Stat(pubPath); err == nil {
		if _, err := os.Stat(keyPath); err == nil {
			return Load(dir, store)
		}
	}
	id, err := Generate(store)
	if err != nil {
		return nil, err
	}
	if err := id.Save(dir); err != nil {
		return nil, err
	}
	return id, nil
}

// credentialAccount derives the deterministic credential-store account name
// for a public key (spec.md §4.1, §6).
func credentialAccount(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "p2p-key-" + hex.EncodeToString(sum[:])
}

// Save atomically persists the identity under dir: serialise, write a temp
// file with restricted permissions, fsync, rename. Directory permissions
// are set before any file is written to avoid a permissions-race window.
func (id *Identity) Save(dir string) error {
	id.mu.RLock()
	pub := append(ed25519.PublicKey(nil), id.pub...)
	priv := append(ed25519.PrivateKey(nil), id.priv...)
	meta := id.meta
	id.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: mkdir: %w", err)
	}

	aeadKey, err := id.aeadKeyFor(pub, true)
	if err != nil {
		return err
	}

	seed := priv.Seed()
	blob, err := encryptSeed(aeadKey, seed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("identity: marshal metadata: %w", err)
	}

	if err := atomicWrite(filepath.Join(dir, pubFileName), pub, 0o644); err != nil {
		return fmt.Errorf("identity: write public key: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, keyFileName), blob, 0o600); err != nil {
		return fmt.Errorf("identity: write private key: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, "identity.meta.json"), metaBytes, 0o600); err != nil {
		return fmt.Errorf("identity: write metadata: %w", err)
	}
	return nil
}

// Load restores an identity previously saved under dir.
func Load(dir string, store credstore.Store) (*Identity, error) {
	pubPath := filepath.Join(dir, pubFileName)
	keyPath := filepath.Join(dir, keyFileName)

	pub, err := os.ReadFile(pubPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: read public key: %w", err)
	}
	if len(pub) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key has %d bytes", ErrInvalidKey, len(pub))
	}

	blob, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: read private key: %w", err)
	}

	tmp := &Identity{store: store}
	aeadKey, err := tmp.aeadKeyFor(pub, false)
	if err != nil {
		return nil, err
	}

	seed, err := decryptSeed(aeadKey, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if subtle.ConstantTimeCompare(priv.Public().(ed25519.PublicKey), pub) != 1 {
		return nil, fmt.Errorf("%w: key mismatch", ErrInvalidKey)
	}

	meta := Metadata{SchemaVersion: schemaVersion}
	if mb, err := os.ReadFile(filepath.Join(dir, "identity.meta.json")); err == nil {
		_ = json.Unmarshal(mb, &meta)
	}

	return newIdentity(ed25519.PublicKey(pub), priv, meta, store), nil
}

// aeadKeyFor retrieves (or, if create is true, provisions) the 256-bit AEAD
// key for pub from the configured credential store.
func (id *Identity) aeadKeyFor(pub ed25519.PublicKey, create bool) ([]byte, error) {
	if id.store == nil {
		return nil, fmt.Errorf("%w: no credential store configured", ErrCredentialStoreUnavailable)
	}
	account := credentialAccount(pub)
	key, err := id.store.Get(credstore.ServiceName, account)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, credstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if !create {
		return nil, fmt.Errorf("%w: no key for account %s", ErrCredentialStoreUnavailable, account)
	}
	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(crand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	if err := id.store.Set(credstore.ServiceName, account, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialStoreUnavailable, err)
	}
	return key, nil
}

// encryptSeed returns nonce(12) || ciphertext(32) || tag(16) = 60 bytes,
// per spec.md §6.
func encryptSeed(key, seed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(crand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, seed, nil), nil
}

func decryptSeed(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return nil, errors.New("identity: truncated private key file")
	}
	nonce, ciphertext := blob[:chacha20poly1305.NonceSize], blob[chacha20poly1305.NonceSize:]
	return aead.Open(nil, nonce, ciphertext, nil)
}

func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Sign produces a non-failing signature over the exact message bytes.
func (id *Identity) Sign(message []byte) []byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return ed25519.Sign(id.priv, message)
}

// Verify checks sig against this identity's current public key, falling
// back to any non-expired previous key (rotation transition window).
func (id *Identity) Verify(message, sig []byte) bool {
	jitter()
	id.mu.RLock()
	defer id.mu.RUnlock()
	if len(sig) != SignatureSize {
		return false
	}
	if ed25519.Verify(id.pub, message, sig) {
		return true
	}
	now := time.Now()
	for _, pk := range id.previous {
		if pk.expiry.After(now) && ed25519.Verify(pk.pub, message, sig) {
			return true
		}
	}
	return false
}

// VerifyWithReplayGuard verifies sig and rejects replays: a (messageID,
// nonce, timestamp) triple already seen within the detector's window, or a
// timestamp outside the allowed clock drift, is rejected before signature
// verification is even attempted.
func (id *Identity) VerifyWithReplayGuard(message, sig []byte, messageID string, timestamp time.Time, nonce uint64) error {
	if err := id.replay.Check(messageID, nonce, timestamp); err != nil {
		return err
	}
	if !id.Verify(message, sig) {
		return ErrVerification
	}
	return nil
}

// PeerID derives a stable, opaque string identifier from the public key.
// Two loads of the same identity.pub yield an identical value.
func (id *Identity) PeerID() string {
	id.mu.RLock()
	pub := id.pub
	id.mu.RUnlock()
	return PeerIDFromPublicKey(pub)
}

// PeerIDFromPublicKey derives a peer ID from raw public-key bytes, usable
// without holding a full Identity (e.g. when verifying a remote peer).
func PeerIDFromPublicKey(pub []byte) string {
	sum := sha256.Sum256(pub)
	return base58.Encode(sum[:])
}

// PublicKey returns a copy of the current public key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return append(ed25519.PublicKey(nil), id.pub...)
}

// Info returns a copy of the identity's persisted metadata.
func (id *Identity) Info() Metadata {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.meta
}

// Rotate generates a new keypair, operator-initiated. The previous public
// key continues to verify for defaultRotationWindow, per the rotation
// transition-window decision recorded in SPEC_FULL.md §5.
func (id *Identity) Rotate(dir string) error {
	id.mu.Lock()
	oldPub := id.pub
	id.mu.Unlock()

	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	id.mu.Lock()
	id.previous = append(id.previous, previousKey{pub: oldPub, expiry: time.Now().Add(defaultRotationWindow)})
	id.pub = pub
	id.priv = priv
	id.meta.RotationCount++
	id.mu.Unlock()

	id.log.WithField("peer_id", id.PeerID()).Info("identity rotated")
	return id.Save(dir)
}

// Zeroise overwrites the in-memory private key material. Called on release.
func (id *Identity) Zeroise() {
	id.mu.Lock()
	defer id.mu.Unlock()
	for i := range id.priv {
		id.priv[i] = 0
	}
}
