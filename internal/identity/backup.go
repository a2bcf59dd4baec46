package identity

import (
	crand "crypto/rand"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/p2p-ai-agents/agentnode/internal/credstore"
)

const (
	backupScryptN = 1 << 15
	backupScryptR = 8
	backupScryptP = 1
	backupSaltLen = 16
)

type backupPayload struct {
	Seed []byte   `json:"seed"`
	Meta Metadata `json:"meta"`
}

type backupEnvelope struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Blob  []byte `json:"blob"`
}

// ExportBackup produces a passphrase-encrypted, out-of-band-transportable
// serialisation of this identity's keys and metadata.
func (id *Identity) ExportBackup(passphrase string) ([]byte, error) {
	id.mu.RLock()
	payload := backupPayload{Seed: append([]byte(nil), id.priv.Seed()...), Meta: id.meta}
	id.mu.RUnlock()

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal backup: %w", err)
	}

	salt := make([]byte, backupSaltLen)
	if _, err := io.ReadFull(crand.Reader, salt); err != nil {
		return nil, fmt.Errorf("identity: backup salt: %w", err)
	}
	key, err := scrypt.Key([]byte(passphrase), salt, backupScryptN, backupScryptR, backupScryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("identity: derive backup key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(crand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("identity: backup nonce: %w", err)
	}
	blob := aead.Seal(nil, nonce, plaintext, nil)

	return json.Marshal(backupEnvelope{Salt: salt, Nonce: nonce, Blob: blob})
}

// ImportBackup restores an identity from data produced by ExportBackup,
// given the same passphrase. Round-trips byte-equal keys.
func ImportBackup(data []byte, passphrase string, store credstore.Store) (*Identity, error) {
	var env backupEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed backup: %v", ErrInvalidKey, err)
	}
	key, err := scrypt.Key([]byte(passphrase), env.Salt, backupScryptN, backupScryptR, backupScryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("identity: derive backup key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	var payload backupPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(payload.Seed) != PrivateKeySize {
		return nil, fmt.Errorf("%w: seed has %d bytes", ErrInvalidKey, len(payload.Seed))
	}
	priv := ed25519.NewKeyFromSeed(payload.Seed)
	pub := priv.Public().(ed25519.PublicKey)
	return newIdentity(pub, priv, payload.Meta, store), nil
}
