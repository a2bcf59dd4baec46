package credstore

// FileVault implements Store as an explicit file-based master-key vault,
// itself encrypted with an operator-supplied passphrase, for hosts without
// an OS credential manager (spec.md §9 "Credential-store abstraction").
// None of the examples in the retrieval pack vendor an OS keyring client,
// so this is the only concrete Store backend; see DESIGN.md.

import (
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

func readRandom(b []byte) (int, error) {
	return io.ReadFull(crand.Reader, b)
}

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = chacha20poly1305.KeySize
	saltSize     = 16
)

type vaultFile struct {
	Salt    []byte            `json:"salt"`
	Entries map[string][]byte `json:"entries"` // "service/account" -> nonce||ciphertext||tag
}

// FileVault is a passphrase-protected, single-file Store.
type FileVault struct {
	path       string
	passphrase []byte

	mu   sync.Mutex
	file vaultFile
}

// OpenFileVault loads (or initialises) a vault at path, protected by
// passphrase. The file is created with owner-only permissions on first use.
func OpenFileVault(path string, passphrase []byte) (*FileVault, error) {
	v := &FileVault{path: path, passphrase: passphrase}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		v.file = vaultFile{Salt: randomSalt(), Entries: map[string][]byte{}}
		if err := v.persist(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(b, &v.file); err != nil {
		return nil, fmt.Errorf("%w: corrupt vault: %v", ErrUnavailable, err)
	}
	if v.file.Entries == nil {
		v.file.Entries = map[string][]byte{}
	}
	return v, nil
}

func randomSalt() []byte {
	b := make([]byte, saltSize)
	_, _ = readRandom(b)
	return b
}

func (v *FileVault) deriveKey() ([]byte, error) {
	return scrypt.Key(v.passphrase, v.file.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

func entryKey(service, account string) string {
	return service + "/" + account
}

// Get implements Store.
func (v *FileVault) Get(service, account string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	blob, ok := v.file.Entries[entryKey(service, account)]
	if !ok {
		return nil, ErrNotFound
	}
	key, err := v.deriveKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return aeadOpen(key, blob)
}

// Set implements Store.
func (v *FileVault) Set(service, account string, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.deriveKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	blob, err := aeadSeal(key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	v.file.Entries[entryKey(service, account)] = blob
	return v.persist()
}

func (v *FileVault) persist() error {
	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(v.file)
	if err != nil {
		return err
	}
	tmp := v.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, v.path)
}

func aeadSeal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := readRandom(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func aeadOpen(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("credstore: truncated entry")
	}
	nonce, ciphertext := blob[:chacha20poly1305.NonceSize], blob[chacha20poly1305.NonceSize:]
	return aead.Open(nil, nonce, ciphertext, nil)
}
