package identity

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/p2p-ai-agents/agentnode/internal/credstore"
)

func newTestStore(t *testing.T) credstore.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := credstore.OpenFileVault(filepath.Join(dir, "vault.json"), []byte("test-passphrase"))
	if err != nil {
		t.Fatalf("open file vault: %v", err)
	}
	return store
}

func TestLoadOrGenerateStablePeerID(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)

	first, err := LoadOrGenerate(dir, store)
	if err != nil {
		t.Fatalf("first load_or_generate: %v", err)
	}
	second, err := LoadOrGenerate(dir, store)
	if err != nil {
		t.Fatalf("second load_or_generate: %v", err)
	}
	if first.PeerID() != second.PeerID() {
		t.Fatalf("peer id mismatch: %s != %s", first.PeerID(), second.PeerID())
	}

	sig := first.Sign([]byte("test"))
	if !second.Verify([]byte("test"), sig) {
		t.Fatalf("second identity failed to verify signature made by first")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)

	id, err := Generate(store)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := id.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(dir, store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if id.PeerID() != loaded.PeerID() {
		t.Fatalf("peer id changed across save/load")
	}
	if string(id.PublicKey()) != string(loaded.PublicKey()) {
		t.Fatalf("public key changed across save/load")
	}
}

func TestCredentialStoreUnavailableOnLoad(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	id, err := Generate(store)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := id.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := Load(dir, nil); err == nil {
		t.Fatalf("expected error loading with nil credential store")
	}
}

func TestVerifyWithReplayGuard(t *testing.T) {
	store := newTestStore(t)
	id, err := Generate(store)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	msg := []byte("hello")
	sig := id.Sign(msg)
	now := time.Now()

	if err := id.VerifyWithReplayGuard(msg, sig, "m1", now, 1); err != nil {
		t.Fatalf("first verify should succeed: %v", err)
	}
	if err := id.VerifyWithReplayGuard(msg, sig, "m1", now, 1); err == nil {
		t.Fatalf("second identical triple should be rejected as replay")
	}
	if err := id.VerifyWithReplayGuard(msg, sig, "m2", now, 2); err != nil {
		t.Fatalf("distinct message id should succeed: %v", err)
	}
}

func TestVerifyWithReplayGuardOutsideDrift(t *testing.T) {
	store := newTestStore(t)
	id, err := Generate(store)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("hello")
	sig := id.Sign(msg)
	stale := time.Now().Add(-DefaultReplayWindow - time.Minute)
	if err := id.VerifyWithReplayGuard(msg, sig, "m3", stale, 3); err == nil {
		t.Fatalf("expected rejection for timestamp outside window")
	}
}

func TestRotateKeepsOldKeyVerifiable(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	id, err := Generate(store)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("pre-rotation")
	sig := id.Sign(msg)
	oldPeerID := id.PeerID()

	if err := id.Rotate(dir); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if id.PeerID() == oldPeerID {
		t.Fatalf("peer id did not change after rotation")
	}
	if !id.Verify(msg, sig) {
		t.Fatalf("signature from previous key should still verify inside the transition window")
	}
}

func TestExportImportBackupRoundTrip(t *testing.T) {
	store := newTestStore(t)
	id, err := Generate(store)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	backup, err := id.ExportBackup("correct horse battery staple")
	if err != nil {
		t.Fatalf("export backup: %v", err)
	}
	restored, err := ImportBackup(backup, "correct horse battery staple", store)
	if err != nil {
		t.Fatalf("import backup: %v", err)
	}
	if string(id.PublicKey()) != string(restored.PublicKey()) {
		t.Fatalf("restored public key mismatch")
	}

	if _, err := ImportBackup(backup, "wrong passphrase", store); err == nil {
		t.Fatalf("expected decryption failure with wrong passphrase")
	}
}

func TestBatchVerify(t *testing.T) {
	store := newTestStore(t)
	id, err := Generate(store)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	good := []byte("good message")
	bad := []byte("tampered message")
	sig := id.Sign(good)

	items := []VerifyItem{
		{Identity: id, Message: good, Signature: sig},
		{Identity: id, Message: bad, Signature: sig},
	}
	results := BatchVerify(items)
	if !results[0] {
		t.Fatalf("expected first item to verify")
	}
	if results[1] {
		t.Fatalf("expected second item to fail verification")
	}
}
