package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrCreateGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")
	pubPath := filepath.Join(dir, "id_ed25519.pub")

	id, err := LoadOrCreate(keyPath, pubPath)
	if err != nil {
		t.Fatalf("LoadOrCreate() error: %v", err)
	}
	if !id.CanSign() {
		t.Fatal("generated identity cannot sign")
	}

	if _, err := os.Stat(keyPath); err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file permissions = %o, want 0600", perm)
	}

	pubData, err := os.ReadFile(pubPath)
	if err != nil {
		t.Fatalf("pub file not written: %v", err)
	}
	if strings.ContainsAny(string(pubData), "/:") {
		t.Errorf("generated public key %q contains disallowed characters", pubData)
	}

	// Loading again should return the same keypair, not generate a new one.
	reloaded, err := LoadOrCreate(keyPath, pubPath)
	if err != nil {
		t.Fatalf("LoadOrCreate() second call error: %v", err)
	}
	if !reloaded.Pub.Equal(id.Pub) {
		t.Error("reloaded identity has a different public key")
	}
}

func TestResolveExplicitPrivateKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	encoded := base64.StdEncoding.EncodeToString(priv)

	dir := t.TempDir()
	id, err := Resolve(encoded, filepath.Join(dir, "id_ed25519"), filepath.Join(dir, "id_ed25519.pub"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !id.Priv.Equal(priv) {
		t.Error("resolved identity does not match the supplied private key")
	}
	// Should not have touched the file-based path.
	if _, err := os.Stat(filepath.Join(dir, "id_ed25519")); err == nil {
		t.Error("Resolve() with an explicit key should not create key files")
	}
}

func TestResolveBarePublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	encoded := base64.StdEncoding.EncodeToString(pub)

	dir := t.TempDir()
	id, err := Resolve(encoded, filepath.Join(dir, "id_ed25519"), filepath.Join(dir, "id_ed25519.pub"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id.CanSign() {
		t.Error("identity resolved from a bare public key should not be able to sign")
	}
	if !id.Pub.Equal(pub) {
		t.Error("resolved identity has the wrong public key")
	}
}

func TestResolveDashGeneratesIdentity(t *testing.T) {
	dir := t.TempDir()
	id, err := Resolve("-", filepath.Join(dir, "id_ed25519"), filepath.Join(dir, "id_ed25519.pub"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !id.CanSign() {
		t.Error("Resolve(\"-\", ...) should generate a signing identity")
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	id, err := LoadOrCreate(filepath.Join(dir, "id_ed25519"), filepath.Join(dir, "id_ed25519.pub"))
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("peer-id-001")
	signed, err := id.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	got, ok := Verify(id.Pub, signed)
	if !ok {
		t.Fatal("Verify() = false, want true")
	}
	if string(got) != string(msg) {
		t.Errorf("Verify() recovered %q, want %q", got, msg)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	dir := t.TempDir()
	id, err := LoadOrCreate(filepath.Join(dir, "id_ed25519"), filepath.Join(dir, "id_ed25519.pub"))
	if err != nil {
		t.Fatal(err)
	}

	signed, err := id.Sign([]byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	signed[len(signed)-1] ^= 0xFF

	if _, ok := Verify(id.Pub, signed); ok {
		t.Error("Verify() = true for a tampered message, want false")
	}
}

func TestSignWithoutPrivateKeyFails(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	id := Identity{Pub: pub}
	if _, err := id.Sign([]byte("x")); err == nil {
		t.Error("Sign() on a keyless identity should fail")
	}
}
