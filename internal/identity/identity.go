// Package identity resolves and persists the ed25519 keypair that signs
// PunchHoleResponse/RelayResponse pk payloads. Unlike libp2p's wrapped
// crypto.PrivKey, callers here work with the raw 64-byte ed25519 secret key
// format used by the wire protocol and by the on-disk id_ed25519 file.
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Identity holds the server's signing keypair. Priv is nil when the
// configured key is a bare shared secret rather than a signing key (the
// third resolution case below), in which case Sign cannot be used.
type Identity struct {
	Priv ed25519.PrivateKey
	Pub  ed25519.PublicKey
}

// CanSign reports whether this identity holds a private key.
func (id Identity) CanSign() bool {
	return len(id.Priv) == ed25519.PrivateKeySize
}

// Sign produces a sign-and-prepend signed message over msg: the signature
// followed by msg, matching the combined (non-detached) signing convention
// PunchHoleResponse/RelayResponse carry on the wire.
func (id Identity) Sign(msg []byte) ([]byte, error) {
	if !id.CanSign() {
		return nil, fmt.Errorf("identity: no private key available to sign")
	}
	sig := ed25519.Sign(id.Priv, msg)
	out := make([]byte, 0, len(sig)+len(msg))
	out = append(out, sig...)
	out = append(out, msg...)
	return out, nil
}

// Verify checks a combined signed message produced by Sign and, on success,
// returns the original msg with the signature stripped off.
func Verify(pub ed25519.PublicKey, signed []byte) ([]byte, bool) {
	if len(signed) < ed25519.SignatureSize {
		return nil, false
	}
	sig, msg := signed[:ed25519.SignatureSize], signed[ed25519.SignatureSize:]
	if !ed25519.Verify(pub, msg, sig) {
		return nil, false
	}
	return msg, true
}

// CheckKeyFilePermissions verifies that a key file is not readable by group
// or others.
func CheckKeyFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil // Windows file permissions work differently
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat key file %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o (expected 0600); fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Resolve implements the three key-resolution cases for the operator-supplied
// "-key" argument:
//
//  1. key base64-decodes to exactly ed25519.PrivateKeySize (64) bytes: used
//     directly as the signing key, ignoring the on-disk files.
//  2. key is "", "-", or "_": load the keypair from keyPath/pubPath, or
//     generate and persist a new one if absent.
//  3. anything else: a value that base64-decodes to exactly
//     ed25519.PublicKeySize (32) bytes is a bare shared public key; the
//     identity can verify or be displayed but cannot sign. Any other value
//     is rejected with an error.
func Resolve(key, keyPath, pubPath string) (Identity, error) {
	if key != "" && key != "-" && key != "_" {
		if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) == ed25519.PrivateKeySize {
			priv := ed25519.PrivateKey(decoded)
			pub := priv.Public().(ed25519.PublicKey)
			return Identity{Priv: priv, Pub: pub}, nil
		}
		if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) == ed25519.PublicKeySize {
			return Identity{Pub: ed25519.PublicKey(decoded)}, nil
		}
		return Identity{}, fmt.Errorf("identity: -key value is neither a valid private nor public key")
	}
	return LoadOrCreate(keyPath, pubPath)
}

// LoadOrCreate loads an existing keypair from keyPath/pubPath, or generates
// and persists a new one. Generation re-rolls while the base64-encoded
// public key contains '/' or ':', avoiding characters that are awkward in
// URLs and shell arguments.
func LoadOrCreate(keyPath, pubPath string) (Identity, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		if err := CheckKeyFilePermissions(keyPath); err != nil {
			return Identity{}, err
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(decoded) != ed25519.PrivateKeySize {
			return Identity{}, fmt.Errorf("identity: %s does not hold a valid ed25519 private key", keyPath)
		}
		priv := ed25519.PrivateKey(decoded)
		return Identity{Priv: priv, Pub: priv.Public().(ed25519.PublicKey)}, nil
	}

	var pub ed25519.PublicKey
	var priv ed25519.PrivateKey
	var err error
	for {
		pub, priv, err = ed25519.GenerateKey(nil)
		if err != nil {
			return Identity{}, fmt.Errorf("identity: generate keypair: %w", err)
		}
		encodedPub := base64.StdEncoding.EncodeToString(pub)
		if !strings.ContainsAny(encodedPub, "/:") {
			break
		}
	}

	if err := os.WriteFile(keyPath, []byte(base64.StdEncoding.EncodeToString(priv)), 0600); err != nil {
		return Identity{}, fmt.Errorf("identity: save %s: %w", keyPath, err)
	}
	if err := os.WriteFile(pubPath, []byte(base64.StdEncoding.EncodeToString(pub)), 0644); err != nil {
		return Identity{}, fmt.Errorf("identity: save %s: %w", pubPath, err)
	}

	return Identity{Priv: priv, Pub: pub}, nil
}
