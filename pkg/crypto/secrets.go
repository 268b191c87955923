// Package crypto derives a tree of symmetric keys from a single passphrase
// and provides the authenticated-encryption envelope everything else in
// burrow encrypts through.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the width, in bytes, of every key in the hierarchy.
const KeySize = 32

// DefaultIterations is the PBKDF2 iteration count used when a caller does
// not supply one explicitly.
const DefaultIterations = 200_000

// CryptoError tags a failure with the operation that produced it so callers
// can distinguish "bad passphrase" from "tampered ciphertext" without
// string-matching error text.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// ErrDecrypt is returned (wrapped in a *CryptoError) when an AEAD open fails,
// meaning the ciphertext was tampered with, truncated, or encrypted under a
// different key.
var ErrDecrypt = errors.New("authentication failed")

// KDF stretches a low-entropy passphrase into a root key.
type KDF struct {
	Iters int
	Salt  [KeySize]byte
}

// NewKDF builds a KDF with fresh random salt and the default iteration
// count. Callers that need a stable salt (e.g. to reopen an existing store)
// should construct a KDF literal directly instead.
func NewKDF() (*KDF, error) {
	k := &KDF{Iters: DefaultIterations}
	if _, err := io.ReadFull(rand.Reader, k.Salt[:]); err != nil {
		return nil, &CryptoError{Op: "kdf-salt", Err: err}
	}
	return k, nil
}

// DeriveRoot stretches passphrase via PBKDF2-HMAC-SHA256 and returns the
// root of the key hierarchy.
func (k *KDF) DeriveRoot(passphrase []byte) (*KeyHierarchy, error) {
	if len(passphrase) == 0 {
		return nil, &CryptoError{Op: "derive-root", Err: errors.New("passphrase cannot be empty")}
	}
	iters := k.Iters
	if iters <= 0 {
		iters = DefaultIterations
	}
	prk := pbkdf2.Key(passphrase, k.Salt[:], iters, KeySize, sha256.New)
	return &KeyHierarchy{prk: prk}, nil
}

// KeyHierarchy is one node of the deterministic key tree: an HKDF
// pseudorandom key from which child nodes and leaf AEAD keys are derived.
type KeyHierarchy struct {
	prk []byte
}

// DeriveChild derives a new KeyHierarchy node scoped to namespace:
// HKDF-expand the current PRK (no info) into a fresh salt, then
// HKDF-extract over namespace with that salt. Calling DeriveChild with the
// same namespace on the same parent always yields the same child; different
// namespaces yield independent, uncorrelated keys.
func (h *KeyHierarchy) DeriveChild(namespace []byte) (*KeyHierarchy, error) {
	salt := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, h.prk, nil), salt); err != nil {
		return nil, &CryptoError{Op: "derive-child", Err: err}
	}
	return &KeyHierarchy{prk: hkdf.Extract(sha256.New, namespace, salt)}, nil
}

// KeyFor derives a leaf AEAD key identified by id (typically a random
// per-op salt): HKDF-expand the current PRK with id as the info. Every
// distinct id yields an independent key even though all of them trace back
// to the same KeyHierarchy node.
func (h *KeyHierarchy) KeyFor(id []byte) (*CryptoKey, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, h.prk, id), raw); err != nil {
		return nil, &CryptoError{Op: "key-for", Err: err}
	}
	aead, err := chacha20poly1305.New(raw)
	if err != nil {
		return nil, &CryptoError{Op: "key-for", Err: err}
	}
	return &CryptoKey{raw: raw, aead: aead}, nil
}

// Encrypted is a self-contained ciphertext: a fresh nonce plus the sealed
// bytes (ciphertext with the authentication tag appended).
type Encrypted struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// CryptoKey is a single leaf AEAD key, bound to ChaCha20-Poly1305.
type CryptoKey struct {
	raw  []byte
	aead cipher.AEAD
}

// Encrypt seals plaintext under a fresh random nonce. AAD is always empty:
// the envelope carries no context beyond what its caller already binds out
// of band (e.g. the actor/salt pair that selected this key).
func (k *CryptoKey) Encrypt(plaintext []byte) (*Encrypted, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, &CryptoError{Op: "encrypt", Err: err}
	}
	ct := k.aead.Seal(nil, nonce, plaintext, nil)
	return &Encrypted{Nonce: nonce, Ciphertext: ct}, nil
}

// Decrypt opens an Encrypted envelope produced by Encrypt under this key.
func (k *CryptoKey) Decrypt(e *Encrypted) ([]byte, error) {
	if e == nil {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("nil envelope")}
	}
	if len(e.Nonce) != k.aead.NonceSize() {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("bad nonce size")}
	}
	pt, err := k.aead.Open(nil, e.Nonce, e.Ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: ErrDecrypt}
	}
	return pt, nil
}
