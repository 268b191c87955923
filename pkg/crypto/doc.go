/*
Package crypto derives burrow's key hierarchy from a single passphrase and
provides the authenticated-encryption envelope used everywhere state leaves
process memory.

# Architecture

Every key in burrow traces back to one passphrase through two stages:

	┌───────────────┐     ┌──────────────────┐     ┌──────────────────┐
	│  passphrase   │ --> │   KDF (PBKDF2)   │ --> │  KeyHierarchy    │
	└───────────────┘     └──────────────────┘     └─────────┬────────┘
	                                                          │
	                               DeriveChild(namespace)     │    KeyFor(id)
	                              ┌───────────────────────────┼──────────────┐
	                              ▼                                         ▼
	                     ┌──────────────────┐                     ┌──────────────────┐
	                     │  KeyHierarchy    │                     │    CryptoKey     │
	                     │  (child node)     │                     │ (ChaCha20-Poly1305)│
	                     └──────────────────┘                     └──────────────────┘

# Key derivation function

KDF stretches the passphrase with PBKDF2-HMAC-SHA256 using a random 32-byte
salt and a configurable iteration count (DefaultIterations unless the caller
overrides it). The salt must be persisted alongside the store: re-deriving
the root key on a second device requires the same salt and iteration count.

	root = PBKDF2-HMAC-SHA256(passphrase, salt, iters, 32)

# Key hierarchy

The root key is treated as an HKDF-SHA256 pseudorandom key. From it:

  - DeriveChild(namespace) extracts a new pseudorandom key scoped to
    namespace — used once per actor, so each actor's operation log is
    encrypted under an independent subtree.
  - KeyFor(id) expands the pseudorandom key using id as HKDF info,
    producing a 32-byte leaf key bound to ChaCha20-Poly1305 — used once per
    encrypted record, with id a fresh random salt so no two records ever
    share a key.

This mirrors a real key-derivation tree: compromising one leaf key reveals
nothing about its siblings or its parent's other children.

# AEAD envelope

CryptoKey.Encrypt seals plaintext under a random 12-byte nonce with no
associated data; CryptoKey.Decrypt verifies the authentication tag before
returning plaintext, and returns an error wrapping ErrDecrypt if the
ciphertext was tampered with, truncated, or sealed under a different key.
Nonces are never reused because every Encrypt call draws a fresh one from
crypto/rand and every leaf key is used by at most one logical record.
*/
package crypto
