// Package enclog wraps an operation log with transparent per-op
// encryption: every op committed through it reaches the underlying log as
// an opaque salt+ciphertext envelope sealed under a per-actor subkey of the
// shared key hierarchy, and every op surfaced by Next is decrypted back
// into a plaintext crdt.MapOp before the caller sees it.
package enclog
