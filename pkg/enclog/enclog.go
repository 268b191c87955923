package enclog

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/burrow/pkg/crdt"
	"github.com/cuemby/burrow/pkg/crypto"
	"github.com/cuemby/burrow/pkg/oplog"
)

// SaltSize is the width of the per-op salt attached to every committed op.
const SaltSize = 32

// EncryptedOp is the wire shape of one logged op: a fresh salt
// plus the AEAD envelope sealing the JSON-encoded crdt.MapOp. The salt is
// the HKDF info used to derive the per-op key, so two commits of the same
// op produce unrelated ciphertexts even before the AEAD's own fresh nonce
// is taken into account.
type EncryptedOp struct {
	Salt []byte            `json:"salt"`
	Op   *crypto.Encrypted `json:"op"`
}

// Log presents the oplog.LogReplicable contract over plaintext CRDT ops
// while committing only ciphertext to the log underneath it. Each actor's
// ops are sealed under that actor's subkey, derived from the shared root as
// DeriveChild(actor bytes), so the storage medium sees opaque bytes and
// cannot even correlate two commits of the same op.
type Log struct {
	rootKey  *crypto.KeyHierarchy
	actorKey *crypto.KeyHierarchy
	inner    oplog.LogReplicable[*EncryptedOp]
}

// New wraps inner, committing as actor. root must be the same hierarchy
// node on every replica sharing the store (each derives its own actor
// subkey from it, and derives peers' subkeys on demand when decrypting
// pulled ops).
func New(actor crdt.Actor, root *crypto.KeyHierarchy, inner oplog.LogReplicable[*EncryptedOp]) (*Log, error) {
	actorKey, err := root.DeriveChild(actor[:])
	if err != nil {
		return nil, fmt.Errorf("enclog: derive actor key: %w", err)
	}
	return &Log{rootKey: root, actorKey: actorKey, inner: inner}, nil
}

func (l *Log) encrypt(op *crdt.MapOp) (*EncryptedOp, error) {
	plaintext, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("enclog: encode op: %w", err)
	}
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("enclog: generate salt: %w", err)
	}
	key, err := l.actorKey.KeyFor(salt)
	if err != nil {
		return nil, err
	}
	sealed, err := key.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return &EncryptedOp{Salt: salt, Op: sealed}, nil
}

func (l *Log) decrypt(actor crdt.Actor, eop *EncryptedOp) (*crdt.MapOp, error) {
	actorKey, err := l.rootKey.DeriveChild(actor[:])
	if err != nil {
		return nil, fmt.Errorf("enclog: derive actor key: %w", err)
	}
	key, err := actorKey.KeyFor(eop.Salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := key.Decrypt(eop.Op)
	if err != nil {
		return nil, err
	}
	var op crdt.MapOp
	if err := json.Unmarshal(plaintext, &op); err != nil {
		return nil, fmt.Errorf("enclog: decode op: %w", err)
	}
	return &op, nil
}

// Commit seals op under a fresh per-op key and commits the ciphertext. The
// returned TaggedOp carries the plaintext op and the underlying log's
// identity for it.
func (l *Log) Commit(op *crdt.MapOp) (*oplog.TaggedOp[*crdt.MapOp], error) {
	eop, err := l.encrypt(op)
	if err != nil {
		return nil, err
	}
	tagged, err := l.inner.Commit(eop)
	if err != nil {
		return nil, err
	}
	return &oplog.TaggedOp[*crdt.MapOp]{ID: tagged.ID, Actor: tagged.Actor, Op: op}, nil
}

// Next surfaces the underlying log's next unacked op, decrypted with the
// subkey of whichever actor committed it.
func (l *Log) Next() (*oplog.TaggedOp[*crdt.MapOp], error) {
	tagged, err := l.inner.Next()
	if err != nil {
		return nil, err
	}
	if tagged == nil {
		return nil, nil
	}
	op, err := l.decrypt(tagged.Actor, tagged.Op)
	if err != nil {
		return nil, err
	}
	return &oplog.TaggedOp[*crdt.MapOp]{ID: tagged.ID, Actor: tagged.Actor, Op: op}, nil
}

// Ack advances the underlying log's cursor past op. op must be exactly what
// Next currently returns, identified by the ID the underlying log assigned.
func (l *Log) Ack(op *oplog.TaggedOp[*crdt.MapOp]) error {
	next, err := l.inner.Next()
	if err != nil {
		return err
	}
	if next == nil {
		return fmt.Errorf("%w: ack with nothing committed", oplog.ErrProtocolViolation)
	}
	if op.ID != next.ID {
		return fmt.Errorf("%w: ack of %v does not match next op %v", oplog.ErrProtocolViolation, op.ID, next.ID)
	}
	return l.inner.Ack(next)
}

// Pull moves new remote commits into the underlying log; ciphertext is
// never opened during replication.
func (l *Log) Pull(remote oplog.Remote) error {
	return l.inner.Pull(remote)
}

// Push publishes the underlying log's local branches to remote.
func (l *Log) Push(remote oplog.Remote) error {
	return l.inner.Push(remote)
}

// Sync pulls then pushes.
func (l *Log) Sync(remote oplog.Remote) error {
	if err := l.Pull(remote); err != nil {
		return err
	}
	return l.Push(remote)
}
