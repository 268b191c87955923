package oplog

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/crdt"
)

// ErrProtocolViolation is returned when a caller acks an op that is not the
// literal op Next would currently return, or acks before anything has been
// committed or pulled. Ack is strict: every LogReplicable implementation in
// this package enforces it, including MemoryLog.
var ErrProtocolViolation = errors.New("oplog: protocol violation")

// TaggedOp pairs a committed or pulled op with its durable identity in the
// log and the actor that produced it. ID is implementation-defined:
// MemoryLog uses an (actor, index) pair, GitLog uses a commit hash.
type TaggedOp[O any] struct {
	ID    any
	Actor crdt.Actor
	Op    O
}

// Remote is the opaque handle LogReplicable.Pull/Push/Sync exchange ops
// through. Each LogReplicable implementation defines its own concrete
// Remote type and type-asserts it back out; passing a Remote from a
// different implementation is a programmer error reported as an error
// naming the Remote's actual and expected types.
type Remote any

// LogReplicable is the operation log's contract, generic
// over the op type it carries so the same log machinery can move plaintext
// CRDT ops (O = *crdt.MapOp) or opaque ciphertext envelopes (pkg/enclog's
// encrypted ops). Commit logs an op under the log's own actor; Next yields
// the oldest committed-or-pulled-but-unacked op, preserving per-actor FIFO
// order; Ack advances the consumer cursor past exactly that op; Pull and
// Push move committed ops to and from a remote; Sync does both.
type LogReplicable[O any] interface {
	Commit(op O) (*TaggedOp[O], error)
	Next() (*TaggedOp[O], error)
	Ack(op *TaggedOp[O]) error
	Pull(remote Remote) error
	Push(remote Remote) error
	Sync(remote Remote) error
}

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}
