package oplog

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/cuemby/burrow/pkg/crdt"
)

// memOpID is MemoryLog's concrete TaggedOp.ID: which actor produced the op
// and its position in that actor's sequence.
type memOpID struct {
	Actor crdt.Actor
	Index uint64
}

// actorLog is one actor's append-only op sequence plus this log's local
// consumer cursor into it. Cursor is never touched by Pull (which only
// appends ops observed from a remote); it only advances via Ack.
type actorLog[O any] struct {
	ops    []O
	cursor uint64
}

// MemoryLog is the in-memory LogReplicable realization: a map of actor to
// append-only op sequence plus cursor, most-behind-actor-wins Next. Used by
// the oplog, enclog and db tests in this repository and as its own Remote.
type MemoryLog[O any] struct {
	actor crdt.Actor
	logs  map[crdt.Actor]*actorLog[O]
}

// NewMemoryLog returns an empty log that commits as actor.
func NewMemoryLog[O any](actor crdt.Actor) *MemoryLog[O] {
	return &MemoryLog[O]{actor: actor, logs: map[crdt.Actor]*actorLog[O]{}}
}

func (l *MemoryLog[O]) logFor(actor crdt.Actor) *actorLog[O] {
	al, ok := l.logs[actor]
	if !ok {
		al = &actorLog[O]{}
		l.logs[actor] = al
	}
	return al
}

// Commit appends op to this log's own actor sequence and returns it tagged
// with the position it was just appended to.
func (l *MemoryLog[O]) Commit(op O) (*TaggedOp[O], error) {
	al := l.logFor(l.actor)
	index := uint64(len(al.ops))
	al.ops = append(al.ops, op)
	return &TaggedOp[O]{ID: memOpID{Actor: l.actor, Index: index}, Actor: l.actor, Op: op}, nil
}

// Next returns the oldest committed-or-pulled op not yet acked, choosing
// among actors whose (len(ops) - cursor) lag is maximal so a single fast
// producer cannot starve the others. Ties break on actor byte order for
// determinism.
func (l *MemoryLog[O]) Next() (*TaggedOp[O], error) {
	actors := make([]crdt.Actor, 0, len(l.logs))
	for a := range l.logs {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool {
		return bytes.Compare(actors[i][:], actors[j][:]) < 0
	})

	var best crdt.Actor
	var bestLag int64 = -1
	for _, a := range actors {
		al := l.logs[a]
		lag := int64(len(al.ops)) - int64(al.cursor)
		if lag > bestLag {
			bestLag, best = lag, a
		}
	}
	if bestLag <= 0 {
		return nil, nil
	}

	al := l.logs[best]
	op := al.ops[al.cursor]
	return &TaggedOp[O]{ID: memOpID{Actor: best, Index: al.cursor}, Actor: best, Op: op}, nil
}

// Ack advances best's cursor past op. op must be the exact TaggedOp Next
// would currently return; acking anything else is ErrProtocolViolation.
func (l *MemoryLog[O]) Ack(op *TaggedOp[O]) error {
	next, err := l.Next()
	if err != nil {
		return err
	}
	if next == nil {
		return protocolErrorf("ack with nothing committed")
	}
	id, ok := op.ID.(memOpID)
	if !ok || id != next.ID.(memOpID) {
		return protocolErrorf("ack of %v does not match next op %v", op.ID, next.ID)
	}
	l.logFor(id.Actor).cursor = id.Index + 1
	return nil
}

// Pull copies every op remote has that l does not yet have, per actor. It
// never touches l's own cursors, including l.actor's: a local actor never
// pulls back its own commits as if they were new.
func (l *MemoryLog[O]) Pull(remote Remote) error {
	r, ok := remote.(*MemoryLog[O])
	if !ok {
		return fmt.Errorf("oplog: MemoryLog.Pull: remote is %T, want *MemoryLog", remote)
	}
	for actor, rl := range r.logs {
		al := l.logFor(actor)
		if len(rl.ops) > len(al.ops) {
			al.ops = append(al.ops, rl.ops[len(al.ops):]...)
		}
	}
	return nil
}

// Push copies every op l has that remote does not yet have, by asking
// remote to pull from l.
func (l *MemoryLog[O]) Push(remote Remote) error {
	r, ok := remote.(*MemoryLog[O])
	if !ok {
		return fmt.Errorf("oplog: MemoryLog.Push: remote is %T, want *MemoryLog", remote)
	}
	return r.Pull(l)
}

// Sync pulls then pushes.
func (l *MemoryLog[O]) Sync(remote Remote) error {
	if err := l.Pull(remote); err != nil {
		return err
	}
	return l.Push(remote)
}
