package db

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/crdt"
	"github.com/cuemby/burrow/pkg/data"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/oplog"
	"github.com/cuemby/burrow/pkg/pmap"
	"github.com/cuemby/burrow/pkg/store"
)

// DB binds an operation log and a persistent Map into the facade the rest
// of an application talks to. Every mutation is committed to the log before
// it is applied to the Map and acked, so an op can be lost only if the log
// itself loses it; an op that was committed but not applied (crash between
// the two) is redelivered by Next and re-applied on the next startup, which
// is safe because Map.Apply is idempotent.
type DB struct {
	actor  crdt.Actor
	log    oplog.LogReplicable[*crdt.MapOp]
	m      *pmap.Map[*data.Data]
	logger zerolog.Logger
}

// New binds l and s into a DB that mutates as actor, then drains any ops
// already committed or pulled but not yet applied, completing whatever a
// previous process crashed in the middle of.
func New(actor crdt.Actor, l oplog.LogReplicable[*crdt.MapOp], s store.Store) (*DB, error) {
	d := &DB{
		actor:  actor,
		log:    l,
		m:      pmap.New[*data.Data](s),
		logger: log.WithComponent("db"),
	}
	if err := d.drain(); err != nil {
		return nil, err
	}
	return d, nil
}

// Actor returns the identity this DB mutates as.
func (d *DB) Actor() crdt.Actor {
	return d.actor
}

// Get reads the value under key together with the causal contexts needed to
// build a subsequent Update or Rm against it.
func (d *DB) Get(key crdt.Key) (crdt.ReadCtx[*data.Data], error) {
	return d.m.Get(key)
}

// Iter yields every live entry with its read context.
func (d *DB) Iter() ([]pmap.IterEntry[*data.Data], error) {
	return d.m.Iter()
}

// Update builds an op via f against the current value under key, commits it
// to the log, applies it to the Map, and acks it.
func (d *DB) Update(key crdt.Key, ctx crdt.AddCtx, f func(val *data.Data, ctx crdt.AddCtx) crdt.Op) error {
	op, err := d.m.Update(key, ctx, f)
	if err != nil {
		return err
	}
	return d.commitApplyAck(op)
}

// Rm reset-removes the entry under key using ctx's clock, through the same
// commit-then-apply-then-ack path as Update.
func (d *DB) Rm(key crdt.Key, ctx crdt.RmCtx) error {
	return d.commitApplyAck(d.m.Rm(key, ctx))
}

func (d *DB) commitApplyAck(op *crdt.MapOp) error {
	tagged, err := d.log.Commit(op)
	if err != nil {
		return err
	}
	if err := d.m.Apply(tagged.Op); err != nil {
		return err
	}
	return d.log.Ack(tagged)
}

// Sync exchanges ops with remote, then applies everything new. A failed
// pull or push leaves the local log and acked cursor untouched, so retrying
// is always safe.
func (d *DB) Sync(remote oplog.Remote) error {
	if err := d.log.Sync(remote); err != nil {
		return err
	}
	return d.drain()
}

func (d *DB) drain() error {
	applied := 0
	for {
		tagged, err := d.log.Next()
		if err != nil {
			return err
		}
		if tagged == nil {
			break
		}
		if err := d.m.Apply(tagged.Op); err != nil {
			return err
		}
		if err := d.log.Ack(tagged); err != nil {
			return err
		}
		applied++
	}
	if applied > 0 {
		d.logger.Debug().Int("ops", applied).Msg("applied ops from log")
	}
	return nil
}
