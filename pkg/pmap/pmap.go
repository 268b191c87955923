package pmap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/crdt"
	"github.com/cuemby/burrow/pkg/store"
)

// keyPrefix and metaPrefix fix the on-disk layout: user keys sort
// after meta keys so a prefix scan of the user-key region (keyPrefix) never
// has to skip over "clock"/"deferred".
const (
	metaPrefix byte = 0x00
	keyPrefix  byte = 0x01
)

// Map is the store-resident counterpart to crdt.Map: the same Nop/Rm/Up
// apply semantics, but every entry, the top-level clock, and the
// deferred-remove table are read from and written back to a store.Store
// instead of living in process memory. pkg/db binds exactly one Map per
// store.
type Map[V crdt.Value[V]] struct {
	store store.Store
}

// New returns a Map backed by s. s may already contain a Map's data (e.g.
// reopening a store across restarts); a fresh s yields an empty Map.
func New[V crdt.Value[V]](s store.Store) *Map[V] {
	return &Map[V]{store: s}
}

func (m *Map[V]) keyBytes(key crdt.Key) ([]byte, error) {
	b, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("pmap: encode key: %w", err)
	}
	return append([]byte{keyPrefix}, b...), nil
}

func (m *Map[V]) metaKeyBytes(name string) []byte {
	return append([]byte{metaPrefix}, []byte(name)...)
}

// Clock returns the map's top-level version, the join of every dot ever
// applied to it.
func (m *Map[V]) Clock() (crdt.VClock, error) {
	return m.getClock()
}

// Dot allocates the Dot for the next event actor would produce against this
// map's current clock, without mutating it.
func (m *Map[V]) Dot(actor crdt.Actor) (crdt.Dot, error) {
	clock, err := m.getClock()
	if err != nil {
		return crdt.Dot{}, err
	}
	return clock.Increment(actor), nil
}

// Get reads the value under key, if present, together with the add/rm
// contexts needed to build a subsequent Update or Rm against it.
func (m *Map[V]) Get(key crdt.Key) (crdt.ReadCtx[V], error) {
	clock, err := m.getClock()
	if err != nil {
		return crdt.ReadCtx[V]{}, err
	}
	e, ok, err := m.getEntry(key)
	if err != nil {
		return crdt.ReadCtx[V]{}, err
	}
	if !ok {
		var zero V
		return crdt.ReadCtx[V]{AddClock: clock, RmClock: crdt.NewVClock(), Val: zero.Zero()}, nil
	}
	return crdt.ReadCtx[V]{AddClock: clock, RmClock: e.Clock.Clone(), Val: e.Val}, nil
}

// Update reads the current value under key (or its zero value if absent),
// invokes f with that value and ctx to obtain an inner op, and returns the
// MapOp wrapping it. It does not apply the op; pkg/db logs it first.
func (m *Map[V]) Update(key crdt.Key, ctx crdt.AddCtx, f func(val V, ctx crdt.AddCtx) crdt.Op) (*crdt.MapOp, error) {
	e, ok, err := m.getEntry(key)
	if err != nil {
		return nil, err
	}
	var cur V
	if ok {
		cur = e.Val
	} else {
		var zero V
		cur = zero.Zero()
	}
	inner := f(cur, ctx)
	return &crdt.MapOp{Type: crdt.MapOpUp, Dot: ctx.Dot, Key: key, Inner: inner}, nil
}

// Rm returns the op for reset-removing the entry under key using ctx's
// clock.
func (m *Map[V]) Rm(key crdt.Key, ctx crdt.RmCtx) *crdt.MapOp {
	return &crdt.MapOp{Type: crdt.MapOpRm, Clock: ctx.Clock, Key: key}
}

// Apply dispatches on op's type, flushing the store after every mutating
// apply so an applied op is never lost to a crash.
func (m *Map[V]) Apply(op *crdt.MapOp) error {
	switch op.Type {
	case crdt.MapOpNop:
		return nil
	case crdt.MapOpUp:
		if err := m.applyUp(op); err != nil {
			return err
		}
	case crdt.MapOpRm:
		if err := m.applyRm(op.Key, op.Clock); err != nil {
			return err
		}
	default:
		return nil
	}
	return m.store.Flush()
}

func (m *Map[V]) applyUp(op *crdt.MapOp) error {
	clock, err := m.getClock()
	if err != nil {
		return err
	}
	if clock.Dominates(op.Dot) {
		return nil
	}
	e, ok, err := m.getEntry(op.Key)
	if err != nil {
		return err
	}
	if !ok {
		var zero V
		e = &crdt.Entry[V]{Clock: crdt.NewVClock(), Val: zero.Zero()}
	}
	e.Clock = e.Clock.ApplyDot(op.Dot)
	if err := e.Val.Apply(op.Inner); err != nil {
		return err
	}
	if err := m.putEntry(op.Key, e); err != nil {
		return err
	}
	clock = clock.ApplyDot(op.Dot)
	if err := m.putClock(clock); err != nil {
		return err
	}
	return m.applyDeferred()
}

func (m *Map[V]) applyRm(key crdt.Key, rmClock crdt.VClock) error {
	clock, err := m.getClock()
	if err != nil {
		return err
	}
	if !rmClock.LessEq(clock) {
		if err := m.deferRemove(key, rmClock); err != nil {
			return err
		}
	}
	e, ok, err := m.getEntry(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e.Clock = e.Clock.Subtract(rmClock)
	if e.Clock.IsEmpty() {
		return m.deleteEntry(key)
	}
	e.Val.ResetRemove(rmClock)
	return m.putEntry(key, e)
}

func (m *Map[V]) applyDeferred() error {
	recs, err := m.getDeferred()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	// Clearing the table before replaying it means a crash between this
	// write and the loop below loses the pending removes rather than
	// leaving them for next startup.
	if err := m.putDeferred(nil); err != nil {
		return err
	}
	for _, rec := range recs {
		for _, key := range rec.Keys {
			if err := m.applyRm(key, rec.Clock); err != nil {
				return err
			}
		}
	}
	return nil
}

// IterEntry is one (key, value) pair yielded by Iter.
type IterEntry[V any] struct {
	Key crdt.Key
	Ctx crdt.ReadCtx[V]
}

// Iter range-scans the user-key region and yields every live entry together
// with its read context.
func (m *Map[V]) Iter() ([]IterEntry[V], error) {
	clock, err := m.getClock()
	if err != nil {
		return nil, err
	}
	var out []IterEntry[V]
	err = m.store.Range([]byte{keyPrefix}, func(k, v []byte) error {
		var key crdt.Key
		if err := json.Unmarshal(k[1:], &key); err != nil {
			return fmt.Errorf("pmap: decode key: %w", err)
		}
		var e crdt.Entry[V]
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("pmap: decode entry: %w", err)
		}
		out = append(out, IterEntry[V]{
			Key: key,
			Ctx: crdt.ReadCtx[V]{AddClock: clock, RmClock: e.Clock.Clone(), Val: e.Val},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Map[V]) getClock() (crdt.VClock, error) {
	b, err := m.store.Get(m.metaKeyBytes("clock"))
	if errors.Is(err, store.ErrNotFound) {
		return crdt.NewVClock(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("pmap: read clock: %w", err)
	}
	var c crdt.VClock
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("pmap: decode clock: %w", err)
	}
	if c == nil {
		c = crdt.NewVClock()
	}
	return c, nil
}

func (m *Map[V]) putClock(c crdt.VClock) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("pmap: encode clock: %w", err)
	}
	if err := m.store.Put(m.metaKeyBytes("clock"), b); err != nil {
		return fmt.Errorf("pmap: write clock: %w", err)
	}
	return nil
}

// deferredRecord is one row of the deferred-remove table: a remove's clock
// paired with every key it targets, for removes that arrived before the
// updates they causally depend on.
type deferredRecord struct {
	Clock crdt.VClock `json:"clock"`
	Keys  []crdt.Key  `json:"keys"`
}

func (m *Map[V]) getDeferred() ([]deferredRecord, error) {
	b, err := m.store.Get(m.metaKeyBytes("deferred"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pmap: read deferred: %w", err)
	}
	var recs []deferredRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("pmap: decode deferred: %w", err)
	}
	return recs, nil
}

func (m *Map[V]) putDeferred(recs []deferredRecord) error {
	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("pmap: encode deferred: %w", err)
	}
	if err := m.store.Put(m.metaKeyBytes("deferred"), b); err != nil {
		return fmt.Errorf("pmap: write deferred: %w", err)
	}
	return nil
}

func (m *Map[V]) deferRemove(key crdt.Key, rmClock crdt.VClock) error {
	recs, err := m.getDeferred()
	if err != nil {
		return err
	}
	for i := range recs {
		if recs[i].Clock.Equal(rmClock) {
			for _, k := range recs[i].Keys {
				if k == key {
					return nil
				}
			}
			recs[i].Keys = append(recs[i].Keys, key)
			return m.putDeferred(recs)
		}
	}
	recs = append(recs, deferredRecord{Clock: rmClock.Clone(), Keys: []crdt.Key{key}})
	return m.putDeferred(recs)
}

func (m *Map[V]) getEntry(key crdt.Key) (*crdt.Entry[V], bool, error) {
	kb, err := m.keyBytes(key)
	if err != nil {
		return nil, false, err
	}
	b, err := m.store.Get(kb)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pmap: read entry: %w", err)
	}
	var e crdt.Entry[V]
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, fmt.Errorf("pmap: decode entry: %w", err)
	}
	return &e, true, nil
}

func (m *Map[V]) putEntry(key crdt.Key, e *crdt.Entry[V]) error {
	kb, err := m.keyBytes(key)
	if err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("pmap: encode entry: %w", err)
	}
	if err := m.store.Put(kb, b); err != nil {
		return fmt.Errorf("pmap: write entry: %w", err)
	}
	return nil
}

func (m *Map[V]) deleteEntry(key crdt.Key) error {
	kb, err := m.keyBytes(key)
	if err != nil {
		return err
	}
	if err := m.store.Delete(kb); err != nil {
		return fmt.Errorf("pmap: delete entry: %w", err)
	}
	return nil
}
