package crdt

import "encoding/json"

// Key is a Map's composite key: a caller-chosen name paired with the Kind
// of value stored under it, so the same name can simultaneously address a
// register, a set, and a nested map without collision.
type Key struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Op is implemented, trivially, by every concrete operation type in this
// system: RegOp, SetOp, MapOp, and whatever higher-level Op a caller builds
// on top of them. It carries no methods; the receiving CRDT recovers the
// concrete type via a type assertion, mirroring the role an enum
// discriminant would play in a language with native sum types.
type Op interface{}

// Value is satisfied by anything a Map can store as an entry: something
// that applies its own op type, merges with another instance of itself for
// CvRDT-style reconciliation, truncates state dominated by a clock, and can
// produce a fresh zero value of itself (used when Update touches a key that
// has no entry yet).
type Value[V any] interface {
	Apply(op Op) error
	Merge(other V) error
	ResetRemove(clock VClock)
	Zero() V
}

// Entry is what a Map stores under each live Key: the set of dots that have
// touched this entry, and the nested value itself.
type Entry[V any] struct {
	Clock VClock
	Val   V
}

// MapOpType discriminates Map's three operations.
type MapOpType int

const (
	MapOpNop MapOpType = iota
	MapOpRm
	MapOpUp
)

// MapOp is the operation type Map.Apply consumes: Nop does nothing, Rm
// reset-removes the entry under Key using Clock, and Up applies Inner to
// the entry under Key, witnessing Dot both on the entry and on the map's
// top-level clock.
type MapOp struct {
	Type  MapOpType `json:"type"`
	Clock VClock    `json:"clock,omitempty"`
	Key   Key       `json:"key,omitempty"`
	Dot   Dot       `json:"dot,omitempty"`
	Inner Op        `json:"inner,omitempty"`
}

// NopOp returns the operation that does nothing.
func NopOp() *MapOp { return &MapOp{Type: MapOpNop} }

// mapOpJSON is MapOp's wire shape. Inner stays opaque on decode: this
// package cannot know the concrete op type nested under an Up (that is the
// value's business, e.g. pkg/data's Op), so it is surfaced as a
// json.RawMessage and decoded by whichever Value.Apply receives it.
type mapOpJSON struct {
	Type  MapOpType       `json:"type"`
	Clock VClock          `json:"clock,omitempty"`
	Key   Key             `json:"key,omitempty"`
	Dot   Dot             `json:"dot,omitempty"`
	Inner json.RawMessage `json:"inner,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *MapOp) UnmarshalJSON(b []byte) error {
	var j mapOpJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	o.Type, o.Clock, o.Key, o.Dot = j.Type, j.Clock, j.Key, j.Dot
	if len(j.Inner) > 0 {
		o.Inner = j.Inner
	} else {
		o.Inner = nil
	}
	return nil
}

type deferredRemove struct {
	clock VClock
	keys  map[Key]struct{}
}

// Map is the central recursive CRDT: a Key -> Entry[V] store
// with a top-level VClock equal to the join of every dot ever applied, and
// a deferred-remove buffer for removes that arrive before the updates they
// causally depend on.
type Map[V Value[V]] struct {
	clock    VClock
	entries  map[Key]*Entry[V]
	deferred map[string]*deferredRemove
}

// NewMap returns an empty Map.
func NewMap[V Value[V]]() *Map[V] {
	return &Map[V]{
		clock:    NewVClock(),
		entries:  map[Key]*Entry[V]{},
		deferred: map[string]*deferredRemove{},
	}
}

// Clock returns the map's top-level version, the join of every dot ever
// applied to it.
func (m *Map[V]) Clock() VClock {
	return m.clock.Clone()
}

// Dot allocates the Dot for the next event actor would produce against this
// map's current clock, without mutating it.
func (m *Map[V]) Dot(actor Actor) Dot {
	return m.clock.Increment(actor)
}

// Get reads the value under key, if present, together with the add/rm
// contexts needed to build a subsequent Update or Rm against it.
func (m *Map[V]) Get(key Key) ReadCtx[V] {
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return ReadCtx[V]{AddClock: m.clock.Clone(), RmClock: NewVClock(), Val: zero}
	}
	return ReadCtx[V]{AddClock: m.clock.Clone(), RmClock: e.Clock.Clone(), Val: e.Val}
}

// Update reads the current value under key (or its zero value if absent),
// invokes f with that value and ctx to obtain an inner op, and returns the
// MapOp wrapping it. It does not apply the op; callers typically log it
// first (see pkg/db).
func (m *Map[V]) Update(key Key, ctx AddCtx, f func(val V, ctx AddCtx) Op) *MapOp {
	e, ok := m.entries[key]
	var cur V
	if ok {
		cur = e.Val
	} else {
		var zero V
		cur = zero.Zero()
	}
	inner := f(cur, ctx)
	return &MapOp{Type: MapOpUp, Dot: ctx.Dot, Key: key, Inner: inner}
}

// Rm returns the op for reset-removing the entry under key using ctx's
// clock.
func (m *Map[V]) Rm(key Key, ctx RmCtx) *MapOp {
	return &MapOp{Type: MapOpRm, Clock: ctx.Clock, Key: key}
}

// Apply dispatches on op's type.
func (m *Map[V]) Apply(op *MapOp) error {
	switch op.Type {
	case MapOpNop:
		return nil
	case MapOpUp:
		return m.applyUp(op)
	case MapOpRm:
		return m.applyRm(op.Key, op.Clock)
	default:
		return nil
	}
}

func (m *Map[V]) applyUp(op *MapOp) error {
	if m.clock.Dominates(op.Dot) {
		return nil
	}
	e, ok := m.entries[op.Key]
	if !ok {
		var zero V
		e = &Entry[V]{Clock: NewVClock(), Val: zero.Zero()}
		m.entries[op.Key] = e
	}
	e.Clock = e.Clock.ApplyDot(op.Dot)
	if err := e.Val.Apply(op.Inner); err != nil {
		return err
	}
	m.clock = m.clock.ApplyDot(op.Dot)
	return m.applyDeferred()
}

func (m *Map[V]) applyRm(key Key, rmClock VClock) error {
	if !rmClock.LessEq(m.clock) {
		k := rmClock.Key()
		d, ok := m.deferred[k]
		if !ok {
			d = &deferredRemove{clock: rmClock.Clone(), keys: map[Key]struct{}{}}
			m.deferred[k] = d
		}
		d.keys[key] = struct{}{}
	}

	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	e.Clock = e.Clock.Subtract(rmClock)
	if e.Clock.IsEmpty() {
		delete(m.entries, key)
		return nil
	}
	e.Val.ResetRemove(rmClock)
	return nil
}

func (m *Map[V]) applyDeferred() error {
	pending := m.deferred
	m.deferred = map[string]*deferredRemove{}
	for _, d := range pending {
		for key := range d.keys {
			if err := m.applyRm(key, d.clock); err != nil {
				return err
			}
		}
	}
	return nil
}

// Merge performs the CvRDT join: pointwise-merge the top clocks, and for
// each key, keep/merge entries by a three-way rule (present
// only on one side and not dominated there; present on both, merged; absent
// from both, absent). Merge consumes other: entries may be adopted by
// reference, so other must not be used afterwards.
func (m *Map[V]) Merge(other *Map[V]) error {
	keys := map[Key]struct{}{}
	for k := range m.entries {
		keys[k] = struct{}{}
	}
	for k := range other.entries {
		keys[k] = struct{}{}
	}
	merged := map[Key]*Entry[V]{}
	for k := range keys {
		a, aok := m.entries[k]
		b, bok := other.entries[k]
		switch {
		case aok && bok:
			if err := a.Val.Merge(b.Val); err != nil {
				return err
			}
			merged[k] = &Entry[V]{Clock: a.Clock.Merge(b.Clock), Val: a.Val}
		case aok && !bok:
			if !a.Clock.LessEq(other.clock) {
				merged[k] = a
			}
		case bok && !aok:
			if !b.Clock.LessEq(m.clock) {
				merged[k] = b
			}
		}
	}
	m.entries = merged
	m.clock = m.clock.Merge(other.clock)
	return nil
}

// ResetRemove recursively truncates every nested value and entry clock by
// clock, used when this Map is itself the value nested under another Map's
// entry that is being reset-removed rather than fully deleted.
func (m *Map[V]) ResetRemove(clock VClock) {
	for k, e := range m.entries {
		e.Clock = e.Clock.Subtract(clock)
		if e.Clock.IsEmpty() {
			delete(m.entries, k)
			continue
		}
		e.Val.ResetRemove(clock)
	}
}

// Zero returns a fresh empty Map, satisfying Value[*Map[V]] for maps nested
// inside maps.
func (m *Map[V]) Zero() *Map[V] {
	return NewMap[V]()
}

// IterEntry is one (key, value) pair yielded by Iter.
type IterEntry[V any] struct {
	Key Key
	Ctx ReadCtx[V]
}

// Iter returns every live entry in the map together with its read context.
func (m *Map[V]) Iter() []IterEntry[V] {
	out := make([]IterEntry[V], 0, len(m.entries))
	for k, e := range m.entries {
		out = append(out, IterEntry[V]{
			Key: k,
			Ctx: ReadCtx[V]{AddClock: m.clock.Clone(), RmClock: e.Clock.Clone(), Val: e.Val},
		})
	}
	return out
}

// mapEntryJSON and deferredJSON are Map's wire representation: Go cannot
// marshal a map keyed by the Key struct or keyed by a non-comparable VClock
// directly, so both the entry table and the deferred-remove table travel as
// slices.
type mapEntryJSON[V any] struct {
	Key   Key    `json:"key"`
	Clock VClock `json:"clock"`
	Val   V      `json:"val"`
}

type deferredJSON struct {
	Clock VClock `json:"clock"`
	Keys  []Key  `json:"keys"`
}

type mapJSON[V any] struct {
	Clock    VClock           `json:"clock"`
	Entries  []mapEntryJSON[V] `json:"entries"`
	Deferred []deferredJSON    `json:"deferred"`
}

// MarshalJSON implements json.Marshaler.
func (m *Map[V]) MarshalJSON() ([]byte, error) {
	j := mapJSON[V]{Clock: m.clock}
	for k, e := range m.entries {
		j.Entries = append(j.Entries, mapEntryJSON[V]{Key: k, Clock: e.Clock, Val: e.Val})
	}
	for _, d := range m.deferred {
		keys := make([]Key, 0, len(d.keys))
		for k := range d.keys {
			keys = append(keys, k)
		}
		j.Deferred = append(j.Deferred, deferredJSON{Clock: d.clock, Keys: keys})
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Map[V]) UnmarshalJSON(b []byte) error {
	var j mapJSON[V]
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	m.clock = j.Clock
	if m.clock == nil {
		m.clock = NewVClock()
	}
	m.entries = make(map[Key]*Entry[V], len(j.Entries))
	for _, e := range j.Entries {
		ent := e
		m.entries[e.Key] = &Entry[V]{Clock: ent.Clock, Val: ent.Val}
	}
	m.deferred = make(map[string]*deferredRemove, len(j.Deferred))
	for _, d := range j.Deferred {
		keys := make(map[Key]struct{}, len(d.Keys))
		for _, k := range d.Keys {
			keys[k] = struct{}{}
		}
		dd := &deferredRemove{clock: d.Clock, keys: keys}
		m.deferred[dd.clock.Key()] = dd
	}
	return nil
}
