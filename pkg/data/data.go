package data

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/burrow/pkg/crdt"
)

// Data is the sum type every Map entry in burrow actually stores: a
// multi-value register of primitives, an observed-remove set of primitives,
// or a recursively nested Map of more Data. It satisfies crdt.Value[*Data],
// so it serves both as the value of a nested crdt.Map[*Data] and as the
// value type of the persistent pmap.Map[*data.Data] that pkg/db binds.
type Data struct {
	kind crdt.Kind
	reg  *crdt.MVReg[crdt.Prim]
	set  *crdt.ORSet[crdt.Prim]
	m    *crdt.Map[*Data]
}

// NilData returns the Nil Data, the value every unset Map entry reads as.
func NilData() *Data { return &Data{kind: crdt.KindNil} }

// RegData wraps an existing register as a Reg-kind Data.
func RegData(r *crdt.MVReg[crdt.Prim]) *Data { return &Data{kind: crdt.KindReg, reg: r} }

// SetData wraps an existing set as a Set-kind Data.
func SetData(s *crdt.ORSet[crdt.Prim]) *Data { return &Data{kind: crdt.KindSet, set: s} }

// MapData wraps an existing map as a Map-kind Data.
func MapData(m *crdt.Map[*Data]) *Data { return &Data{kind: crdt.KindMap, m: m} }

// Kind reports which variant is live; Nil until the first op or merge gives
// this Data its shape.
func (d *Data) Kind() crdt.Kind { return d.kind }

// Reg returns the live register, materializing an empty one in place if d is
// still Nil, or *crdt.ErrKindMismatch if d already holds a different kind.
// Nil is "not yet decided" rather than a kind of its own.
func (d *Data) Reg() (*crdt.MVReg[crdt.Prim], error) {
	if d.kind == crdt.KindNil {
		d.kind, d.reg = crdt.KindReg, crdt.NewMVReg[crdt.Prim]()
	}
	if d.kind != crdt.KindReg {
		return nil, &crdt.ErrKindMismatch{Want: crdt.KindReg, Got: d.kind}
	}
	return d.reg, nil
}

// Set returns the live set, materializing an empty one in place if d is
// still Nil, or *crdt.ErrKindMismatch if d already holds a different kind.
func (d *Data) Set() (*crdt.ORSet[crdt.Prim], error) {
	if d.kind == crdt.KindNil {
		d.kind, d.set = crdt.KindSet, crdt.NewORSet[crdt.Prim]()
	}
	if d.kind != crdt.KindSet {
		return nil, &crdt.ErrKindMismatch{Want: crdt.KindSet, Got: d.kind}
	}
	return d.set, nil
}

// Map returns the live nested map, materializing an empty one in place if d
// is still Nil, or *crdt.ErrKindMismatch if d already holds a different kind.
func (d *Data) Map() (*crdt.Map[*Data], error) {
	if d.kind == crdt.KindNil {
		d.kind, d.m = crdt.KindMap, crdt.NewMap[*Data]()
	}
	if d.kind != crdt.KindMap {
		return nil, &crdt.ErrKindMismatch{Want: crdt.KindMap, Got: d.kind}
	}
	return d.m, nil
}

// Op is the operation type Data.Apply consumes. It mirrors Data's own shape:
// Kind tags which of the three inner op fields is live, so the wire
// encoding carries enough information to route itself back to the right
// inner Apply without any context from the caller.
type Op struct {
	Kind crdt.Kind        `json:"kind"`
	Reg  *crdt.RegOp[crdt.Prim] `json:"reg,omitempty"`
	Set  *crdt.SetOp[crdt.Prim] `json:"set,omitempty"`
	Map  *crdt.MapOp            `json:"map,omitempty"`
}

// RegOp builds the Op wrapping a register write.
func RegOp(op *crdt.RegOp[crdt.Prim]) *Op { return &Op{Kind: crdt.KindReg, Reg: op} }

// SetOp builds the Op wrapping a set add/remove.
func SetOp(op *crdt.SetOp[crdt.Prim]) *Op { return &Op{Kind: crdt.KindSet, Set: op} }

// MapOp builds the Op wrapping a nested map op.
func MapOp(op *crdt.MapOp) *Op { return &Op{Kind: crdt.KindMap, Map: op} }

// Apply implements crdt.Value[*Data]. If d is still Nil it takes op's shape
// before applying, exactly as the first write to a fresh Map entry does.
func (d *Data) Apply(op crdt.Op) error {
	o, ok := op.(*Op)
	if !ok {
		// Ops pulled off the log arrive with their inner payload still
		// opaque (crdt.MapOp decodes Inner as a json.RawMessage, since only
		// the value it targets knows the concrete op type).
		raw, isRaw := op.(json.RawMessage)
		if !isRaw {
			return fmt.Errorf("data: unexpected op type %T", op)
		}
		o = &Op{}
		if err := json.Unmarshal(raw, o); err != nil {
			return fmt.Errorf("data: decode op: %w", err)
		}
	}
	if d.kind == crdt.KindNil {
		switch o.Kind {
		case crdt.KindReg:
			d.kind, d.reg = crdt.KindReg, crdt.NewMVReg[crdt.Prim]()
		case crdt.KindSet:
			d.kind, d.set = crdt.KindSet, crdt.NewORSet[crdt.Prim]()
		case crdt.KindMap:
			d.kind, d.m = crdt.KindMap, crdt.NewMap[*Data]()
		}
	}
	if d.kind != o.Kind {
		return &crdt.ErrKindMismatch{Want: d.kind, Got: o.Kind}
	}
	switch o.Kind {
	case crdt.KindReg:
		return d.reg.Apply(o.Reg)
	case crdt.KindSet:
		return d.set.Apply(o.Set)
	case crdt.KindMap:
		return d.m.Apply(o.Map)
	default:
		return nil
	}
}

// Merge implements crdt.Value[*Data]. A Nil receiver simply adopts other's
// state; a Nil other is a no-op; otherwise both sides must agree on kind.
// Like crdt.Map.Merge, this consumes other: inner state may be adopted by
// reference, so other must not be used afterwards.
func (d *Data) Merge(other *Data) error {
	if other == nil || other.kind == crdt.KindNil {
		return nil
	}
	if d.kind == crdt.KindNil {
		d.kind, d.reg, d.set, d.m = other.kind, other.reg, other.set, other.m
		return nil
	}
	if d.kind != other.kind {
		return &crdt.ErrKindMismatch{Want: d.kind, Got: other.kind}
	}
	switch d.kind {
	case crdt.KindReg:
		return d.reg.Merge(other.reg)
	case crdt.KindSet:
		return d.set.Merge(other.set)
	case crdt.KindMap:
		return d.m.Merge(other.m)
	default:
		return nil
	}
}

// ResetRemove implements crdt.Value[*Data], recursing into whichever inner
// CRDT is live. Nil Data has nothing to truncate.
func (d *Data) ResetRemove(clock crdt.VClock) {
	switch d.kind {
	case crdt.KindReg:
		d.reg.ResetRemove(clock)
	case crdt.KindSet:
		d.set.ResetRemove(clock)
	case crdt.KindMap:
		d.m.ResetRemove(clock)
	}
}

// Zero implements crdt.Value[*Data]: a fresh Nil Data, used by Map.Update
// and Map.applyUp when a key has no entry yet. It is safe to call on a nil
// *Data receiver since the method never dereferences d.
func (d *Data) Zero() *Data { return NilData() }

// jsonData is Data's wire representation: a kind discriminant plus whichever
// inner value is live.
type jsonData struct {
	Kind crdt.Kind             `json:"kind"`
	Reg  *crdt.MVReg[crdt.Prim] `json:"reg,omitempty"`
	Set  *crdt.ORSet[crdt.Prim] `json:"set,omitempty"`
	Map  *crdt.Map[*Data]       `json:"map,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d *Data) MarshalJSON() ([]byte, error) {
	j := jsonData{Kind: d.kind}
	switch d.kind {
	case crdt.KindReg:
		j.Reg = d.reg
	case crdt.KindSet:
		j.Set = d.set
	case crdt.KindMap:
		j.Map = d.m
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Data) UnmarshalJSON(b []byte) error {
	var j jsonData
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	d.kind = j.Kind
	switch j.Kind {
	case crdt.KindNil:
	case crdt.KindReg:
		if j.Reg == nil {
			j.Reg = crdt.NewMVReg[crdt.Prim]()
		}
		d.reg = j.Reg
	case crdt.KindSet:
		if j.Set == nil {
			j.Set = crdt.NewORSet[crdt.Prim]()
		}
		d.set = j.Set
	case crdt.KindMap:
		if j.Map == nil {
			j.Map = crdt.NewMap[*Data]()
		}
		d.m = j.Map
	default:
		return fmt.Errorf("data: unknown kind %d", j.Kind)
	}
	return nil
}
