package data

import (
	"encoding/json"
	"testing"

	"github.com/cuemby/burrow/pkg/crdt"
)

func addCtx(clock crdt.VClock, actor crdt.Actor) crdt.AddCtx {
	return crdt.AddCtx{Clock: clock, Dot: clock.Increment(actor)}
}

func TestData_NilTakesShapeFromFirstOp(t *testing.T) {
	actor := crdt.NewActor()
	d := NilData()
	if d.Kind() != crdt.KindNil {
		t.Fatalf("fresh Data should be Nil, got %s", d.Kind())
	}

	reg := crdt.NewMVReg[crdt.Prim]()
	regOp := reg.Write(crdt.PrimInt(7), addCtx(crdt.NewVClock(), actor))

	if err := d.Apply(RegOp(regOp)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d.Kind() != crdt.KindReg {
		t.Fatalf("Data should have taken Reg shape, got %s", d.Kind())
	}

	r, err := d.Reg()
	if err != nil {
		t.Fatalf("Reg(): %v", err)
	}
	got := r.Read().Val
	if len(got) != 1 {
		t.Fatalf("expected one value, got %d", len(got))
	}
	if v, _ := got[0].Int(); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
}

func TestData_KindMismatchOnWrongAccessor(t *testing.T) {
	d := RegData(crdt.NewMVReg[crdt.Prim]())

	if _, err := d.Set(); err == nil {
		t.Fatal("expected kind mismatch error")
	} else if _, ok := err.(*crdt.ErrKindMismatch); !ok {
		t.Fatalf("expected *crdt.ErrKindMismatch, got %T", err)
	}

	if _, err := d.Map(); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestData_ApplyKindMismatch(t *testing.T) {
	actor := crdt.NewActor()
	d := RegData(crdt.NewMVReg[crdt.Prim]())

	set := crdt.NewORSet[crdt.Prim]()
	setOp := set.Add(crdt.PrimStr("x"), addCtx(crdt.NewVClock(), actor))

	err := d.Apply(SetOp(setOp))
	if err == nil {
		t.Fatal("expected kind mismatch error applying Set op to Reg Data")
	}
}

func TestData_MergeConcurrentWrites(t *testing.T) {
	a1, a2 := crdt.NewActor(), crdt.NewActor()

	da := NilData()
	reg := crdt.NewMVReg[crdt.Prim]()
	op1 := reg.Write(crdt.PrimStr("left"), addCtx(crdt.NewVClock(), a1))
	if err := da.Apply(RegOp(op1)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	db := NilData()
	reg2 := crdt.NewMVReg[crdt.Prim]()
	op2 := reg2.Write(crdt.PrimStr("right"), addCtx(crdt.NewVClock(), a2))
	if err := db.Apply(RegOp(op2)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := da.Merge(db); err != nil {
		t.Fatalf("merge: %v", err)
	}
	r, err := da.Reg()
	if err != nil {
		t.Fatalf("Reg(): %v", err)
	}
	vals := r.Read().Val
	if len(vals) != 2 {
		t.Fatalf("expected 2 concurrent values after merge, got %d", len(vals))
	}
}

func TestData_NestedMap(t *testing.T) {
	actor := crdt.NewActor()
	root := NilData()
	m, err := root.Map()
	if err != nil {
		t.Fatalf("Map(): %v", err)
	}

	key := crdt.Key{Name: "name", Kind: crdt.KindReg}
	ctx := addCtx(m.Clock(), actor)
	mapOp := m.Update(key, ctx, func(val *Data, ctx crdt.AddCtx) crdt.Op {
		reg, err := val.Reg()
		if err != nil {
			t.Fatalf("nested Reg(): %v", err)
		}
		return RegOp(reg.Write(crdt.PrimStr("burrow"), ctx))
	})

	if err := root.Apply(MapOp(mapOp)); err != nil {
		t.Fatalf("apply map op: %v", err)
	}

	inner := m.Get(key).Val
	if inner.Kind() != crdt.KindReg {
		t.Fatalf("expected nested Reg, got %s", inner.Kind())
	}
	r, _ := inner.Reg()
	vals := r.Read().Val
	if len(vals) != 1 {
		t.Fatalf("expected one nested value, got %d", len(vals))
	}
	if s, _ := vals[0].Str(); s != "burrow" {
		t.Fatalf("expected %q, got %q", "burrow", s)
	}
}

func TestData_ResetRemove(t *testing.T) {
	actor := crdt.NewActor()
	d := NilData()
	reg := crdt.NewMVReg[crdt.Prim]()
	op := reg.Write(crdt.PrimInt(1), addCtx(crdt.NewVClock(), actor))
	if err := d.Apply(RegOp(op)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	r, _ := d.Reg()
	clock := r.Read().RmClock

	d.ResetRemove(clock)
	if !r.IsEmpty() {
		t.Fatal("expected register to be empty after reset-remove of its own clock")
	}
}

func TestData_JSONRoundTrip(t *testing.T) {
	actor := crdt.NewActor()

	t.Run("reg", func(t *testing.T) {
		d := NilData()
		reg := crdt.NewMVReg[crdt.Prim]()
		op := reg.Write(crdt.PrimFloat(3.5), addCtx(crdt.NewVClock(), actor))
		if err := d.Apply(RegOp(op)); err != nil {
			t.Fatalf("apply: %v", err)
		}

		b, err := json.Marshal(d)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out Data
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.Kind() != crdt.KindReg {
			t.Fatalf("expected Reg kind, got %s", out.Kind())
		}
		r, _ := out.Reg()
		vals := r.Read().Val
		if len(vals) != 1 {
			t.Fatalf("expected one value, got %d", len(vals))
		}
		if f, _ := vals[0].Float(); f != 3.5 {
			t.Fatalf("expected 3.5, got %v", f)
		}
	})

	t.Run("set", func(t *testing.T) {
		d := NilData()
		set := crdt.NewORSet[crdt.Prim]()
		op := set.Add(crdt.PrimInt(42), addCtx(crdt.NewVClock(), actor))
		if err := d.Apply(SetOp(op)); err != nil {
			t.Fatalf("apply: %v", err)
		}

		b, err := json.Marshal(d)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out Data
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		s, err := out.Set()
		if err != nil {
			t.Fatalf("Set(): %v", err)
		}
		if !s.Contains(crdt.PrimInt(42)) {
			t.Fatal("expected round-tripped set to still contain 42")
		}
	})

	t.Run("nil", func(t *testing.T) {
		d := NilData()
		b, err := json.Marshal(d)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out Data
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.Kind() != crdt.KindNil {
			t.Fatalf("expected Nil kind, got %s", out.Kind())
		}
	})
}
