package crdt

import "testing"

// testVal is a minimal Value[*testVal] used only to exercise Map's
// mechanics independent of pkg/data, which depends on this package and so
// cannot be imported here.
type testVal struct {
	Reg *MVReg[int] `json:"reg"`
}

func newTestVal() *testVal { return &testVal{Reg: NewMVReg[int]()} }

func (v *testVal) Apply(op Op) error {
	o, ok := op.(*RegOp[int])
	if !ok {
		return &ErrKindMismatch{}
	}
	return v.Reg.Apply(o)
}

func (v *testVal) Merge(other *testVal) error { return v.Reg.Merge(other.Reg) }
func (v *testVal) ResetRemove(clock VClock)   { v.Reg.ResetRemove(clock) }
func (v *testVal) Zero() *testVal             { return newTestVal() }

func TestMap_UpdateThenGet(t *testing.T) {
	actor := NewActor()
	m := NewMap[*testVal]()
	key := Key{Name: "k", Kind: KindReg}

	ctx := AddCtx{Clock: m.Clock(), Dot: m.Dot(actor)}
	op := m.Update(key, ctx, func(val *testVal, ctx AddCtx) Op {
		return val.Reg.Write(1, ctx)
	})
	if err := m.Apply(op); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := m.Get(key).Val
	if got == nil {
		t.Fatal("expected entry to be present")
	}
	vals := got.Reg.Read().Val
	if len(vals) != 1 || vals[0] != 1 {
		t.Fatalf("expected [1], got %v", vals)
	}
}

func TestMap_Rm(t *testing.T) {
	actor := NewActor()
	m := NewMap[*testVal]()
	key := Key{Name: "k", Kind: KindReg}

	ctx := AddCtx{Clock: m.Clock(), Dot: m.Dot(actor)}
	op := m.Update(key, ctx, func(val *testVal, ctx AddCtx) Op {
		return val.Reg.Write(1, ctx)
	})
	if err := m.Apply(op); err != nil {
		t.Fatalf("apply update: %v", err)
	}

	read := m.Get(key)
	rmOp := m.Rm(key, read.RmCtx())
	if err := m.Apply(rmOp); err != nil {
		t.Fatalf("apply rm: %v", err)
	}
	if m.Get(key).Val != nil {
		t.Fatal("expected entry to be gone after remove")
	}
}

func TestMap_RemoveDeferredUntilCausallyReady(t *testing.T) {
	actor := NewActor()
	m := NewMap[*testVal]()
	key := Key{Name: "k", Kind: KindReg}

	ctx := AddCtx{Clock: m.Clock(), Dot: m.Dot(actor)}
	updateOp := m.Update(key, ctx, func(val *testVal, ctx AddCtx) Op {
		return val.Reg.Write(5, ctx)
	})

	// A remove arrives (e.g. out of order over the network) whose clock
	// already covers the update's dot, before the update itself is applied.
	rmClock := NewVClock().ApplyDot(updateOp.Dot)
	rmOp := m.Rm(key, RmCtx{Clock: rmClock})

	if err := m.Apply(rmOp); err != nil {
		t.Fatalf("apply premature rm: %v", err)
	}
	if len(m.deferred) != 1 {
		t.Fatalf("expected the remove to be deferred, got %d deferred entries", len(m.deferred))
	}

	if err := m.Apply(updateOp); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if m.Get(key).Val != nil {
		t.Fatal("expected the deferred remove to retroactively remove the entry")
	}
	if len(m.deferred) != 0 {
		t.Fatalf("expected deferred table to drain, got %d entries left", len(m.deferred))
	}
}

func TestMap_MergeKeepsConcurrentUpdates(t *testing.T) {
	a1, a2 := NewActor(), NewActor()
	key := Key{Name: "k", Kind: KindReg}

	m1 := NewMap[*testVal]()
	op1 := m1.Update(key, AddCtx{Clock: m1.Clock(), Dot: m1.Dot(a1)}, func(val *testVal, ctx AddCtx) Op {
		return val.Reg.Write(1, ctx)
	})
	if err := m1.Apply(op1); err != nil {
		t.Fatalf("apply m1: %v", err)
	}

	m2 := NewMap[*testVal]()
	op2 := m2.Update(key, AddCtx{Clock: m2.Clock(), Dot: m2.Dot(a2)}, func(val *testVal, ctx AddCtx) Op {
		return val.Reg.Write(2, ctx)
	})
	if err := m2.Apply(op2); err != nil {
		t.Fatalf("apply m2: %v", err)
	}

	if err := m1.Merge(m2); err != nil {
		t.Fatalf("merge: %v", err)
	}
	vals := m1.Get(key).Val.Reg.Read().Val
	if len(vals) != 2 {
		t.Fatalf("expected both concurrent writes to survive merge, got %v", vals)
	}
}

func TestMap_JSONRoundTrip(t *testing.T) {
	actor := NewActor()
	m := NewMap[*testVal]()
	key := Key{Name: "k", Kind: KindReg}
	op := m.Update(key, AddCtx{Clock: m.Clock(), Dot: m.Dot(actor)}, func(val *testVal, ctx AddCtx) Op {
		return val.Reg.Write(9, ctx)
	})
	if err := m.Apply(op); err != nil {
		t.Fatalf("apply: %v", err)
	}

	b, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := NewMap[*testVal]()
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	vals := out.Get(key).Val.Reg.Read().Val
	if len(vals) != 1 || vals[0] != 9 {
		t.Fatalf("expected [9] after round trip, got %v", vals)
	}
}
