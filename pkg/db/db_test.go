package db

import (
	"sort"
	"testing"

	"github.com/cuemby/burrow/pkg/crdt"
	"github.com/cuemby/burrow/pkg/crypto"
	"github.com/cuemby/burrow/pkg/data"
	"github.com/cuemby/burrow/pkg/enclog"
	"github.com/cuemby/burrow/pkg/oplog"
	"github.com/cuemby/burrow/pkg/store"
)

func newMemDB(t *testing.T) *DB {
	t.Helper()
	actor := crdt.NewActor()
	d, err := New(actor, oplog.NewMemoryLog[*crdt.MapOp](actor), store.NewMemStore())
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	return d
}

func writeReg(t *testing.T, d *DB, name, val string) {
	t.Helper()
	key := crdt.Key{Name: name, Kind: crdt.KindReg}
	rctx, err := d.Get(key)
	if err != nil {
		t.Fatalf("get %q: %v", name, err)
	}
	err = d.Update(key, rctx.AddCtx(d.Actor()), func(v *data.Data, ctx crdt.AddCtx) crdt.Op {
		reg, err := v.Reg()
		if err != nil {
			t.Fatalf("reg %q: %v", name, err)
		}
		return data.RegOp(reg.Write(crdt.PrimStr(val), ctx))
	})
	if err != nil {
		t.Fatalf("update %q: %v", name, err)
	}
}

func readReg(t *testing.T, d *DB, name string) []string {
	t.Helper()
	key := crdt.Key{Name: name, Kind: crdt.KindReg}
	rctx, err := d.Get(key)
	if err != nil {
		t.Fatalf("get %q: %v", name, err)
	}
	if rctx.Val.Kind() == crdt.KindNil {
		return nil
	}
	reg, err := rctx.Val.Reg()
	if err != nil {
		t.Fatalf("reg %q: %v", name, err)
	}
	var vals []string
	for _, p := range reg.Read().Val {
		s, err := p.Str()
		if err != nil {
			t.Fatalf("str: %v", err)
		}
		vals = append(vals, s)
	}
	sort.Strings(vals)
	return vals
}

func addSet(t *testing.T, d *DB, name string, member int64) {
	t.Helper()
	key := crdt.Key{Name: name, Kind: crdt.KindSet}
	rctx, err := d.Get(key)
	if err != nil {
		t.Fatalf("get %q: %v", name, err)
	}
	err = d.Update(key, rctx.AddCtx(d.Actor()), func(v *data.Data, ctx crdt.AddCtx) crdt.Op {
		set, err := v.Set()
		if err != nil {
			t.Fatalf("set %q: %v", name, err)
		}
		return data.SetOp(set.Add(crdt.PrimInt(member), ctx))
	})
	if err != nil {
		t.Fatalf("update %q: %v", name, err)
	}
}

func removeSet(t *testing.T, d *DB, name string, member int64) {
	t.Helper()
	key := crdt.Key{Name: name, Kind: crdt.KindSet}
	rctx, err := d.Get(key)
	if err != nil {
		t.Fatalf("get %q: %v", name, err)
	}
	rmCtx := crdt.RmCtx{Clock: rctx.RmClock}
	err = d.Update(key, rctx.AddCtx(d.Actor()), func(v *data.Data, ctx crdt.AddCtx) crdt.Op {
		set, err := v.Set()
		if err != nil {
			t.Fatalf("set %q: %v", name, err)
		}
		return data.SetOp(set.Remove(crdt.PrimInt(member), rmCtx))
	})
	if err != nil {
		t.Fatalf("update %q: %v", name, err)
	}
}

func readSet(t *testing.T, d *DB, name string) []int64 {
	t.Helper()
	key := crdt.Key{Name: name, Kind: crdt.KindSet}
	rctx, err := d.Get(key)
	if err != nil {
		t.Fatalf("get %q: %v", name, err)
	}
	if rctx.Val.Kind() == crdt.KindNil {
		return nil
	}
	set, err := rctx.Val.Set()
	if err != nil {
		t.Fatalf("set %q: %v", name, err)
	}
	var vals []int64
	for _, p := range set.Read().Val {
		n, err := p.Int()
		if err != nil {
			t.Fatalf("int: %v", err)
		}
		vals = append(vals, n)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	return vals
}

func TestDB_TwoReplicasConvergeOnDisjointWrites(t *testing.T) {
	a, b := newMemDB(t), newMemDB(t)
	remote := oplog.NewMemoryLog[*crdt.MapOp](crdt.NewActor())

	writeReg(t, a, "x", "hello")
	writeReg(t, b, "y", "world")

	for _, step := range []*DB{a, b, a} {
		if err := step.Sync(remote); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}

	for _, d := range []*DB{a, b} {
		if got := readReg(t, d, "x"); len(got) != 1 || got[0] != "hello" {
			t.Fatalf("x = %v, want [hello]", got)
		}
		if got := readReg(t, d, "y"); len(got) != 1 || got[0] != "world" {
			t.Fatalf("y = %v, want [world]", got)
		}
	}
}

func TestDB_ConcurrentRegisterWritesRetainBothValues(t *testing.T) {
	a, b := newMemDB(t), newMemDB(t)
	remote := oplog.NewMemoryLog[*crdt.MapOp](crdt.NewActor())

	writeReg(t, a, "z", "a")
	writeReg(t, b, "z", "b")

	for _, step := range []*DB{a, b, a} {
		if err := step.Sync(remote); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}

	want := []string{"a", "b"}
	for _, d := range []*DB{a, b} {
		got := readReg(t, d, "z")
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("z = %v, want %v", got, want)
		}
	}
}

func TestDB_ConcurrentSetAddsUnion(t *testing.T) {
	a, b := newMemDB(t), newMemDB(t)
	remote := oplog.NewMemoryLog[*crdt.MapOp](crdt.NewActor())

	addSet(t, a, "s", 7)
	addSet(t, b, "s", 9)

	for _, step := range []*DB{a, b, a} {
		if err := step.Sync(remote); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}

	for _, d := range []*DB{a, b} {
		got := readSet(t, d, "s")
		if len(got) != 2 || got[0] != 7 || got[1] != 9 {
			t.Fatalf("s = %v, want [7 9]", got)
		}
	}
}

func TestDB_AddWinsOverConcurrentRemove(t *testing.T) {
	a, b := newMemDB(t), newMemDB(t)
	remote := oplog.NewMemoryLog[*crdt.MapOp](crdt.NewActor())

	addSet(t, a, "s", 7)
	if err := a.Sync(remote); err != nil {
		t.Fatalf("sync a: %v", err)
	}
	if err := b.Sync(remote); err != nil {
		t.Fatalf("sync b: %v", err)
	}
	if got := readSet(t, b, "s"); len(got) != 1 || got[0] != 7 {
		t.Fatalf("b's s = %v, want [7]", got)
	}

	// b removes with the dots it observed; a concurrently re-adds with a
	// fresh dot the remove cannot have seen.
	removeSet(t, b, "s", 7)
	addSet(t, a, "s", 7)

	for _, step := range []*DB{a, b, a} {
		if err := step.Sync(remote); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}

	for _, d := range []*DB{a, b} {
		got := readSet(t, d, "s")
		if len(got) != 1 || got[0] != 7 {
			t.Fatalf("s = %v, want [7] (add bias)", got)
		}
	}
}

func TestDB_RmRemovesKey(t *testing.T) {
	d := newMemDB(t)
	writeReg(t, d, "x", "hello")

	key := crdt.Key{Name: "x", Kind: crdt.KindReg}
	rctx, err := d.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := d.Rm(key, rctx.RmCtx()); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if got := readReg(t, d, "x"); got != nil {
		t.Fatalf("x = %v after rm, want gone", got)
	}
}

func TestDB_ReplaysUnappliedOpsOnStartup(t *testing.T) {
	actor := crdt.NewActor()
	l := oplog.NewMemoryLog[*crdt.MapOp](actor)
	s := store.NewMemStore()

	// Simulate a crash after commit but before apply: the op is durably
	// logged and unacked, the store never saw it.
	m := crdt.NewMap[*data.Data]()
	key := crdt.Key{Name: "x", Kind: crdt.KindReg}
	ctx := crdt.AddCtx{Clock: m.Clock(), Dot: m.Dot(actor)}
	op := m.Update(key, ctx, func(v *data.Data, ctx crdt.AddCtx) crdt.Op {
		reg, err := v.Reg()
		if err != nil {
			t.Fatalf("reg: %v", err)
		}
		return data.RegOp(reg.Write(crdt.PrimStr("hello"), ctx))
	})
	if _, err := l.Commit(op); err != nil {
		t.Fatalf("commit: %v", err)
	}

	d, err := New(actor, l, s)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	if got := readReg(t, d, "x"); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("x = %v after replay, want [hello]", got)
	}
}

func TestDB_EncryptedLogsConvergeThroughOpaqueRemote(t *testing.T) {
	kdf := &crypto.KDF{Iters: 1}
	root, err := kdf.DeriveRoot([]byte("shared passphrase"))
	if err != nil {
		t.Fatalf("derive root: %v", err)
	}

	newEncDB := func() *DB {
		actor := crdt.NewActor()
		inner := oplog.NewMemoryLog[*enclog.EncryptedOp](actor)
		l, err := enclog.New(actor, root, inner)
		if err != nil {
			t.Fatalf("new enclog: %v", err)
		}
		d, err := New(actor, l, store.NewMemStore())
		if err != nil {
			t.Fatalf("new db: %v", err)
		}
		return d
	}

	a, b := newEncDB(), newEncDB()
	remote := oplog.NewMemoryLog[*enclog.EncryptedOp](crdt.NewActor())

	writeReg(t, a, "x", "hello")
	writeReg(t, b, "y", "world")

	for _, step := range []*DB{a, b, a} {
		if err := step.Sync(remote); err != nil {
			t.Fatalf("sync: %v", err)
		}
	}

	for _, d := range []*DB{a, b} {
		if got := readReg(t, d, "x"); len(got) != 1 || got[0] != "hello" {
			t.Fatalf("x = %v, want [hello]", got)
		}
		if got := readReg(t, d, "y"); len(got) != 1 || got[0] != "world" {
			t.Fatalf("y = %v, want [world]", got)
		}
	}
}
