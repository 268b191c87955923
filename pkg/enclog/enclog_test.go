package enclog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/crdt"
	"github.com/cuemby/burrow/pkg/crypto"
	"github.com/cuemby/burrow/pkg/data"
	"github.com/cuemby/burrow/pkg/oplog"
)

func testRoot(t *testing.T) *crypto.KeyHierarchy {
	t.Helper()
	kdf := &crypto.KDF{Iters: 1}
	root, err := kdf.DeriveRoot([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("derive root: %v", err)
	}
	return root
}

func regWriteOp(t *testing.T, actor crdt.Actor, name, val string) *crdt.MapOp {
	t.Helper()
	m := crdt.NewMap[*data.Data]()
	key := crdt.Key{Name: name, Kind: crdt.KindReg}
	ctx := crdt.AddCtx{Clock: m.Clock(), Dot: m.Dot(actor)}
	return m.Update(key, ctx, func(v *data.Data, ctx crdt.AddCtx) crdt.Op {
		reg, err := v.Reg()
		if err != nil {
			t.Fatalf("reg: %v", err)
		}
		return data.RegOp(reg.Write(crdt.PrimStr(val), ctx))
	})
}

func newTestLog(t *testing.T, actor crdt.Actor, root *crypto.KeyHierarchy) (*Log, *oplog.MemoryLog[*EncryptedOp]) {
	t.Helper()
	inner := oplog.NewMemoryLog[*EncryptedOp](actor)
	l, err := New(actor, root, inner)
	if err != nil {
		t.Fatalf("new enclog: %v", err)
	}
	return l, inner
}

func TestLog_RoundTripThroughCiphertext(t *testing.T) {
	actor := crdt.NewActor()
	l, inner := newTestLog(t, actor, testRoot(t))

	op := regWriteOp(t, actor, "x", "hello")
	if _, err := l.Commit(op); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The op stored underneath must not contain the plaintext serialization.
	plaintext, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("marshal op: %v", err)
	}
	stored, err := inner.Next()
	if err != nil {
		t.Fatalf("inner next: %v", err)
	}
	if bytes.Contains(stored.Op.Op.Ciphertext, plaintext) {
		t.Fatal("ciphertext contains the plaintext op serialization")
	}

	got, err := l.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	gotJSON, err := json.Marshal(got.Op)
	if err != nil {
		t.Fatalf("marshal decrypted op: %v", err)
	}
	if !bytes.Equal(gotJSON, plaintext) {
		t.Fatalf("decrypted op %s != committed op %s", gotJSON, plaintext)
	}
	if err := l.Ack(got); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestLog_SameOpTwiceYieldsDistinctCiphertexts(t *testing.T) {
	actor := crdt.NewActor()
	l, inner := newTestLog(t, actor, testRoot(t))

	op := regWriteOp(t, actor, "x", "hello")
	if _, err := l.Commit(op); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := l.Commit(op); err != nil {
		t.Fatalf("commit again: %v", err)
	}

	first, err := inner.Next()
	if err != nil {
		t.Fatalf("inner next: %v", err)
	}
	if err := inner.Ack(first); err != nil {
		t.Fatalf("inner ack: %v", err)
	}
	second, err := inner.Next()
	if err != nil {
		t.Fatalf("inner next: %v", err)
	}

	if bytes.Equal(first.Op.Salt, second.Op.Salt) {
		t.Fatal("two commits reused a salt")
	}
	if bytes.Equal(first.Op.Op.Nonce, second.Op.Op.Nonce) {
		t.Fatal("two commits reused a nonce")
	}
	if bytes.Equal(first.Op.Op.Ciphertext, second.Op.Op.Ciphertext) {
		t.Fatal("two commits of the same op produced identical ciphertext")
	}
}

func TestLog_PeerDecryptsPulledOps(t *testing.T) {
	root := testRoot(t)
	a, b := crdt.NewActor(), crdt.NewActor()
	la, innerA := newTestLog(t, a, root)
	lb, _ := newTestLog(t, b, root)

	op := regWriteOp(t, a, "x", "hello")
	if _, err := la.Commit(op); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := lb.Pull(innerA); err != nil {
		t.Fatalf("pull: %v", err)
	}

	got, err := lb.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got == nil {
		t.Fatal("expected b to surface a's op")
	}
	if got.Actor != a {
		t.Fatalf("expected op from actor %v, got %v", a, got.Actor)
	}
	wantJSON, _ := json.Marshal(op)
	gotJSON, _ := json.Marshal(got.Op)
	if !bytes.Equal(gotJSON, wantJSON) {
		t.Fatalf("peer decrypted %s, want %s", gotJSON, wantJSON)
	}
}

func TestLog_TamperedCiphertextFailsDecrypt(t *testing.T) {
	actor := crdt.NewActor()
	l, inner := newTestLog(t, actor, testRoot(t))

	if _, err := l.Commit(regWriteOp(t, actor, "x", "hello")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	stored, err := inner.Next()
	if err != nil {
		t.Fatalf("inner next: %v", err)
	}
	stored.Op.Op.Ciphertext[0] ^= 0x01

	if _, err := l.Next(); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("expected decrypt failure after bit flip, got %v", err)
	}
}

func TestLog_WrongPassphraseCannotDecrypt(t *testing.T) {
	actor := crdt.NewActor()
	l, inner := newTestLog(t, actor, testRoot(t))
	if _, err := l.Commit(regWriteOp(t, actor, "x", "hello")); err != nil {
		t.Fatalf("commit: %v", err)
	}

	kdf := &crypto.KDF{Iters: 1}
	otherRoot, err := kdf.DeriveRoot([]byte("not the passphrase"))
	if err != nil {
		t.Fatalf("derive other root: %v", err)
	}
	other, err := New(actor, otherRoot, inner)
	if err != nil {
		t.Fatalf("new enclog: %v", err)
	}
	if _, err := other.Next(); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("expected decrypt failure under wrong root, got %v", err)
	}
}

func TestLog_AckOutOfOrderIsProtocolViolation(t *testing.T) {
	actor := crdt.NewActor()
	l, _ := newTestLog(t, actor, testRoot(t))

	if _, err := l.Commit(regWriteOp(t, actor, "x", "one")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	second, err := l.Commit(regWriteOp(t, actor, "x", "two"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := l.Ack(second); !errors.Is(err, oplog.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}
