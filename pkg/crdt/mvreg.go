package crdt

// RegOp is the single operation MVReg supports: write v under a causal
// context. Applying it removes every currently stored value whose clock is
// dominated by Clock and inserts (Val, Clock).
type RegOp[T any] struct {
	Clock VClock `json:"clock"`
	Val   T      `json:"val"`
}

// RegEntry is one retained (value, clock) pair inside an MVReg. The field
// is exported so MVReg's JSON encoding is the default struct encoding rather
// than a hand-written one.
type RegEntry[T any] struct {
	Clock VClock `json:"clock"`
	Val   T      `json:"val"`
}

// MVReg is a multi-value register: a set of (value, dot-clock) pairs.
// Concurrent writes are all retained; a later write subsumes only the
// entries it causally dominates.
type MVReg[T any] struct {
	Entries []RegEntry[T] `json:"entries"`
}

// NewMVReg returns an empty register.
func NewMVReg[T any]() *MVReg[T] {
	return &MVReg[T]{}
}

// Write builds the op for setting v, using ctx's dot as the new entry's
// unique clock contribution merged atop ctx's observed clock.
func (r *MVReg[T]) Write(v T, ctx AddCtx) *RegOp[T] {
	return &RegOp[T]{Clock: ctx.Clock.ApplyDot(ctx.Dot), Val: v}
}

// Apply removes every entry dominated by op.Clock and inserts the new one.
func (r *MVReg[T]) Apply(op *RegOp[T]) error {
	kept := r.Entries[:0:0]
	for _, e := range r.Entries {
		if !e.Clock.LessEq(op.Clock) {
			kept = append(kept, e)
		}
	}
	r.Entries = append(kept, RegEntry[T]{Clock: op.Clock.Clone(), Val: op.Val})
	return nil
}

// Merge performs the CvRDT join: union the two entry sets, then drop any
// entry dominated by another entry (from either side).
func (r *MVReg[T]) Merge(other *MVReg[T]) error {
	all := append(append([]RegEntry[T]{}, r.Entries...), other.Entries...)
	kept := make([]RegEntry[T], 0, len(all))
	for i, e := range all {
		dominated := false
		for j, f := range all {
			if i == j {
				continue
			}
			if e.Clock.LessEq(f.Clock) && !f.Clock.LessEq(e.Clock) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, e)
		}
	}
	r.Entries = dedupRegEntries(kept)
	return nil
}

func dedupRegEntries[T any](entries []RegEntry[T]) []RegEntry[T] {
	out := make([]RegEntry[T], 0, len(entries))
	for _, e := range entries {
		dup := false
		for _, o := range out {
			if e.Clock.Equal(o.Clock) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}

// ResetRemove drops any retained entry whose clock is dominated by clock,
// mirroring the Map's causal reset on its nested values.
func (r *MVReg[T]) ResetRemove(clock VClock) {
	kept := r.Entries[:0:0]
	for _, e := range r.Entries {
		if !e.Clock.LessEq(clock) {
			kept = append(kept, e)
		}
	}
	r.Entries = kept
}

// Read returns every retained value together with the join of their clocks.
func (r *MVReg[T]) Read() ReadCtx[[]T] {
	vals := make([]T, 0, len(r.Entries))
	clock := NewVClock()
	for _, e := range r.Entries {
		vals = append(vals, e.Val)
		clock = clock.Merge(e.Clock)
	}
	return ReadCtx[[]T]{AddClock: clock, RmClock: clock, Val: vals}
}

// IsEmpty reports whether the register holds no values at all.
func (r *MVReg[T]) IsEmpty() bool {
	return len(r.Entries) == 0
}
