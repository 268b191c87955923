package crdt

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
)

// Dot denotes a single event in an actor's local timeline: the Counter-th
// operation that Actor produced. It is equivalent to a VClock with exactly
// one nonzero entry.
type Dot struct {
	Actor   Actor  `json:"actor"`
	Counter uint64 `json:"counter"`
}

// VClock maps each actor to the highest counter observed for it. The zero
// value is the empty clock.
type VClock map[Actor]uint64

// NewVClock returns an empty clock.
func NewVClock() VClock {
	return VClock{}
}

// Get returns the counter recorded for actor, or 0 if the clock has never
// observed it.
func (c VClock) Get(a Actor) uint64 {
	if c == nil {
		return 0
	}
	return c[a]
}

// Clone returns an independent copy.
func (c VClock) Clone() VClock {
	out := make(VClock, len(c))
	for a, n := range c {
		out[a] = n
	}
	return out
}

// IsEmpty reports whether the clock has no nonzero entries.
func (c VClock) IsEmpty() bool {
	return len(c) == 0
}

// Increment returns the Dot for the next event actor would produce, without
// mutating c. Callers combine this with ApplyDot once the op built from this
// Dot is actually committed.
func (c VClock) Increment(a Actor) Dot {
	return Dot{Actor: a, Counter: c.Get(a) + 1}
}

// ApplyDot witnesses a single Dot into the clock, returning the (possibly
// unchanged) clock. It is a no-op if the clock already dominates the dot.
func (c VClock) ApplyDot(d Dot) VClock {
	out := c.Clone()
	if d.Counter > out[d.Actor] {
		out[d.Actor] = d.Counter
	}
	return out
}

// Dominates reports whether d has already been observed by c, i.e. whether
// applying the op that produced d would be idempotent.
func (c VClock) Dominates(d Dot) bool {
	return c.Get(d.Actor) >= d.Counter
}

// Merge returns the pointwise maximum (join) of c and other.
func (c VClock) Merge(other VClock) VClock {
	out := c.Clone()
	for a, n := range other {
		if n > out[a] {
			out[a] = n
		}
	}
	return out
}

// LessEq reports whether c precedes or equals other in the clock's partial
// order: every actor's counter in c is at most the corresponding counter in
// other.
func (c VClock) LessEq(other VClock) bool {
	for a, n := range c {
		if n > other.Get(a) {
			return false
		}
	}
	return true
}

// Equal reports whether c and other record exactly the same counters.
func (c VClock) Equal(other VClock) bool {
	return c.LessEq(other) && other.LessEq(c)
}

// Concurrent reports whether neither clock precedes the other.
func (c VClock) Concurrent(other VClock) bool {
	return !c.LessEq(other) && !other.LessEq(c)
}

// Subtract returns the entries of c that other does not dominate: for every
// actor, c's counter is kept verbatim if it exceeds other's counter for that
// actor, and dropped otherwise. This is the clock subtraction behind Entry
// removal and ORSet/Map reset-remove: an actor's
// contribution is either fully covered by other (dropped) or not covered at
// all (kept), since clocks here track a single high-water mark per actor
// rather than a scattered set of individual dots.
func (c VClock) Subtract(other VClock) VClock {
	out := VClock{}
	for a, n := range c {
		if other.Get(a) < n {
			out[a] = n
		}
	}
	return out
}

// Key returns a canonical string encoding of the clock, stable across maps
// with the same entries regardless of Go's randomized map iteration order.
// Deferred-remove tables use this to key a VClock that isn't itself
// comparable.
func (c VClock) Key() string {
	actors := make([]Actor, 0, len(c))
	for a := range c {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool {
		return bytes.Compare(actors[i][:], actors[j][:]) < 0
	})
	var b strings.Builder
	for _, a := range actors {
		b.WriteString(a.String())
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(c[a], 10))
		b.WriteByte(',')
	}
	return b.String()
}

// AddCtx is the causal context a caller observed when producing an op meant
// to add or update state: the clock it read, plus the fresh Dot the op will
// carry.
type AddCtx struct {
	Clock VClock `json:"clock"`
	Dot   Dot    `json:"dot"`
}

// RmCtx is the causal context a caller observed when producing a remove: the
// clock it read, which tells the receiver exactly which dots the remove is
// entitled to consume.
type RmCtx struct {
	Clock VClock `json:"clock"`
}

// ReadCtx wraps a read value with the causal context needed to later build a
// remove or update against it: AddClock is the clock the read was taken
// against (the map's top-level clock, or an ORSet/MVReg's own join), RmClock
// is the narrower clock of exactly the dots that produced this value.
type ReadCtx[T any] struct {
	AddClock VClock `json:"add_clock"`
	RmClock  VClock `json:"rm_clock"`
	Val      T      `json:"val"`
}

// AddCtx narrows a ReadCtx's add clock into an AddCtx for actor's next dot.
func (r ReadCtx[T]) AddCtx(actor Actor) AddCtx {
	return AddCtx{Clock: r.AddClock, Dot: r.AddClock.Increment(actor)}
}

// RmCtx narrows a ReadCtx's rm clock into an RmCtx describing exactly the
// dots that produced the read value.
func (r ReadCtx[T]) RmCtx() RmCtx {
	return RmCtx{Clock: r.RmClock}
}
