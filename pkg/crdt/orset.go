package crdt

import "encoding/json"

// SetOpType discriminates the two operations ORSet supports.
type SetOpType int

const (
	SetOpAdd SetOpType = iota
	SetOpRemove
)

// SetOp is either an Add (witnessing Dot for Member) or a Remove (consuming
// every dot of Member dominated by Clock).
type SetOp[T any] struct {
	Type   SetOpType `json:"type"`
	Member T         `json:"member"`
	Dot    Dot       `json:"dot,omitempty"`
	Clock  VClock    `json:"clock,omitempty"`
}

// ORSet is an observed-remove set: adds win over concurrent removes because
// a remove can only consume the dots its issuer actually observed.
type ORSet[T comparable] struct {
	clock   VClock
	entries map[T]VClock
}

// NewORSet returns an empty set.
func NewORSet[T comparable]() *ORSet[T] {
	return &ORSet[T]{clock: NewVClock(), entries: map[T]VClock{}}
}

// Add builds the op for adding member under ctx's dot.
func (s *ORSet[T]) Add(member T, ctx AddCtx) *SetOp[T] {
	return &SetOp[T]{Type: SetOpAdd, Member: member, Dot: ctx.Dot}
}

// Remove builds the op for removing member using the dots observed in ctx.
func (s *ORSet[T]) Remove(member T, ctx RmCtx) *SetOp[T] {
	return &SetOp[T]{Type: SetOpRemove, Member: member, Clock: ctx.Clock}
}

// Apply applies an Add or Remove op produced by this or another replica.
func (s *ORSet[T]) Apply(op *SetOp[T]) error {
	switch op.Type {
	case SetOpAdd:
		if s.clock.Dominates(op.Dot) {
			return nil
		}
		s.entries[op.Member] = s.entries[op.Member].ApplyDot(op.Dot)
		s.clock = s.clock.ApplyDot(op.Dot)
	case SetOpRemove:
		if cur, ok := s.entries[op.Member]; ok {
			remaining := cur.Subtract(op.Clock)
			if remaining.IsEmpty() {
				delete(s.entries, op.Member)
			} else {
				s.entries[op.Member] = remaining
			}
		}
		s.clock = s.clock.Merge(op.Clock)
	}
	return nil
}

// Merge performs the canonical add-biased OR-Set join: for every member
// present on either side, keep the dots either side observed except for
// dots the other side has already witnessed-and-dropped (i.e. removed).
func (s *ORSet[T]) Merge(other *ORSet[T]) error {
	members := map[T]struct{}{}
	for m := range s.entries {
		members[m] = struct{}{}
	}
	for m := range other.entries {
		members[m] = struct{}{}
	}
	merged := map[T]VClock{}
	for m := range members {
		aDots := s.entries[m]
		bDots := other.entries[m]
		union := aDots.Merge(bDots)
		stale := s.clock.Subtract(aDots).Merge(other.clock.Subtract(bDots))
		kept := union.Subtract(stale)
		if !kept.IsEmpty() {
			merged[m] = kept
		}
	}
	s.entries = merged
	s.clock = s.clock.Merge(other.clock)
	return nil
}

// ResetRemove drops every dot in every member's clock that clock dominates,
// deleting members left with no dots.
func (s *ORSet[T]) ResetRemove(clock VClock) {
	for m, c := range s.entries {
		remaining := c.Subtract(clock)
		if remaining.IsEmpty() {
			delete(s.entries, m)
		} else {
			s.entries[m] = remaining
		}
	}
}

// Read returns the live members together with the join of the set's clock.
func (s *ORSet[T]) Read() ReadCtx[[]T] {
	members := make([]T, 0, len(s.entries))
	for m := range s.entries {
		members = append(members, m)
	}
	return ReadCtx[[]T]{AddClock: s.clock, RmClock: s.clock, Val: members}
}

// Contains reports whether member currently has at least one live dot.
func (s *ORSet[T]) Contains(member T) bool {
	_, ok := s.entries[member]
	return ok
}

// IsEmpty reports whether the set has no live members.
func (s *ORSet[T]) IsEmpty() bool {
	return len(s.entries) == 0
}

// SetEntry is one member and the dots it carries, used only for ORSet's wire
// encoding since a Go map keyed by an arbitrary comparable T has no direct
// JSON representation.
type SetEntry[T any] struct {
	Member T      `json:"member"`
	Clock  VClock `json:"clock"`
}

type orsetJSON[T any] struct {
	Clock   VClock        `json:"clock"`
	Entries []SetEntry[T] `json:"entries"`
}

// MarshalJSON implements json.Marshaler.
func (s *ORSet[T]) MarshalJSON() ([]byte, error) {
	j := orsetJSON[T]{Clock: s.clock}
	for m, c := range s.entries {
		j.Entries = append(j.Entries, SetEntry[T]{Member: m, Clock: c})
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ORSet[T]) UnmarshalJSON(b []byte) error {
	var j orsetJSON[T]
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	s.clock = j.Clock
	if s.clock == nil {
		s.clock = NewVClock()
	}
	s.entries = make(map[T]VClock, len(j.Entries))
	for _, e := range j.Entries {
		s.entries[e.Member] = e.Clock
	}
	return nil
}
