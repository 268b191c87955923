/*
Package data provides Data, the sum type that unifies burrow's three
storable CRDT kinds — a multi-value register of primitives, an
observed-remove set of primitives, and a recursively nested Map — behind a
single apply/merge/reset-remove interface so that pkg/crdt.Map (and
pkg/pmap's persistent realization of it) can hold any of them under one Key
without knowing which kind is live.

Data starts Nil and takes its shape from the first op applied to it or the
first value merged into it; asking for the wrong accessor (Reg() on a Set,
for instance) returns *crdt.ErrKindMismatch rather than panicking, since a
remote op stream is attacker-adjacent input in this system's threat model.

Op mirrors Data's shape: it is either a register write, a set add/remove,
or a recursive map op, tagged by Kind so the wire encoding can route itself
back to the right inner apply without external context.
*/
package data
