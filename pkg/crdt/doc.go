/*
Package crdt implements the causally-consistent primitives burrow replicates
without an online coordinator: vector clocks and dots for expressing
causality, a multi-value register and an observed-remove set as leaf CRDTs,
and a recursive Map that nests arbitrary values of those kinds (or further
Maps) under composite keys.

# Causality

Every mutation is tagged with a Dot — a (Actor, counter) pair identifying a
single event in one actor's local timeline. A VClock is a map from Actor to
the highest counter observed for that actor; it doubles as a Map's top-level
version and as the per-entry "who has touched this" marker. AddCtx and RmCtx
carry the clock snapshot a caller observed when it decided to add or remove
something, which is what lets concurrent operations commute correctly.

# Leaf CRDTs

MVReg[T] retains every concurrently written value; a later write observes
and subsumes the values it causally dominates. ORSet[T] is add-biased: a
concurrent Add and Remove of the same member always resolves to the member
being present, because Remove can only consume the dots it actually
observed.

# Map

Map is the central recursive CRDT: an in-memory store of
Key -> Entry, where Entry pairs an inner VClock with a Value. Removes that
arrive before the updates they causally depend on are buffered in a
deferred-remove table and replayed after every apply, so delivery order
never matters for convergence.
*/
package crdt
