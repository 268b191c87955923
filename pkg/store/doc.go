/*
Package store defines the byte-addressable ordered mapping burrow's
persistent components are built on, plus two implementations:
BoltStore, a single-bucket bbolt-backed store for production use, and
MemStore, an in-memory store for tests.

Store deliberately knows nothing about the shape of the keys it holds.
pkg/pmap is the only direct consumer; it is the one that reserves the
0x00/0x01 key prefixes and "clock"/"deferred" meta-key names. Store just
needs ordered byte comparison to make Range correct.

# BoltStore

BoltStore opens one bbolt database file, "burrow.db", inside the configured
data directory, and keeps every key in a single bucket: burrow has exactly
one opaque key space, so nothing is gained by splitting it.

# MemStore

MemStore backs every property and CRDT test that would otherwise need a
real file on disk. It re-sorts its key set on every Range call rather than
keeping a sorted index live, since test workloads never approach the scale
where that would matter.
*/
package store
