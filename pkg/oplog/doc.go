// Package oplog is the replicated operation log: an
// append-only, per-actor log of crdt.MapOp values that can be pulled from
// and pushed to a remote. MemoryLog is the in-memory realization used by
// the oplog, enclog and db tests; GitLog is the production
// realization, one branch per actor in a git repository acting as a dumb
// object store.
package oplog
