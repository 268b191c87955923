// Package pmap is the backing-store-resident Map CRDT: the same apply
// semantics as crdt.Map, but every entry, the top-level clock, and the
// deferred-remove table live in a store.Store rather than in process memory.
// It is distinct from crdt.Map, the in-memory recursive CRDT used as one
// of data.Data's kinds. pkg/db binds exactly one pmap.Map per store.
package pmap
