// Package store defines the byte-addressable ordered mapping every
// persistent component in burrow is built on: pkg/pmap's persistent Map
// store keys its entries and metadata directly into one Store, and nothing
// above this layer knows or cares whether the bytes landed on disk or in
// memory.
package store

import "errors"

// ErrNotFound is returned by Get when key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is the interface every persistent burrow component is built
// against: a flat ordered byte-key space supporting point lookups, writes,
// deletes, and prefix iteration. pkg/pmap is the only direct consumer; it
// namespaces its own keys with its 0x00/0x01 prefixes rather than asking
// Store to understand them.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound if absent.
	Get(key []byte) ([]byte, error)

	// Put writes val under key, replacing any existing value.
	Put(key, val []byte) error

	// Delete removes key. It is not an error to delete an absent key.
	Delete(key []byte) error

	// Range calls fn once for every key with the given prefix, in ascending
	// byte order, until fn returns an error or every matching key has been
	// visited. The byte slices passed to fn are only valid for the
	// duration of the call.
	Range(prefix []byte, fn func(key, val []byte) error) error

	// Flush persists any buffered writes durably. Implementations that
	// write through on every call may make this a no-op.
	Flush() error

	// Close releases any resources held by the store. A closed Store must
	// not be used again.
	Close() error
}
