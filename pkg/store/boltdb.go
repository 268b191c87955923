package store

import (
	"bytes"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// bucketData is the single bucket a BoltStore keeps all keys in. Callers
// (pkg/pmap) namespace their own keys within it; Store has no opinion about
// key structure beyond byte ordering.
var bucketData = []byte("burrow")

// BoltStore is the production Store, a single *bbolt.DB file opened once
// for the process lifetime, with every key in one bucket.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database file named
// "burrow.db" inside dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketData)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get implements Store.
func (s *BoltStore) Get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get(key)
		if v == nil {
			return ErrNotFound
		}
		val = append([]byte(nil), v...)
		return nil
	})
	return val, err
}

// Put implements Store.
func (s *BoltStore) Put(key, val []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Put(key, val)
	})
}

// Delete implements Store.
func (s *BoltStore) Delete(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Delete(key)
	})
}

// Range implements Store using bbolt's Cursor.Seek, stopping once a key no
// longer carries the requested prefix.
func (s *BoltStore) Range(prefix []byte, fn func(key, val []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketData).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Flush implements Store by forcing bbolt's underlying file to sync.
func (s *BoltStore) Flush() error {
	return s.db.Sync()
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
