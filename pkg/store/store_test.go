package store

import (
	"errors"
	"testing"
)

func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("MemStore", func(t *testing.T) {
		fn(t, NewMemStore())
	})
	t.Run("BoltStore", func(t *testing.T) {
		s, err := NewBoltStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewBoltStore: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		_, err := s.Get([]byte("missing"))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_PutThenGet(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		if err := s.Put([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
		v, err := s.Get([]byte("k"))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(v) != "v" {
			t.Fatalf("expected %q, got %q", "v", v)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		if err := s.Put([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Delete([]byte("k")); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestStore_RangeOrdersByKeyAndRespectsPrefix(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		entries := map[string]string{
			"a/2": "two",
			"a/1": "one",
			"a/3": "three",
			"b/1": "other",
		}
		for k, v := range entries {
			if err := s.Put([]byte(k), []byte(v)); err != nil {
				t.Fatalf("put %s: %v", k, err)
			}
		}

		var keys []string
		err := s.Range([]byte("a/"), func(key, val []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		if err != nil {
			t.Fatalf("range: %v", err)
		}
		want := []string{"a/1", "a/2", "a/3"}
		if len(keys) != len(want) {
			t.Fatalf("expected %v, got %v", want, keys)
		}
		for i, k := range want {
			if keys[i] != k {
				t.Fatalf("expected %v, got %v", want, keys)
			}
		}
	})
}

func TestStore_RangeStopsOnError(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		for _, k := range []string{"p/1", "p/2", "p/3"} {
			if err := s.Put([]byte(k), []byte("v")); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		sentinel := errors.New("stop")
		seen := 0
		err := s.Range([]byte("p/"), func(key, val []byte) error {
			seen++
			if seen == 2 {
				return sentinel
			}
			return nil
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}
		if seen != 2 {
			t.Fatalf("expected iteration to stop after 2, got %d", seen)
		}
	})
}

func TestStore_Flush(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		if err := s.Put([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
	})
}
