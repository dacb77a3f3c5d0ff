// Package store is the pebble-backed key/value store views read from.
package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("key not found")

type Config struct {
	Dir string `yaml:"dir"`
	// Sync makes every write durable before it returns.
	Sync bool `yaml:"sync"`
}

type Store struct {
	db   *pebble.DB
	opts *pebble.WriteOptions
}

func Open(cfg Config) (*Store, error) {
	db, err := pebble.Open(cfg.Dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", cfg.Dir)
	}
	opts := pebble.NoSync
	if cfg.Sync {
		opts = pebble.Sync
	}
	return &Store{db: db, opts: opts}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(key, value []byte) error {
	return errors.Wrap(s.db.Set(key, value, s.opts), "store put")
}

func (s *Store) Delete(key []byte) error {
	return errors.Wrap(s.db.Delete(key, s.opts), "store delete")
}

// Get appends the value of key to dst.
func (s *Store) Get(key, dst []byte) ([]byte, error) {
	return get(s.db, key, dst)
}

// Snapshot is a point-in-time read view of the store. It must be closed
// exactly once.
type Snapshot struct {
	snap *pebble.Snapshot
}

func (s *Store) NewSnapshot() *Snapshot {
	return &Snapshot{snap: s.db.NewSnapshot()}
}

// Get appends the value of key, as of the snapshot, to dst.
func (s *Snapshot) Get(key, dst []byte) ([]byte, error) {
	return get(s.snap, key, dst)
}

// Scan calls fn for every key with the given prefix, in key order. The
// slices passed to fn are only valid for the duration of the call.
func (s *Snapshot) Scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.snap.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "snapshot scan")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "snapshot scan")
}

func (s *Snapshot) Close() error {
	return errors.Wrap(s.snap.Close(), "close snapshot")
}

func get(r pebble.Reader, key, dst []byte) ([]byte, error) {
	val, closer, err := r.Get(key)
	if err == pebble.ErrNotFound {
		return dst, ErrNotFound
	}
	if err != nil {
		return dst, errors.Wrap(err, "store get")
	}
	dst = append(dst, val...)
	return dst, closer.Close()
}

// prefixEnd returns the smallest key greater than every key with prefix,
// or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
