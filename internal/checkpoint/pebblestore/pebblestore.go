// Package pebblestore is a checkpoint backend on an embedded Pebble LSM
// directory.
package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/Monterroso/Frinny-Backend/internal/checkpoint"
)

const keyPrefix = "checkpoint:"

var _ checkpoint.Store = (*Store)(nil)

// Store is a [checkpoint.Store] backed by Pebble. Pebble calls do not take a
// context; wrap the store in [checkpoint.Guard] to bound them.
type Store struct {
	db *pebble.DB
}

// Open opens or creates a Pebble database in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("pebblestore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("pebblestore: create dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func dbKey(key checkpoint.Key) []byte {
	return []byte(keyPrefix + key.String())
}

// Get implements [checkpoint.Store.Get].
func (s *Store) Get(_ context.Context, key checkpoint.Key) (checkpoint.State, bool, error) {
	v, closer, err := s.db.Get(dbKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return checkpoint.State{}, false, nil
	}
	if err != nil {
		return checkpoint.State{}, false, fmt.Errorf("pebblestore: get: %w", err)
	}
	// v is only valid until closer.Close.
	data := make([]byte, len(v))
	copy(data, v)
	_ = closer.Close()

	st, err := checkpoint.Unmarshal(data)
	if err != nil {
		return checkpoint.State{}, false, err
	}
	st.Key = key
	return st, true, nil
}

// Put implements [checkpoint.Store.Put]. Writes are synced to disk.
func (s *Store) Put(_ context.Context, key checkpoint.Key, st checkpoint.State) error {
	st.Key = key
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	data, err := checkpoint.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.db.Set(dbKey(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: put: %w", err)
	}
	return nil
}

// Ping implements [checkpoint.Store.Ping] by reading a sentinel key.
func (s *Store) Ping(context.Context) error {
	_, closer, err := s.db.Get([]byte("__ping__"))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pebblestore: ping: %w", err)
	}
	return closer.Close()
}

// Close implements [checkpoint.Store.Close].
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Name implements [checkpoint.Store.Name].
func (s *Store) Name() string { return "pebble" }
