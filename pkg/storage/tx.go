package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
)

// ErrTxClosed is returned when a committed or rolled back Tx is used again
var ErrTxClosed = errors.New("transaction already closed")

// Tx stages writes in memory on top of the committed state
// Reads see the Tx's own writes first. Commit applies every staged write in one
// synced Pebble batch; Rollback drops them. Either all of a command's effects
// become visible or none do.
//
// A Tx is not safe for concurrent use. Callers serialize conflicting Txs with Locks.
type Tx struct {
	store  *Store
	writes map[string][]byte
	closed bool
}

// Begin starts a new staged transaction
func (s *Store) Begin() *Tx {
	return &Tx{store: s, writes: make(map[string][]byte)}
}

// Get returns the value for key, preferring staged writes
func (tx *Tx) Get(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}
	if v, ok := tx.writes[string(key)]; ok {
		return v, true, nil
	}
	return tx.store.get(key)
}

// Set stages a write
func (tx *Tx) Set(key, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	tx.writes[string(key)] = v
	return nil
}

// Commit writes all staged values atomically
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := tx.store.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if err := batch.Set([]byte(k), tx.writes[k], nil); err != nil {
			return fmt.Errorf("failed to stage %s: %w", k, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	tx.writes = nil
	return nil
}

// Rollback discards all staged values
// Safe to call after Commit, so callers can defer it unconditionally
func (tx *Tx) Rollback() {
	tx.closed = true
	tx.writes = nil
}
