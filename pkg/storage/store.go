package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// Store provides Pebble-based persistence for records, balances, token accounts and nonces
// All mutation goes through Tx so that multi-record updates land in a single batch
type Store struct {
	db          *pebble.DB
	rentPerByte uint64
}

// NewStore opens a Pebble database at the given path
// rentPerByte prices record allocation: (128 + size) * rentPerByte lamports
func NewStore(dbPath string, rentPerByte uint64) (*Store, error) {
	opts := &pebble.Options{
		// Performance tuning
		Cache:                       pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:                64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions:    func() int { return 3 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20, // 64MB
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10, // 512KB
		DisableAutomaticCompactions: false,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db, rentPerByte: rentPerByte}, nil
}

// NewMemStore opens a Pebble database backed by an in-memory filesystem
// Used by tests and throwaway dev nodes
func NewMemStore(rentPerByte uint64) (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &Store{db: db, rentPerByte: rentPerByte}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// RentFor returns the lamports charged to allocate a record of size bytes
func (s *Store) RentFor(size int) (uint64, error) {
	return rentFor(size, s.rentPerByte)
}

// Record returns the committed bytes of a program record
func (s *Store) Record(handle crypto.Pubkey) ([]byte, error) {
	tx := s.Begin()
	defer tx.Rollback()
	return tx.Load(handle)
}

// Balance returns the committed lamport balance of an identity
func (s *Store) Balance(id crypto.Pubkey) (uint64, error) {
	tx := s.Begin()
	defer tx.Rollback()
	return tx.Native().Balance(id)
}

// TokenAccount returns a committed token account
func (s *Store) TokenAccount(handle crypto.Pubkey) (ledger.TokenAccount, error) {
	tx := s.Begin()
	defer tx.Rollback()
	return tx.Assets().Account(handle)
}

// Nonce returns the last accepted nonce for an identity
func (s *Store) Nonce(id crypto.Pubkey) (uint64, error) {
	tx := s.Begin()
	defer tx.Rollback()
	return tx.Nonce(id)
}

// OrdersBySeller lists the handles of every order a seller has posted, in key order
func (s *Store) OrdersBySeller(seller crypto.Pubkey) ([]crypto.Pubkey, error) {
	prefix := sellerIndexPrefix(seller)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open seller index iterator: %w", err)
	}
	defer iter.Close()

	var orders []crypto.Pubkey
	for iter.First(); iter.Valid(); iter.Next() {
		order, err := orderFromIndexKey(prefix, iter.Key())
		if err != nil {
			continue // Skip malformed entries
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Compare(orders[j]) < 0 })
	return orders, iter.Error()
}

// get reads a committed value, copying it out of Pebble's buffer
func (s *Store) get(key []byte) ([]byte, bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}
