package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// recordOverhead is the per-record storage overhead billed on top of the data size
const recordOverhead = 128

func rentFor(size int, perByte uint64) (uint64, error) {
	return checked.Mul(uint64(recordOverhead+size), perByte)
}

// Load returns the bytes of an allocated record
func (tx *Tx) Load(handle crypto.Pubkey) ([]byte, error) {
	data, ok, err := tx.Get(recordKey(handle))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.ErrRecordNotFound
	}
	return data, nil
}

// Store overwrites an allocated record
func (tx *Tx) Store(handle crypto.Pubkey, data []byte) error {
	current, err := tx.Load(handle)
	if err != nil {
		return err
	}
	if len(current) != len(data) {
		return fmt.Errorf("%w: %s holds %d bytes, got %d", ledger.ErrRecordSize, handle, len(current), len(data))
	}
	return tx.Set(recordKey(handle), data)
}

// CreateRecord allocates a zeroed record of size bytes at handle
// The payer is charged rent, which stays deposited against the record
func (tx *Tx) CreateRecord(payer, handle crypto.Pubkey, size int) error {
	if size <= 0 {
		return fmt.Errorf("invalid record size: %d", size)
	}
	_, exists, err := tx.Get(recordKey(handle))
	if err != nil {
		return err
	}
	if exists {
		return ledger.ErrHandleInUse
	}

	rent, err := rentFor(size, tx.store.rentPerByte)
	if err != nil {
		return err
	}
	if err := tx.debit(payer, rent); err != nil {
		return err
	}
	if err := tx.Set(rentKey(handle), encodeU64(rent)); err != nil {
		return err
	}
	return tx.Set(recordKey(handle), make([]byte, size))
}

// Nonce returns the last accepted nonce for id (0 if none)
func (tx *Tx) Nonce(id crypto.Pubkey) (uint64, error) {
	return tx.getU64(nonceKey(id))
}

// SetNonce records the last accepted nonce for id
func (tx *Tx) SetNonce(id crypto.Pubkey, nonce uint64) error {
	return tx.Set(nonceKey(id), encodeU64(nonce))
}

// IndexOrder links an order handle to its seller for listing and remembers
// the token account whose allowance backs the order
func (tx *Tx) IndexOrder(seller, order, tokenAccount crypto.Pubkey) error {
	if err := tx.Set(sellerIndexKey(seller, order), nil); err != nil {
		return err
	}
	return tx.Set(orderTokenKey(order), tokenAccount[:])
}

// OrderTokenAccount returns the token account an order was created from
func (tx *Tx) OrderTokenAccount(order crypto.Pubkey) (crypto.Pubkey, bool, error) {
	data, ok, err := tx.Get(orderTokenKey(order))
	if err != nil || !ok {
		return crypto.Pubkey{}, false, err
	}
	handle, err := crypto.PubkeyFromBytes(data)
	if err != nil {
		return crypto.Pubkey{}, false, fmt.Errorf("corrupt order token account for %s: %w", order, err)
	}
	return handle, true, nil
}

func (tx *Tx) getU64(key []byte) (uint64, error) {
	data, ok, err := tx.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt value at %s: %d bytes", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func encodeU64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}
