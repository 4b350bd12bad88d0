// Package ledger defines the external collaborators the marketplace settles against:
// the native-currency ledger, the asset (token) ledger, record storage with its
// allocator, and per-identity nonces.
//
// Implementations live in pkg/storage and operate inside one staged transaction,
// so every call made while handling a command commits or rolls back together.
package ledger

import (
	"errors"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrRecordSize        = errors.New("record size mismatch")
	ErrHandleInUse       = errors.New("handle already in use")
	ErrAccountNotFound   = errors.New("token account not found")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrMintMismatch      = errors.New("token account mint mismatch")
	ErrOwnerMismatch     = errors.New("authority does not control token account")
)

// TokenAccount holds a balance of one mint for one owner
// A delegate may move up to DelegatedAmount on the owner's behalf
type TokenAccount struct {
	Owner           crypto.Pubkey `json:"owner"`
	Mint            crypto.Pubkey `json:"mint"`
	Amount          uint64        `json:"amount"`
	Delegate        crypto.Pubkey `json:"delegate"`
	DelegatedAmount uint64        `json:"delegated_amount"`
}

// HasDelegate reports whether a delegate approval is in place
func (a TokenAccount) HasDelegate() bool {
	return !a.Delegate.IsZero() && a.DelegatedAmount > 0
}

// Records reads and writes fixed-size program records by handle
type Records interface {
	// Load returns the record bytes, or ErrRecordNotFound if the handle was never allocated
	Load(handle crypto.Pubkey) ([]byte, error)
	// Store overwrites an allocated record; data must match the allocated size
	Store(handle crypto.Pubkey, data []byte) error
}

// Allocator creates new records, charging the payer rent for persistence
type Allocator interface {
	CreateRecord(payer, handle crypto.Pubkey, size int) error
}

// NativeLedger moves the native currency (lamports)
type NativeLedger interface {
	Balance(id crypto.Pubkey) (uint64, error)
	Transfer(from, to crypto.Pubkey, amount uint64) error
	Credit(id crypto.Pubkey, amount uint64) error
}

// AssetLedger moves tokens between token accounts
type AssetLedger interface {
	Account(handle crypto.Pubkey) (TokenAccount, error)
	// Transfer moves amount from one token account to another
	// authority must be the source owner, or its delegate with enough allowance
	Transfer(from, to, authority crypto.Pubkey, amount uint64) error
	// Approve raises delegate's allowance by amount; approving a different delegate replaces the prior one
	Approve(account, owner, delegate crypto.Pubkey, amount uint64) error
	// Revoke reduces the delegated allowance by up to amount, clearing the delegate at zero
	Revoke(account, owner crypto.Pubkey, amount uint64) error
	// Open creates an empty token account; ErrHandleInUse if it exists
	Open(handle, owner, mint crypto.Pubkey) error
}
