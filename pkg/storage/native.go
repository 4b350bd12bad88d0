package storage

import (
	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// nativeLedger implements ledger.NativeLedger over a Tx
type nativeLedger struct {
	tx *Tx
}

// Native returns the lamport ledger view of this transaction
func (tx *Tx) Native() ledger.NativeLedger {
	return nativeLedger{tx: tx}
}

func (n nativeLedger) Balance(id crypto.Pubkey) (uint64, error) {
	return n.tx.getU64(balanceKey(id))
}

func (n nativeLedger) Transfer(from, to crypto.Pubkey, amount uint64) error {
	if err := n.tx.debit(from, amount); err != nil {
		return err
	}
	return n.Credit(to, amount)
}

func (n nativeLedger) Credit(id crypto.Pubkey, amount uint64) error {
	bal, err := n.Balance(id)
	if err != nil {
		return err
	}
	next, err := checked.Add(bal, amount)
	if err != nil {
		return err
	}
	return n.tx.Set(balanceKey(id), encodeU64(next))
}

// debit removes lamports from id, failing without a write if the balance is short
func (tx *Tx) debit(id crypto.Pubkey, amount uint64) error {
	bal, err := tx.getU64(balanceKey(id))
	if err != nil {
		return err
	}
	if bal < amount {
		return ledger.ErrInsufficientFunds
	}
	return tx.Set(balanceKey(id), encodeU64(bal-amount))
}
