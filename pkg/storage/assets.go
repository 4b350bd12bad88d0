package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// assetLedger implements ledger.AssetLedger over a Tx
type assetLedger struct {
	tx *Tx
}

// Assets returns the token ledger view of this transaction
func (tx *Tx) Assets() ledger.AssetLedger {
	return assetLedger{tx: tx}
}

func (a assetLedger) Account(handle crypto.Pubkey) (ledger.TokenAccount, error) {
	data, ok, err := a.tx.Get(tokenKey(handle))
	if err != nil {
		return ledger.TokenAccount{}, err
	}
	if !ok {
		return ledger.TokenAccount{}, ledger.ErrAccountNotFound
	}

	var acc ledger.TokenAccount
	if err := json.Unmarshal(data, &acc); err != nil {
		return ledger.TokenAccount{}, fmt.Errorf("failed to unmarshal token account: %w", err)
	}
	return acc, nil
}

func (a assetLedger) save(handle crypto.Pubkey, acc ledger.TokenAccount) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal token account: %w", err)
	}
	return a.tx.Set(tokenKey(handle), data)
}

func (a assetLedger) Open(handle, owner, mint crypto.Pubkey) error {
	_, err := a.Account(handle)
	if err == nil {
		return ledger.ErrHandleInUse
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return err
	}
	return a.save(handle, ledger.TokenAccount{Owner: owner, Mint: mint})
}

func (a assetLedger) Transfer(from, to, authority crypto.Pubkey, amount uint64) error {
	src, err := a.Account(from)
	if err != nil {
		return err
	}
	dst, err := a.Account(to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return ledger.ErrMintMismatch
	}

	switch {
	case authority == src.Owner:
	case authority == src.Delegate && src.DelegatedAmount >= amount:
		src.DelegatedAmount -= amount
		if src.DelegatedAmount == 0 {
			src.Delegate = crypto.Pubkey{}
		}
	default:
		return ledger.ErrOwnerMismatch
	}

	if src.Amount < amount {
		return ledger.ErrInsufficientFunds
	}
	if from == to {
		return a.save(from, src)
	}

	src.Amount -= amount
	dst.Amount, err = checked.Add(dst.Amount, amount)
	if err != nil {
		return err
	}
	if err := a.save(from, src); err != nil {
		return err
	}
	return a.save(to, dst)
}

func (a assetLedger) Approve(account, owner, delegate crypto.Pubkey, amount uint64) error {
	acc, err := a.Account(account)
	if err != nil {
		return err
	}
	if acc.Owner != owner {
		return ledger.ErrOwnerMismatch
	}

	if acc.Delegate != delegate {
		acc.Delegate = delegate
		acc.DelegatedAmount = 0
	}
	acc.DelegatedAmount, err = checked.Add(acc.DelegatedAmount, amount)
	if err != nil {
		return err
	}
	return a.save(account, acc)
}

func (a assetLedger) Revoke(account, owner crypto.Pubkey, amount uint64) error {
	acc, err := a.Account(account)
	if err != nil {
		return err
	}
	if acc.Owner != owner {
		return ledger.ErrOwnerMismatch
	}
	if !acc.HasDelegate() {
		return nil
	}

	if amount >= acc.DelegatedAmount {
		acc.Delegate = crypto.Pubkey{}
		acc.DelegatedAmount = 0
	} else {
		acc.DelegatedAmount -= amount
	}
	return a.save(account, acc)
}

// deposit mints tokens into an account, used only when seeding genesis state
func (a assetLedger) deposit(handle crypto.Pubkey, amount uint64) error {
	acc, err := a.Account(handle)
	if err != nil {
		return err
	}
	acc.Amount, err = checked.Add(acc.Amount, amount)
	if err != nil {
		return err
	}
	return a.save(handle, acc)
}
