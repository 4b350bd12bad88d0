package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// Genesis seeds a fresh store with lamport balances and token accounts
type Genesis struct {
	Balances      map[crypto.Pubkey]uint64 `json:"balances"`
	TokenAccounts []GenesisTokenAccount    `json:"token_accounts"`
}

// GenesisTokenAccount is a token account created at genesis with an initial balance
type GenesisTokenAccount struct {
	Handle crypto.Pubkey `json:"handle"`
	Owner  crypto.Pubkey `json:"owner"`
	Mint   crypto.Pubkey `json:"mint"`
	Amount uint64        `json:"amount"`
}

// LoadGenesisFile reads a genesis document from disk
func LoadGenesisFile(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file: %w", err)
	}
	return &g, nil
}

// ApplyGenesis writes the genesis state in one batch
// It is a no-op returning false if a genesis was already applied to this store
func (s *Store) ApplyGenesis(g *Genesis) (bool, error) {
	tx := s.Begin()
	defer tx.Rollback()

	_, applied, err := tx.Get([]byte(keyGenesis))
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}

	native := tx.Native()
	for id, lamports := range g.Balances {
		if err := native.Credit(id, lamports); err != nil {
			return false, fmt.Errorf("failed to credit %s: %w", id, err)
		}
	}

	assets := assetLedger{tx: tx}
	for _, ta := range g.TokenAccounts {
		if err := assets.Open(ta.Handle, ta.Owner, ta.Mint); err != nil {
			return false, fmt.Errorf("failed to open token account %s: %w", ta.Handle, err)
		}
		if err := assets.deposit(ta.Handle, ta.Amount); err != nil {
			return false, fmt.Errorf("failed to fund token account %s: %w", ta.Handle, err)
		}
	}

	if err := tx.Set([]byte(keyGenesis), []byte{1}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
