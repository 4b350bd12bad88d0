package market

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// settlementSeed derives the program-owned identity that sellers delegate to
var settlementSeed = []byte("settlement")

// SettlementAuthority returns the derived identity that moves tokens on a seller's behalf during a buy
func SettlementAuthority(programID crypto.Pubkey) (crypto.Pubkey, error) {
	addr, _, err := crypto.FindProgramAddress([][]byte{settlementSeed}, programID)
	if err != nil {
		return crypto.Pubkey{}, fmt.Errorf("failed to derive settlement authority: %w", err)
	}
	return addr, nil
}

// OrderIndex records which seller posted an order and the token account backing it
type OrderIndex interface {
	IndexOrder(seller, order, tokenAccount crypto.Pubkey) error
	OrderTokenAccount(order crypto.Pubkey) (crypto.Pubkey, bool, error)
}

// Env is everything a handler may read or mutate while processing one command
// All collaborators share one staged transaction owned by the caller
type Env struct {
	Accounts  []crypto.Pubkey
	Signers   transaction.SignerSet
	Records   ledger.Records
	Allocator ledger.Allocator
	Assets    ledger.AssetLedger
	Native    ledger.NativeLedger
	Index     OrderIndex
	Now       time.Time
}

// Outcome is the result of a successfully processed command
type Outcome struct {
	Kind   transaction.Kind
	Events []Event
	Quote  *state.SettlementQuote // set for buys
}

// Processor decodes commands and dispatches them to their handlers
type Processor struct {
	authority crypto.Pubkey
	logger    *zap.SugaredLogger
}

// NewProcessor creates a processor for the given program
func NewProcessor(programID crypto.Pubkey, logger *zap.SugaredLogger) (*Processor, error) {
	authority, err := SettlementAuthority(programID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Processor{authority: authority, logger: logger}, nil
}

// Authority returns the settlement authority sellers delegate to
func (p *Processor) Authority() crypto.Pubkey {
	return p.authority
}

// Process decodes data and runs the matching handler against env
// On error nothing in env may be committed; the caller rolls back
func (p *Processor) Process(env *Env, data []byte) (*Outcome, error) {
	ix, err := transaction.DecodeInstruction(data)
	if err != nil {
		return nil, classify(err)
	}
	if want := len(ix.Accounts()); len(env.Accounts) < want {
		return nil, fail(ErrInvalidInstruction, "%s expects %d accounts, got %d", ix.Kind(), want, len(env.Accounts))
	}

	var events []Event
	var quote *state.SettlementQuote
	switch ix := ix.(type) {
	case transaction.InitializeMarketplace:
		events, err = p.initializeMarketplace(env, ix)
	case transaction.CreateSellOrder:
		events, err = p.createSellOrder(env, ix)
	case transaction.BuyTokens:
		var q state.SettlementQuote
		events, q, err = p.buyTokens(env, ix)
		quote = &q
	case transaction.CancelOrder:
		events, err = p.cancelOrder(env)
	case transaction.UpdatePrice:
		events, err = p.updatePrice(env, ix)
	default:
		err = fail(ErrInvalidInstruction, "unhandled instruction %s", ix.Kind())
	}
	if err != nil {
		return nil, classify(err)
	}
	return &Outcome{Kind: ix.Kind(), Events: events, Quote: quote}, nil
}

// loadMarketplace reads and decodes the marketplace record
func loadMarketplace(env *Env, handle crypto.Pubkey) (*state.Marketplace, error) {
	data, err := env.Records.Load(handle)
	if err != nil {
		return nil, err
	}
	var m state.Marketplace
	if len(data) != state.MarketplaceSize {
		return nil, fail(ErrInvalidInstruction, "account %s is not a marketplace record", handle)
	}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("corrupt marketplace %s: %w", handle, err)
	}
	if !m.IsInitialized {
		return nil, fail(ErrNotInitialized, "marketplace %s is not initialized", handle)
	}
	return &m, nil
}

// loadOrder reads and decodes a sell order record
func loadOrder(env *Env, handle crypto.Pubkey) (*state.SellOrder, error) {
	data, err := env.Records.Load(handle)
	if err != nil {
		return nil, err
	}
	if len(data) != state.SellOrderSize {
		return nil, fail(ErrInvalidInstruction, "account %s is not a sell order record", handle)
	}
	var o state.SellOrder
	if err := o.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("corrupt sell order %s: %w", handle, err)
	}
	return &o, nil
}

// record is implemented by the persisted state types
type record interface {
	MarshalBinary() ([]byte, error)
}

func saveRecord(env *Env, handle crypto.Pubkey, r record) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	return env.Records.Store(handle, data)
}
