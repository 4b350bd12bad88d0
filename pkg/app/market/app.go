package market

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// ErrFaucetDisabled is returned by Airdrop when no faucet is configured
var ErrFaucetDisabled = errors.New("faucet disabled")

// Config holds App dependencies that have sensible defaults
type Config struct {
	Domain            crypto.Domain
	Clock             util.Clock
	FaucetMaxLamports uint64 // 0 disables the faucet
	Logger            *zap.SugaredLogger
}

// Receipt describes a committed transaction
type Receipt struct {
	TxID        string                 `json:"tx_id"`
	Instruction string                 `json:"instruction"`
	Quote       *state.SettlementQuote `json:"quote,omitempty"`
	Events      []Event                `json:"events"`
}

// App applies signed transactions to the store
// Transactions touching disjoint records run concurrently; overlapping ones serialize on record locks
type App struct {
	store     *storage.Store
	locks     *storage.Locks
	verifier  *transaction.Verifier
	processor *Processor
	clock     util.Clock
	faucetMax uint64
	sinks     []Sink
	logger    *zap.SugaredLogger
}

// NewApp creates an App over store
func NewApp(store *storage.Store, cfg Config) (*App, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	processor, err := NewProcessor(cfg.Domain.ProgramID, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &App{
		store:     store,
		locks:     storage.NewLocks(),
		verifier:  transaction.NewVerifier(cfg.Domain),
		processor: processor,
		clock:     cfg.Clock,
		faucetMax: cfg.FaucetMaxLamports,
		logger:    cfg.Logger,
	}, nil
}

// AddSink registers a post-commit event consumer
// Sinks must be added before the App starts serving
func (a *App) AddSink(s Sink) {
	a.sinks = append(a.sinks, s)
}

// Domain returns the signing domain transactions must be signed for
func (a *App) Domain() crypto.Domain {
	return a.verifier.Domain()
}

// Authority returns the settlement authority sellers delegate to
func (a *App) Authority() crypto.Pubkey {
	return a.processor.Authority()
}

// Submit parses raw JSON and applies it
func (a *App) Submit(ctx context.Context, raw []byte) (*Receipt, error) {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		a.logger.Warnw("tx_rejected", "reason", err)
		return nil, errors.Mark(err, ErrInvalidInstruction)
	}
	return a.Apply(ctx, tx)
}

// Apply verifies and executes one transaction atomically
// Flow: verify -> lock -> begin -> nonce -> route -> commit -> release -> publish
func (a *App) Apply(ctx context.Context, tx *transaction.SignedTransaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := tx.ID(a.verifier.Domain())

	signers, err := a.verifier.Verify(tx)
	if err != nil {
		a.logger.Warnw("tx_rejected", "tx_id", id, "reason", err)
		return nil, classify(err)
	}
	payer, _ := tx.FeePayer()

	handles := make([]crypto.Pubkey, 0, len(tx.Accounts)+1)
	handles = append(handles, tx.Accounts...)
	handles = append(handles, payer)
	release := a.locks.Acquire(handles...)
	defer release()

	receipt, err := a.execute(tx, id, payer, signers)
	if err != nil {
		if KindOf(err) != nil {
			a.logger.Infow("tx_rejected", "tx_id", id, "reason", err)
		} else {
			a.logger.Errorw("tx_failed", "tx_id", id, "error", err)
		}
		return nil, err
	}
	release()

	a.logger.Infow("tx_applied", "tx_id", id, "instruction", receipt.Instruction, "payer", payer)
	// committed events are delivered even if the caller has gone away
	a.publish(context.WithoutCancel(ctx), receipt.Events)
	return receipt, nil
}

// execute runs the command inside one staged transaction, committing only on success
func (a *App) execute(tx *transaction.SignedTransaction, id string, payer crypto.Pubkey, signers transaction.SignerSet) (*Receipt, error) {
	txn := a.store.Begin()
	defer txn.Rollback()

	last, err := txn.Nonce(payer)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	if tx.Nonce <= last {
		return nil, fail(ErrNotAuthorized, "nonce %d not above %d for %s", tx.Nonce, last, payer)
	}
	if err := txn.SetNonce(payer, tx.Nonce); err != nil {
		return nil, err
	}

	env := &Env{
		Accounts:  tx.Accounts,
		Signers:   signers,
		Records:   txn,
		Allocator: txn,
		Assets:    txn.Assets(),
		Native:    txn.Native(),
		Index:     txn,
		Now:       a.clock.Now(),
	}
	out, err := a.processor.Process(env, tx.Instruction)
	if err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", id, err)
	}

	for i := range out.Events {
		out.Events[i].TxID = id
	}
	return &Receipt{
		TxID:        id,
		Instruction: out.Kind.String(),
		Quote:       out.Quote,
		Events:      out.Events,
	}, nil
}

func (a *App) publish(ctx context.Context, events []Event) {
	for _, ev := range events {
		for _, s := range a.sinks {
			if err := s.Publish(ctx, ev); err != nil {
				a.logger.Warnw("sink_publish_failed", "type", ev.Type, "tx_id", ev.TxID, "error", err)
			}
		}
	}
}

// Marketplace returns a committed marketplace record
func (a *App) Marketplace(handle crypto.Pubkey) (*state.Marketplace, error) {
	data, err := a.store.Record(handle)
	if err != nil {
		return nil, classify(err)
	}
	if len(data) != state.MarketplaceSize {
		return nil, fail(ErrInvalidInstruction, "account %s is not a marketplace record", handle)
	}
	var m state.Marketplace
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &m, nil
}

// Order returns a committed sell order
func (a *App) Order(handle crypto.Pubkey) (*state.SellOrder, error) {
	data, err := a.store.Record(handle)
	if err != nil {
		return nil, classify(err)
	}
	if len(data) != state.SellOrderSize {
		return nil, fail(ErrInvalidInstruction, "account %s is not a sell order record", handle)
	}
	var o state.SellOrder
	if err := o.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &o, nil
}

// OrdersBySeller lists every order a seller has posted
func (a *App) OrdersBySeller(seller crypto.Pubkey) ([]crypto.Pubkey, error) {
	return a.store.OrdersBySeller(seller)
}

// Balance returns the committed lamport balance of an identity
func (a *App) Balance(id crypto.Pubkey) (uint64, error) {
	return a.store.Balance(id)
}

// TokenAccount returns a committed token account
func (a *App) TokenAccount(handle crypto.Pubkey) (ledger.TokenAccount, error) {
	acc, err := a.store.TokenAccount(handle)
	if err != nil {
		return ledger.TokenAccount{}, classify(err)
	}
	return acc, nil
}

// Nonce returns the last accepted nonce of an identity
func (a *App) Nonce(id crypto.Pubkey) (uint64, error) {
	return a.store.Nonce(id)
}

// Airdrop credits up to the faucet cap to id and returns the new balance
// Requests above the cap are clamped, not rejected
func (a *App) Airdrop(ctx context.Context, id crypto.Pubkey, lamports uint64) (credited, balance uint64, err error) {
	if a.faucetMax == 0 {
		return 0, 0, ErrFaucetDisabled
	}
	if lamports == 0 {
		return 0, 0, fail(ErrInvalidAmount, "airdrop amount must be positive")
	}
	if lamports > a.faucetMax {
		lamports = a.faucetMax
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	release := a.locks.Acquire(id)
	defer release()

	txn := a.store.Begin()
	defer txn.Rollback()
	native := txn.Native()
	if err := native.Credit(id, lamports); err != nil {
		return 0, 0, classify(err)
	}
	balance, err = native.Balance(id)
	if err != nil {
		return 0, 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, 0, err
	}

	a.logger.Infow("airdrop", "recipient", id, "lamports", lamports, "balance", balance)
	return lamports, balance, nil
}

// LoadGenesis seeds balances and token accounts from a genesis file
// Returns false if the store was already seeded
func (a *App) LoadGenesis(path string) (bool, error) {
	g, err := storage.LoadGenesisFile(path)
	if err != nil {
		return false, err
	}
	applied, err := a.store.ApplyGenesis(g)
	if err != nil {
		return false, err
	}
	if applied {
		a.logger.Infow("genesis_applied", "file", path, "balances", len(g.Balances), "token_accounts", len(g.TokenAccounts))
	}
	return applied, nil
}
