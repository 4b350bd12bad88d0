package market

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

const startingLamports = 1_000_000

var (
	mintHandle        = crypto.Pubkey{0x33}
	marketHandle      = crypto.Pubkey{0xA1}
	orderHandle       = crypto.Pubkey{0xB1}
	secondOrderHandle = crypto.Pubkey{0xB2}
	sellerToken       = crypto.Pubkey{0x51}
	buyerToken        = crypto.Pubkey{0x52}
	spareSellerToken  = crypto.Pubkey{0x5E}
)

// spareTokens is held in a second seller account of the same mint
const spareTokens = 500

// testingT is the part of *testing.T and *rapid.T the harness relies on
type testingT interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

type harness struct {
	t      testingT
	store  *storage.Store
	app    *App
	clock  *util.ManualClock
	sink   *recordingSink
	nonces map[crypto.Pubkey]uint64

	admin, seller, buyer, stranger *crypto.Signer
}

func keyFromByte(t testingT, b byte) *crypto.Signer {
	t.Helper()
	s, err := crypto.FromSeed(bytes.Repeat([]byte{b}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	return s
}

// newHarness opens an in-memory store seeded with lamports for every party,
// sellerTokens in the seller's token account and spareTokens in a second one
func newHarness(t *testing.T, sellerTokens uint64) *harness {
	t.Helper()
	h, closeFn := openHarness(t, sellerTokens)
	t.Cleanup(closeFn)
	return h
}

// openHarness is newHarness for callers that manage the store's lifetime,
// such as a property check iteration
func openHarness(t testingT, sellerTokens uint64) (*harness, func()) {
	t.Helper()
	store, err := storage.NewMemStore(1)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	closeFn := func() { store.Close() }

	h := &harness{
		t:        t,
		store:    store,
		clock:    util.NewManualClock(time.Unix(1_700_000_000, 0)),
		sink:     &recordingSink{},
		nonces:   make(map[crypto.Pubkey]uint64),
		admin:    keyFromByte(t, 1),
		seller:   keyFromByte(t, 2),
		buyer:    keyFromByte(t, 3),
		stranger: keyFromByte(t, 4),
	}

	g := &storage.Genesis{
		Balances: map[crypto.Pubkey]uint64{
			h.admin.Pubkey():    startingLamports,
			h.seller.Pubkey():   startingLamports,
			h.buyer.Pubkey():    startingLamports,
			h.stranger.Pubkey(): startingLamports,
		},
		TokenAccounts: []storage.GenesisTokenAccount{
			{Handle: sellerToken, Owner: h.seller.Pubkey(), Mint: mintHandle, Amount: sellerTokens},
			{Handle: spareSellerToken, Owner: h.seller.Pubkey(), Mint: mintHandle, Amount: spareTokens},
		},
	}
	if _, err := store.ApplyGenesis(g); err != nil {
		closeFn()
		t.Fatalf("ApplyGenesis: %v", err)
	}

	h.app, err = NewApp(store, Config{Domain: crypto.DefaultDomain(), Clock: h.clock})
	if err != nil {
		closeFn()
		t.Fatalf("NewApp: %v", err)
	}
	h.app.AddSink(h.sink)
	return h, closeFn
}

// submit signs ix with signers (first is fee payer) and applies it
func (h *harness) submit(ix transaction.Instruction, accounts []crypto.Pubkey, signers ...*crypto.Signer) (*Receipt, error) {
	payer := signers[0].Pubkey()
	h.nonces[payer]++
	tx := transaction.New(ix, accounts, h.nonces[payer])
	tx.Sign(h.app.Domain(), signers...)
	return h.app.Apply(context.Background(), tx)
}

func (h *harness) mustSubmit(ix transaction.Instruction, accounts []crypto.Pubkey, signers ...*crypto.Signer) *Receipt {
	h.t.Helper()
	r, err := h.submit(ix, accounts, signers...)
	if err != nil {
		h.t.Fatalf("%s failed: %v", ix.Kind(), err)
	}
	return r
}

func (h *harness) initialize(fee uint16) {
	h.t.Helper()
	h.mustSubmit(transaction.InitializeMarketplace{FeePercentage: fee},
		[]crypto.Pubkey{h.admin.Pubkey(), marketHandle}, h.admin)
}

func (h *harness) createAccounts(order crypto.Pubkey) []crypto.Pubkey {
	return []crypto.Pubkey{h.seller.Pubkey(), sellerToken, order, mintHandle}
}

func (h *harness) buyAccounts(order crypto.Pubkey) []crypto.Pubkey {
	return []crypto.Pubkey{
		h.buyer.Pubkey(), buyerToken, h.seller.Pubkey(), sellerToken,
		order, marketHandle, h.admin.Pubkey(), mintHandle,
	}
}

func (h *harness) order(handle crypto.Pubkey) *state.SellOrder {
	h.t.Helper()
	o, err := h.app.Order(handle)
	if err != nil {
		h.t.Fatalf("Order(%s): %v", handle, err)
	}
	return o
}

func (h *harness) marketplace() *state.Marketplace {
	h.t.Helper()
	m, err := h.app.Marketplace(marketHandle)
	if err != nil {
		h.t.Fatalf("Marketplace: %v", err)
	}
	return m
}

func (h *harness) balance(s *crypto.Signer) uint64 {
	h.t.Helper()
	bal, err := h.app.Balance(s.Pubkey())
	if err != nil {
		h.t.Fatalf("Balance: %v", err)
	}
	return bal
}

func (h *harness) tokens(handle crypto.Pubkey) uint64 {
	h.t.Helper()
	acc, err := h.app.TokenAccount(handle)
	if err != nil {
		return 0
	}
	return acc.Amount
}

func (h *harness) rawRecord(handle crypto.Pubkey) []byte {
	h.t.Helper()
	data, err := h.store.Record(handle)
	if err != nil {
		h.t.Fatalf("Record(%s): %v", handle, err)
	}
	return data
}

// snapshot captures every value a rejected command must leave untouched
type snapshot struct {
	order, market             []byte
	admin, seller, buyer      uint64
	sellerTokens, buyerTokens uint64
}

func (h *harness) snapshot() snapshot {
	var s snapshot
	s.order, _ = h.store.Record(orderHandle)
	s.market, _ = h.store.Record(marketHandle)
	s.admin = h.balance(h.admin)
	s.seller = h.balance(h.seller)
	s.buyer = h.balance(h.buyer)
	s.sellerTokens = h.tokens(sellerToken)
	s.buyerTokens = h.tokens(buyerToken)
	return s
}

func (h *harness) requireUnchanged(before snapshot) {
	h.t.Helper()
	after := h.snapshot()
	if !bytes.Equal(before.order, after.order) {
		h.t.Errorf("order record changed:\n before %x\n after  %x", before.order, after.order)
	}
	if !bytes.Equal(before.market, after.market) {
		h.t.Errorf("marketplace record changed")
	}
	if before.admin != after.admin || before.seller != after.seller || before.buyer != after.buyer {
		h.t.Errorf("balances changed: before %+v after %+v", before, after)
	}
	if before.sellerTokens != after.sellerTokens || before.buyerTokens != after.buyerTokens {
		h.t.Errorf("token balances changed: before %+v after %+v", before, after)
	}
}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got success", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("got kind %v (%v), want %v", got, err, kind)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}
