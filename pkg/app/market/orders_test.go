package market

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

func TestInitializeMarketplace(t *testing.T) {
	h := newHarness(t, 0)
	h.initialize(250)

	m := h.marketplace()
	want := state.Marketplace{Admin: h.admin.Pubkey(), FeePercentage: 250, IsInitialized: true}
	if *m != want {
		t.Errorf("got %+v, want %+v", *m, want)
	}
	if got := h.balance(h.admin); got != startingLamports-marketRent {
		t.Errorf("admin paid %d rent, want %d", startingLamports-got, marketRent)
	}
	if ev := h.sink.events[0]; ev.Type != EventMarketplaceInitialized || ev.Admin != h.admin.Pubkey() || !ev.Seller.IsZero() || ev.FeePercentage != 250 {
		t.Errorf("init event = %+v", ev)
	}

	// a second initialize never overwrites the record
	before := h.rawRecord(marketHandle)
	_, err := h.submit(transaction.InitializeMarketplace{FeePercentage: 10},
		[]crypto.Pubkey{h.stranger.Pubkey(), marketHandle}, h.stranger)
	requireKind(t, err, ErrAlreadyInitialized)
	if string(h.rawRecord(marketHandle)) != string(before) {
		t.Error("re-initialization changed the marketplace")
	}
}

func TestInitializeRejections(t *testing.T) {
	h := newHarness(t, 0)

	_, err := h.submit(transaction.InitializeMarketplace{FeePercentage: 1001},
		[]crypto.Pubkey{h.admin.Pubkey(), marketHandle}, h.admin)
	requireKind(t, err, ErrInvalidFeePercentage)

	_, err = h.submit(transaction.InitializeMarketplace{FeePercentage: 100},
		[]crypto.Pubkey{h.admin.Pubkey(), marketHandle}, h.stranger)
	requireKind(t, err, ErrNotAuthorized)

	if _, err := h.app.Marketplace(marketHandle); KindOf(err) != ErrNotInitialized {
		t.Errorf("marketplace should not exist, got %v", err)
	}

	// the cap itself is allowed
	h.initialize(state.MaxFeeBasisPoints)
}

func TestCreateSellOrderValidation(t *testing.T) {
	tests := []struct {
		name   string
		ix     transaction.CreateSellOrder
		mutate func(h *harness, a []crypto.Pubkey) []crypto.Pubkey
		signer func(h *harness) *crypto.Signer
		want   error
	}{
		{name: "zero amount", ix: transaction.CreateSellOrder{Amount: 0, Price: 10}, want: ErrInvalidAmount},
		{name: "zero price", ix: transaction.CreateSellOrder{Amount: 10, Price: 0}, want: ErrInvalidAmount},
		{name: "value overflows", ix: transaction.CreateSellOrder{Amount: 2, Price: math.MaxUint64}, want: ErrNumericalOverflow},
		{name: "more than held", ix: transaction.CreateSellOrder{Amount: 1001, Price: 10}, want: ErrInsufficientFunds},
		{
			name: "mint differs from token account",
			ix:   transaction.CreateSellOrder{Amount: 10, Price: 10},
			mutate: func(h *harness, a []crypto.Pubkey) []crypto.Pubkey {
				a[3] = crypto.Pubkey{0x34}
				return a
			},
			want: ErrInvalidMint,
		},
		{
			name: "token account missing",
			ix:   transaction.CreateSellOrder{Amount: 10, Price: 10},
			mutate: func(h *harness, a []crypto.Pubkey) []crypto.Pubkey {
				a[1] = crypto.Pubkey{0x5F}
				return a
			},
			want: ErrInvalidTokenAccount,
		},
		{
			name: "token account owned by someone else",
			ix:   transaction.CreateSellOrder{Amount: 10, Price: 10},
			mutate: func(h *harness, a []crypto.Pubkey) []crypto.Pubkey {
				a[0] = h.stranger.Pubkey()
				return a
			},
			signer: func(h *harness) *crypto.Signer { return h.stranger },
			want:   ErrInvalidTokenAccount,
		},
		{
			name:   "seller did not sign",
			ix:     transaction.CreateSellOrder{Amount: 10, Price: 10},
			signer: func(h *harness) *crypto.Signer { return h.stranger },
			want:   ErrNotAuthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1000)
			accounts := h.createAccounts(orderHandle)
			if tt.mutate != nil {
				accounts = tt.mutate(h, accounts)
			}
			signer := h.seller
			if tt.signer != nil {
				signer = tt.signer(h)
			}
			sellerBefore := h.balance(h.seller)

			_, err := h.submit(tt.ix, accounts, signer)
			requireKind(t, err, tt.want)

			if _, err := h.store.Record(orderHandle); err == nil {
				t.Error("rejected order was allocated")
			}
			if h.balance(h.seller) != sellerBefore {
				t.Error("rejected order charged rent")
			}
		})
	}
}

func TestCreateSellOrder(t *testing.T) {
	h := newHarness(t, 1000)
	r := h.mustSubmit(transaction.CreateSellOrder{Amount: 1000, Price: 10}, h.createAccounts(orderHandle), h.seller)

	o := h.order(orderHandle)
	want := state.SellOrder{
		Seller:        h.seller.Pubkey(),
		TokenMint:     mintHandle,
		Amount:        1000,
		PricePerToken: 10,
		CreatedAt:     h.clock.Now().Unix(),
		IsActive:      true,
	}
	if *o != want {
		t.Errorf("got %+v, want %+v", *o, want)
	}

	// tokens stay with the seller, delegated to the settlement authority
	acc, _ := h.app.TokenAccount(sellerToken)
	if acc.Amount != 1000 || acc.Delegate != h.app.Authority() || acc.DelegatedAmount != 1000 {
		t.Errorf("seller token account = %+v", acc)
	}

	orders, err := h.app.OrdersBySeller(h.seller.Pubkey())
	if err != nil || len(orders) != 1 || orders[0] != orderHandle {
		t.Errorf("OrdersBySeller = %v, %v", orders, err)
	}

	if len(r.Events) != 1 || r.Events[0].Type != EventOrderCreated || r.Events[0].TxID != r.TxID {
		t.Errorf("events = %+v", r.Events)
	}

	_, err = h.submit(transaction.CreateSellOrder{Amount: 5, Price: 10}, h.createAccounts(orderHandle), h.seller)
	requireKind(t, err, ErrAlreadyInitialized)
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t, 1000)
	h.initialize(250)
	h.mustSubmit(transaction.CreateSellOrder{Amount: 1000, Price: 10}, h.createAccounts(orderHandle), h.seller)
	h.mustSubmit(transaction.BuyTokens{Amount: 400}, h.buyAccounts(orderHandle), h.buyer)

	cancel := []crypto.Pubkey{h.seller.Pubkey(), sellerToken, orderHandle}
	h.mustSubmit(transaction.CancelOrder{}, cancel, h.seller)

	o := h.order(orderHandle)
	if o.IsActive || o.Amount != 600 {
		t.Errorf("order active=%v amount=%d, want false 600", o.IsActive, o.Amount)
	}
	acc, _ := h.app.TokenAccount(sellerToken)
	if acc.HasDelegate() {
		t.Errorf("remaining delegation not revoked: %+v", acc)
	}
	if acc.Amount != 600 {
		t.Errorf("seller tokens = %d, want 600", acc.Amount)
	}

	// re-cancel
	before := h.snapshot()
	_, err := h.submit(transaction.CancelOrder{}, cancel, h.seller)
	requireKind(t, err, ErrOrderNotActive)
	h.requireUnchanged(before)

	// cancelled orders cannot be bought or repriced
	_, err = h.submit(transaction.BuyTokens{Amount: 1}, h.buyAccounts(orderHandle), h.buyer)
	requireKind(t, err, ErrOrderNotActive)
	_, err = h.submit(transaction.UpdatePrice{NewPrice: 20}, []crypto.Pubkey{h.seller.Pubkey(), orderHandle}, h.seller)
	requireKind(t, err, ErrOrderNotActive)
}

func TestCancelKeepsOtherOrdersDelegation(t *testing.T) {
	h := newHarness(t, 1000)
	h.mustSubmit(transaction.CreateSellOrder{Amount: 300, Price: 10}, h.createAccounts(orderHandle), h.seller)
	h.mustSubmit(transaction.CreateSellOrder{Amount: 200, Price: 10}, h.createAccounts(secondOrderHandle), h.seller)

	h.mustSubmit(transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), sellerToken, orderHandle}, h.seller)

	acc, _ := h.app.TokenAccount(sellerToken)
	if acc.Delegate != h.app.Authority() || acc.DelegatedAmount != 200 {
		t.Errorf("seller token account = %+v, want 200 still delegated", acc)
	}
}

func TestOrderBoundToBackingTokenAccount(t *testing.T) {
	h := newHarness(t, 1000)
	h.initialize(250)
	h.mustSubmit(transaction.CreateSellOrder{Amount: 100, Price: 10}, h.createAccounts(orderHandle), h.seller)

	// a second account of the same seller and mint never backed the order
	before := h.snapshot()
	_, err := h.submit(transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), spareSellerToken, orderHandle}, h.seller)
	requireKind(t, err, ErrInvalidTokenAccount)
	h.requireUnchanged(before)
	if !h.order(orderHandle).IsActive {
		t.Fatal("order closed by cancel naming another token account")
	}

	buy := h.buyAccounts(orderHandle)
	buy[3] = spareSellerToken
	_, err = h.submit(transaction.BuyTokens{Amount: 10}, buy, h.buyer)
	requireKind(t, err, ErrInvalidTokenAccount)
	h.requireUnchanged(before)
	if h.tokens(spareSellerToken) != spareTokens {
		t.Errorf("spare tokens = %d, want %d", h.tokens(spareSellerToken), spareTokens)
	}

	// an order created from the spare account is bound to it instead
	created := h.clock.Advance(time.Minute)
	spareCreate := []crypto.Pubkey{h.seller.Pubkey(), spareSellerToken, secondOrderHandle, mintHandle}
	h.mustSubmit(transaction.CreateSellOrder{Amount: 50, Price: 10}, spareCreate, h.seller)
	if got := h.order(secondOrderHandle).CreatedAt; got != created.Unix() {
		t.Errorf("created_at = %d, want %d", got, created.Unix())
	}
	_, err = h.submit(transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), sellerToken, secondOrderHandle}, h.seller)
	requireKind(t, err, ErrInvalidTokenAccount)

	h.mustSubmit(transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), sellerToken, orderHandle}, h.seller)
	h.mustSubmit(transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), spareSellerToken, secondOrderHandle}, h.seller)
	for _, handle := range []crypto.Pubkey{sellerToken, spareSellerToken} {
		acc, _ := h.app.TokenAccount(handle)
		if acc.HasDelegate() || acc.DelegatedAmount != 0 {
			t.Errorf("token account %s still delegated after cancel: %+v", handle, acc)
		}
	}
}

func TestUpdatePrice(t *testing.T) {
	h := newHarness(t, 1000)
	h.initialize(250)
	h.mustSubmit(transaction.CreateSellOrder{Amount: 1000, Price: 10}, h.createAccounts(orderHandle), h.seller)

	update := []crypto.Pubkey{h.seller.Pubkey(), orderHandle}
	_, err := h.submit(transaction.UpdatePrice{NewPrice: 0}, update, h.seller)
	requireKind(t, err, ErrInvalidAmount)

	h.mustSubmit(transaction.UpdatePrice{NewPrice: 20}, update, h.seller)
	if o := h.order(orderHandle); o.PricePerToken != 20 {
		t.Errorf("price = %d, want 20", o.PricePerToken)
	}

	r := h.mustSubmit(transaction.BuyTokens{Amount: 100}, h.buyAccounts(orderHandle), h.buyer)
	if r.Quote.TotalPrice != 2000 || r.Quote.Fee != 50 {
		t.Errorf("quote after reprice = %+v", r.Quote)
	}
}

func TestOnlySellerMutatesOrder(t *testing.T) {
	h := newHarness(t, 1000)
	h.mustSubmit(transaction.CreateSellOrder{Amount: 1000, Price: 10}, h.createAccounts(orderHandle), h.seller)

	tests := []struct {
		name     string
		ix       transaction.Instruction
		accounts []crypto.Pubkey
		signer   *crypto.Signer
	}{
		{"cancel by stranger", transaction.CancelOrder{}, []crypto.Pubkey{h.stranger.Pubkey(), sellerToken, orderHandle}, h.stranger},
		{"update by stranger", transaction.UpdatePrice{NewPrice: 1}, []crypto.Pubkey{h.stranger.Pubkey(), orderHandle}, h.stranger},
		{"cancel naming seller without signature", transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), sellerToken, orderHandle}, h.stranger},
		{"update naming seller without signature", transaction.UpdatePrice{NewPrice: 1}, []crypto.Pubkey{h.seller.Pubkey(), orderHandle}, h.stranger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.rawRecord(orderHandle)
			_, err := h.submit(tt.ix, tt.accounts, tt.signer)
			requireKind(t, err, ErrNotAuthorized)
			if string(h.rawRecord(orderHandle)) != string(before) {
				t.Error("order changed")
			}
		})
	}
}

func TestReplayIsRejected(t *testing.T) {
	h := newHarness(t, 1000)
	tx := transaction.New(transaction.CreateSellOrder{Amount: 10, Price: 10}, h.createAccounts(orderHandle), 5)
	tx.Sign(h.app.Domain(), h.seller)

	if _, err := h.app.Apply(context.Background(), tx); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err := h.app.Apply(context.Background(), tx)
	requireKind(t, err, ErrNotAuthorized)

	if n, _ := h.app.Nonce(h.seller.Pubkey()); n != 5 {
		t.Errorf("nonce = %d, want 5", n)
	}
}

func TestRejectedTransactionKeepsNonce(t *testing.T) {
	h := newHarness(t, 1000)
	_, err := h.submit(transaction.CreateSellOrder{Amount: 0, Price: 10}, h.createAccounts(orderHandle), h.seller)
	requireKind(t, err, ErrInvalidAmount)

	if n, _ := h.app.Nonce(h.seller.Pubkey()); n != 0 {
		t.Errorf("nonce advanced to %d by a rejected transaction", n)
	}
}

func TestSubmitMalformed(t *testing.T) {
	h := newHarness(t, 0)

	_, err := h.app.Submit(context.Background(), []byte("{"))
	requireKind(t, err, ErrInvalidInstruction)

	tx := &transaction.SignedTransaction{
		Instruction: []byte{9},
		Accounts:    []crypto.Pubkey{h.admin.Pubkey()},
		Nonce:       1,
	}
	tx.Sign(h.app.Domain(), h.admin)
	raw, _ := tx.Serialize()
	_, err = h.app.Submit(context.Background(), raw)
	requireKind(t, err, ErrInvalidInstruction)

	tx.Signatures[0].Signature = "0x00"
	raw, _ = tx.Serialize()
	_, err = h.app.Submit(context.Background(), raw)
	requireKind(t, err, ErrNotAuthorized)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	h := newHarness(t, 1000)
	failing := sinkFunc(func(context.Context, Event) error { return errors.New("broker down") })
	h.app.AddSink(failing)

	h.initialize(250)
	h.mustSubmit(transaction.CreateSellOrder{Amount: 1000, Price: 10}, h.createAccounts(orderHandle), h.seller)
	h.mustSubmit(transaction.UpdatePrice{NewPrice: 11}, []crypto.Pubkey{h.seller.Pubkey(), orderHandle}, h.seller)
	h.mustSubmit(transaction.BuyTokens{Amount: 1}, h.buyAccounts(orderHandle), h.buyer)
	h.mustSubmit(transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), sellerToken, orderHandle}, h.seller)
	h.submit(transaction.CancelOrder{}, []crypto.Pubkey{h.seller.Pubkey(), sellerToken, orderHandle}, h.seller)

	want := []EventType{EventMarketplaceInitialized, EventOrderCreated, EventPriceUpdated, EventTrade, EventOrderCancelled}
	got := h.sink.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublishOutlivesCallerContext(t *testing.T) {
	h := newHarness(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []error
	h.app.AddSink(sinkFunc(func(context.Context, Event) error {
		cancel()
		return nil
	}))
	h.app.AddSink(sinkFunc(func(ctx context.Context, _ Event) error {
		seen = append(seen, ctx.Err())
		return nil
	}))

	tx := transaction.New(transaction.CreateSellOrder{Amount: 10, Price: 10}, h.createAccounts(orderHandle), 1)
	tx.Sign(h.app.Domain(), h.seller)
	if _, err := h.app.Apply(ctx, tx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(seen) != 1 || seen[0] != nil {
		t.Errorf("sink saw context errors %v, want one live context", seen)
	}
}

func TestAirdrop(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	if _, _, err := h.app.Airdrop(ctx, h.buyer.Pubkey(), 10); !errors.Is(err, ErrFaucetDisabled) {
		t.Fatalf("got %v, want ErrFaucetDisabled", err)
	}

	h.app.faucetMax = 2_000_000_000
	credited, balance, err := h.app.Airdrop(ctx, h.buyer.Pubkey(), 5_000_000_000)
	if err != nil {
		t.Fatalf("Airdrop: %v", err)
	}
	if credited != 2_000_000_000 || balance != startingLamports+2_000_000_000 {
		t.Errorf("credited=%d balance=%d", credited, balance)
	}

	_, _, err = h.app.Airdrop(ctx, h.buyer.Pubkey(), 0)
	requireKind(t, err, ErrInvalidAmount)
}

func TestErrorCodes(t *testing.T) {
	for i, kind := range kinds {
		code, ok := Code(fail(kind, "detail %d", i))
		if !ok || code != uint32(i) {
			t.Errorf("%v: code=%d ok=%v, want %d", kind, code, ok, i)
		}
	}
	if _, ok := Code(errors.New("disk on fire")); ok {
		t.Error("infrastructure error should have no code")
	}
	if code, _ := Code(ErrInvalidMint); code != 10 {
		t.Errorf("InvalidMint code = %d, want 10", code)
	}
}

type sinkFunc func(context.Context, Event) error

func (f sinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

func TestLoadGenesisAppliesOnce(t *testing.T) {
	store, err := storage.NewMemStore(1)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	defer store.Close()
	app, err := NewApp(store, Config{})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	owner := keyFromByte(t, 9).Pubkey()
	doc := `{"balances":{"` + owner.String() + `":42},"token_accounts":[` +
		`{"handle":"` + sellerToken.String() + `","owner":"` + owner.String() +
		`","mint":"` + mintHandle.String() + `","amount":7}]}`
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	applied, err := app.LoadGenesis(path)
	if err != nil || !applied {
		t.Fatalf("first LoadGenesis = %v, %v", applied, err)
	}
	if bal, _ := app.Balance(owner); bal != 42 {
		t.Errorf("balance = %d, want 42", bal)
	}
	if acc, _ := app.TokenAccount(sellerToken); acc.Amount != 7 || acc.Owner != owner {
		t.Errorf("token account = %+v", acc)
	}

	applied, err = app.LoadGenesis(path)
	if err != nil || applied {
		t.Errorf("second LoadGenesis = %v, %v, want skipped", applied, err)
	}
	if bal, _ := app.Balance(owner); bal != 42 {
		t.Errorf("balance after re-apply = %d, want 42", bal)
	}
}
