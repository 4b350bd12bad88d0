package market

import (
	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// buyTokens settles a fill against one order
// Accounts: buyer(signer), buyer_token_account, seller, seller_token_account, order, marketplace, admin, token_mint
//
// Every leg runs inside the caller's staged transaction. If any step fails the
// caller rolls back, so lamports never move without the matching tokens.
func (p *Processor) buyTokens(env *Env, ix transaction.BuyTokens) ([]Event, state.SettlementQuote, error) {
	var none state.SettlementQuote
	a := env.Accounts
	buyer, buyerToken, seller, sellerToken := a[0], a[1], a[2], a[3]
	handle, marketHandle, admin, mint := a[4], a[5], a[6], a[7]

	// 1. buyer must sign
	if err := requireSigner(env.Signers, buyer); err != nil {
		return nil, none, err
	}

	// 2. load order and marketplace
	order, err := loadOrder(env, handle)
	if err != nil {
		return nil, none, err
	}
	market, err := loadMarketplace(env, marketHandle)
	if err != nil {
		return nil, none, err
	}

	// 3-4. order must be open and large enough
	if !order.IsActive {
		return nil, none, fail(ErrOrderNotActive, "order %s is closed", handle)
	}
	if ix.Amount == 0 || ix.Amount > order.Amount {
		return nil, none, fail(ErrInvalidAmount, "requested %d, order %s has %d", ix.Amount, handle, order.Amount)
	}

	// referenced accounts must be the ones the records name
	if err := requireOwner("order "+handle.String(), order.Seller, seller); err != nil {
		return nil, none, err
	}
	if err := requireOwner("marketplace fees", market.Admin, admin); err != nil {
		return nil, none, err
	}
	if mint != order.TokenMint {
		return nil, none, fail(ErrInvalidMint, "order %s trades %s, not %s", handle, order.TokenMint, mint)
	}
	if err := p.checkSellerTokenAccount(env, handle, sellerToken, order); err != nil {
		return nil, none, err
	}
	if err := p.checkBuyerTokenAccount(env, buyerToken, buyer, order); err != nil {
		return nil, none, err
	}

	// 5-7. price, fee, proceeds
	quote, err := state.Quote(order.PricePerToken, ix.Amount, market.FeePercentage)
	if err != nil {
		return nil, none, err
	}

	// 8. buyer must cover the full price
	balance, err := env.Native.Balance(buyer)
	if err != nil {
		return nil, none, err
	}
	if balance < quote.TotalPrice {
		return nil, none, fail(ErrInsufficientFunds, "buyer %s holds %d lamports, needs %d", buyer, balance, quote.TotalPrice)
	}

	// 9-10. currency legs
	if err := env.Native.Transfer(buyer, seller, quote.SellerProceeds); err != nil {
		return nil, none, err
	}
	if quote.Fee > 0 {
		if err := env.Native.Transfer(buyer, admin, quote.Fee); err != nil {
			return nil, none, err
		}
	}

	// 11. asset leg, authorized by the seller's delegation to the settlement authority
	if err := env.Assets.Transfer(sellerToken, buyerToken, p.authority, ix.Amount); err != nil {
		return nil, none, err
	}

	// 12-14. update and persist records
	if err := order.Fill(ix.Amount); err != nil {
		return nil, none, err
	}
	if err := market.RecordTrade(quote); err != nil {
		return nil, none, err
	}
	if err := saveRecord(env, handle, order); err != nil {
		return nil, none, err
	}
	if err := saveRecord(env, marketHandle, market); err != nil {
		return nil, none, err
	}

	p.logger.Infow("tokens_purchased",
		"order", handle,
		"buyer", buyer,
		"amount", ix.Amount,
		"total_price", quote.TotalPrice,
		"fee", quote.Fee,
		"remaining", order.Amount,
	)

	return []Event{{
		Type:           EventTrade,
		Marketplace:    marketHandle,
		Order:          handle,
		Seller:         seller,
		Buyer:          buyer,
		Mint:           order.TokenMint,
		Amount:         ix.Amount,
		Price:          order.PricePerToken,
		FeePercentage:  market.FeePercentage,
		TotalPrice:     quote.TotalPrice,
		Fee:            quote.Fee,
		SellerProceeds: quote.SellerProceeds,
		Timestamp:      env.Now.Unix(),
	}}, quote, nil
}

// checkBuyerTokenAccount validates the receiving account, opening it on first receipt
func (p *Processor) checkBuyerTokenAccount(env *Env, handle, buyer crypto.Pubkey, order *state.SellOrder) error {
	acc, err := env.Assets.Account(handle)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return env.Assets.Open(handle, buyer, order.TokenMint)
	}
	if err != nil {
		return err
	}
	if acc.Owner != buyer {
		return fail(ErrInvalidTokenAccount, "token account %s is owned by %s, not buyer %s", handle, acc.Owner, buyer)
	}
	if acc.Mint != order.TokenMint {
		return fail(ErrInvalidMint, "token account %s holds mint %s, order trades %s", handle, acc.Mint, order.TokenMint)
	}
	return nil
}
