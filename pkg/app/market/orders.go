package market

import (
	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// createSellOrder posts a new order and delegates the offered tokens to the settlement authority
// Accounts: seller(signer), seller_token_account, order, token_mint
func (p *Processor) createSellOrder(env *Env, ix transaction.CreateSellOrder) ([]Event, error) {
	seller, sellerToken, handle, mint := env.Accounts[0], env.Accounts[1], env.Accounts[2], env.Accounts[3]

	if err := requireSigner(env.Signers, seller); err != nil {
		return nil, err
	}
	if ix.Amount == 0 || ix.Price == 0 {
		return nil, fail(ErrInvalidAmount, "amount=%d price=%d must both be positive", ix.Amount, ix.Price)
	}
	// the full order value must fit in a u64
	if _, err := checked.Mul(ix.Amount, ix.Price); err != nil {
		return nil, err
	}

	acc, err := env.Assets.Account(sellerToken)
	if err != nil {
		return nil, err
	}
	if acc.Owner != seller {
		return nil, fail(ErrInvalidTokenAccount, "token account %s is owned by %s", sellerToken, acc.Owner)
	}
	if acc.Mint != mint {
		return nil, fail(ErrInvalidMint, "token account %s holds mint %s, order names %s", sellerToken, acc.Mint, mint)
	}
	if acc.Amount < ix.Amount {
		return nil, fail(ErrInsufficientFunds, "token account %s holds %d, order needs %d", sellerToken, acc.Amount, ix.Amount)
	}

	if err := env.Allocator.CreateRecord(seller, handle, state.SellOrderSize); err != nil {
		return nil, err
	}
	order := &state.SellOrder{
		Seller:        seller,
		TokenMint:     mint,
		Amount:        ix.Amount,
		PricePerToken: ix.Price,
		CreatedAt:     env.Now.Unix(),
		IsActive:      true,
	}
	if err := saveRecord(env, handle, order); err != nil {
		return nil, err
	}
	if err := env.Assets.Approve(sellerToken, seller, p.authority, ix.Amount); err != nil {
		return nil, err
	}
	if err := env.Index.IndexOrder(seller, handle, sellerToken); err != nil {
		return nil, err
	}

	p.logger.Infow("sell_order_created",
		"order", handle,
		"seller", seller,
		"amount", ix.Amount,
		"price", ix.Price,
	)

	return []Event{{
		Type:      EventOrderCreated,
		Order:     handle,
		Seller:    seller,
		Mint:      mint,
		Amount:    ix.Amount,
		Price:     ix.Price,
		Timestamp: order.CreatedAt,
	}}, nil
}

// cancelOrder deactivates an order and withdraws its remaining delegation
// Accounts: seller(signer), seller_token_account, order
func (p *Processor) cancelOrder(env *Env) ([]Event, error) {
	seller, sellerToken, handle := env.Accounts[0], env.Accounts[1], env.Accounts[2]

	if err := requireSigner(env.Signers, seller); err != nil {
		return nil, err
	}
	order, err := loadOrder(env, handle)
	if err != nil {
		return nil, err
	}
	if err := requireOwner("order "+handle.String(), order.Seller, seller); err != nil {
		return nil, err
	}
	if !order.IsActive {
		return nil, fail(ErrOrderNotActive, "order %s is closed", handle)
	}
	if err := p.checkSellerTokenAccount(env, handle, sellerToken, order); err != nil {
		return nil, err
	}

	remaining := order.Amount
	order.IsActive = false
	if err := saveRecord(env, handle, order); err != nil {
		return nil, err
	}
	if err := env.Assets.Revoke(sellerToken, seller, remaining); err != nil {
		return nil, err
	}

	p.logger.Infow("sell_order_cancelled", "order", handle, "seller", seller, "remaining", remaining)

	return []Event{{
		Type:      EventOrderCancelled,
		Order:     handle,
		Seller:    seller,
		Mint:      order.TokenMint,
		Amount:    remaining,
		Price:     order.PricePerToken,
		Timestamp: env.Now.Unix(),
	}}, nil
}

// updatePrice reprices an active order
// Accounts: seller(signer), order
func (p *Processor) updatePrice(env *Env, ix transaction.UpdatePrice) ([]Event, error) {
	seller, handle := env.Accounts[0], env.Accounts[1]

	if err := requireSigner(env.Signers, seller); err != nil {
		return nil, err
	}
	if ix.NewPrice == 0 {
		return nil, fail(ErrInvalidAmount, "price must be positive")
	}
	order, err := loadOrder(env, handle)
	if err != nil {
		return nil, err
	}
	if err := requireOwner("order "+handle.String(), order.Seller, seller); err != nil {
		return nil, err
	}
	if !order.IsActive {
		return nil, fail(ErrOrderNotActive, "order %s is closed", handle)
	}
	if _, err := checked.Mul(order.Amount, ix.NewPrice); err != nil {
		return nil, err
	}

	order.PricePerToken = ix.NewPrice
	if err := saveRecord(env, handle, order); err != nil {
		return nil, err
	}

	p.logger.Infow("order_price_updated", "order", handle, "price", ix.NewPrice)

	return []Event{{
		Type:      EventPriceUpdated,
		Order:     handle,
		Seller:    seller,
		Mint:      order.TokenMint,
		Amount:    order.Amount,
		Price:     ix.NewPrice,
		Timestamp: env.Now.Unix(),
	}}, nil
}

// checkSellerTokenAccount verifies the named token account is the one the order was created from
func (p *Processor) checkSellerTokenAccount(env *Env, orderHandle, handle crypto.Pubkey, order *state.SellOrder) error {
	backing, ok, err := env.Index.OrderTokenAccount(orderHandle)
	if err != nil {
		return err
	}
	if !ok || backing != handle {
		return fail(ErrInvalidTokenAccount, "order %s is backed by token account %s, not %s", orderHandle, backing, handle)
	}
	acc, err := env.Assets.Account(handle)
	if err != nil {
		return err
	}
	if acc.Owner != order.Seller {
		return fail(ErrInvalidTokenAccount, "token account %s is owned by %s, not seller %s", handle, acc.Owner, order.Seller)
	}
	if acc.Mint != order.TokenMint {
		return fail(ErrInvalidMint, "token account %s holds mint %s, order trades %s", handle, acc.Mint, order.TokenMint)
	}
	return nil
}
