package api

import (
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/market"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// MarketplaceInfo is the marketplace singleton plus its handle
type MarketplaceInfo struct {
	Handle string `json:"handle"`
	state.Marketplace
}

// OrderInfo is one sell order plus its handle
type OrderInfo struct {
	Handle string `json:"handle"`
	state.SellOrder
}

// TokenAccountInfo is an asset ledger account plus its handle
type TokenAccountInfo struct {
	Handle          string         `json:"handle"`
	Owner           crypto.Pubkey  `json:"owner"`
	Mint            crypto.Pubkey  `json:"mint"`
	Amount          uint64         `json:"amount"`
	Delegate        *crypto.Pubkey `json:"delegate,omitempty"`
	DelegatedAmount uint64         `json:"delegatedAmount"`
}

func newTokenAccountInfo(handle crypto.Pubkey, acc ledger.TokenAccount) TokenAccountInfo {
	info := TokenAccountInfo{
		Handle:          handle.String(),
		Owner:           acc.Owner,
		Mint:            acc.Mint,
		Amount:          acc.Amount,
		DelegatedAmount: acc.DelegatedAmount,
	}
	if acc.HasDelegate() {
		d := acc.Delegate
		info.Delegate = &d
	}
	return info
}

// BalanceInfo is the lamport balance and last nonce of an identity
type BalanceInfo struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Nonce    uint64 `json:"nonce"`
}

// SellerOrders lists the orders posted by one seller
type SellerOrders struct {
	Seller string      `json:"seller"`
	Orders []OrderInfo `json:"orders"`
}

// AuthorityInfo tells clients which identity settles trades and how to sign
type AuthorityInfo struct {
	Authority string        `json:"authority"`
	ProgramID string        `json:"programId"`
	Domain    crypto.Domain `json:"domain"`
}

// SubmitResponse is returned for a committed transaction
type SubmitResponse struct {
	Status string `json:"status"` // always "committed"
	*market.Receipt
}

// ==============================
// Request Types
// ==============================

// FaucetRequest asks for lamports on a dev deployment
type FaucetRequest struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

// FaucetResponse reports what the faucet actually credited
type FaucetResponse struct {
	Address  string `json:"address"`
	Credited uint64 `json:"credited"`
	Balance  uint64 `json:"balance"`
}

// ErrorResponse carries the error kind and its numeric code
// Internal causes are logged server side and never returned
type ErrorResponse struct {
	Error string  `json:"error"`
	Code  *uint32 `json:"code,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest represents a subscription request from client
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades", "orders:<handle>"]
}

// WSEvent wraps a committed event with the channel it was sent on
type WSEvent struct {
	Channel string       `json:"channel"`
	Event   market.Event `json:"event"`
}
