package market

import (
	"context"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// EventType names what a committed command did
type EventType string

const (
	EventMarketplaceInitialized EventType = "marketplace_initialized"
	EventOrderCreated           EventType = "order_created"
	EventOrderCancelled         EventType = "order_cancelled"
	EventPriceUpdated           EventType = "price_updated"
	EventTrade                  EventType = "trade"
)

// Event describes one committed state change
// Fields that do not apply to a type are left zero
type Event struct {
	Type        EventType     `json:"type"`
	TxID        string        `json:"tx_id"`
	Marketplace crypto.Pubkey `json:"marketplace"`
	Admin       crypto.Pubkey `json:"admin"`
	Order       crypto.Pubkey `json:"order"`
	Seller      crypto.Pubkey `json:"seller"`
	Buyer       crypto.Pubkey `json:"buyer"`
	Mint        crypto.Pubkey `json:"mint"`

	Amount         uint64 `json:"amount"`
	Price          uint64 `json:"price"`
	FeePercentage  uint16 `json:"fee_percentage"`
	TotalPrice     uint64 `json:"total_price"`
	Fee            uint64 `json:"fee"`
	SellerProceeds uint64 `json:"seller_proceeds"`
	Timestamp      int64  `json:"timestamp"`
}

// Sink receives events after their transaction has committed
// Delivery is best effort: a failing sink is logged and never affects settlement
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}
