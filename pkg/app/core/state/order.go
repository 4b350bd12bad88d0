package state

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// SellOrderSize is the persisted width of a SellOrder record
// seller(32) + token_mint(32) + amount(8) + price_per_token(8) + created_at(8) + is_active(1)
const SellOrderSize = 89

// ErrFillExceedsAmount is returned when a fill is larger than the remaining quantity
var ErrFillExceedsAmount = errors.New("fill exceeds remaining amount")

// SellOrder is a standing offer to sell Amount tokens of TokenMint at PricePerToken lamports each
type SellOrder struct {
	Seller        crypto.Pubkey `json:"seller"`
	TokenMint     crypto.Pubkey `json:"token_mint"`
	Amount        uint64        `json:"amount"`          // remaining unsold quantity
	PricePerToken uint64        `json:"price_per_token"` // lamports per token
	CreatedAt     int64         `json:"created_at"`      // unix seconds
	IsActive      bool          `json:"is_active"`
}

func (o *SellOrder) MarshalBinary() ([]byte, error) {
	w := newWriter(SellOrderSize)
	w.pubkey(o.Seller)
	w.pubkey(o.TokenMint)
	w.u64(o.Amount)
	w.u64(o.PricePerToken)
	w.i64(o.CreatedAt)
	w.bool(o.IsActive)
	return w.buf, nil
}

func (o *SellOrder) UnmarshalBinary(data []byte) error {
	if len(data) != SellOrderSize {
		return fmt.Errorf("sell order record must be %d bytes, got %d", SellOrderSize, len(data))
	}
	r := &reader{buf: data}
	decoded := SellOrder{
		Seller:        r.pubkey(),
		TokenMint:     r.pubkey(),
		Amount:        r.u64(),
		PricePerToken: r.u64(),
		CreatedAt:     r.i64(),
		IsActive:      r.bool(),
	}
	if r.err != nil {
		return fmt.Errorf("failed to decode sell order: %w", r.err)
	}
	*o = decoded
	return nil
}

// Fill removes amount from the remaining quantity
// The order deactivates exactly when the remaining quantity reaches zero
func (o *SellOrder) Fill(amount uint64) error {
	if amount > o.Amount {
		return ErrFillExceedsAmount
	}
	remaining, err := checked.Sub(o.Amount, amount)
	if err != nil {
		return err
	}
	o.Amount = remaining
	if remaining == 0 {
		o.IsActive = false
	}
	return nil
}
