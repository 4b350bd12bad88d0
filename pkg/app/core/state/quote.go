package state

import (
	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
)

const (
	// MaxFeeBasisPoints caps the marketplace fee at 10%
	MaxFeeBasisPoints uint16 = 1000
	// BasisPointsDenominator is 100% in basis points
	BasisPointsDenominator uint64 = 10000
)

// SettlementQuote splits the price of a fill between seller and marketplace
// SellerProceeds + Fee == TotalPrice always holds
type SettlementQuote struct {
	TotalPrice     uint64 `json:"total_price"`
	Fee            uint64 `json:"fee"`
	SellerProceeds uint64 `json:"seller_proceeds"`
}

// Quote prices a fill of amount tokens at pricePerToken with a fee of feeBps basis points
// fee = floor(total * feeBps / 10000); any overflow returns checked.ErrOverflow
func Quote(pricePerToken, amount uint64, feeBps uint16) (SettlementQuote, error) {
	total, err := checked.Mul(pricePerToken, amount)
	if err != nil {
		return SettlementQuote{}, err
	}
	fee, err := checked.MulDiv(total, uint64(feeBps), BasisPointsDenominator)
	if err != nil {
		return SettlementQuote{}, err
	}
	proceeds, err := checked.Sub(total, fee)
	if err != nil {
		return SettlementQuote{}, err
	}
	return SettlementQuote{TotalPrice: total, Fee: fee, SellerProceeds: proceeds}, nil
}
