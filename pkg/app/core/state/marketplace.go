package state

import (
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// MarketplaceSize is the persisted width of a Marketplace record
// admin(32) + fee_percentage(2) + total_volume(8) + total_fees_collected(8) + is_initialized(1)
const MarketplaceSize = 51

// Marketplace is the singleton record holding the fee schedule and cumulative statistics
type Marketplace struct {
	Admin              crypto.Pubkey `json:"admin"`
	FeePercentage      uint16        `json:"fee_percentage"` // basis points, <= MaxFeeBasisPoints
	TotalVolume        uint64        `json:"total_volume"`
	TotalFeesCollected uint64        `json:"total_fees_collected"`
	IsInitialized      bool          `json:"is_initialized"`
}

func (m *Marketplace) MarshalBinary() ([]byte, error) {
	w := newWriter(MarketplaceSize)
	w.pubkey(m.Admin)
	w.u16(m.FeePercentage)
	w.u64(m.TotalVolume)
	w.u64(m.TotalFeesCollected)
	w.bool(m.IsInitialized)
	return w.buf, nil
}

func (m *Marketplace) UnmarshalBinary(data []byte) error {
	if len(data) != MarketplaceSize {
		return fmt.Errorf("marketplace record must be %d bytes, got %d", MarketplaceSize, len(data))
	}
	r := &reader{buf: data}
	decoded := Marketplace{
		Admin:              r.pubkey(),
		FeePercentage:      r.u16(),
		TotalVolume:        r.u64(),
		TotalFeesCollected: r.u64(),
		IsInitialized:      r.bool(),
	}
	if r.err != nil {
		return fmt.Errorf("failed to decode marketplace: %w", r.err)
	}
	*m = decoded
	return nil
}

// RecordTrade adds a settled trade to the cumulative statistics
// Either both accumulators advance or neither does
func (m *Marketplace) RecordTrade(q SettlementQuote) error {
	volume, err := checked.Add(m.TotalVolume, q.TotalPrice)
	if err != nil {
		return err
	}
	fees, err := checked.Add(m.TotalFeesCollected, q.Fee)
	if err != nil {
		return err
	}
	m.TotalVolume = volume
	m.TotalFeesCollected = fees
	return nil
}
