package market

import (
	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
)

// initializeMarketplace creates the marketplace record with the caller as admin
// Accounts: admin(signer), marketplace
func (p *Processor) initializeMarketplace(env *Env, ix transaction.InitializeMarketplace) ([]Event, error) {
	admin, handle := env.Accounts[0], env.Accounts[1]

	if err := requireSigner(env.Signers, admin); err != nil {
		return nil, err
	}
	if ix.FeePercentage > state.MaxFeeBasisPoints {
		return nil, fail(ErrInvalidFeePercentage, "fee %d bps exceeds %d", ix.FeePercentage, state.MaxFeeBasisPoints)
	}

	// An occupied handle is rejected here rather than overwritten
	if err := env.Allocator.CreateRecord(admin, handle, state.MarketplaceSize); err != nil {
		return nil, err
	}

	m := &state.Marketplace{
		Admin:         admin,
		FeePercentage: ix.FeePercentage,
		IsInitialized: true,
	}
	if err := saveRecord(env, handle, m); err != nil {
		return nil, err
	}

	p.logger.Infow("marketplace_initialized",
		"marketplace", handle,
		"admin", admin,
		"fee_percent", float64(ix.FeePercentage)/100,
	)

	return []Event{{
		Type:          EventMarketplaceInitialized,
		Marketplace:   handle,
		Admin:         admin,
		FeePercentage: ix.FeePercentage,
		Timestamp:     env.Now.Unix(),
	}}, nil
}
