package market

import (
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// requireSigner fails NotAuthorized unless id signed the current transaction
func requireSigner(signers transaction.SignerSet, id crypto.Pubkey) error {
	if !signers.IsSigner(id) {
		return fail(ErrNotAuthorized, "%s did not sign", id)
	}
	return nil
}

// requireOwner fails NotAuthorized unless the stored owner of a record is the caller
func requireOwner(what string, stored, caller crypto.Pubkey) error {
	if stored != caller {
		return fail(ErrNotAuthorized, "%s is owned by %s, not %s", what, stored, caller)
	}
	return nil
}
