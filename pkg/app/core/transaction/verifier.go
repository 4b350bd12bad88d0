package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// ErrBadSignature is returned when any attached signature fails to verify
var ErrBadSignature = errors.New("signature invalid")

// SignerSet is the set of identities that proved control in the current transaction
type SignerSet map[crypto.Pubkey]struct{}

// IsSigner reports whether id signed the transaction
func (s SignerSet) IsSigner(id crypto.Pubkey) bool {
	_, ok := s[id]
	return ok
}

// Verifier handles transaction signature verification
type Verifier struct {
	domain crypto.Domain
}

// NewVerifier creates a new transaction verifier
func NewVerifier(domain crypto.Domain) *Verifier {
	return &Verifier{domain: domain}
}

// Domain returns the signing domain this verifier checks against
func (v *Verifier) Domain() crypto.Domain {
	return v.domain
}

// Verify checks every signature against the transaction digest
// Returns the set of authenticated signers; one bad signature rejects the whole transaction
func (v *Verifier) Verify(tx *SignedTransaction) (SignerSet, error) {
	if len(tx.Signatures) == 0 {
		return nil, fmt.Errorf("%w: no signatures", ErrBadSignature)
	}

	digest := tx.Digest(v.domain)
	signers := make(SignerSet, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		sigBytes, err := decodeSignature(sig.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", ErrBadSignature, i, err)
		}
		if !crypto.Verify(sig.Pubkey, digest, sigBytes) {
			return nil, fmt.Errorf("%w: signature %d by %s", ErrBadSignature, i, sig.Pubkey)
		}
		signers[sig.Pubkey] = struct{}{}
	}
	return signers, nil
}

// decodeSignature decodes a hex signature (with 0x prefix)
func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(sigBytes) != crypto.SignatureSize {
		return nil, fmt.Errorf("invalid signature length: %d (expected %d)", len(sigBytes), crypto.SignatureSize)
	}
	return sigBytes, nil
}
