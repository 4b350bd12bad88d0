package market

import (
	"github.com/cockroachdb/errors"

	"github.com/uhyunpark/hyperswap/pkg/app/core/checked"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/state"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
)

// Error kinds returned by every marketplace operation
// A rejected command fails with exactly one of these; callers see only the kind and its code
var (
	ErrInvalidInstruction   = errors.New("invalid instruction")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrAlreadyInitialized   = errors.New("already initialized")
	ErrNotInitialized       = errors.New("not initialized")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrOrderNotActive       = errors.New("order not active")
	ErrInvalidFeePercentage = errors.New("invalid fee percentage")
	ErrNumericalOverflow    = errors.New("numerical overflow")
	ErrInvalidTokenAccount  = errors.New("invalid token account")
	ErrInvalidMint          = errors.New("invalid mint")
)

// kinds is ordered by error code
var kinds = []error{
	ErrInvalidInstruction,
	ErrNotAuthorized,
	ErrAlreadyInitialized,
	ErrNotInitialized,
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrOrderNotActive,
	ErrInvalidFeePercentage,
	ErrNumericalOverflow,
	ErrInvalidTokenAccount,
	ErrInvalidMint,
}

// KindOf returns the error kind err is marked with, or nil for infrastructure failures
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Code returns the stable numeric code of err's kind
func Code(err error) (uint32, bool) {
	kind := KindOf(err)
	for i, k := range kinds {
		if kind != nil && k == kind {
			return uint32(i), true
		}
	}
	return 0, false
}

// fail builds an error of the given kind carrying internal detail
func fail(kind error, format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), kind)
}

// classify maps collaborator failures onto error kinds
// Errors that already carry a kind, and unknown infrastructure errors, pass through unchanged
func classify(err error) error {
	if err == nil || KindOf(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, checked.ErrOverflow):
		return errors.Mark(err, ErrNumericalOverflow)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return errors.Mark(err, ErrInsufficientFunds)
	case errors.Is(err, ledger.ErrMintMismatch):
		return errors.Mark(err, ErrInvalidMint)
	case errors.Is(err, ledger.ErrOwnerMismatch):
		return errors.Mark(err, ErrNotAuthorized)
	case errors.Is(err, ledger.ErrAccountNotFound):
		return errors.Mark(err, ErrInvalidTokenAccount)
	case errors.Is(err, ledger.ErrHandleInUse):
		return errors.Mark(err, ErrAlreadyInitialized)
	case errors.Is(err, ledger.ErrRecordNotFound):
		return errors.Mark(err, ErrNotInitialized)
	case errors.Is(err, state.ErrFillExceedsAmount):
		return errors.Mark(err, ErrInvalidAmount)
	case errors.Is(err, transaction.ErrMalformedInstruction):
		return errors.Mark(err, ErrInvalidInstruction)
	case errors.Is(err, transaction.ErrBadSignature):
		return errors.Mark(err, ErrNotAuthorized)
	}
	return err
}
