// Package checked provides overflow-checked unsigned 64-bit arithmetic.
// Every monetary computation in the marketplace goes through these helpers
// so that overflow aborts the operation instead of wrapping.
package checked

import (
	"errors"

	"github.com/ethereum/go-ethereum/common/math"
)

// ErrOverflow is returned when a result does not fit in a uint64 or a divisor is zero
var ErrOverflow = errors.New("arithmetic overflow")

// Add returns a + b
func Add(a, b uint64) (uint64, error) {
	sum, overflow := math.SafeAdd(a, b)
	if overflow {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a - b, failing if b > a
func Sub(a, b uint64) (uint64, error) {
	diff, overflow := math.SafeSub(a, b)
	if overflow {
		return 0, ErrOverflow
	}
	return diff, nil
}

// Mul returns a * b
func Mul(a, b uint64) (uint64, error) {
	product, overflow := math.SafeMul(a, b)
	if overflow {
		return 0, ErrOverflow
	}
	return product, nil
}

// Div returns a / b truncated toward zero
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrOverflow
	}
	return a / b, nil
}

// MulDiv returns (a * b) / d, failing if the intermediate product overflows
func MulDiv(a, b, d uint64) (uint64, error) {
	product, err := Mul(a, b)
	if err != nil {
		return 0, err
	}
	return Div(product, d)
}
