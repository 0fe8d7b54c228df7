// Package asset holds the asset roles a pool deals in and the fixed-point
// arithmetic shared by fee and rebate computation.
package asset

import (
	"errors"

	"github.com/holiman/uint256"
)

// Role tags which of a pool's three custody balances an amount belongs to.
type Role uint8

const (
	Base Role = iota
	Quote
	Fee
)

func (r Role) String() string {
	switch r {
	case Base:
		return "base"
	case Quote:
		return "quote"
	case Fee:
		return "fee"
	default:
		return "unknown"
	}
}

// FloatScaling is the fixed-point unit for fee rates and oracle rates.
// 1_000_000 = 0.1%.
const FloatScaling uint64 = 1_000_000_000

var (
	ErrOverflow       = errors.New("asset: arithmetic overflow")
	ErrDivisionByZero = errors.New("asset: division by zero")
)

// MulDiv returns a*b/d truncated toward zero, computed in 256 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	x := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

// Mul multiplies a by the fixed-point value b.
func Mul(a, b uint64) (uint64, error) {
	return MulDiv(a, b, FloatScaling)
}

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, ErrOverflow
	}
	return s, nil
}
