package pool

import (
	"errors"

	"github.com/uhyunpark/deeppool/pkg/app/core/oracle"
	"github.com/uhyunpark/deeppool/pkg/app/core/user"
)

var (
	ErrInvalidConfiguration = errors.New("pool: invalid configuration")
	ErrInsufficientFunds    = errors.New("pool: insufficient funds")
	ErrNotFound             = errors.New("pool: not found")
	ErrUnauthorized         = errors.New("pool: unauthorized")
	ErrPricingUnavailable   = oracle.ErrPricingUnavailable
	ErrInvalidOrder         = errors.New("pool: invalid order")
	ErrInvalidAmount        = errors.New("pool: amount must be positive")
	ErrInsufficientStake    = user.ErrInsufficientStake
	ErrCustodyViolation     = errors.New("pool: custody mismatch")
)
