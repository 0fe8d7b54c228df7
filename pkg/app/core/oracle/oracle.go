// Package oracle keeps a bounded window of fee-token price observations
// and converts trade quantities into fee-token obligations.
package oracle

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
)

// DefaultWindow is the number of observations kept when none is configured.
const DefaultWindow = 100

var (
	ErrPricingUnavailable = errors.New("oracle: no price points")
	ErrInvalidPricePoint  = errors.New("oracle: invalid price point")
	ErrInvalidWindow      = errors.New("oracle: window must be positive")
)

// PricePoint is one observation. Rates are fee-token units per unit of the
// base or quote asset, scaled by asset.FloatScaling.
type PricePoint struct {
	BaseRate  uint64 `json:"baseRate"`
	QuoteRate uint64 `json:"quoteRate"`
	Timestamp uint64 `json:"timestamp"`
}

// DeepPrice is a FIFO window of price points. The derived rates are the
// arithmetic mean of the window, truncated.
type DeepPrice struct {
	window              int
	points              []PricePoint
	deepPerBase         uint64
	deepPerQuote        uint64
	lastInsertTimestamp uint64
}

func New(window int) (*DeepPrice, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &DeepPrice{window: window}, nil
}

func (d *DeepPrice) Window() int { return d.window }

func (d *DeepPrice) Len() int { return len(d.points) }

func (d *DeepPrice) IsEmpty() bool { return len(d.points) == 0 }

func (d *DeepPrice) LastInsertTimestamp() uint64 { return d.lastInsertTimestamp }

// Points returns the window oldest first.
func (d *DeepPrice) Points() []PricePoint {
	return append([]PricePoint(nil), d.points...)
}

// Rates returns the current derived rates.
func (d *DeepPrice) Rates() (deepPerBase, deepPerQuote uint64, err error) {
	if d.IsEmpty() {
		return 0, 0, ErrPricingUnavailable
	}
	return d.deepPerBase, d.deepPerQuote, nil
}

// AddPricePoint appends an observation, evicting the oldest once the window
// is full. Timestamps are not required to be increasing.
func (d *DeepPrice) AddPricePoint(p PricePoint) error {
	if p.BaseRate == 0 || p.QuoteRate == 0 {
		return ErrInvalidPricePoint
	}
	if len(d.points) == d.window {
		copy(d.points, d.points[1:])
		d.points = d.points[:len(d.points)-1]
	}
	d.points = append(d.points, p)
	d.lastInsertTimestamp = p.Timestamp
	d.recompute()
	return nil
}

func (d *DeepPrice) recompute() {
	var base, quote uint256.Int
	for _, p := range d.points {
		base.Add(&base, uint256.NewInt(p.BaseRate))
		quote.Add(&quote, uint256.NewInt(p.QuoteRate))
	}
	n := uint256.NewInt(uint64(len(d.points)))
	d.deepPerBase = base.Div(&base, n).Uint64()
	d.deepPerQuote = quote.Div(&quote, n).Uint64()
}

// FeeQuantity returns quantity * rate * feeRate truncated toward zero, where
// rate is deep-per-quote when quoteDenominated and deep-per-base otherwise.
// A zero quantity or fee rate costs nothing and needs no price.
func (d *DeepPrice) FeeQuantity(quantity uint64, quoteDenominated bool, feeRate uint64) (uint64, error) {
	if quantity == 0 || feeRate == 0 {
		return 0, nil
	}
	if d.IsEmpty() {
		return 0, ErrPricingUnavailable
	}
	rate := d.deepPerBase
	if quoteDenominated {
		rate = d.deepPerQuote
	}
	x := new(uint256.Int).Mul(uint256.NewInt(quantity), uint256.NewInt(rate))
	x.Mul(x, uint256.NewInt(feeRate))
	scale := new(uint256.Int).Mul(uint256.NewInt(asset.FloatScaling), uint256.NewInt(asset.FloatScaling))
	x.Div(x, scale)
	if !x.IsUint64() {
		return 0, fmt.Errorf("fee for %d: %w", quantity, asset.ErrOverflow)
	}
	return x.Uint64(), nil
}

// Snapshot is the persisted form of the oracle.
type Snapshot struct {
	Window              int          `json:"window"`
	Points              []PricePoint `json:"points"`
	LastInsertTimestamp uint64       `json:"lastInsertTimestamp"`
}

func (d *DeepPrice) Snapshot() Snapshot {
	return Snapshot{
		Window:              d.window,
		Points:              d.Points(),
		LastInsertTimestamp: d.lastInsertTimestamp,
	}
}

// Restore rebuilds an oracle from a snapshot.
func Restore(s Snapshot) (*DeepPrice, error) {
	d, err := New(s.Window)
	if err != nil {
		return nil, err
	}
	if len(s.Points) > s.Window {
		return nil, fmt.Errorf("%d points exceed window %d: %w", len(s.Points), s.Window, ErrInvalidPricePoint)
	}
	for _, p := range s.Points {
		if err := d.AddPricePoint(p); err != nil {
			return nil, err
		}
	}
	d.lastInsertTimestamp = s.LastInsertTimestamp
	return d, nil
}
