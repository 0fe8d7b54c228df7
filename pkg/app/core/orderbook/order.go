package orderbook

import (
	"github.com/ethereum/go-ethereum/common"
)

type Side uint8

const (
	Bid Side = 0
	Ask Side = 1
)

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// OrderID packs a per-side sequence number with the side in the low bit.
// Ids on one side are strictly increasing in placement order.
func OrderID(seq uint64, side Side) uint64 {
	return seq<<1 | uint64(side)
}

// SideOf recovers the side encoded in an order id.
func SideOf(id uint64) Side {
	return Side(id & 1)
}

// Order is a resting maker order. Quantity is denominated in the asset the
// order offers: quote for bids, base for asks.
type Order struct {
	ID                     uint64         `json:"id"`
	Owner                  common.Address `json:"owner"`
	Price                  uint64         `json:"price"`
	OriginalQuantity       uint64         `json:"originalQuantity"`
	Quantity               uint64         `json:"quantity"`
	OriginalFeeQuantity    uint64         `json:"originalFeeQuantity"`
	FeeQuantity            uint64         `json:"feeQuantity"`
	IsBid                  bool           `json:"isBid"`
	ExpireTimestamp        uint64         `json:"expireTimestamp"`
	SelfMatchingPrevention uint8          `json:"selfMatchingPrevention"`

	prev, next *Order
}

// Side returns the book side the order rests on.
func (o *Order) Side() Side {
	if o.IsBid {
		return Bid
	}
	return Ask
}

// Filled returns the quantity already taken from the order.
func (o *Order) Filled() uint64 {
	return o.OriginalQuantity - o.Quantity
}

func (o *Order) view() Order {
	v := *o
	v.prev, v.next = nil, nil
	return v
}
