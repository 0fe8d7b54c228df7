package pool

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/orderbook"
)

// Event kinds
const (
	KindPoolCreated     = "pool_created"
	KindOrderPlaced     = "order_placed"
	KindOrderCanceled   = "order_canceled"
	KindOrderFilled     = "order_filled"
	KindStakeChanged    = "stake_changed"
	KindRebatesClaimed  = "rebates_claimed"
	KindFundsSettled    = "funds_settled"
	KindPricePointAdded = "price_point_added"
	KindEpochRolled     = "epoch_rolled"
	KindNextEpochStaged = "next_epoch_staged"
)

// Event is a record of one committed state change.
type Event interface {
	EventHeader() Header
}

// Header is carried by every record.
type Header struct {
	Kind      string `json:"kind"`
	Pool      string `json:"pool"`
	Epoch     uint64 `json:"epoch"`
	Timestamp uint64 `json:"timestamp"`
}

func (h Header) EventHeader() Header { return h }

type PoolCreated struct {
	Header
	Base          string `json:"base"`
	Quote         string `json:"quote"`
	FeeAsset      string `json:"feeAsset"`
	TickSize      uint64 `json:"tickSize"`
	LotSize       uint64 `json:"lotSize"`
	TakerFee      uint64 `json:"takerFee"`
	MakerFee      uint64 `json:"makerFee"`
	StakeRequired uint64 `json:"stakeRequired"`
}

// OrderPlaced carries the full order so observers can rebuild the book.
type OrderPlaced struct {
	Header
	Order orderbook.Order `json:"order"`
	// Portion of the reservation taken from the owner's pending settlement.
	FromSettlement uint64 `json:"fromSettlement"`
	Deposited      uint64 `json:"deposited"`
}

type OrderCanceled struct {
	Header
	OrderID          uint64         `json:"orderId"`
	Owner            common.Address `json:"owner"`
	IsBid            bool           `json:"isBid"`
	Price            uint64         `json:"price"`
	OriginalQuantity uint64         `json:"originalQuantity"`
	CanceledQuantity uint64         `json:"canceledQuantity"`
	RefundedFee      uint64         `json:"refundedFee"`
}

type OrderFilled struct {
	Header
	OrderID           uint64         `json:"orderId"`
	Maker             common.Address `json:"maker"`
	Taker             common.Address `json:"taker"`
	IsBid             bool           `json:"isBid"`
	Price             uint64         `json:"price"`
	Quantity          uint64         `json:"quantity"`
	CounterQuantity   uint64         `json:"counterQuantity"`
	RemainingQuantity uint64         `json:"remainingQuantity"`
	MakerFee          uint64         `json:"makerFee"`
	TakerFee          uint64         `json:"takerFee"`
	Volume            uint64         `json:"volume"`
	Staked            bool           `json:"staked"`
}

type StakeChanged struct {
	Header
	Owner       common.Address `json:"owner"`
	Amount      uint64         `json:"amount"`
	Increase    bool           `json:"increase"`
	StakeBefore uint64         `json:"stakeBefore"`
	StakeAfter  uint64         `json:"stakeAfter"`
}

type RebatesClaimed struct {
	Header
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount"`
}

type FundsSettled struct {
	Header
	Owner common.Address `json:"owner"`
	Base  uint64         `json:"base"`
	Quote uint64         `json:"quote"`
	Deep  uint64         `json:"deep"`
}

type PricePointAdded struct {
	Header
	BaseRate     uint64 `json:"baseRate"`
	QuoteRate    uint64 `json:"quoteRate"`
	PointTime    uint64 `json:"pointTime"`
	DeepPerBase  uint64 `json:"deepPerBase"`
	DeepPerQuote uint64 `json:"deepPerQuote"`
}

// EpochRolled is recorded by the first operation of a new epoch.
type EpochRolled struct {
	Header
	Closed  epoch.PoolData `json:"closed"`
	Current epoch.PoolData `json:"current"`
}

type NextEpochStaged struct {
	Header
	Params epoch.Params `json:"params"`
}
