package api

import (
	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/orderbook"
	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
	"github.com/uhyunpark/deeppool/pkg/app/core/user"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// PoolInfo is a pool's configuration and current state
type PoolInfo struct {
	Key       string `json:"key"`      // e.g., "SUI-USDC"
	Base      string `json:"base"`     // e.g., "SUI"
	Quote     string `json:"quote"`    // e.g., "USDC"
	FeeAsset  string `json:"feeAsset"` // e.g., "DEEP"
	TickSize  uint64 `json:"tickSize"`
	LotSize   uint64 `json:"lotSize"`
	CreatedAt uint64 `json:"createdAt"` // Unix milliseconds

	BestBid   uint64 `json:"bestBid,omitempty"` // Omitted when the side is empty
	BestAsk   uint64 `json:"bestAsk,omitempty"`
	BidOrders int    `json:"bidOrders"`
	AskOrders int    `json:"askOrders"`

	Epoch     epoch.PoolData `json:"epoch"`
	NextEpoch *epoch.Params  `json:"nextEpoch,omitempty"` // Staged for the next rollover
	Balances  pool.Balances  `json:"balances"`

	// Fee-token rates, FloatScaling fixed point. Zero when no price point exists.
	DeepPerBase  uint64 `json:"deepPerBase"`
	DeepPerQuote uint64 `json:"deepPerQuote"`
}

// OrderbookSnapshot represents aggregated depth of both sides
type OrderbookSnapshot struct {
	Pool      string                `json:"pool"`
	Bids      []orderbook.LevelInfo `json:"bids"` // Sorted high to low
	Asks      []orderbook.LevelInfo `json:"asks"` // Sorted low to high
	Timestamp int64                 `json:"timestamp"`
}

// LevelDetail is one price level with its orders in time priority
type LevelDetail struct {
	orderbook.LevelInfo
	Orders []orderbook.Order `json:"orders"`
}

// UserInfo is an owner's pool-side record and open orders
type UserInfo struct {
	Pool   string            `json:"pool"`
	User   user.User         `json:"user"`
	Orders []orderbook.Order `json:"orders"`
}

// AccountInfo represents external balances held outside any pool
type AccountInfo struct {
	Address  string            `json:"address"`
	Nonce    uint64            `json:"nonce"`    // Last accepted request nonce
	Balances map[string]uint64 `json:"balances"` // By asset symbol
}

// NodeStatus summarizes the node
type NodeStatus struct {
	Epoch    uint64 `json:"epoch"`
	Pools    int    `json:"pools"`
	Accounts int    `json:"accounts"`
	Operator string `json:"operator,omitempty"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// Request Types
// ==============================

// DepositRequest credits an external account (development faucet)
type DepositRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage subscriptions
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["events:SUI-USDC", "orderbook:SUI-USDC", "epoch"]
}

// WSMessage wraps everything pushed to clients
type WSMessage struct {
	Type    string `json:"type"` // "event", "orderbook", "epoch"
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// EpochUpdate is pushed on the "epoch" channel at every boundary
type EpochUpdate struct {
	Epoch     uint64 `json:"epoch"`
	Timestamp int64  `json:"timestamp"`
}

// Channel names
const (
	ChannelEpoch           = "epoch"
	channelEventsPrefix    = "events:"
	channelOrderbookPrefix = "orderbook:"
)

func EventsChannel(pool string) string    { return channelEventsPrefix + pool }
func OrderbookChannel(pool string) string { return channelOrderbookPrefix + pool }
