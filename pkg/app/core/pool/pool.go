// Package pool is the composition root of one trading venue: two book
// sides, custody balances for the base, quote and fee assets, the fee-token
// oracle, epoch statistics and per-user accounting.
//
// A Pool is not safe for concurrent use. Every exported mutation either
// applies completely or returns an error and leaves the pool unchanged.
package pool

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/oracle"
	"github.com/uhyunpark/deeppool/pkg/app/core/orderbook"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
	"github.com/uhyunpark/deeppool/pkg/app/core/user"
)

// KeySeparator joins the two asset symbols of a pool key.
const KeySeparator = "-"

// Config describes a pool at creation.
type Config struct {
	Base          string `json:"base" yaml:"base"`
	Quote         string `json:"quote" yaml:"quote"`
	FeeAsset      string `json:"feeAsset" yaml:"fee_asset"`
	TickSize      uint64 `json:"tickSize" yaml:"tick_size"`
	LotSize       uint64 `json:"lotSize" yaml:"lot_size"`
	TakerFee      uint64 `json:"takerFee" yaml:"taker_fee"`
	MakerFee      uint64 `json:"makerFee" yaml:"maker_fee"`
	StakeRequired uint64 `json:"stakeRequired" yaml:"stake_required"`
	OracleWindow  int    `json:"oracleWindow" yaml:"oracle_window"`
}

// Validate checks the configuration without building anything.
func (c Config) Validate() error {
	for _, sym := range []string{c.Base, c.Quote, c.FeeAsset} {
		if err := ValidateSymbol(sym); err != nil {
			return err
		}
	}
	if c.Base == c.Quote {
		return fmt.Errorf("%w: base and quote are both %s", ErrInvalidConfiguration, c.Base)
	}
	if c.TickSize == 0 || c.LotSize == 0 {
		return fmt.Errorf("%w: tick=%d lot=%d", ErrInvalidConfiguration, c.TickSize, c.LotSize)
	}
	if c.OracleWindow < 0 {
		return fmt.Errorf("%w: oracle window %d", ErrInvalidConfiguration, c.OracleWindow)
	}
	if err := c.params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}

func (c Config) params() epoch.Params {
	return epoch.Params{TakerFee: c.TakerFee, MakerFee: c.MakerFee, StakeRequired: c.StakeRequired}
}

// ValidateSymbol accepts non-empty ASCII letters, digits, '_' and '.'.
func ValidateSymbol(sym string) error {
	if sym == "" || len(sym) > 32 {
		return fmt.Errorf("%w: asset symbol %q", ErrInvalidConfiguration, sym)
	}
	for _, r := range sym {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: asset symbol %q", ErrInvalidConfiguration, sym)
		}
	}
	return nil
}

// KeyOf returns the order-independent key of the pair: the lexicographically
// smaller symbol first.
func KeyOf(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + KeySeparator + b
}

// IDOf is keccak256 of the pool key.
func IDOf(key string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(key))
	var id common.Hash
	h.Sum(id[:0])
	return id
}

// Balances are the pool's custody totals.
type Balances struct {
	Base    uint64 `json:"base"`
	Quote   uint64 `json:"quote"`
	Deep    uint64 `json:"deep"`
	FeePool uint64 `json:"feePool"`
	Burned  uint64 `json:"burned"`
}

type Pool struct {
	key       string
	id        common.Hash
	base      string
	quote     string
	deep      string
	tickSize  uint64
	lotSize   uint64
	createdAt uint64

	bids *orderbook.BookSide
	asks *orderbook.BookSide

	baseBalance  uint64
	quoteBalance uint64
	deepBalance  uint64
	feePool      uint64 // collected fees not yet accrued as rebates or burned
	burned       uint64

	oracle *oracle.DeepPrice
	state  epoch.PoolState
	users  *user.Users

	events []Event
}

// New creates a pool accounting from ctx.Epoch.
func New(ctx transaction.Context, cfg Config) (*Pool, PoolCreated, error) {
	if err := cfg.Validate(); err != nil {
		return nil, PoolCreated{}, err
	}
	window := cfg.OracleWindow
	if window == 0 {
		window = oracle.DefaultWindow
	}
	o, err := oracle.New(window)
	if err != nil {
		return nil, PoolCreated{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	state, err := epoch.New(ctx.Epoch, cfg.params())
	if err != nil {
		return nil, PoolCreated{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	key := KeyOf(cfg.Base, cfg.Quote)
	p := &Pool{
		key:       key,
		id:        IDOf(key),
		base:      cfg.Base,
		quote:     cfg.Quote,
		deep:      cfg.FeeAsset,
		tickSize:  cfg.TickSize,
		lotSize:   cfg.LotSize,
		createdAt: ctx.Timestamp,
		bids:      orderbook.NewBookSide(orderbook.Bid),
		asks:      orderbook.NewBookSide(orderbook.Ask),
		oracle:    o,
		state:     state,
		users:     user.NewUsers(),
	}
	ev := PoolCreated{
		Header:        Header{Kind: KindPoolCreated, Pool: key, Epoch: ctx.Epoch, Timestamp: ctx.Timestamp},
		Base:          cfg.Base,
		Quote:         cfg.Quote,
		FeeAsset:      cfg.FeeAsset,
		TickSize:      cfg.TickSize,
		LotSize:       cfg.LotSize,
		TakerFee:      cfg.TakerFee,
		MakerFee:      cfg.MakerFee,
		StakeRequired: cfg.StakeRequired,
	}
	p.record(ev)
	return p, ev, nil
}

func (p *Pool) record(ev Event) {
	p.events = append(p.events, ev)
}

// TakeEvents returns and clears the records of committed operations.
func (p *Pool) TakeEvents() []Event {
	out := p.events
	p.events = nil
	return out
}

// RequeueEvents puts taken events back ahead of any recorded since, so the
// next TakeEvents returns them again in order.
func (p *Pool) RequeueEvents(events []Event) {
	if len(events) == 0 {
		return
	}
	p.events = append(append(make([]Event, 0, len(events)+len(p.events)), events...), p.events...)
}

func (p *Pool) Key() string        { return p.key }
func (p *Pool) ID() common.Hash    { return p.id }
func (p *Pool) BaseAsset() string  { return p.base }
func (p *Pool) QuoteAsset() string { return p.quote }
func (p *Pool) FeeAsset() string   { return p.deep }
func (p *Pool) TickSize() uint64   { return p.tickSize }
func (p *Pool) LotSize() uint64    { return p.lotSize }
func (p *Pool) CreatedAt() uint64  { return p.createdAt }

// symbol maps a custody role to the asset it holds.
func (p *Pool) symbol(r asset.Role) string {
	switch r {
	case asset.Base:
		return p.base
	case asset.Quote:
		return p.quote
	default:
		return p.deep
	}
}

func (p *Pool) balance(r asset.Role) *uint64 {
	switch r {
	case asset.Base:
		return &p.baseBalance
	case asset.Quote:
		return &p.quoteBalance
	default:
		return &p.deepBalance
	}
}

func (p *Pool) side(s orderbook.Side) *orderbook.BookSide {
	if s == orderbook.Bid {
		return p.bids
	}
	return p.asks
}

// offered is the asset an order of the given side reserves.
func offered(isBid bool) asset.Role {
	if isBid {
		return asset.Quote
	}
	return asset.Base
}

// Queries

func (p *Pool) BestBid() (uint64, bool) { return p.bids.BestPrice() }

func (p *Pool) BestAsk() (uint64, bool) { return p.asks.BestPrice() }

// Levels returns up to limit aggregated levels of one side, best first.
func (p *Pool) Levels(isBid bool, limit int) []orderbook.LevelInfo {
	if isBid {
		return p.bids.Depth(limit)
	}
	return p.asks.Depth(limit)
}

// Level returns one price level of a side.
func (p *Pool) Level(isBid bool, price uint64) (orderbook.LevelInfo, []orderbook.Order, bool) {
	book := p.asks
	if isBid {
		book = p.bids
	}
	info, ok := book.Level(price)
	if !ok {
		return orderbook.LevelInfo{}, nil, false
	}
	return info, book.LevelOrders(price), true
}

// Order looks up a resting order by id.
func (p *Pool) Order(id uint64) (orderbook.Order, bool) {
	return p.side(orderbook.SideOf(id)).Get(id)
}

// OrdersOf returns the owner's resting bids then asks, each in id order.
func (p *Pool) OrdersOf(owner common.Address) []orderbook.Order {
	return append(p.bids.OrdersOf(owner), p.asks.OrdersOf(owner)...)
}

// OrderCount returns the number of resting bids and asks.
func (p *Pool) OrderCount() (bids, asks int) {
	return p.bids.Len(), p.asks.Len()
}

// User returns the owner's stored record. Refresh happens on the owner's
// next mutation, so rebates of a closed epoch may not be reflected yet.
func (p *Pool) User(owner common.Address) user.User {
	u, _ := p.users.Get(owner)
	return u
}

// Users returns every user record sorted by owner.
func (p *Pool) Users() []user.User { return p.users.All() }

// GetUserStake returns the owner's active and staged stake.
func (p *Pool) GetUserStake(owner common.Address) (active, staged uint64) {
	u := p.User(owner)
	return u.StakeAmount, u.NextStakeAmount
}

func (p *Pool) Balances() Balances {
	return Balances{
		Base:    p.baseBalance,
		Quote:   p.quoteBalance,
		Deep:    p.deepBalance,
		FeePool: p.feePool,
		Burned:  p.burned,
	}
}

func (p *Pool) CurrentEpoch() epoch.PoolData { return p.state.Current() }

func (p *Pool) NextEpoch() (epoch.Params, bool) { return p.state.Next() }

func (p *Pool) HistoricalEpochs() []epoch.PoolData { return p.state.Historical() }

// EpochData returns the statistics of a current or archived epoch.
func (p *Pool) EpochData(e uint64) (epoch.PoolData, error) {
	d, err := p.state.Snapshot(e)
	if err != nil {
		return epoch.PoolData{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return d, nil
}

// OracleRates returns the current fee-token conversion rates.
func (p *Pool) OracleRates() (deepPerBase, deepPerQuote uint64, err error) {
	return p.oracle.Rates()
}

func (p *Pool) PricePoints() []oracle.PricePoint { return p.oracle.Points() }

func (p *Pool) String() string {
	bids, asks := p.OrderCount()
	return fmt.Sprintf("Pool{Key=%s, Epoch=%d, Bids=%d, Asks=%d, Users=%d}",
		p.key, p.state.Current().Epoch, bids, asks, p.users.Len())
}

// ParseKey splits a pool key into its two symbols.
func ParseKey(key string) (string, string, error) {
	a, b, ok := strings.Cut(key, KeySeparator)
	if !ok || ValidateSymbol(a) != nil || ValidateSymbol(b) != nil || KeyOf(a, b) != key {
		return "", "", fmt.Errorf("%w: pool key %q", ErrInvalidConfiguration, key)
	}
	return a, b, nil
}
