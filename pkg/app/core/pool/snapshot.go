package pool

import (
	"fmt"

	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/oracle"
	"github.com/uhyunpark/deeppool/pkg/app/core/orderbook"
	"github.com/uhyunpark/deeppool/pkg/app/core/user"
)

// Snapshot is the complete serializable state of a pool.
type Snapshot struct {
	Key       string `json:"key"`
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	FeeAsset  string `json:"feeAsset"`
	TickSize  uint64 `json:"tickSize"`
	LotSize   uint64 `json:"lotSize"`
	CreatedAt uint64 `json:"createdAt"`

	Balances Balances `json:"balances"`

	Bids            []orderbook.Order `json:"bids"`
	Asks            []orderbook.Order `json:"asks"`
	NextBidSequence uint64            `json:"nextBidSequence"`
	NextAskSequence uint64            `json:"nextAskSequence"`

	Users  []user.User     `json:"users"`
	State  epoch.Persisted `json:"state"`
	Oracle oracle.Snapshot `json:"oracle"`
}

func (p *Pool) Snapshot() Snapshot {
	return Snapshot{
		Key:             p.key,
		Base:            p.base,
		Quote:           p.quote,
		FeeAsset:        p.deep,
		TickSize:        p.tickSize,
		LotSize:         p.lotSize,
		CreatedAt:       p.createdAt,
		Balances:        p.Balances(),
		Bids:            p.bids.Orders(),
		Asks:            p.asks.Orders(),
		NextBidSequence: p.bids.NextSequence(),
		NextAskSequence: p.asks.NextSequence(),
		Users:           p.users.All(),
		State:           p.state.Persist(),
		Oracle:          p.oracle.Snapshot(),
	}
}

// Restore rebuilds a pool from a snapshot and verifies its custody.
func Restore(s Snapshot) (*Pool, error) {
	cfg := Config{
		Base:         s.Base,
		Quote:        s.Quote,
		FeeAsset:     s.FeeAsset,
		TickSize:     s.TickSize,
		LotSize:      s.LotSize,
		OracleWindow: s.Oracle.Window,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if KeyOf(s.Base, s.Quote) != s.Key {
		return nil, fmt.Errorf("%w: key %q does not match %s/%s", ErrInvalidConfiguration, s.Key, s.Base, s.Quote)
	}

	o, err := oracle.Restore(s.Oracle)
	if err != nil {
		return nil, fmt.Errorf("restore oracle: %w", err)
	}
	state, err := epoch.Load(s.State)
	if err != nil {
		return nil, fmt.Errorf("restore epoch state: %w", err)
	}
	users := user.NewUsers()
	if err := users.Restore(s.Users); err != nil {
		return nil, err
	}

	bids := orderbook.NewBookSide(orderbook.Bid)
	if err := bids.Restore(s.Bids, s.NextBidSequence); err != nil {
		return nil, fmt.Errorf("restore bids: %w", err)
	}
	asks := orderbook.NewBookSide(orderbook.Ask)
	if err := asks.Restore(s.Asks, s.NextAskSequence); err != nil {
		return nil, fmt.Errorf("restore asks: %w", err)
	}

	p := &Pool{
		key:          s.Key,
		id:           IDOf(s.Key),
		base:         s.Base,
		quote:        s.Quote,
		deep:         s.FeeAsset,
		tickSize:     s.TickSize,
		lotSize:      s.LotSize,
		createdAt:    s.CreatedAt,
		bids:         bids,
		asks:         asks,
		baseBalance:  s.Balances.Base,
		quoteBalance: s.Balances.Quote,
		deepBalance:  s.Balances.Deep,
		feePool:      s.Balances.FeePool,
		burned:       s.Balances.Burned,
		oracle:       o,
		state:        state,
		users:        users,
	}
	if err := p.CheckCustody(); err != nil {
		return nil, err
	}
	return p, nil
}

// Custody is the breakdown CheckCustody compares against balances.
type Custody struct {
	ReservedBase  uint64 `json:"reservedBase"`
	ReservedQuote uint64 `json:"reservedQuote"`
	ReservedFee   uint64 `json:"reservedFee"`
	PendingBase   uint64 `json:"pendingBase"`
	PendingQuote  uint64 `json:"pendingQuote"`
	PendingDeep   uint64 `json:"pendingDeep"`
	Stake         uint64 `json:"stake"`
	Rebates       uint64 `json:"rebates"`
	FeePool       uint64 `json:"feePool"`
}

// Custody sums every claim on the pool's balances.
func (p *Pool) Custody() Custody {
	var c Custody
	var bidFee, askFee uint64
	c.ReservedQuote, bidFee = p.bids.Reserved(nil)
	c.ReservedBase, askFee = p.asks.Reserved(nil)
	c.ReservedFee = bidFee + askFee
	for _, u := range p.users.All() {
		c.PendingBase += u.PendingBase
		c.PendingQuote += u.PendingQuote
		c.PendingDeep += u.PendingDeep
		c.Stake += u.TotalStake()
		c.Rebates += u.AccruedRebate
	}
	c.FeePool = p.feePool
	return c
}

// CheckCustody verifies that every unit the pool holds is claimed by exactly
// one order, pending settlement, stake, rebate or the fee pool.
func (p *Pool) CheckCustody() error {
	c := p.Custody()
	if want := c.ReservedBase + c.PendingBase; p.baseBalance != want {
		return fmt.Errorf("%w: base balance %d, claims %d", ErrCustodyViolation, p.baseBalance, want)
	}
	if want := c.ReservedQuote + c.PendingQuote; p.quoteBalance != want {
		return fmt.Errorf("%w: quote balance %d, claims %d", ErrCustodyViolation, p.quoteBalance, want)
	}
	if want := c.ReservedFee + c.PendingDeep + c.Stake + c.Rebates + c.FeePool; p.deepBalance != want {
		return fmt.Errorf("%w: fee balance %d, claims %d", ErrCustodyViolation, p.deepBalance, want)
	}
	return nil
}
