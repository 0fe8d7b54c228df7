package pool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/deeppool/pkg/app/core/account"
	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/oracle"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
)

const (
	sui  = "SUI"
	usdc = "USDC"
	deep = "DEEP"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

func ctxAt(sender common.Address, e uint64) transaction.Context {
	return transaction.Context{Sender: sender, Epoch: e, Timestamp: e * 1000}
}

func freeConfig() Config {
	return Config{Base: sui, Quote: usdc, FeeAsset: deep, TickSize: 1, LotSize: 1}
}

func feeConfig() Config {
	return Config{
		Base: sui, Quote: usdc, FeeAsset: deep,
		TickSize: 1, LotSize: 1,
		TakerFee: 1_000_000, MakerFee: 500_000, StakeRequired: 100,
	}
}

func newPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, _, err := New(ctxAt(common.Address{}, 1), cfg)
	require.NoError(t, err)
	return p
}

// withUnitPrice feeds one point at 1 fee token per base and per quote.
func withUnitPrice(t *testing.T, p *Pool) {
	t.Helper()
	_, err := p.AddDeepPricePoint(ctxAt(common.Address{}, 1), oracle.PricePoint{
		BaseRate: asset.FloatScaling, QuoteRate: asset.FloatScaling, Timestamp: 1,
	})
	require.NoError(t, err)
}

func fund(t *testing.T, v *account.Manager, owner common.Address, sym string, amount uint64) {
	t.Helper()
	require.NoError(t, v.Deposit(owner, sym, amount))
}

func requireCustody(t *testing.T, p *Pool) {
	t.Helper()
	require.NoError(t, p.CheckCustody())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"same asset", func(c *Config) { c.Quote = c.Base }},
		{"empty base", func(c *Config) { c.Base = "" }},
		{"bad symbol", func(c *Config) { c.Quote = "US-DC" }},
		{"empty fee asset", func(c *Config) { c.FeeAsset = "" }},
		{"zero tick", func(c *Config) { c.TickSize = 0 }},
		{"zero lot", func(c *Config) { c.LotSize = 0 }},
		{"taker fee 100%", func(c *Config) { c.TakerFee = asset.FloatScaling }},
		{"maker fee 100%", func(c *Config) { c.MakerFee = asset.FloatScaling }},
		{"negative window", func(c *Config) { c.OracleWindow = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := feeConfig()
			tt.mutate(&cfg)
			_, _, err := New(ctxAt(alice, 0), cfg)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestNewRecordsCreation(t *testing.T) {
	p, ev, err := New(ctxAt(alice, 7), feeConfig())
	require.NoError(t, err)

	assert.Equal(t, "SUI-USDC", p.Key())
	assert.Equal(t, KindPoolCreated, ev.Kind)
	assert.Equal(t, uint64(7), ev.Epoch)
	assert.Equal(t, uint64(100), ev.StakeRequired)
	assert.Equal(t, uint64(7), p.CurrentEpoch().Epoch)

	events := p.TakeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, ev, events[0])
	assert.Empty(t, p.TakeEvents())
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, KeyOf("SUI", "USDC"), KeyOf("USDC", "SUI"))
	assert.Equal(t, "DEEP-SUI", KeyOf("SUI", "DEEP"))
	assert.Equal(t, IDOf("DEEP-SUI"), IDOf(KeyOf("SUI", "DEEP")))
	assert.NotEqual(t, IDOf("DEEP-SUI"), IDOf("SUI-USDC"))

	a, b, err := ParseKey("SUI-USDC")
	require.NoError(t, err)
	assert.Equal(t, []string{"SUI", "USDC"}, []string{a, b})

	for _, bad := range []string{"USDC-SUI", "SUIUSDC", "-SUI", "SUI-"} {
		_, _, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidConfiguration, bad)
	}
}

func TestBidPlaceAndCancelScenario(t *testing.T) {
	p := newPool(t, freeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, usdc, 100)

	placed, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{IsBid: true, Price: 10, Quantity: 100})
	require.NoError(t, err)

	best, ok := p.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(10), best)
	lvl, orders, ok := p.Level(true, 10)
	require.True(t, ok)
	assert.Equal(t, 1, lvl.Orders)
	assert.Equal(t, placed.Order.ID, orders[0].ID)
	assert.Equal(t, uint64(0), v.Balance(alice, usdc))
	assert.Equal(t, uint64(100), p.Balances().Quote)
	requireCustody(t, p)

	canceled, err := p.CancelOrder(ctxAt(alice, 1), placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), canceled.OriginalQuantity)
	assert.Equal(t, uint64(100), canceled.CanceledQuantity)

	_, _, ok = p.Level(true, 10)
	assert.False(t, ok, "level should be removed")
	_, ok = p.BestBid()
	assert.False(t, ok)
	assert.Equal(t, uint64(100), p.User(alice).PendingQuote)
	assert.Equal(t, uint64(100), p.Balances().Quote, "cancel keeps funds in the pool")
	requireCustody(t, p)
}

func TestPlaceValidation(t *testing.T) {
	cfg := freeConfig()
	cfg.TickSize, cfg.LotSize = 5, 10
	p := newPool(t, cfg)
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 1000)

	for _, req := range []OrderRequest{
		{Price: 7, Quantity: 10},
		{Price: 0, Quantity: 10},
		{Price: 5, Quantity: 15},
		{Price: 5, Quantity: 0},
	} {
		_, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, req)
		assert.ErrorIs(t, err, ErrInvalidOrder, "%+v", req)
	}
	assert.Equal(t, uint64(1000), v.Balance(alice, sui))
}

func TestPlaceRequiresPricing(t *testing.T) {
	p := newPool(t, feeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 1000)
	fund(t, v, alice, deep, 1000)
	before := p.Snapshot()

	_, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 2, Quantity: 100})
	assert.ErrorIs(t, err, ErrPricingUnavailable)
	assert.Equal(t, before, p.Snapshot())
	assert.Equal(t, uint64(1000), v.Balance(alice, sui))
}

func TestPlaceInsufficientFundsRollsBack(t *testing.T) {
	p := newPool(t, feeConfig())
	withUnitPrice(t, p)
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 1_000_000)
	fund(t, v, alice, deep, 10) // fee will be 500
	before := p.Snapshot()

	_, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 2, Quantity: 1_000_000})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorIs(t, err, account.ErrInsufficientFunds)

	assert.Equal(t, before, p.Snapshot())
	assert.Equal(t, uint64(1_000_000), v.Balance(alice, sui), "base pull must be compensated")
	assert.Equal(t, uint64(10), v.Balance(alice, deep))
}

func TestPlaceUsesPendingSettlementFirst(t *testing.T) {
	p := newPool(t, freeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 100)

	placed, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 3, Quantity: 100})
	require.NoError(t, err)
	_, err = p.CancelOrder(ctxAt(alice, 1), placed.Order.ID)
	require.NoError(t, err)

	again, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 3, Quantity: 60})
	require.NoError(t, err)
	assert.Equal(t, uint64(60), again.FromSettlement)
	assert.Equal(t, uint64(0), again.Deposited)
	assert.Equal(t, uint64(40), p.User(alice).PendingBase)
	assert.Greater(t, again.Order.ID, placed.Order.ID)
	requireCustody(t, p)
}

func TestCancelErrors(t *testing.T) {
	p := newPool(t, freeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 10)
	placed, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 1, Quantity: 10})
	require.NoError(t, err)
	before := p.Snapshot()

	_, err = p.CancelOrder(ctxAt(bob, 1), placed.Order.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = p.CancelOrder(ctxAt(alice, 1), placed.Order.ID+2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.CancelOrder(ctxAt(alice, 1), placed.Order.ID-1) // bid side, never placed
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, before, p.Snapshot())
}

func TestCancelRefundsFee(t *testing.T) {
	p := newPool(t, feeConfig())
	withUnitPrice(t, p)
	v := account.NewMemoryManager()
	fund(t, v, alice, usdc, 2_000_000)
	fund(t, v, alice, deep, 1_000)

	placed, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{IsBid: true, Price: 2, Quantity: 2_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), placed.Order.FeeQuantity)
	assert.Equal(t, uint64(0), v.Balance(alice, deep))

	canceled, err := p.CancelOrder(ctxAt(alice, 1), placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), canceled.RefundedFee)
	assert.Equal(t, uint64(1_000), p.User(alice).PendingDeep)
	requireCustody(t, p)

	settled, err := p.WithdrawSettledFunds(ctxAt(alice, 1), v)
	require.NoError(t, err)
	assert.Equal(t, FundsSettled{Header: settled.Header, Owner: alice, Quote: 2_000_000, Deep: 1_000}, settled)
	assert.Equal(t, uint64(2_000_000), v.Balance(alice, usdc))
	assert.Equal(t, uint64(1_000), v.Balance(alice, deep))
	assert.Equal(t, Balances{}, p.Balances())
	requireCustody(t, p)
}

func TestFillAsk(t *testing.T) {
	p := newPool(t, feeConfig())
	withUnitPrice(t, p)
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 1_000_000)
	fund(t, v, alice, deep, 500)
	fund(t, v, bob, usdc, 2_000_000)
	fund(t, v, bob, deep, 1_000)

	placed, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 2, Quantity: 1_000_000})
	require.NoError(t, err)
	require.Equal(t, uint64(500), placed.Order.FeeQuantity)

	filled, err := p.FillMakerOrder(ctxAt(bob, 1), v, placed.Order.ID, 400_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(800_000), filled.CounterQuantity)
	assert.Equal(t, uint64(600_000), filled.RemainingQuantity)
	assert.Equal(t, uint64(200), filled.MakerFee)
	assert.Equal(t, uint64(400), filled.TakerFee)
	assert.Equal(t, uint64(400_000), filled.Volume)
	assert.False(t, filled.Staked)

	assert.Equal(t, uint64(400_000), p.User(bob).PendingBase)
	assert.Equal(t, uint64(800_000), p.User(alice).PendingQuote)
	assert.Equal(t, uint64(1_200_000), v.Balance(bob, usdc))
	assert.Equal(t, uint64(600), v.Balance(bob, deep))

	cur := p.CurrentEpoch()
	assert.Equal(t, uint64(600), cur.TotalFeesCollected)
	assert.Equal(t, uint64(400_000), cur.TotalMakerVolume)
	assert.Equal(t, uint64(0), cur.TotalStakedMakerVolume)
	assert.Equal(t, uint64(600), p.Balances().FeePool)

	o, ok := p.Order(placed.Order.ID)
	require.True(t, ok)
	assert.Equal(t, uint64(300), o.FeeQuantity)
	requireCustody(t, p)

	// The rest consumes the remaining fee exactly.
	filled, err = p.FillMakerOrder(ctxAt(bob, 1), v, placed.Order.ID, 600_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), filled.MakerFee)
	assert.Equal(t, uint64(0), filled.RemainingQuantity)
	_, ok = p.Order(placed.Order.ID)
	assert.False(t, ok)
	requireCustody(t, p)
}

func TestFillBid(t *testing.T) {
	p := newPool(t, freeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, usdc, 100)
	fund(t, v, bob, sui, 10)

	placed, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{IsBid: true, Price: 10, Quantity: 100})
	require.NoError(t, err)

	_, err = p.FillMakerOrder(ctxAt(bob, 1), v, placed.Order.ID, 15)
	assert.ErrorIs(t, err, ErrInvalidOrder, "15 quote is not a whole number of base at 10")

	filled, err := p.FillMakerOrder(ctxAt(bob, 1), v, placed.Order.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), filled.CounterQuantity)
	assert.Equal(t, uint64(3), filled.Volume)
	assert.Equal(t, uint64(30), p.User(bob).PendingQuote)
	assert.Equal(t, uint64(3), p.User(alice).PendingBase)
	assert.Equal(t, uint64(7), v.Balance(bob, sui))
	requireCustody(t, p)
}

func TestFillErrors(t *testing.T) {
	p := newPool(t, freeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 10)
	placed, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 5, Quantity: 10})
	require.NoError(t, err)
	before := p.Snapshot()

	tests := []struct {
		name   string
		sender common.Address
		id     uint64
		qty    uint64
		want   error
	}{
		{"self fill", alice, placed.Order.ID, 1, ErrInvalidOrder},
		{"zero", bob, placed.Order.ID, 0, ErrInvalidOrder},
		{"overfill", bob, placed.Order.ID, 11, ErrInvalidOrder},
		{"unknown", bob, placed.Order.ID + 2, 1, ErrNotFound},
		{"taker broke", bob, placed.Order.ID, 10, ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.FillMakerOrder(ctxAt(tt.sender, 1), v, tt.id, tt.qty)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, p.Snapshot())
		})
	}
}

// stakedFill stakes for alice in epoch 1, then in epoch 2 alice rests an ask
// that bob fills completely. Fees collected in epoch 2 are 1500.
func stakedFill(t *testing.T) (*Pool, *account.Manager) {
	t.Helper()
	p := newPool(t, feeConfig())
	withUnitPrice(t, p)
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 1_000_000)
	fund(t, v, alice, deep, 10_000)
	fund(t, v, bob, usdc, 2_000_000)
	fund(t, v, bob, deep, 10_000)

	_, err := p.IncreaseStake(ctxAt(alice, 1), v, 100)
	require.NoError(t, err)
	active, staged := p.GetUserStake(alice)
	assert.Equal(t, [2]uint64{0, 100}, [2]uint64{active, staged})

	placed, err := p.PlaceMakerOrder(ctxAt(alice, 2), v, OrderRequest{Price: 2, Quantity: 1_000_000})
	require.NoError(t, err)
	active, _ = p.GetUserStake(alice)
	require.Equal(t, uint64(100), active, "stake activates in the next epoch")

	filled, err := p.FillMakerOrder(ctxAt(bob, 2), v, placed.Order.ID, 1_000_000)
	require.NoError(t, err)
	require.True(t, filled.Staked)
	require.Equal(t, uint64(1_500), filled.MakerFee+filled.TakerFee)
	assert.Equal(t, uint64(1_000_000), p.CurrentEpoch().TotalStakedMakerVolume)
	requireCustody(t, p)
	return p, v
}

func TestRebateAccruesToQualifiedStaker(t *testing.T) {
	p, v := stakedFill(t)

	claimed, err := p.ClaimRebates(ctxAt(alice, 3), v)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), claimed.Amount)
	assert.Equal(t, uint64(10_000-100-500+1_500), v.Balance(alice, deep))
	assert.Equal(t, uint64(0), p.Balances().FeePool)
	assert.Equal(t, uint64(0), p.Balances().Burned)
	requireCustody(t, p)

	again, err := p.ClaimRebates(ctxAt(alice, 3), v)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), again.Amount)
}

func TestRebateBurnedWhenStakeWithdrawn(t *testing.T) {
	p, v := stakedFill(t)

	_, err := p.RemoveStake(ctxAt(alice, 2), v, 100)
	require.NoError(t, err)

	claimed, err := p.ClaimRebates(ctxAt(alice, 3), v)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), claimed.Amount)
	b := p.Balances()
	assert.Equal(t, uint64(1_500), b.Burned)
	assert.Equal(t, uint64(0), b.FeePool)
	requireCustody(t, p)
}

func TestRemoveStake(t *testing.T) {
	p := newPool(t, feeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, deep, 300)

	_, err := p.IncreaseStake(ctxAt(alice, 1), v, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = p.IncreaseStake(ctxAt(alice, 1), v, 301)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = p.IncreaseStake(ctxAt(alice, 1), v, 200)
	require.NoError(t, err)
	_, err = p.IncreaseStake(ctxAt(alice, 2), v, 100)
	require.NoError(t, err)

	_, err = p.RemoveStake(ctxAt(alice, 2), v, 301)
	assert.ErrorIs(t, err, ErrInsufficientStake)

	ev, err := p.RemoveStake(ctxAt(alice, 2), v, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), ev.StakeBefore)
	assert.Equal(t, uint64(150), ev.StakeAfter)
	active, staged := p.GetUserStake(alice)
	assert.Equal(t, uint64(150), active, "staged stake drains first")
	assert.Equal(t, uint64(0), staged)
	assert.Equal(t, uint64(150), v.Balance(alice, deep))
	requireCustody(t, p)
}

func TestNextEpochParams(t *testing.T) {
	p := newPool(t, freeConfig())
	withUnitPrice(t, p)
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 2_000_000)
	fund(t, v, alice, deep, 10_000)

	staged, err := p.SetNextEpochPoolState(ctxAt(alice, 1), epoch.Params{MakerFee: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, KindNextEpochStaged, staged.Kind)
	_, err = p.SetNextEpochPoolState(ctxAt(alice, 1), epoch.Params{MakerFee: asset.FloatScaling})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	// Same epoch: still free.
	first, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{Price: 1, Quantity: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Order.FeeQuantity)

	p.TakeEvents()
	second, err := p.PlaceMakerOrder(ctxAt(alice, 2), v, OrderRequest{Price: 1, Quantity: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), second.Order.FeeQuantity)

	events := p.TakeEvents()
	require.Len(t, events, 2)
	rolled, ok := events[0].(EpochRolled)
	require.True(t, ok, "first record is the rollover")
	assert.Equal(t, uint64(1), rolled.Closed.Epoch)
	assert.Equal(t, uint64(2), rolled.Current.Epoch)
	assert.Equal(t, uint64(1_000_000), rolled.Current.MakerFee)
	assert.Len(t, p.HistoricalEpochs(), 1)
	_, ok = p.NextEpoch()
	assert.False(t, ok)

	_, err = p.EpochData(1)
	assert.NoError(t, err)
	_, err = p.EpochData(9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEpochRegressRejected(t *testing.T) {
	p := newPool(t, freeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, sui, 10)
	_, err := p.PlaceMakerOrder(ctxAt(alice, 3), v, OrderRequest{Price: 1, Quantity: 5})
	require.NoError(t, err)

	_, err = p.PlaceMakerOrder(ctxAt(alice, 2), v, OrderRequest{Price: 1, Quantity: 5})
	assert.ErrorIs(t, err, epoch.ErrEpochRegress)
	assert.Equal(t, uint64(5), v.Balance(alice, sui))
}

func TestQueries(t *testing.T) {
	p := newPool(t, freeConfig())
	v := account.NewMemoryManager()
	fund(t, v, alice, usdc, 1_000)
	fund(t, v, bob, sui, 1_000)

	for _, price := range []uint64{8, 9, 9} {
		_, err := p.PlaceMakerOrder(ctxAt(alice, 1), v, OrderRequest{IsBid: true, Price: price, Quantity: 90})
		require.NoError(t, err)
	}
	_, err := p.PlaceMakerOrder(ctxAt(bob, 1), v, OrderRequest{Price: 11, Quantity: 10})
	require.NoError(t, err)

	levels := p.Levels(true, 1)
	require.Len(t, levels, 1)
	assert.Equal(t, uint64(9), levels[0].Price)
	assert.Equal(t, uint64(180), levels[0].Quantity)

	ask, ok := p.BestAsk()
	require.True(t, ok)
	assert.Equal(t, uint64(11), ask)

	assert.Len(t, p.OrdersOf(alice), 3)
	assert.Len(t, p.OrdersOf(bob), 1)
	bids, asks := p.OrderCount()
	assert.Equal(t, [2]int{3, 1}, [2]int{bids, asks})
	assert.Len(t, p.Users(), 2)

	_, _, err = p.OracleRates()
	assert.ErrorIs(t, err, ErrPricingUnavailable)
}

func TestSnapshotRestore(t *testing.T) {
	p, v := stakedFill(t)
	fund(t, v, carol, usdc, 50)
	_, err := p.PlaceMakerOrder(ctxAt(carol, 2), v, OrderRequest{IsBid: true, Price: 5, Quantity: 50})
	require.NoError(t, err)

	snap := p.Snapshot()
	restored, err := Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, p.ID(), restored.ID())

	// Restored pool keeps working and keeps assigning fresh ids.
	fund(t, v, carol, usdc, 50)
	next, err := restored.PlaceMakerOrder(ctxAt(carol, 2), v, OrderRequest{IsBid: true, Price: 5, Quantity: 50})
	require.NoError(t, err)
	assert.Greater(t, next.Order.ID, snap.Bids[len(snap.Bids)-1].ID)

	tampered := p.Snapshot()
	tampered.Balances.Base++
	_, err = Restore(tampered)
	assert.ErrorIs(t, err, ErrCustodyViolation)
}

func TestPricePoint(t *testing.T) {
	p := newPool(t, feeConfig())
	_, err := p.AddDeepPricePoint(ctxAt(alice, 1), oracle.PricePoint{BaseRate: 0, QuoteRate: 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	ev, err := p.AddDeepPricePoint(ctxAt(alice, 1), oracle.PricePoint{BaseRate: 4, QuoteRate: 6, Timestamp: 77})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ev.DeepPerBase)
	assert.Equal(t, uint64(77), ev.PointTime)
	assert.Len(t, p.PricePoints(), 1)
}

func TestPricePointRollsEpoch(t *testing.T) {
	p := newPool(t, feeConfig())
	p.TakeEvents()

	_, err := p.AddDeepPricePoint(ctxAt(alice, 3), oracle.PricePoint{BaseRate: 0, QuoteRate: 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Equal(t, uint64(1), p.CurrentEpoch().Epoch, "rejected point leaves the epoch alone")
	assert.Empty(t, p.TakeEvents())

	ev, err := p.AddDeepPricePoint(ctxAt(alice, 3), oracle.PricePoint{BaseRate: 4, QuoteRate: 6, Timestamp: 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ev.Epoch)
	assert.Equal(t, uint64(3), p.CurrentEpoch().Epoch)

	events := p.TakeEvents()
	require.Len(t, events, 2)
	assert.Equal(t, KindEpochRolled, events[0].EventHeader().Kind)
	assert.Equal(t, KindPricePointAdded, events[1].EventHeader().Kind)

	_, err = p.AddDeepPricePoint(ctxAt(alice, 2), oracle.PricePoint{BaseRate: 4, QuoteRate: 6, Timestamp: 6})
	assert.ErrorIs(t, err, epoch.ErrEpochRegress)
}
