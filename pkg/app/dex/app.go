// Package dex hosts the pools of one node: it serializes every mutation,
// derives epochs from the clock, persists snapshots and events after each
// committed operation, and fans committed events out to subscribers.
package dex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/deeppool/pkg/app/core/account"
	"github.com/uhyunpark/deeppool/pkg/app/core/market"
	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
	"github.com/uhyunpark/deeppool/pkg/storage"
	"github.com/uhyunpark/deeppool/pkg/util"
)

type Config struct {
	EpochDuration time.Duration
	Genesis       time.Time // start of epoch 0
	// Operator may add price points and stage next-epoch parameters. The
	// zero address disables both.
	Operator    common.Address
	Treasury    common.Address
	FeeAsset    string
	CreationFee uint64
	// PoolDefaults supply the fields a create_pool request omits.
	PoolDefaults pool.Config
}

type App struct {
	mu  sync.RWMutex
	cfg Config
	log *zap.SugaredLogger

	clock    util.Clock
	ledger   *account.Manager
	registry *market.Registry
	store    storage.Store
	wal      storage.WAL
	verifier *transaction.Verifier

	subMu     sync.RWMutex
	onEvents  []func([]storage.EventRecord)
	onEpoch   []func(uint64)
	lastEpoch uint64
}

// New builds the app and restores every pool found in store.
func New(cfg Config, logger *zap.Logger, clock util.Clock, ledger *account.Manager, store storage.Store, wal storage.WAL) (*App, error) {
	if cfg.EpochDuration <= 0 {
		return nil, fmt.Errorf("epoch duration must be positive")
	}
	if wal == nil {
		wal = storage.NewNopWAL()
	}
	a := &App{
		cfg:      cfg,
		log:      logger.Sugar(),
		clock:    clock,
		ledger:   ledger,
		registry: market.NewRegistry(ledger, cfg.Treasury, cfg.FeeAsset),
		store:    store,
		wal:      wal,
		verifier: transaction.NewVerifier(ledger),
	}

	snaps, err := store.LoadPools()
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}
	for _, snap := range snaps {
		p, err := pool.Restore(snap)
		if err != nil {
			return nil, fmt.Errorf("restore pool %s: %w", snap.Key, err)
		}
		if err := a.registry.Register(p); err != nil {
			return nil, err
		}
		a.log.Infow("pool_restored", "pool", p.Key(), "epoch", p.CurrentEpoch().Epoch)
	}
	a.lastEpoch = a.Epoch()
	return a, nil
}

// Epoch is the epoch number at the clock's current time.
func (a *App) Epoch() uint64 {
	return a.epochAt(a.clock.Now())
}

func (a *App) epochAt(t time.Time) uint64 {
	if t.Before(a.cfg.Genesis) {
		return 0
	}
	return uint64(t.Sub(a.cfg.Genesis) / a.cfg.EpochDuration)
}

// context builds the transaction context for a call made now by sender.
func (a *App) context(sender common.Address) transaction.Context {
	now := a.clock.Now()
	return transaction.Context{
		Sender:    sender,
		Epoch:     a.epochAt(now),
		Timestamp: uint64(now.UnixMilli()),
	}
}

func (a *App) Config() Config                  { return a.cfg }
func (a *App) Ledger() *account.Manager        { return a.ledger }
func (a *App) Registry() *market.Registry      { return a.registry }
func (a *App) Operator() common.Address        { return a.cfg.Operator }
func (a *App) Verifier() *transaction.Verifier { return a.verifier }

// OnEvents registers fn to receive each committed batch of events in
// commit order. fn runs on the committing goroutine after the app lock is
// released.
func (a *App) OnEvents(fn func([]storage.EventRecord)) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.onEvents = append(a.onEvents, fn)
}

// OnEpoch registers fn to be called by Run at every epoch boundary.
func (a *App) OnEpoch(fn func(uint64)) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.onEpoch = append(a.onEpoch, fn)
}

// View runs fn with the pool under the read lock. fn must not retain p.
func (a *App) View(key string, fn func(p *pool.Pool) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, err := a.registry.Get(key)
	if err != nil {
		return err
	}
	return fn(p)
}

// ViewAll runs fn with every pool, sorted by key, under the read lock.
func (a *App) ViewAll(fn func(pools []*pool.Pool)) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn(a.registry.List())
}

// Events returns persisted events of a pool after seq.
func (a *App) Events(key string, after uint64, limit int) ([]storage.EventRecord, error) {
	p, err := a.registry.Get(key)
	if err != nil {
		return nil, err
	}
	return a.store.LoadEvents(p.Key(), after, limit)
}

// Deposit credits an external account. It backs the development faucet.
func (a *App) Deposit(owner common.Address, asset string, amount uint64) error {
	if err := pool.ValidateSymbol(asset); err != nil {
		return err
	}
	if err := a.ledger.Deposit(owner, asset, amount); err != nil {
		return err
	}
	a.log.Infow("deposit", "owner", owner.Hex(), "asset", asset, "amount", amount)
	return nil
}

// mutate runs op against the pool under the write lock, persists the
// result and publishes the committed events.
func (a *App) mutate(sender common.Address, key string, op func(p *pool.Pool, ctx transaction.Context) error) ([]storage.EventRecord, error) {
	a.mu.Lock()
	p, err := a.registry.Get(key)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if err := op(p, a.context(sender)); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	records := a.persistLocked(p)
	a.mu.Unlock()
	a.publish(records)
	return records, nil
}

// persistLocked stores the pool snapshot with its pending events. The
// operation has already been applied, so a store failure is not returned:
// the events go back on the pool's queue and are written and published by
// the next successful save.
func (a *App) persistLocked(p *pool.Pool) []storage.EventRecord {
	events := p.TakeEvents()
	records, err := a.store.SavePool(p.Snapshot(), events)
	if err != nil {
		p.RequeueEvents(events)
		a.log.Errorw("persist_deferred", "pool", p.Key(), "pending", len(events), "err", err)
		return nil
	}
	if err := a.wal.Append(records...); err != nil {
		a.log.Warnw("wal_append_failed", "pool", p.Key(), "err", err)
	}
	return records
}

func (a *App) publish(records []storage.EventRecord) {
	if len(records) == 0 {
		return
	}
	for _, rec := range records {
		a.log.Infow(rec.Kind, "pool", rec.Pool, "seq", rec.Seq, "epoch", rec.Epoch)
	}
	a.subMu.RLock()
	subs := slices.Clone(a.onEvents)
	a.subMu.RUnlock()
	for _, fn := range subs {
		fn(records)
	}
}

// Run notifies epoch subscribers at every epoch boundary until ctx is done.
// Pools roll over lazily on their next operation; Run only announces.
func (a *App) Run(ctx context.Context) error {
	for {
		a.announceEpoch()

		now := a.clock.Now()
		next := a.cfg.Genesis.Add(time.Duration(a.epochAt(now)+1) * a.cfg.EpochDuration)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(next.Sub(now)):
		}
	}
}

func (a *App) announceEpoch() {
	e := a.Epoch()
	a.subMu.Lock()
	if e <= a.lastEpoch {
		a.subMu.Unlock()
		return
	}
	a.lastEpoch = e
	subs := slices.Clone(a.onEpoch)
	a.subMu.Unlock()

	a.log.Infow("epoch_started", "epoch", e)
	for _, fn := range subs {
		fn(e)
	}
}

// EnsurePool creates cfg's pool on behalf of the operator without a
// creation fee unless it already exists. cfg is used as given.
func (a *App) EnsurePool(cfg pool.Config) (bool, error) {
	if _, err := a.registry.Get(pool.KeyOf(cfg.Base, cfg.Quote)); err == nil {
		return false, nil
	}
	if _, err := a.createPool(a.cfg.Operator, cfg, 0); err != nil {
		if errors.Is(err, market.ErrPoolExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *App) createPool(sender common.Address, cfg pool.Config, fee uint64) ([]storage.EventRecord, error) {
	a.mu.Lock()
	p, _, err := a.registry.CreatePool(a.context(sender), cfg, fee)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	records := a.persistLocked(p)
	a.mu.Unlock()
	a.publish(records)
	return records, nil
}
