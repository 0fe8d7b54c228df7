// Package market keeps the set of live pools and charges pool creation.
package market

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
)

var ErrPoolExists = errors.New("market: pool already registered")

// Ledger moves the creation fee from the creator to the treasury.
type Ledger interface {
	Transfer(from, to common.Address, asset string, amount uint64) error
}

// Registry manages every pool keyed by its canonical pair key.
// The map is guarded by mu; individual pools are not, callers serialize
// mutations on a pool themselves.
type Registry struct {
	mu       sync.RWMutex
	pools    map[string]*pool.Pool // key -> pool
	ledger   Ledger
	treasury common.Address
	feeAsset string
}

// NewRegistry creates an empty registry charging creation fees in feeAsset
// to treasury.
func NewRegistry(ledger Ledger, treasury common.Address, feeAsset string) *Registry {
	return &Registry{
		pools:    make(map[string]*pool.Pool),
		ledger:   ledger,
		treasury: treasury,
		feeAsset: feeAsset,
	}
}

// Treasury returns the address creation fees are paid to.
func (r *Registry) Treasury() common.Address { return r.treasury }

// CreatePool validates cfg, charges creationFee from ctx.Sender and
// registers the new pool. A pair can only have one pool regardless of
// which asset is named base.
func (r *Registry) CreatePool(ctx transaction.Context, cfg pool.Config, creationFee uint64) (*pool.Pool, pool.PoolCreated, error) {
	if err := cfg.Validate(); err != nil {
		return nil, pool.PoolCreated{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pool.KeyOf(cfg.Base, cfg.Quote)
	if _, exists := r.pools[key]; exists {
		return nil, pool.PoolCreated{}, fmt.Errorf("%w: %w %s", pool.ErrInvalidConfiguration, ErrPoolExists, key)
	}

	p, ev, err := pool.New(ctx, cfg)
	if err != nil {
		return nil, pool.PoolCreated{}, err
	}

	// Charge last so a rejected pool costs nothing.
	if creationFee > 0 {
		if err := r.ledger.Transfer(ctx.Sender, r.treasury, r.feeAsset, creationFee); err != nil {
			return nil, pool.PoolCreated{}, fmt.Errorf("%w: creation fee: %w", pool.ErrInsufficientFunds, err)
		}
	}

	r.pools[key] = p
	return p, ev, nil
}

// Register adds an existing pool, typically one restored from storage.
func (r *Registry) Register(p *pool.Pool) error {
	if p == nil {
		return fmt.Errorf("cannot register nil pool")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[p.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrPoolExists, p.Key())
	}
	r.pools[p.Key()] = p
	return nil
}

// Get retrieves a pool by key. Either asset order is accepted.
func (r *Registry) Get(key string) (*pool.Pool, error) {
	if a, b, ok := strings.Cut(key, pool.KeySeparator); ok {
		key = pool.KeyOf(a, b)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.pools[key]
	if !exists {
		return nil, fmt.Errorf("%w: pool %s", pool.ErrNotFound, key)
	}
	return p, nil
}

// List returns all pools sorted by key.
func (r *Registry) List() []*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Count returns the number of registered pools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
