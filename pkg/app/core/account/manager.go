package account

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("account: insufficient funds")
	ErrInvalidAmount     = errors.New("account: amount must be positive")
	ErrStaleNonce        = errors.New("account: nonce not above last accepted")
)

// Manager owns every external account in a thread-safe manner
// Handles deposits, withdrawals and transfers; pools use it as their vault
// Uses in-memory cache + optional Pebble persistence for durability
type Manager struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account // address -> account (in-memory cache)
	store    *Store                      // Pebble persistence layer (nil = memory only)
}

// NewManager creates a manager backed by Pebble at dbPath
// All persisted accounts are loaded into the cache
func NewManager(dbPath string) (*Manager, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	loaded, err := store.LoadAllAccounts()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	m := &Manager{
		accounts: make(map[common.Address]*Account, len(loaded)),
		store:    store,
	}
	for _, acc := range loaded {
		m.accounts[acc.Address] = acc
	}
	return m, nil
}

// NewMemoryManager creates a manager without persistence (tests, tooling)
func NewMemoryManager() *Manager {
	return &Manager{accounts: make(map[common.Address]*Account)}
}

// Close closes the underlying Pebble database
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// GetAccount returns a copy of the account
// Returns an empty account if the address was never funded
func (m *Manager) GetAccount(addr common.Address) *Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acc, ok := m.accounts[addr]; ok {
		return acc.Clone()
	}
	return NewAccount(addr)
}

// Balance returns the held amount of asset
func (m *Manager) Balance(addr common.Address, asset string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acc, ok := m.accounts[addr]; ok {
		return acc.Balance(asset)
	}
	return 0
}

// Deposit adds funds to an account
// Creates account if it doesn't exist
func (m *Manager) Deposit(addr common.Address, asset string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.getAccountLocked(addr)
	next := acc.Clone()
	if err := next.credit(asset, amount); err != nil {
		return err
	}
	return m.commitLocked(next)
}

// Withdraw removes funds from an account
// Returns ErrInsufficientFunds if the balance is too small
func (m *Manager) Withdraw(addr common.Address, asset string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.getAccountLocked(addr)
	next := acc.Clone()
	if err := next.debit(asset, amount); err != nil {
		return err
	}
	return m.commitLocked(next)
}

// Transfer moves funds between two accounts atomically
func (m *Manager) Transfer(from, to common.Address, asset string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.getAccountLocked(from).Clone()
	if err := src.debit(asset, amount); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	dst := m.getAccountLocked(to).Clone()
	if err := dst.credit(asset, amount); err != nil {
		return err
	}
	return m.commitLocked(src, dst)
}

// Nonce returns the last accepted request nonce for addr
func (m *Manager) Nonce(addr common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acc, ok := m.accounts[addr]; ok {
		return acc.Nonce
	}
	return 0
}

// AdvanceNonce records nonce as accepted for addr
// Returns ErrStaleNonce unless nonce is strictly above the last one
func (m *Manager) AdvanceNonce(addr common.Address, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.getAccountLocked(addr)
	if nonce <= acc.Nonce {
		return fmt.Errorf("%w: %s last=%d got=%d", ErrStaleNonce, addr.Hex(), acc.Nonce, nonce)
	}
	next := acc.Clone()
	next.Nonce = nonce
	return m.commitLocked(next)
}

// List returns copies of every account, sorted by address
func (m *Manager) List() []*Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Count returns the number of known accounts
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// getAccountLocked returns the cached account or a fresh one (assumes lock is held)
// The fresh account is not cached until it is committed
func (m *Manager) getAccountLocked(addr common.Address) *Account {
	if acc, ok := m.accounts[addr]; ok {
		return acc
	}
	return NewAccount(addr)
}

// commitLocked persists the updated accounts, then swaps them into the cache
// A persistence failure leaves the cache untouched
func (m *Manager) commitLocked(accs ...*Account) error {
	if m.store != nil {
		batch := m.store.NewBatch()
		defer batch.Close()
		for _, acc := range accs {
			if err := batch.SaveAccount(acc); err != nil {
				return fmt.Errorf("failed to stage account %s: %w", acc.Address.Hex(), err)
			}
		}
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("failed to persist accounts: %w", err)
		}
	}
	for _, acc := range accs {
		m.accounts[acc.Address] = acc
	}
	return nil
}
