package account

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Account is a user's external balance sheet: funds held outside any pool,
// per asset symbol. Pools pull from and push to it through the Manager.
type Account struct {
	Address common.Address `json:"address"` // EVM 20-byte address (0x...)
	Nonce   uint64         `json:"nonce"`   // Last accepted request nonce (replay protection)

	// Balances by asset symbol (e.g. "SUI" -> 1_000_000), in the asset's smallest unit
	Balances map[string]uint64 `json:"balances"`
}

// NewAccount creates an account with no balances
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:  addr,
		Balances: make(map[string]uint64),
	}
}

// Balance returns the held amount of asset (0 if never funded)
func (a *Account) Balance(asset string) uint64 {
	return a.Balances[asset]
}

// credit adds amount of asset, failing on overflow
func (a *Account) credit(asset string, amount uint64) error {
	cur := a.Balances[asset]
	if cur+amount < cur {
		return fmt.Errorf("balance overflow: %s %d + %d", asset, cur, amount)
	}
	a.Balances[asset] = cur + amount
	return nil
}

// debit removes amount of asset, failing if the account holds less
func (a *Account) debit(asset string, amount uint64) error {
	cur := a.Balances[asset]
	if cur < amount {
		return fmt.Errorf("%w: %s has %d %s, need %d", ErrInsufficientFunds, a.Address.Hex(), cur, asset, amount)
	}
	if cur == amount {
		delete(a.Balances, asset)
		return nil
	}
	a.Balances[asset] = cur - amount
	return nil
}

// Clone returns a deep copy safe to hand out of the manager
func (a *Account) Clone() *Account {
	c := &Account{
		Address:  a.Address,
		Nonce:    a.Nonce,
		Balances: make(map[string]uint64, len(a.Balances)),
	}
	for k, v := range a.Balances {
		c.Balances[k] = v
	}
	return c
}

// Assets returns the symbols with a non-zero balance, sorted
func (a *Account) Assets() []string {
	out := make([]string, 0, len(a.Balances))
	for k := range a.Balances {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String returns a human-readable representation
func (a *Account) String() string {
	parts := make([]string, 0, len(a.Balances))
	for _, k := range a.Assets() {
		parts = append(parts, fmt.Sprintf("%s=%d", k, a.Balances[k]))
	}
	return fmt.Sprintf("Account{Address=%s, Nonce=%d, Balances=[%s]}",
		a.Address.Hex(), a.Nonce, strings.Join(parts, " "))
}
