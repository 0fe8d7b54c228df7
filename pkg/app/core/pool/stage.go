package pool

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
	"github.com/uhyunpark/deeppool/pkg/app/core/user"
)

// Vault is the external-account collaborator pools pull funds from and
// push funds to.
type Vault interface {
	Withdraw(owner common.Address, asset string, amount uint64) error
	Deposit(owner common.Address, asset string, amount uint64) error
}

// stage collects an operation's effects on epoch state and users. Nothing
// reaches the pool until commit.
type stage struct {
	ctx    transaction.Context
	state  epoch.PoolState
	rolled bool
	closed epoch.PoolData

	users   map[common.Address]user.User
	touched []common.Address

	burn   uint64 // fee tokens forfeited by refreshed users
	rebate uint64 // fee tokens moved from the fee pool into accrued rebates
}

func (p *Pool) begin(ctx transaction.Context) (*stage, error) {
	closed := p.state.Current()
	next, rolled, err := p.state.Refresh(ctx.Epoch)
	if err != nil {
		return nil, err
	}
	return &stage{
		ctx:    ctx,
		state:  next,
		rolled: rolled,
		closed: closed,
		users:  make(map[common.Address]user.User),
	}, nil
}

// user returns the owner's record refreshed into the staged epoch.
func (s *stage) user(p *Pool, owner common.Address) (user.User, error) {
	if u, ok := s.users[owner]; ok {
		return u, nil
	}
	stored, _ := p.users.Get(owner)
	u, burn, err := stored.Refresh(s.state.Current().Epoch, s.state.Snapshot)
	if err != nil {
		return user.User{}, err
	}
	s.burn += burn
	s.rebate += u.AccruedRebate - stored.AccruedRebate
	if s.burn+s.rebate > p.feePool {
		return user.User{}, fmt.Errorf("%w: fee pool %d cannot cover rebate %d and burn %d",
			ErrCustodyViolation, p.feePool, s.rebate, s.burn)
	}
	s.users[owner] = u
	s.touched = append(s.touched, owner)
	return u, nil
}

func (s *stage) put(u user.User) {
	if _, ok := s.users[u.Owner]; !ok {
		s.touched = append(s.touched, u.Owner)
	}
	s.users[u.Owner] = u
}

func (s *stage) header(p *Pool, kind string) Header {
	return Header{
		Kind:      kind,
		Pool:      p.key,
		Epoch:     s.state.Current().Epoch,
		Timestamp: s.ctx.Timestamp,
	}
}

// commit applies the staged epoch state and users, settles forfeits and
// rebates against the fee pool, and records the rollover if one happened.
// It cannot fail.
func (p *Pool) commit(s *stage) {
	p.state = s.state
	for _, owner := range s.touched {
		p.users.Put(s.users[owner])
	}
	p.feePool -= s.burn + s.rebate
	p.deepBalance -= s.burn
	p.burned += s.burn
	if s.rolled {
		p.record(EpochRolled{
			Header:  s.header(p, KindEpochRolled),
			Closed:  s.closed,
			Current: s.state.Current(),
		})
	}
}

// transfers tracks vault movements made by one operation so they can be
// reversed if a later step fails.
type transfers struct {
	vault Vault
	done  []transfer
}

type transfer struct {
	owner  common.Address
	asset  string
	amount uint64
	pulled bool
}

func newTransfers(v Vault) *transfers {
	return &transfers{vault: v}
}

// pull moves amount from the owner's account into the pool.
func (t *transfers) pull(owner common.Address, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := t.vault.Withdraw(owner, asset, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	t.done = append(t.done, transfer{owner: owner, asset: asset, amount: amount, pulled: true})
	return nil
}

// push moves amount from the pool to the owner's account.
func (t *transfers) push(owner common.Address, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := t.vault.Deposit(owner, asset, amount); err != nil {
		return fmt.Errorf("pay %d %s to %s: %w", amount, asset, owner.Hex(), err)
	}
	t.done = append(t.done, transfer{owner: owner, asset: asset, amount: amount})
	return nil
}

// rollback reverses every completed transfer, newest first, and returns
// cause joined with any compensation failure.
func (t *transfers) rollback(cause error) error {
	errs := []error{cause}
	for i := len(t.done) - 1; i >= 0; i-- {
		tr := t.done[i]
		var err error
		if tr.pulled {
			err = t.vault.Deposit(tr.owner, tr.asset, tr.amount)
		} else {
			err = t.vault.Withdraw(tr.owner, tr.asset, tr.amount)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("compensate %s %d %s: %w", tr.owner.Hex(), tr.amount, tr.asset, err))
		}
	}
	t.done = nil
	return errors.Join(errs...)
}
