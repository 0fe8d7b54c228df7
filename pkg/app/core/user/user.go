// Package user holds per-owner stake, rebate and settlement bookkeeping for
// one pool.
package user

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
)

var ErrInsufficientStake = errors.New("user: stake below requested amount")

// SnapshotFunc looks up the closed statistics bucket for an epoch.
type SnapshotFunc func(epoch uint64) (epoch.PoolData, error)

// User is one owner's record in a pool.
//
// StakeAmount is active stake. NextStakeAmount was added during Epoch and
// becomes active at the first refresh in a later epoch. MakerVolume is the
// staked maker volume credited to the user in Epoch.
type User struct {
	Owner           common.Address `json:"owner"`
	Epoch           uint64         `json:"epoch"`
	StakeAmount     uint64         `json:"stakeAmount"`
	NextStakeAmount uint64         `json:"nextStakeAmount"`
	MakerVolume     uint64         `json:"makerVolume"`
	AccruedRebate   uint64         `json:"accruedRebate"`
	PendingBase     uint64         `json:"pendingBase"`
	PendingQuote    uint64         `json:"pendingQuote"`
	PendingDeep     uint64         `json:"pendingDeep"`
}

// TotalStake is active plus staged stake.
func (u User) TotalStake() uint64 { return u.StakeAmount + u.NextStakeAmount }

// IsEmpty reports whether the record holds nothing worth keeping.
func (u User) IsEmpty() bool {
	return u.StakeAmount == 0 && u.NextStakeAmount == 0 && u.MakerVolume == 0 &&
		u.AccruedRebate == 0 && u.PendingBase == 0 && u.PendingQuote == 0 && u.PendingDeep == 0
}

// Refresh moves the user into current. When the user was last active in an
// earlier epoch, the staked volume they made then earns a share of that
// epoch's fees: accrued as rebate if their active stake still meets the
// epoch's requirement, otherwise returned as burn. Staged stake activates
// and the volume counter resets.
func (u User) Refresh(current uint64, lookup SnapshotFunc) (User, uint64, error) {
	if u.Epoch == current {
		return u, 0, nil
	}
	if u.Epoch > current {
		return u, 0, fmt.Errorf("user %s: %w", u.Owner.Hex(), epoch.ErrEpochRegress)
	}

	var burn uint64
	if u.MakerVolume > 0 {
		snap, err := lookup(u.Epoch)
		if err != nil {
			return u, 0, fmt.Errorf("user %s: %w", u.Owner.Hex(), err)
		}
		share, err := RebateShare(snap, u.MakerVolume)
		if err != nil {
			return u, 0, err
		}
		if u.StakeAmount >= snap.StakeRequired {
			if u.AccruedRebate, err = asset.Add(u.AccruedRebate, share); err != nil {
				return u, 0, err
			}
		} else {
			burn = share
		}
	}

	u.StakeAmount += u.NextStakeAmount
	u.NextStakeAmount = 0
	u.MakerVolume = 0
	u.Epoch = current
	return u, burn, nil
}

// RebateShare is the fraction of an epoch's fees owed to volume units of
// staked maker volume, truncated.
func RebateShare(snap epoch.PoolData, volume uint64) (uint64, error) {
	if snap.TotalStakedMakerVolume == 0 || volume == 0 {
		return 0, nil
	}
	if volume > snap.TotalStakedMakerVolume {
		volume = snap.TotalStakedMakerVolume
	}
	return asset.MulDiv(snap.TotalFeesCollected, volume, snap.TotalStakedMakerVolume)
}

// IncreaseStake stages amount and returns the old and new total stake.
func (u *User) IncreaseStake(amount uint64) (before, after uint64) {
	before = u.TotalStake()
	u.NextStakeAmount += amount
	return before, u.TotalStake()
}

// RemoveStake takes amount from staged stake first, then active stake.
func (u *User) RemoveStake(amount uint64) (before, after uint64, err error) {
	before = u.TotalStake()
	if amount > before {
		return before, before, fmt.Errorf("%w: have %d, remove %d", ErrInsufficientStake, before, amount)
	}
	fromNext := min(amount, u.NextStakeAmount)
	u.NextStakeAmount -= fromNext
	u.StakeAmount -= amount - fromNext
	return before, u.TotalStake(), nil
}

// ClaimRebates zeroes and returns the accrued rebate.
func (u *User) ClaimRebates() uint64 {
	r := u.AccruedRebate
	u.AccruedRebate = 0
	return r
}

// SettleAmounts returns pending base, quote and fee-token settlement.
func (u User) SettleAmounts() (base, quote, deep uint64) {
	return u.PendingBase, u.PendingQuote, u.PendingDeep
}

// AddSettle credits pending settlement for role.
func (u *User) AddSettle(role asset.Role, amount uint64) error {
	p := u.pending(role)
	sum, err := asset.Add(*p, amount)
	if err != nil {
		return err
	}
	*p = sum
	return nil
}

// TakeSettle consumes up to amount of pending settlement for role and
// returns how much was taken.
func (u *User) TakeSettle(role asset.Role, amount uint64) uint64 {
	p := u.pending(role)
	used := min(*p, amount)
	*p -= used
	return used
}

// ResetSettle zeroes all pending settlement and returns what was owed.
func (u *User) ResetSettle() (base, quote, deep uint64) {
	base, quote, deep = u.SettleAmounts()
	u.PendingBase, u.PendingQuote, u.PendingDeep = 0, 0, 0
	return base, quote, deep
}

func (u *User) pending(role asset.Role) *uint64 {
	switch role {
	case asset.Base:
		return &u.PendingBase
	case asset.Quote:
		return &u.PendingQuote
	default:
		return &u.PendingDeep
	}
}

// Users is the pool's owner -> User map. Records are created on first
// write; reads of an unknown owner return an empty record for that owner.
type Users struct {
	byOwner map[common.Address]User
}

func NewUsers() *Users {
	return &Users{byOwner: make(map[common.Address]User)}
}

// Get returns the owner's record and whether it exists.
func (s *Users) Get(owner common.Address) (User, bool) {
	u, ok := s.byOwner[owner]
	if !ok {
		return User{Owner: owner}, false
	}
	return u, true
}

// Put stores u under its owner.
func (s *Users) Put(u User) {
	s.byOwner[u.Owner] = u
}

func (s *Users) Len() int { return len(s.byOwner) }

// All returns every record sorted by owner address.
func (s *Users) All() []User {
	out := make([]User, 0, len(s.byOwner))
	for _, u := range s.byOwner {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Owner[:], out[j].Owner[:]) < 0
	})
	return out
}

// Restore replaces the map contents.
func (s *Users) Restore(users []User) error {
	m := make(map[common.Address]User, len(users))
	for _, u := range users {
		if _, dup := m[u.Owner]; dup {
			return fmt.Errorf("user: duplicate owner %s", u.Owner.Hex())
		}
		m[u.Owner] = u
	}
	s.byOwner = m
	return nil
}
