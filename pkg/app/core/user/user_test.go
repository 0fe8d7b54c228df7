package user

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
)

var owner = common.HexToAddress("0x1111111111111111111111111111111111111111")

func lookupOf(snaps ...epoch.PoolData) SnapshotFunc {
	return func(e uint64) (epoch.PoolData, error) {
		for _, s := range snaps {
			if s.Epoch == e {
				return s, nil
			}
		}
		return epoch.PoolData{}, epoch.ErrUnknownEpoch
	}
}

func TestRefreshSameEpoch(t *testing.T) {
	u := User{Owner: owner, Epoch: 3, MakerVolume: 10, NextStakeAmount: 5}
	got, burn, err := u.Refresh(3, nil)
	if err != nil || burn != 0 || got != u {
		t.Errorf("Refresh same epoch = %+v, %d, %v", got, burn, err)
	}
}

func TestRefreshActivatesStagedStake(t *testing.T) {
	u := User{Owner: owner, Epoch: 1, NextStakeAmount: 50}
	got, _, err := u.Refresh(2, lookupOf())
	if err != nil {
		t.Fatal(err)
	}
	if got.StakeAmount != 50 || got.NextStakeAmount != 0 || got.Epoch != 2 {
		t.Errorf("refreshed = %+v", got)
	}
}

func TestRefreshRebateOrBurn(t *testing.T) {
	snap := epoch.PoolData{Epoch: 1, TotalFeesCollected: 1000, TotalStakedMakerVolume: 400, StakeRequired: 100}

	tests := []struct {
		name       string
		stake      uint64
		volume     uint64
		wantRebate uint64
		wantBurn   uint64
	}{
		{"qualifies", 100, 100, 250, 0},
		{"below requirement", 99, 100, 0, 250},
		{"truncates", 100, 3, 7, 0},
		{"no volume", 100, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{Owner: owner, Epoch: 1, StakeAmount: tt.stake, MakerVolume: tt.volume}
			got, burn, err := u.Refresh(2, lookupOf(snap))
			if err != nil {
				t.Fatal(err)
			}
			if got.AccruedRebate != tt.wantRebate || burn != tt.wantBurn {
				t.Errorf("rebate=%d burn=%d, want %d/%d", got.AccruedRebate, burn, tt.wantRebate, tt.wantBurn)
			}
			if got.MakerVolume != 0 {
				t.Errorf("volume not reset: %d", got.MakerVolume)
			}
		})
	}
}

func TestRefreshMissingSnapshot(t *testing.T) {
	u := User{Owner: owner, Epoch: 1, MakerVolume: 5}
	_, _, err := u.Refresh(2, lookupOf())
	if !errors.Is(err, epoch.ErrUnknownEpoch) {
		t.Errorf("err = %v", err)
	}
}

func TestRefreshRegress(t *testing.T) {
	u := User{Owner: owner, Epoch: 4}
	if _, _, err := u.Refresh(3, lookupOf()); !errors.Is(err, epoch.ErrEpochRegress) {
		t.Errorf("err = %v", err)
	}
}

func TestStake(t *testing.T) {
	u := User{Owner: owner, StakeAmount: 30}
	before, after := u.IncreaseStake(20)
	if before != 30 || after != 50 || u.NextStakeAmount != 20 {
		t.Errorf("IncreaseStake = %d -> %d, %+v", before, after, u)
	}

	if _, _, err := u.RemoveStake(51); !errors.Is(err, ErrInsufficientStake) {
		t.Errorf("over-remove err = %v", err)
	}
	before, after, err := u.RemoveStake(25)
	if err != nil || before != 50 || after != 25 {
		t.Fatalf("RemoveStake = %d -> %d, %v", before, after, err)
	}
	// Staged stake drains first.
	if u.NextStakeAmount != 0 || u.StakeAmount != 25 {
		t.Errorf("after remove = %+v", u)
	}
}

func TestSettle(t *testing.T) {
	var u User
	u.AddSettle(asset.Base, 10)
	u.AddSettle(asset.Quote, 20)
	u.AddSettle(asset.Fee, 30)

	if got := u.TakeSettle(asset.Quote, 25); got != 20 {
		t.Errorf("TakeSettle = %d, want 20", got)
	}
	if got := u.TakeSettle(asset.Base, 4); got != 4 {
		t.Errorf("TakeSettle = %d, want 4", got)
	}
	b, q, d := u.ResetSettle()
	if b != 6 || q != 0 || d != 30 {
		t.Errorf("ResetSettle = %d %d %d", b, q, d)
	}
	if !u.IsEmpty() {
		t.Errorf("user not empty: %+v", u)
	}
}

func TestClaimRebates(t *testing.T) {
	u := User{AccruedRebate: 42}
	if got := u.ClaimRebates(); got != 42 || u.AccruedRebate != 0 {
		t.Errorf("claim = %d, left %d", got, u.AccruedRebate)
	}
}

func TestUsers(t *testing.T) {
	users := NewUsers()
	u, ok := users.Get(owner)
	if ok || u.Owner != owner {
		t.Fatalf("unknown owner = %+v, %v", u, ok)
	}

	other := common.HexToAddress("0x0000000000000000000000000000000000000001")
	users.Put(User{Owner: owner, PendingBase: 1})
	users.Put(User{Owner: other})

	all := users.All()
	if len(all) != 2 || all[0].Owner != other {
		t.Errorf("All = %+v", all)
	}

	restored := NewUsers()
	if err := restored.Restore(all); err != nil {
		t.Fatal(err)
	}
	if got, _ := restored.Get(owner); got.PendingBase != 1 {
		t.Errorf("restored = %+v", got)
	}
	if err := restored.Restore([]User{{Owner: owner}, {Owner: owner}}); err == nil {
		t.Error("duplicate owners accepted")
	}
}
