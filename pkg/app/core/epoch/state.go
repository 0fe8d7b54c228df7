// Package epoch tracks per-epoch trading statistics and fee parameters for
// one pool.
package epoch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
)

var (
	ErrUnknownEpoch  = errors.New("epoch: no data for epoch")
	ErrEpochRegress  = errors.New("epoch: refresh to an earlier epoch")
	ErrInvalidParams = errors.New("epoch: invalid fee parameters")
)

// Params are the governance-controlled values that take effect at an epoch
// boundary.
type Params struct {
	TakerFee      uint64 `json:"takerFee"`
	MakerFee      uint64 `json:"makerFee"`
	StakeRequired uint64 `json:"stakeRequired"`
}

func (p Params) Validate() error {
	if p.TakerFee >= asset.FloatScaling || p.MakerFee >= asset.FloatScaling {
		return fmt.Errorf("%w: taker=%d maker=%d", ErrInvalidParams, p.TakerFee, p.MakerFee)
	}
	return nil
}

// PoolData is the statistics bucket for one epoch.
type PoolData struct {
	Epoch                  uint64 `json:"epoch"`
	TotalMakerVolume       uint64 `json:"totalMakerVolume"`
	TotalStakedMakerVolume uint64 `json:"totalStakedMakerVolume"`
	TotalFeesCollected     uint64 `json:"totalFeesCollected"`
	StakeRequired          uint64 `json:"stakeRequired"`
	TakerFee               uint64 `json:"takerFee"`
	MakerFee               uint64 `json:"makerFee"`
}

func (d PoolData) Params() Params {
	return Params{TakerFee: d.TakerFee, MakerFee: d.MakerFee, StakeRequired: d.StakeRequired}
}

func fresh(epoch uint64, p Params) PoolData {
	return PoolData{
		Epoch:         epoch,
		StakeRequired: p.StakeRequired,
		TakerFee:      p.TakerFee,
		MakerFee:      p.MakerFee,
	}
}

// PoolState holds the current bucket, an optional staged configuration for
// the next epoch, and the archive of closed buckets in epoch order.
//
// Methods with a value receiver are pure; callers apply a transition by
// assigning the returned state.
type PoolState struct {
	current    PoolData
	next       *Params
	historical []PoolData
}

// New starts accounting at epoch with the given parameters.
func New(epoch uint64, p Params) (PoolState, error) {
	if err := p.Validate(); err != nil {
		return PoolState{}, err
	}
	return PoolState{current: fresh(epoch, p)}, nil
}

func (s PoolState) Current() PoolData { return s.current }

// Next returns the staged parameters, if any.
func (s PoolState) Next() (Params, bool) {
	if s.next == nil {
		return Params{}, false
	}
	return *s.next, true
}

// Historical returns a copy of the archive, oldest first.
func (s PoolState) Historical() []PoolData {
	return append([]PoolData(nil), s.historical...)
}

// Refresh rolls the state into epoch. Within the current epoch it is a
// no-op. Crossing a boundary archives the current bucket once and starts a
// new one from the staged parameters, or from the current ones when none
// were staged. The returned bool reports whether a rollover happened.
func (s PoolState) Refresh(epoch uint64) (PoolState, bool, error) {
	switch {
	case epoch == s.current.Epoch:
		return s, false, nil
	case epoch < s.current.Epoch:
		return s, false, fmt.Errorf("%w: at %d, asked %d", ErrEpochRegress, s.current.Epoch, epoch)
	}

	params := s.current.Params()
	if s.next != nil {
		params = *s.next
	}
	out := PoolState{
		current:    fresh(epoch, params),
		historical: make([]PoolData, len(s.historical), len(s.historical)+1),
	}
	copy(out.historical, s.historical)
	out.historical = append(out.historical, s.current)
	return out, true, nil
}

// SetNext stages parameters for the next rollover, replacing any staged
// before.
func (s *PoolState) SetNext(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.next = &p
	return nil
}

// AddMakerVolume records filled maker volume in the current bucket.
func (s *PoolState) AddMakerVolume(volume uint64, staked bool) error {
	total, err := asset.Add(s.current.TotalMakerVolume, volume)
	if err != nil {
		return err
	}
	stakedTotal := s.current.TotalStakedMakerVolume
	if staked {
		if stakedTotal, err = asset.Add(stakedTotal, volume); err != nil {
			return err
		}
	}
	s.current.TotalMakerVolume = total
	s.current.TotalStakedMakerVolume = stakedTotal
	return nil
}

// AddFees records collected fees in the current bucket.
func (s *PoolState) AddFees(fees uint64) error {
	total, err := asset.Add(s.current.TotalFeesCollected, fees)
	if err != nil {
		return err
	}
	s.current.TotalFeesCollected = total
	return nil
}

// Snapshot returns the bucket for epoch, current or archived.
func (s PoolState) Snapshot(epoch uint64) (PoolData, error) {
	if epoch == s.current.Epoch {
		return s.current, nil
	}
	i := sort.Search(len(s.historical), func(i int) bool {
		return s.historical[i].Epoch >= epoch
	})
	if i < len(s.historical) && s.historical[i].Epoch == epoch {
		return s.historical[i], nil
	}
	return PoolData{}, fmt.Errorf("%w %d", ErrUnknownEpoch, epoch)
}

// Persisted is the serializable form of a PoolState.
type Persisted struct {
	Current    PoolData   `json:"current"`
	Next       *Params    `json:"next,omitempty"`
	Historical []PoolData `json:"historical"`
}

func (s PoolState) Persist() Persisted {
	p := Persisted{Current: s.current, Historical: s.Historical()}
	if s.next != nil {
		n := *s.next
		p.Next = &n
	}
	return p
}

// Load rebuilds a PoolState, checking that the archive is strictly ordered
// and precedes the current epoch.
func Load(p Persisted) (PoolState, error) {
	var last uint64
	for i, h := range p.Historical {
		if (i > 0 && h.Epoch <= last) || h.Epoch >= p.Current.Epoch {
			return PoolState{}, fmt.Errorf("epoch: archive out of order at %d", h.Epoch)
		}
		last = h.Epoch
	}
	s := PoolState{current: p.Current, historical: append([]PoolData(nil), p.Historical...)}
	if p.Next != nil {
		if err := s.SetNext(*p.Next); err != nil {
			return PoolState{}, err
		}
	}
	return s, nil
}
