package pool

import (
	"fmt"

	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/oracle"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
)

// AddDeepPricePoint feeds one fee-token price observation into the oracle
// after rolling the pool into ctx.Epoch. Authorization is the caller's
// concern.
func (p *Pool) AddDeepPricePoint(ctx transaction.Context, point oracle.PricePoint) (PricePointAdded, error) {
	st, err := p.begin(ctx)
	if err != nil {
		return PricePointAdded{}, err
	}
	if err := p.oracle.AddPricePoint(point); err != nil {
		return PricePointAdded{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	p.commit(st)

	perBase, perQuote, _ := p.oracle.Rates()
	ev := PricePointAdded{
		Header:       st.header(p, KindPricePointAdded),
		BaseRate:     point.BaseRate,
		QuoteRate:    point.QuoteRate,
		PointTime:    point.Timestamp,
		DeepPerBase:  perBase,
		DeepPerQuote: perQuote,
	}
	p.record(ev)
	return ev, nil
}

// SetNextEpochPoolState stages fee and stake parameters. The pool is first
// rolled into ctx.Epoch, so the values apply from the following epoch.
func (p *Pool) SetNextEpochPoolState(ctx transaction.Context, params epoch.Params) (NextEpochStaged, error) {
	st, err := p.begin(ctx)
	if err != nil {
		return NextEpochStaged{}, err
	}
	if err := st.state.SetNext(params); err != nil {
		return NextEpochStaged{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	p.commit(st)

	ev := NextEpochStaged{
		Header: st.header(p, KindNextEpochStaged),
		Params: params,
	}
	p.record(ev)
	return ev, nil
}
