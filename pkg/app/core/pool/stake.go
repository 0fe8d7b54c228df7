package pool

import (
	"fmt"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
)

// IncreaseStake pulls amount of the fee asset from the sender and stages it
// as stake. It becomes active at the sender's first operation in a later
// epoch.
func (p *Pool) IncreaseStake(ctx transaction.Context, vault Vault, amount uint64) (StakeChanged, error) {
	if amount == 0 {
		return StakeChanged{}, ErrInvalidAmount
	}
	st, err := p.begin(ctx)
	if err != nil {
		return StakeChanged{}, err
	}
	u, err := st.user(p, ctx.Sender)
	if err != nil {
		return StakeChanged{}, err
	}
	if _, err := asset.Add(u.TotalStake(), amount); err != nil {
		return StakeChanged{}, err
	}
	newDeep, err := asset.Add(p.deepBalance, amount)
	if err != nil {
		return StakeChanged{}, err
	}
	before, after := u.IncreaseStake(amount)

	tr := newTransfers(vault)
	if err := tr.pull(ctx.Sender, p.deep, amount); err != nil {
		return StakeChanged{}, tr.rollback(err)
	}

	st.put(u)
	p.deepBalance = newDeep
	p.commit(st)

	ev := StakeChanged{
		Header:      st.header(p, KindStakeChanged),
		Owner:       ctx.Sender,
		Amount:      amount,
		Increase:    true,
		StakeBefore: before,
		StakeAfter:  after,
	}
	p.record(ev)
	return ev, nil
}

// RemoveStake returns amount of stake to the sender, staged stake first.
func (p *Pool) RemoveStake(ctx transaction.Context, vault Vault, amount uint64) (StakeChanged, error) {
	if amount == 0 {
		return StakeChanged{}, ErrInvalidAmount
	}
	st, err := p.begin(ctx)
	if err != nil {
		return StakeChanged{}, err
	}
	u, err := st.user(p, ctx.Sender)
	if err != nil {
		return StakeChanged{}, err
	}
	before, after, err := u.RemoveStake(amount)
	if err != nil {
		return StakeChanged{}, err
	}

	tr := newTransfers(vault)
	if err := tr.push(ctx.Sender, p.deep, amount); err != nil {
		return StakeChanged{}, tr.rollback(err)
	}

	st.put(u)
	p.deepBalance -= amount
	p.commit(st)

	ev := StakeChanged{
		Header:      st.header(p, KindStakeChanged),
		Owner:       ctx.Sender,
		Amount:      amount,
		StakeBefore: before,
		StakeAfter:  after,
	}
	p.record(ev)
	return ev, nil
}

// ClaimRebates pays the sender's accrued rebate, including any share earned
// in a closed epoch that this call's refresh just settled.
func (p *Pool) ClaimRebates(ctx transaction.Context, vault Vault) (RebatesClaimed, error) {
	st, err := p.begin(ctx)
	if err != nil {
		return RebatesClaimed{}, err
	}
	u, err := st.user(p, ctx.Sender)
	if err != nil {
		return RebatesClaimed{}, err
	}
	amount := u.ClaimRebates()

	tr := newTransfers(vault)
	if err := tr.push(ctx.Sender, p.deep, amount); err != nil {
		return RebatesClaimed{}, tr.rollback(err)
	}

	st.put(u)
	p.deepBalance -= amount
	p.commit(st)

	ev := RebatesClaimed{
		Header: st.header(p, KindRebatesClaimed),
		Owner:  ctx.Sender,
		Amount: amount,
	}
	p.record(ev)
	return ev, nil
}

// WithdrawSettledFunds pays out everything pending for the sender in all
// three assets.
func (p *Pool) WithdrawSettledFunds(ctx transaction.Context, vault Vault) (FundsSettled, error) {
	st, err := p.begin(ctx)
	if err != nil {
		return FundsSettled{}, err
	}
	u, err := st.user(p, ctx.Sender)
	if err != nil {
		return FundsSettled{}, err
	}
	base, quote, deep := u.ResetSettle()
	if base > p.baseBalance || quote > p.quoteBalance || deep > p.deepBalance {
		return FundsSettled{}, fmt.Errorf("%w: pending %d/%d/%d exceeds balances", ErrCustodyViolation, base, quote, deep)
	}

	tr := newTransfers(vault)
	for _, pay := range []struct {
		role   asset.Role
		amount uint64
	}{{asset.Base, base}, {asset.Quote, quote}, {asset.Fee, deep}} {
		if err := tr.push(ctx.Sender, p.symbol(pay.role), pay.amount); err != nil {
			return FundsSettled{}, tr.rollback(err)
		}
	}

	st.put(u)
	p.baseBalance -= base
	p.quoteBalance -= quote
	p.deepBalance -= deep
	p.commit(st)

	ev := FundsSettled{
		Header: st.header(p, KindFundsSettled),
		Owner:  ctx.Sender,
		Base:   base,
		Quote:  quote,
		Deep:   deep,
	}
	p.record(ev)
	return ev, nil
}
