package pool

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
	"github.com/uhyunpark/deeppool/pkg/app/core/orderbook"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
)

// OrderRequest is a maker order as submitted by its owner. Quantity is in
// quote for bids and base for asks.
type OrderRequest struct {
	IsBid                  bool
	Price                  uint64
	Quantity               uint64
	ExpireTimestamp        uint64
	SelfMatchingPrevention uint8
}

func (p *Pool) validateOrder(req OrderRequest) error {
	switch {
	case req.Price == 0 || req.Price%p.tickSize != 0:
		return fmt.Errorf("%w: price %d not a positive multiple of tick %d", ErrInvalidOrder, req.Price, p.tickSize)
	case req.Quantity == 0 || req.Quantity%p.lotSize != 0:
		return fmt.Errorf("%w: quantity %d not a positive multiple of lot %d", ErrInvalidOrder, req.Quantity, p.lotSize)
	}
	return nil
}

// PlaceMakerOrder rests a new order on its side of the book. The offered
// amount is taken from the owner's pending settlement first and the rest is
// pulled from the vault. The maker fee, priced through the oracle, is
// always pulled from the vault.
func (p *Pool) PlaceMakerOrder(ctx transaction.Context, vault Vault, req OrderRequest) (OrderPlaced, error) {
	if err := p.validateOrder(req); err != nil {
		return OrderPlaced{}, err
	}
	st, err := p.begin(ctx)
	if err != nil {
		return OrderPlaced{}, err
	}
	owner := ctx.Sender
	u, err := st.user(p, owner)
	if err != nil {
		return OrderPlaced{}, err
	}

	fee, err := p.oracle.FeeQuantity(req.Quantity, req.IsBid, st.state.Current().MakerFee)
	if err != nil {
		return OrderPlaced{}, fmt.Errorf("maker fee: %w", err)
	}

	role := offered(req.IsBid)
	fromSettle := u.TakeSettle(role, req.Quantity)
	shortfall := req.Quantity - fromSettle

	newBalance, err := asset.Add(*p.balance(role), shortfall)
	if err != nil {
		return OrderPlaced{}, err
	}
	newDeep, err := asset.Add(p.deepBalance, fee)
	if err != nil {
		return OrderPlaced{}, err
	}

	tr := newTransfers(vault)
	if err := tr.pull(owner, p.symbol(role), shortfall); err != nil {
		return OrderPlaced{}, tr.rollback(err)
	}
	if err := tr.pull(owner, p.deep, fee); err != nil {
		return OrderPlaced{}, tr.rollback(err)
	}

	o, err := p.side(sideOf(req.IsBid)).Place(orderbook.Order{
		Owner:                  owner,
		Price:                  req.Price,
		Quantity:               req.Quantity,
		FeeQuantity:            fee,
		ExpireTimestamp:        req.ExpireTimestamp,
		SelfMatchingPrevention: req.SelfMatchingPrevention,
	})
	if err != nil {
		return OrderPlaced{}, tr.rollback(fmt.Errorf("%w: %w", ErrInvalidOrder, err))
	}

	st.put(u)
	*p.balance(role) = newBalance
	p.deepBalance = newDeep
	p.commit(st)

	ev := OrderPlaced{
		Header:         st.header(p, KindOrderPlaced),
		Order:          o,
		FromSettlement: fromSettle,
		Deposited:      shortfall,
	}
	p.record(ev)
	return ev, nil
}

func sideOf(isBid bool) orderbook.Side {
	if isBid {
		return orderbook.Bid
	}
	return orderbook.Ask
}

// lookupOrder finds a resting order by id on the side its id encodes.
func (p *Pool) lookupOrder(id uint64) (orderbook.Order, *orderbook.BookSide, error) {
	book := p.side(orderbook.SideOf(id))
	o, ok := book.Get(id)
	if !ok {
		return orderbook.Order{}, nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return o, book, nil
}

// CancelOrder removes the sender's order and credits its remaining
// reservation and fee to the sender's pending settlement. No funds leave
// the pool.
func (p *Pool) CancelOrder(ctx transaction.Context, orderID uint64) (OrderCanceled, error) {
	o, book, err := p.lookupOrder(orderID)
	if err != nil {
		return OrderCanceled{}, err
	}
	if o.Owner != ctx.Sender {
		return OrderCanceled{}, fmt.Errorf("%w: order %d belongs to %s", ErrUnauthorized, orderID, o.Owner.Hex())
	}

	st, err := p.begin(ctx)
	if err != nil {
		return OrderCanceled{}, err
	}
	u, err := st.user(p, o.Owner)
	if err != nil {
		return OrderCanceled{}, err
	}
	if err := u.AddSettle(offered(o.IsBid), o.Quantity); err != nil {
		return OrderCanceled{}, err
	}
	if err := u.AddSettle(asset.Fee, o.FeeQuantity); err != nil {
		return OrderCanceled{}, err
	}

	if _, err := book.Remove(orderID); err != nil {
		return OrderCanceled{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	st.put(u)
	p.commit(st)

	ev := OrderCanceled{
		Header:           st.header(p, KindOrderCanceled),
		OrderID:          o.ID,
		Owner:            o.Owner,
		IsBid:            o.IsBid,
		Price:            o.Price,
		OriginalQuantity: o.OriginalQuantity,
		CanceledQuantity: o.Quantity,
		RefundedFee:      o.FeeQuantity,
	}
	p.record(ev)
	return ev, nil
}

// FillMakerOrder settles quantity of a resting order against the sender as
// taker. It does not select orders or cross the book; a matching layer
// decides which order to fill.
//
// For an ask the taker pays quantity*price quote; for a bid the taker pays
// quantity/price base, which must divide exactly. The taker's payment is
// taken from their pending settlement first. Both sides are credited as
// pending settlement. The maker's reserved fee is consumed pro rata, the
// taker fee is pulled from the vault, and both are collected into the
// current epoch along with the maker volume in base units.
func (p *Pool) FillMakerOrder(ctx transaction.Context, vault Vault, orderID, quantity uint64) (OrderFilled, error) {
	o, book, err := p.lookupOrder(orderID)
	if err != nil {
		return OrderFilled{}, err
	}
	taker := ctx.Sender
	switch {
	case taker == o.Owner:
		return OrderFilled{}, fmt.Errorf("%w: owner cannot fill own order %d", ErrInvalidOrder, orderID)
	case quantity == 0 || quantity > o.Quantity || quantity%p.lotSize != 0:
		return OrderFilled{}, fmt.Errorf("%w: fill %d of %d remaining", ErrInvalidOrder, quantity, o.Quantity)
	}

	var counter, volume uint64
	if o.IsBid {
		if quantity%o.Price != 0 {
			return OrderFilled{}, fmt.Errorf("%w: %d quote not divisible by price %d", ErrInvalidOrder, quantity, o.Price)
		}
		counter = quantity / o.Price
		volume = counter
	} else {
		if counter, err = asset.MulDiv(quantity, o.Price, 1); err != nil {
			return OrderFilled{}, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
		}
		volume = quantity
	}
	if counter == 0 {
		return OrderFilled{}, fmt.Errorf("%w: fill too small", ErrInvalidOrder)
	}

	makerFee := o.FeeQuantity
	if quantity < o.Quantity {
		if makerFee, err = asset.MulDiv(o.FeeQuantity, quantity, o.Quantity); err != nil {
			return OrderFilled{}, err
		}
	}

	st, err := p.begin(ctx)
	if err != nil {
		return OrderFilled{}, err
	}
	cur := st.state.Current()
	takerFee, err := p.oracle.FeeQuantity(quantity, o.IsBid, cur.TakerFee)
	if err != nil {
		return OrderFilled{}, fmt.Errorf("taker fee: %w", err)
	}

	maker, err := st.user(p, o.Owner)
	if err != nil {
		return OrderFilled{}, err
	}
	tk, err := st.user(p, taker)
	if err != nil {
		return OrderFilled{}, err
	}

	offeredRole, counterRole := offered(o.IsBid), offered(!o.IsBid)
	fromSettle := tk.TakeSettle(counterRole, counter)
	shortfall := counter - fromSettle

	if err := tk.AddSettle(offeredRole, quantity); err != nil {
		return OrderFilled{}, err
	}
	if err := maker.AddSettle(counterRole, counter); err != nil {
		return OrderFilled{}, err
	}
	staked := maker.StakeAmount > 0 && maker.StakeAmount >= cur.StakeRequired
	if staked {
		if maker.MakerVolume, err = asset.Add(maker.MakerVolume, volume); err != nil {
			return OrderFilled{}, err
		}
	}
	if err := st.state.AddMakerVolume(volume, staked); err != nil {
		return OrderFilled{}, err
	}
	collected, err := asset.Add(makerFee, takerFee)
	if err != nil {
		return OrderFilled{}, err
	}
	if err := st.state.AddFees(collected); err != nil {
		return OrderFilled{}, err
	}

	newCounterBalance, err := asset.Add(*p.balance(counterRole), shortfall)
	if err != nil {
		return OrderFilled{}, err
	}
	newDeep, err := asset.Add(p.deepBalance, takerFee)
	if err != nil {
		return OrderFilled{}, err
	}
	newFeePool, err := asset.Add(p.feePool, collected)
	if err != nil {
		return OrderFilled{}, err
	}

	tr := newTransfers(vault)
	if err := tr.pull(taker, p.symbol(counterRole), shortfall); err != nil {
		return OrderFilled{}, tr.rollback(err)
	}
	if err := tr.pull(taker, p.deep, takerFee); err != nil {
		return OrderFilled{}, tr.rollback(err)
	}

	after, err := book.Fill(orderID, quantity, makerFee)
	if err != nil {
		if errors.Is(err, orderbook.ErrOverfill) {
			err = fmt.Errorf("%w: %w", ErrInvalidOrder, err)
		}
		return OrderFilled{}, tr.rollback(err)
	}

	st.put(maker)
	st.put(tk)
	*p.balance(counterRole) = newCounterBalance
	p.deepBalance = newDeep
	p.feePool = newFeePool
	p.commit(st)

	ev := OrderFilled{
		Header:            st.header(p, KindOrderFilled),
		OrderID:           orderID,
		Maker:             o.Owner,
		Taker:             taker,
		IsBid:             o.IsBid,
		Price:             o.Price,
		Quantity:          quantity,
		CounterQuantity:   counter,
		RemainingQuantity: after.Quantity,
		MakerFee:          makerFee,
		TakerFee:          takerFee,
		Volume:            volume,
		Staked:            staked,
	}
	p.record(ev)
	return ev, nil
}
