package orderbook

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/btree"

	"github.com/uhyunpark/deeppool/pkg/app/core/critbit"
)

var (
	ErrOrderNotFound = errors.New("orderbook: order not found")
	ErrWrongSide     = errors.New("orderbook: order belongs to the other side")
	ErrOverfill      = errors.New("orderbook: fill exceeds remaining quantity")
	ErrInvalidOrder  = errors.New("orderbook: invalid order")
)

// LevelInfo summarizes one price level for depth queries.
type LevelInfo struct {
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
	Orders   int    `json:"orders"`
}

// BookSide is one side of a pool's book: price levels keyed in a crit-bit
// tree, FIFO within a level, plus an id -> price index for O(log n) lookup.
type BookSide struct {
	side    Side
	levels  *critbit.Tree[*PriceLevel]
	index   *btree.Map[uint64, uint64]
	nextSeq uint64
}

func NewBookSide(side Side) *BookSide {
	return &BookSide{
		side:    side,
		levels:  critbit.New[*PriceLevel](),
		index:   new(btree.Map[uint64, uint64]),
		nextSeq: 1,
	}
}

func (b *BookSide) Side() Side { return b.side }

// Len returns the number of resting orders.
func (b *BookSide) Len() int { return b.index.Len() }

// LevelCount returns the number of non-empty price levels.
func (b *BookSide) LevelCount() int { return b.levels.Len() }

// NextSequence returns the sequence number the next placed order will use.
func (b *BookSide) NextSequence() uint64 { return b.nextSeq }

// NextOrderID returns the id the next placed order will receive.
func (b *BookSide) NextOrderID() uint64 { return OrderID(b.nextSeq, b.side) }

// Place assigns an id to o and appends it to the tail of its price level.
// OriginalQuantity and OriginalFeeQuantity are taken from Quantity and
// FeeQuantity.
func (b *BookSide) Place(o Order) (Order, error) {
	if o.Price == 0 || o.Quantity == 0 {
		return Order{}, ErrInvalidOrder
	}
	o.ID = OrderID(b.nextSeq, b.side)
	o.IsBid = b.side == Bid
	o.OriginalQuantity = o.Quantity
	o.OriginalFeeQuantity = o.FeeQuantity
	o.prev, o.next = nil, nil

	if err := b.insert(&o); err != nil {
		return Order{}, err
	}
	b.nextSeq++
	return o.view(), nil
}

func (b *BookSide) insert(o *Order) error {
	idx, ok := b.levels.Find(o.Price)
	if !ok {
		var err error
		idx, err = b.levels.Insert(o.Price, newPriceLevel(o.Price))
		if err != nil {
			return fmt.Errorf("insert level %d: %w", o.Price, err)
		}
	}
	lvl, _ := b.levels.Borrow(idx)
	lvl.append(o)
	b.index.Set(o.ID, o.Price)
	return nil
}

func (b *BookSide) lookup(id uint64) (*PriceLevel, int, *Order, error) {
	if SideOf(id) != b.side {
		return nil, 0, nil, ErrWrongSide
	}
	price, ok := b.index.Get(id)
	if !ok {
		return nil, 0, nil, ErrOrderNotFound
	}
	idx, ok := b.levels.Find(price)
	if !ok {
		return nil, 0, nil, fmt.Errorf("level %d missing for order %d: %w", price, id, ErrOrderNotFound)
	}
	lvl, _ := b.levels.Borrow(idx)
	o, ok := lvl.get(id)
	if !ok {
		return nil, 0, nil, ErrOrderNotFound
	}
	return lvl, idx, o, nil
}

// Get returns a copy of the resting order with the given id.
func (b *BookSide) Get(id uint64) (Order, bool) {
	_, _, o, err := b.lookup(id)
	if err != nil {
		return Order{}, false
	}
	return o.view(), true
}

// Remove takes the order out of the book, dropping its level if it empties.
func (b *BookSide) Remove(id uint64) (Order, error) {
	lvl, idx, _, err := b.lookup(id)
	if err != nil {
		return Order{}, err
	}
	o, _ := lvl.remove(id)
	b.index.Delete(id)
	if lvl.IsEmpty() {
		if _, err := b.levels.RemoveLeafByIndex(idx); err != nil {
			return Order{}, fmt.Errorf("remove level %d: %w", lvl.price, err)
		}
	}
	return o.view(), nil
}

// Fill reduces a resting order by quantity and its reserved fee by fee.
// A fully filled order is removed. The returned order reflects the state
// after the fill.
func (b *BookSide) Fill(id, quantity, fee uint64) (Order, error) {
	lvl, _, o, err := b.lookup(id)
	if err != nil {
		return Order{}, err
	}
	if quantity == 0 || quantity > o.Quantity || fee > o.FeeQuantity {
		return Order{}, ErrOverfill
	}
	if quantity == o.Quantity {
		removed, err := b.Remove(id)
		if err != nil {
			return Order{}, err
		}
		removed.Quantity = 0
		removed.FeeQuantity -= fee
		return removed, nil
	}
	lvl.reduce(o, quantity, fee)
	return o.view(), nil
}

// BestPrice returns the highest bid or the lowest ask.
func (b *BookSide) BestPrice() (uint64, bool) {
	var (
		price uint64
		err   error
	)
	if b.side == Bid {
		price, _, err = b.levels.MaxLeaf()
	} else {
		price, _, err = b.levels.MinLeaf()
	}
	if err != nil {
		return 0, false
	}
	return price, true
}

// walkLevels visits levels from the best price outward.
func (b *BookSide) walkLevels(fn func(lvl *PriceLevel) bool) {
	visit := func(_ uint64, idx int) bool {
		lvl, _ := b.levels.Borrow(idx)
		return fn(lvl)
	}
	if b.side == Bid {
		b.levels.Descend(visit)
	} else {
		b.levels.Ascend(visit)
	}
}

// Level returns the summary for one price.
func (b *BookSide) Level(price uint64) (LevelInfo, bool) {
	idx, ok := b.levels.Find(price)
	if !ok {
		return LevelInfo{}, false
	}
	lvl, _ := b.levels.Borrow(idx)
	return LevelInfo{Price: lvl.price, Quantity: lvl.quantity, Orders: lvl.Len()}, true
}

// LevelOrders returns the orders resting at price, oldest first.
func (b *BookSide) LevelOrders(price uint64) []Order {
	idx, ok := b.levels.Find(price)
	if !ok {
		return nil
	}
	lvl, _ := b.levels.Borrow(idx)
	return lvl.Orders()
}

// Depth returns up to limit levels from the best price outward.
// A limit <= 0 returns every level.
func (b *BookSide) Depth(limit int) []LevelInfo {
	var out []LevelInfo
	b.walkLevels(func(lvl *PriceLevel) bool {
		out = append(out, LevelInfo{Price: lvl.price, Quantity: lvl.quantity, Orders: lvl.Len()})
		return limit <= 0 || len(out) < limit
	})
	return out
}

// Walk visits orders in priority order: best price first, oldest first
// within a price.
func (b *BookSide) Walk(fn func(o Order) bool) {
	b.walkLevels(func(lvl *PriceLevel) bool {
		for o := lvl.head; o != nil; o = o.next {
			if !fn(o.view()) {
				return false
			}
		}
		return true
	})
}

// Orders returns every resting order in id order.
func (b *BookSide) Orders() []Order {
	out := make([]Order, 0, b.index.Len())
	b.index.Scan(func(id, _ uint64) bool {
		if o, ok := b.Get(id); ok {
			out = append(out, o)
		}
		return true
	})
	return out
}

// OrdersOf returns the owner's resting orders in id order.
func (b *BookSide) OrdersOf(owner common.Address) []Order {
	var out []Order
	for _, o := range b.Orders() {
		if o.Owner == owner {
			out = append(out, o)
		}
	}
	return out
}

// Reserved returns the total remaining quantity and reserved fee of all
// resting orders, optionally restricted to one owner.
func (b *BookSide) Reserved(owner *common.Address) (quantity, fee uint64) {
	b.walkLevels(func(lvl *PriceLevel) bool {
		for o := lvl.head; o != nil; o = o.next {
			if owner != nil && o.Owner != *owner {
				continue
			}
			quantity += o.Quantity
			fee += o.FeeQuantity
		}
		return true
	})
	return quantity, fee
}

// Restore rebuilds the side from persisted orders. Orders are re-queued in
// id order, which reproduces FIFO priority within each level.
func (b *BookSide) Restore(orders []Order, nextSeq uint64) error {
	fresh := NewBookSide(b.side)
	fresh.nextSeq = nextSeq
	var last uint64
	for i := range orders {
		o := orders[i]
		if SideOf(o.ID) != b.side {
			return fmt.Errorf("order %d: %w", o.ID, ErrWrongSide)
		}
		if o.ID <= last || o.ID>>1 >= nextSeq || o.Quantity == 0 {
			return fmt.Errorf("order %d: %w", o.ID, ErrInvalidOrder)
		}
		last = o.ID
		o.IsBid = b.side == Bid
		o.prev, o.next = nil, nil
		if err := fresh.insert(&o); err != nil {
			return err
		}
	}
	*b = *fresh
	return nil
}
