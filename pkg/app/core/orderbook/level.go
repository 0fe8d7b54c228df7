package orderbook

import "fmt"

// PriceLevel holds the resting orders at one price on one side, in
// placement order. Orders are linked head to tail and indexed by id.
type PriceLevel struct {
	price    uint64
	head     *Order
	tail     *Order
	orders   map[uint64]*Order
	quantity uint64
}

func newPriceLevel(price uint64) *PriceLevel {
	return &PriceLevel{
		price:  price,
		orders: make(map[uint64]*Order),
	}
}

func (lvl *PriceLevel) Price() uint64 { return lvl.price }

// Len returns the number of orders at this level.
func (lvl *PriceLevel) Len() int { return len(lvl.orders) }

func (lvl *PriceLevel) IsEmpty() bool { return len(lvl.orders) == 0 }

// TotalQuantity is the sum of remaining quantity across the level.
func (lvl *PriceLevel) TotalQuantity() uint64 { return lvl.quantity }

// Head returns the oldest order.
func (lvl *PriceLevel) Head() (Order, bool) {
	if lvl.head == nil {
		return Order{}, false
	}
	return lvl.head.view(), true
}

// Orders returns copies of the level's orders, oldest first.
func (lvl *PriceLevel) Orders() []Order {
	out := make([]Order, 0, len(lvl.orders))
	for o := lvl.head; o != nil; o = o.next {
		out = append(out, o.view())
	}
	return out
}

func (lvl *PriceLevel) get(id uint64) (*Order, bool) {
	o, ok := lvl.orders[id]
	return o, ok
}

// append enqueues o at the tail.
func (lvl *PriceLevel) append(o *Order) {
	if lvl.tail != nil {
		lvl.tail.next = o
		o.prev = lvl.tail
	} else {
		lvl.head = o
	}
	lvl.tail = o
	lvl.orders[o.ID] = o
	lvl.quantity += o.Quantity
}

// remove unlinks the order with the given id.
func (lvl *PriceLevel) remove(id uint64) (*Order, bool) {
	o, ok := lvl.orders[id]
	if !ok {
		return nil, false
	}
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		lvl.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		lvl.tail = o.prev
	}
	o.prev, o.next = nil, nil
	delete(lvl.orders, id)
	lvl.quantity -= o.Quantity
	return o, true
}

// reduce takes quantity from a resting order in place.
func (lvl *PriceLevel) reduce(o *Order, quantity, fee uint64) {
	o.Quantity -= quantity
	o.FeeQuantity -= fee
	lvl.quantity -= quantity
}

func (lvl *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%d, Orders=%d, Quantity=%d}", lvl.price, len(lvl.orders), lvl.quantity)
}
