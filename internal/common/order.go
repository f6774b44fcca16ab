package common

import "fmt"

// Order is a single resting or incoming instruction to buy or sell at a
// price (or, for Market orders prior to re-pegging, at no price at all).
//
// Fields are unexported: Fill and ToGoodTillCancel enforce invariants
// (remaining never exceeds initial; only a Market order may be re-priced)
// that a bare struct-literal mutation would let a caller violate.
type Order struct {
	id           OrderID
	side         Side
	kind         Kind
	price        Price
	initialQty   Quantity
	remainingQty Quantity
}

// NewOrder constructs a limit-style order of the given kind.
func NewOrder(kind Kind, id OrderID, side Side, price Price, quantity Quantity) *Order {
	return &Order{
		id:           id,
		side:         side,
		kind:         kind,
		price:        price,
		initialQty:   quantity,
		remainingQty: quantity,
	}
}

// NewMarketOrder constructs a Market order. It carries no meaningful price
// until the engine re-pegs it against the opposite book's worst level.
func NewMarketOrder(id OrderID, side Side, quantity Quantity) *Order {
	return NewOrder(Market, id, side, InvalidPrice, quantity)
}

func (o *Order) ID() OrderID                 { return o.id }
func (o *Order) Side() Side                  { return o.side }
func (o *Order) Kind() Kind                  { return o.kind }
func (o *Order) Price() Price                { return o.price }
func (o *Order) InitialQuantity() Quantity   { return o.initialQty }
func (o *Order) RemainingQuantity() Quantity { return o.remainingQty }
func (o *Order) FilledQuantity() Quantity    { return o.initialQty - o.remainingQty }
func (o *Order) IsFilled() bool              { return o.remainingQty == 0 }

// Fill consumes quantity off the order's remaining size. Overfilling is a
// programmer error, not a runtime condition (spec §7): it panics rather
// than clamping or returning an error, naming the offending order.
func (o *Order) Fill(quantity Quantity) {
	if quantity > o.remainingQty {
		panic(fmt.Sprintf("order %d: cannot fill %d, only %d remaining", o.id, quantity, o.remainingQty))
	}
	o.remainingQty -= quantity
}

// ToGoodTillCancel re-pegs a Market order to price and converts it to
// GoodTillCancel. Calling it on any other kind is a programmer error.
func (o *Order) ToGoodTillCancel(price Price) {
	if o.kind != Market {
		panic(fmt.Sprintf("order %d: only a Market order may be re-priced, got %s", o.id, o.kind))
	}
	o.price = price
	o.kind = GoodTillCancel
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{id=%d side=%s kind=%s price=%d qty=%d/%d}",
		o.id, o.side, o.kind, o.price, o.remainingQty, o.initialQty)
}
