package engine

import (
	"container/list"

	"github.com/tidwall/btree"
	"lobengine/internal/common"
)

// priceLevel is the FIFO of live orders resting at one price on one side.
// orders is a container/list.List rather than a slice: the order index
// (Engine.index) holds a *list.Element cursor into this FIFO, and that
// cursor must stay valid across inserts/erases of *other* orders in the
// same level (spec §9). A slice reshuffles indices on every erase; a
// doubly linked list does not, mirroring the original C++'s
// std::list<OrderPointer>.
type priceLevel struct {
	price  common.Price
	orders *list.List
}

func newPriceLevel(price common.Price) *priceLevel {
	return &priceLevel{price: price, orders: list.New()}
}

// book is one side (bids or asks) of the order book: a price-sorted map
// from Price to priceLevel, iterated best-first by construction of its
// comparator. Bids compare descending (highest price sorts first); asks
// compare ascending (lowest price sorts first) — so Min() is always
// "best" on either side, exactly as the teacher's orderbook.go exploits
// for its own (single-level-type) btree.
type book struct {
	levels *btree.BTreeG[*priceLevel]
}

func newBidBook() *book {
	return &book{levels: btree.NewBTreeG(func(a, b *priceLevel) bool { return a.price > b.price })}
}

func newAskBook() *book {
	return &book{levels: btree.NewBTreeG(func(a, b *priceLevel) bool { return a.price < b.price })}
}

// best returns the level at the top of book (best price), if any.
func (b *book) best() (*priceLevel, bool) {
	return b.levels.Min()
}

// worst returns the level at the back of book (furthest from best).
// Used only for Market-order re-pegging (§4.5).
func (b *book) worst() (*priceLevel, bool) {
	return b.levels.Max()
}

// getOrCreate returns the level at price, creating an empty one if absent.
func (b *book) getOrCreate(price common.Price) *priceLevel {
	if lvl, ok := b.levels.Get(&priceLevel{price: price}); ok {
		return lvl
	}
	lvl := newPriceLevel(price)
	b.levels.Set(lvl)
	return lvl
}

// removeIfEmpty deletes lvl from the book if its FIFO has drained.
func (b *book) removeIfEmpty(lvl *priceLevel) {
	if lvl.orders.Len() == 0 {
		b.levels.Delete(lvl)
	}
}

// scan walks every level in best-first order, stopping early if fn
// returns false.
func (b *book) scan(fn func(*priceLevel) bool) {
	b.levels.Scan(fn)
}

func (b *book) len() int {
	return b.levels.Len()
}
