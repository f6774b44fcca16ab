// Package engine implements the price-time priority limit order book
// matching engine: twin price-indexed books, per-price FIFOs, an
// order-id index for O(1) cancel/modify, a per-level depth aggregator,
// and the matching algorithm with its lifetime-kind admission rules.
//
// The package is intentionally free of logging, metrics, and network
// dependencies — those are observers (see Observer) wired in by the
// surrounding service (cmd/lobctl). Every public method here except
// Attach acquires Engine's single mutex for its entire duration; see
// spec §5.
package engine

import (
	"container/list"
	"sync"

	"lobengine/internal/common"
)

// indexEntry is the order index's (C3) record: the order itself, the
// level it rests in, and the cursor locating it within that level's FIFO.
type indexEntry struct {
	order *common.Order
	level *priceLevel
	elem  *list.Element
}

// levelAggregate is the per-price depth (C4): live order count and the
// sum of their remaining quantities. A single map keyed by Price alone
// (not by side) suffices, mirroring the original Orderbook's data_ map:
// the book-not-crossed invariant (spec §8.3) guarantees a given price is
// only ever occupied by one side's live orders at any moment a public
// call has returned.
type levelAggregate struct {
	quantity common.Quantity
	count    int
}

// LevelInfo is one occupied price, its aggregate remaining quantity, and
// the count of live orders resting there, as returned by Snapshot (C7).
type LevelInfo struct {
	Price    common.Price    `json:"price"`
	Quantity common.Quantity `json:"quantity"`
	Count    int             `json:"count"`
}

// Engine is the matching engine for a single instrument.
type Engine struct {
	mu        sync.Mutex
	bids      *book
	asks      *book
	index     map[common.OrderID]*indexEntry
	aggregate map[common.Price]*levelAggregate
	observer  multiObserver
}

// New constructs an empty engine.
func New() *Engine {
	return &Engine{
		bids:      newBidBook(),
		asks:      newAskBook(),
		index:     make(map[common.OrderID]*indexEntry),
		aggregate: make(map[common.Price]*levelAggregate),
	}
}

// Attach registers an Observer to receive trade/rejection notifications.
// Safe to call before the engine is in use; not safe to call concurrently
// with Add/Cancel/Modify (wire it up at startup, like the teacher's
// engine.SetReporter).
func (e *Engine) Attach(o Observer) {
	e.observer = append(e.observer, o)
}

func (e *Engine) ownBook(side common.Side) *book {
	if side == common.Buy {
		return e.bids
	}
	return e.asks
}

func (e *Engine) oppositeBook(side common.Side) *book {
	if side == common.Buy {
		return e.asks
	}
	return e.bids
}

// Add admits order into the book per its lifetime kind, runs matching,
// and returns whatever trades resulted (possibly none). Rejections
// (duplicate id, an unfillable FillOrKill, a non-crossing FillAndKill, or
// a priceless Market with an empty opposite book) are silent: an empty
// trade slice and no change to engine state, per spec §6/§7 — they are
// not distinguishable to the caller by design.
func (e *Engine) Add(order *common.Order) []common.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addLocked(order)
}

func (e *Engine) addLocked(order *common.Order) []common.Trade {
	if _, exists := e.index[order.ID()]; exists {
		e.reject("duplicate_id")
		return nil
	}

	if order.Kind() == common.Market {
		opposite := e.oppositeBook(order.Side())
		worst, ok := opposite.worst()
		if !ok {
			e.reject("market_no_liquidity")
			return nil
		}
		// Re-peg to the worst opposite price (not the best): this gives
		// the taker unconditional willingness to sweep every visible
		// level in one pass, per spec §4.5/§9.
		order.ToGoodTillCancel(worst.price)
	}

	if order.Kind() == common.FillAndKill && !e.canMatch(order.Side(), order.Price()) {
		e.reject("fill_and_kill_no_cross")
		return nil
	}

	if order.Kind() == common.FillOrKill && !e.canFullyFill(order.Side(), order.Price(), order.InitialQuantity()) {
		e.reject("fill_or_kill_infeasible")
		return nil
	}

	level := e.ownBook(order.Side()).getOrCreate(order.Price())
	elem := level.orders.PushBack(order)
	e.index[order.ID()] = &indexEntry{order: order, level: level, elem: elem}
	e.aggAdd(order.Price(), order.InitialQuantity())

	return e.matchOrders()
}

// Cancel removes order id from the book. An unknown id is a silent no-op.
func (e *Engine) Cancel(id common.OrderID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked(id)
}

// CancelBatch cancels every id present, tolerating ids that have already
// been cancelled or filled (the pruner's snapshot-then-cancel race,
// spec §4.6/§5).
func (e *Engine) CancelBatch(ids []common.OrderID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		e.cancelLocked(id)
	}
}

func (e *Engine) cancelLocked(id common.OrderID) {
	entry, ok := e.index[id]
	if !ok {
		return
	}
	delete(e.index, id)
	entry.level.orders.Remove(entry.elem)
	e.ownBook(entry.order.Side()).removeIfEmpty(entry.level)
	e.aggCancel(entry.order.Price(), entry.order.RemainingQuantity())
}

// Modify is Cancel-then-Add, preserving the original order's lifetime
// kind; it therefore loses time priority. An unknown id is a silent
// no-op with no side effects.
func (e *Engine) Modify(id common.OrderID, side common.Side, price common.Price, quantity common.Quantity) []common.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.index[id]
	if !ok {
		return nil
	}
	kind := entry.order.Kind()
	e.cancelLocked(id)

	newOrder := common.NewOrder(kind, id, side, price, quantity)
	return e.addLocked(newOrder)
}

// GoodForDayOrderIDs returns the ids of every live GoodForDay order, for
// the pruner (C6) to snapshot under lock before batch-cancelling them
// (spec §4.6/§5 — this snapshot is taken and released before
// CancelBatch re-acquires the lock, so an id may legitimately be gone by
// the time it is cancelled; CancelBatch tolerates that).
func (e *Engine) GoodForDayOrderIDs() []common.OrderID {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]common.OrderID, 0)
	for id, entry := range e.index {
		if entry.order.Kind() == common.GoodForDay {
			ids = append(ids, id)
		}
	}
	return ids
}

// Size returns the count of live orders across both books.
func (e *Engine) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.index)
}

// Snapshot produces best-first depth lists for both sides: for every
// occupied price, the sum of remaining quantity resting there and the
// count of live orders (mirrors the aggregator's own count, C4).
func (e *Engine) Snapshot() (bids []LevelInfo, asks []LevelInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collect := func(b *book) []LevelInfo {
		out := make([]LevelInfo, 0, b.len())
		b.scan(func(lvl *priceLevel) bool {
			var qty common.Quantity
			for el := lvl.orders.Front(); el != nil; el = el.Next() {
				qty += el.Value.(*common.Order).RemainingQuantity()
			}
			out = append(out, LevelInfo{Price: lvl.price, Quantity: qty, Count: lvl.orders.Len()})
			return true
		})
		return out
	}
	return collect(e.bids), collect(e.asks)
}

// canMatch is true iff the opposite book is non-empty and price crosses
// it: for a buy, price must reach at least the best ask; for a sell,
// price must reach down to at most the best bid.
func (e *Engine) canMatch(side common.Side, price common.Price) bool {
	if side == common.Buy {
		best, ok := e.asks.best()
		return ok && price >= best.price
	}
	best, ok := e.bids.best()
	return ok && price <= best.price
}

// canFullyFill is true iff the aggregate quantity available on the
// opposite book, walking best-first and stopping at the taker's limit,
// reaches quantity. It scans the aggregator (C4) — one lookup per
// distinct price — not individual orders, per spec §4.4.
func (e *Engine) canFullyFill(side common.Side, price common.Price, quantity common.Quantity) bool {
	if !e.canMatch(side, price) {
		return false
	}

	var cumulative common.Quantity
	sufficient := false
	e.oppositeBook(side).scan(func(lvl *priceLevel) bool {
		if side == common.Buy && lvl.price > price {
			return false // asks walked ascending; past the limit, nothing further crosses
		}
		if side == common.Sell && lvl.price < price {
			return false // bids walked descending; past the limit, nothing further crosses
		}
		if agg, ok := e.aggregate[lvl.price]; ok {
			cumulative += agg.quantity
		}
		if cumulative >= quantity {
			sufficient = true
			return false
		}
		return true
	})
	return sufficient
}

// matchOrders is the crossing loop (§4.4): while the books cross, consume
// the head orders of the best bid and ask levels FIFO-first, emit trades,
// then run the FillAndKill tail sweep over whatever is left at the top of
// either book.
func (e *Engine) matchOrders() []common.Trade {
	var trades []common.Trade

	for {
		bidLevel, okB := e.bids.best()
		askLevel, okA := e.asks.best()
		if !okB || !okA || bidLevel.price < askLevel.price {
			break
		}

		for bidLevel.orders.Len() > 0 && askLevel.orders.Len() > 0 {
			bidElem := bidLevel.orders.Front()
			askElem := askLevel.orders.Front()
			bidOrder := bidElem.Value.(*common.Order)
			askOrder := askElem.Value.(*common.Order)

			quantity := bidOrder.RemainingQuantity()
			if askOrder.RemainingQuantity() < quantity {
				quantity = askOrder.RemainingQuantity()
			}
			bidOrder.Fill(quantity)
			askOrder.Fill(quantity)

			trade := common.Trade{
				Bid: common.TradeInfo{OrderID: bidOrder.ID(), Price: bidOrder.Price(), Quantity: quantity},
				Ask: common.TradeInfo{OrderID: askOrder.ID(), Price: askOrder.Price(), Quantity: quantity},
			}
			trades = append(trades, trade)
			if e.observer != nil {
				e.observer.ObserveTrade(trade)
			}

			bidFilled := bidOrder.IsFilled()
			askFilled := askOrder.IsFilled()
			if bidFilled {
				bidLevel.orders.Remove(bidElem)
				delete(e.index, bidOrder.ID())
			}
			if askFilled {
				askLevel.orders.Remove(askElem)
				delete(e.index, askOrder.ID())
			}
			e.aggMatch(bidOrder.Price(), quantity, bidFilled)
			e.aggMatch(askOrder.Price(), quantity, askFilled)
		}

		e.bids.removeIfEmpty(bidLevel)
		e.asks.removeIfEmpty(askLevel)
	}

	e.cancelTailFillAndKill(e.bids)
	e.cancelTailFillAndKill(e.asks)

	return trades
}

// cancelTailFillAndKill cancels a resting FillAndKill order only if it
// sits at the very head of the top-of-book level — the only place one
// can exist, since FillAndKill is never admitted past the first
// non-crossing level (spec §9).
func (e *Engine) cancelTailFillAndKill(b *book) {
	lvl, ok := b.best()
	if !ok {
		return
	}
	front := lvl.orders.Front()
	if front == nil {
		return
	}
	if order := front.Value.(*common.Order); order.Kind() == common.FillAndKill {
		e.cancelLocked(order.ID())
	}
}

func (e *Engine) reject(reason string) {
	if e.observer != nil {
		e.observer.ObserveReject(reason)
	}
}

func (e *Engine) aggAdd(price common.Price, quantity common.Quantity) {
	agg, ok := e.aggregate[price]
	if !ok {
		agg = &levelAggregate{}
		e.aggregate[price] = agg
	}
	agg.count++
	agg.quantity += quantity
}

func (e *Engine) aggCancel(price common.Price, quantity common.Quantity) {
	agg, ok := e.aggregate[price]
	if !ok {
		return
	}
	agg.count--
	agg.quantity -= quantity
	if agg.count <= 0 {
		delete(e.aggregate, price)
	}
}

func (e *Engine) aggMatch(price common.Price, quantity common.Quantity, fullyFilled bool) {
	agg, ok := e.aggregate[price]
	if !ok {
		return
	}
	if fullyFilled {
		agg.count--
	}
	agg.quantity -= quantity
	if agg.count <= 0 {
		delete(e.aggregate, price)
	}
}
