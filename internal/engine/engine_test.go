package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobengine/internal/common"
	"lobengine/internal/engine"
)

func add(t *testing.T, e *engine.Engine, id common.OrderID, side common.Side, kind common.Kind, price common.Price, qty common.Quantity) []common.Trade {
	t.Helper()
	return e.Add(common.NewOrder(kind, id, side, price, qty))
}

// --- §8 concrete scenarios --------------------------------------------

func TestScenario_MatchGoodTillCancel(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	trades := add(t, e, 2, common.Sell, common.GoodTillCancel, 100, 10)

	require.Len(t, trades, 1)
	assert.Equal(t, common.Trade{
		Bid: common.TradeInfo{OrderID: 1, Price: 100, Quantity: 10},
		Ask: common.TradeInfo{OrderID: 2, Price: 100, Quantity: 10},
	}, trades[0])
	assert.Equal(t, 0, e.Size())
	bids, asks := e.Snapshot()
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestScenario_MatchFillAndKill(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	add(t, e, 2, common.Sell, common.FillAndKill, 100, 5)

	assert.Equal(t, 1, e.Size())
	bids, asks := e.Snapshot()
	require.Len(t, bids, 1)
	assert.Equal(t, common.Quantity(5), bids[0].Quantity)
	assert.Empty(t, asks)
}

func TestScenario_MatchFillOrKillHit(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	trades := add(t, e, 2, common.Sell, common.FillOrKill, 100, 10)

	require.Len(t, trades, 1)
	assert.Equal(t, common.TradeInfo{OrderID: 1, Price: 100, Quantity: 10}, trades[0].Bid)
	assert.Equal(t, common.TradeInfo{OrderID: 2, Price: 100, Quantity: 10}, trades[0].Ask)
	assert.Equal(t, 0, e.Size())
}

func TestScenario_MatchFillOrKillMiss(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 5)
	trades := add(t, e, 2, common.Sell, common.FillOrKill, 100, 10)

	assert.Empty(t, trades)
	assert.Equal(t, 1, e.Size())
	bids, asks := e.Snapshot()
	require.Len(t, bids, 1)
	assert.Equal(t, common.Quantity(5), bids[0].Quantity)
	assert.Empty(t, asks)
}

func TestScenario_CancelSuccess(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	e.Cancel(1)

	assert.Equal(t, 0, e.Size())
	bids, asks := e.Snapshot()
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestScenario_ModifySide(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	trades := e.Modify(1, common.Sell, 100, 10)
	assert.Empty(t, trades)

	trades = add(t, e, 3, common.Buy, common.GoodTillCancel, 100, 10)
	require.Len(t, trades, 1)
	assert.Equal(t, common.TradeInfo{OrderID: 3, Price: 100, Quantity: 10}, trades[0].Bid)
	assert.Equal(t, common.TradeInfo{OrderID: 1, Price: 100, Quantity: 10}, trades[0].Ask)
	assert.Equal(t, 0, e.Size())
}

func TestScenario_MatchMarket(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Sell, common.GoodTillCancel, 100, 10)
	trades := add(t, e, 2, common.Buy, common.Market, 0, 10)

	require.Len(t, trades, 1)
	assert.Equal(t, common.TradeInfo{OrderID: 2, Price: 100, Quantity: 10}, trades[0].Bid)
	assert.Equal(t, common.TradeInfo{OrderID: 1, Price: 100, Quantity: 10}, trades[0].Ask)
	assert.Equal(t, 0, e.Size())
}

// --- Boundary behaviors -------------------------------------------------

func TestMarketIntoEmptyBookIsRejected(t *testing.T) {
	e := engine.New()
	trades := add(t, e, 1, common.Buy, common.Market, 0, 10)
	assert.Empty(t, trades)
	assert.Equal(t, 0, e.Size())
}

func TestFillAndKillWithZeroCrossIsRejectedNotBooked(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Sell, common.GoodTillCancel, 105, 10)
	trades := add(t, e, 2, common.Buy, common.FillAndKill, 100, 10)
	assert.Empty(t, trades)
	assert.Equal(t, 1, e.Size()) // only the resting ask remains
}

func TestSweepAcrossMultipleLevels(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Sell, common.GoodTillCancel, 100, 5)
	add(t, e, 2, common.Sell, common.GoodTillCancel, 101, 5)
	trades := add(t, e, 3, common.Buy, common.GoodTillCancel, 101, 10)

	require.Len(t, trades, 2)
	assert.Equal(t, common.Price(100), trades[0].Ask.Price)
	assert.Equal(t, common.Price(101), trades[1].Ask.Price)
	assert.Equal(t, 0, e.Size())
}

func TestFillOrKillFeasibilityTightToTheByte(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Sell, common.GoodTillCancel, 100, 5)
	add(t, e, 2, common.Sell, common.GoodTillCancel, 101, 5)

	trades := add(t, e, 3, common.Buy, common.FillOrKill, 101, 10)
	require.Len(t, trades, 2)
	assert.Equal(t, 0, e.Size())
}

func TestFillOrKillOneShortIsRejected(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Sell, common.GoodTillCancel, 100, 5)
	add(t, e, 2, common.Sell, common.GoodTillCancel, 101, 4)

	trades := add(t, e, 3, common.Buy, common.FillOrKill, 101, 10)
	assert.Empty(t, trades)
	assert.Equal(t, 2, e.Size())
}

func TestDuplicateIDIsSilentNoOp(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	trades := add(t, e, 1, common.Buy, common.GoodTillCancel, 99, 5)
	assert.Empty(t, trades)
	assert.Equal(t, 1, e.Size())
	bids, _ := e.Snapshot()
	require.Len(t, bids, 1)
	assert.Equal(t, common.Quantity(10), bids[0].Quantity)
}

// --- Laws ---------------------------------------------------------------

func TestCancelIsIdempotent(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	e.Cancel(1)
	e.Cancel(1) // must not panic or change state
	assert.Equal(t, 0, e.Size())
}

func TestCancelUnknownIDIsNoOp(t *testing.T) {
	e := engine.New()
	e.Cancel(999)
	assert.Equal(t, 0, e.Size())
}

func TestModifyUnknownIDIsNoOp(t *testing.T) {
	e := engine.New()
	trades := e.Modify(999, common.Buy, 100, 10)
	assert.Empty(t, trades)
}

func TestModifyPreservesKindAndLosesTimePriority(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodForDay, 100, 10)
	add(t, e, 2, common.Buy, common.GoodTillCancel, 100, 5)

	// Modify order 1 in place at the same price: it must re-enter at the
	// tail of the FIFO (after order 2), and keep its GoodForDay kind.
	trades := e.Modify(1, common.Buy, 100, 10)
	assert.Empty(t, trades)

	sellTrades := add(t, e, 3, common.Sell, common.GoodTillCancel, 100, 5)
	require.Len(t, sellTrades, 1)
	assert.Equal(t, common.OrderID(2), sellTrades[0].Bid.OrderID, "order 2 should still have priority over the modified order 1")
	assert.Equal(t, []common.OrderID{1}, e.GoodForDayOrderIDs())
}

// --- Invariants ----------------------------------------------------------

func TestBookNeverCrossedAfterAddReturns(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	add(t, e, 2, common.Sell, common.GoodTillCancel, 105, 10)

	bids, asks := e.Snapshot()
	if len(bids) > 0 && len(asks) > 0 {
		assert.Less(t, bids[0].Price, asks[0].Price)
	}
}

func TestSizeMatchesOrderIndexAcrossOps(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	add(t, e, 2, common.Buy, common.GoodTillCancel, 99, 5)
	add(t, e, 3, common.Sell, common.GoodTillCancel, 102, 5)
	assert.Equal(t, 3, e.Size())

	e.Cancel(2)
	assert.Equal(t, 2, e.Size())
}

func TestSnapshotDepthSumsRemainingQuantity(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	add(t, e, 2, common.Buy, common.GoodTillCancel, 100, 5)

	bids, _ := e.Snapshot()
	require.Len(t, bids, 1)
	assert.Equal(t, common.Quantity(15), bids[0].Quantity)
}

func TestSnapshotDepthCountsLiveOrders(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	add(t, e, 2, common.Buy, common.GoodTillCancel, 100, 5)
	add(t, e, 3, common.Buy, common.GoodTillCancel, 99, 1)

	bids, _ := e.Snapshot()
	require.Len(t, bids, 2)
	assert.Equal(t, 2, bids[0].Count)
	assert.Equal(t, 1, bids[1].Count)

	e.Cancel(1)
	bids, _ = e.Snapshot()
	assert.Equal(t, 1, bids[0].Count)
}

func TestPartialFillLeavesAggregateConsistent(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	trades := add(t, e, 2, common.Sell, common.GoodTillCancel, 100, 4)

	require.Len(t, trades, 1)
	assert.Equal(t, common.Quantity(4), trades[0].Bid.Quantity)
	bids, _ := e.Snapshot()
	require.Len(t, bids, 1)
	assert.Equal(t, common.Quantity(6), bids[0].Quantity)
}

// --- Observer wiring ------------------------------------------------------

type recordingObserver struct {
	trades  []common.Trade
	rejects []string
}

func (r *recordingObserver) ObserveTrade(t common.Trade) { r.trades = append(r.trades, t) }
func (r *recordingObserver) ObserveReject(reason string) { r.rejects = append(r.rejects, reason) }

func TestObserverSeesTradesAndRejections(t *testing.T) {
	e := engine.New()
	obs := &recordingObserver{}
	e.Attach(obs)

	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10)
	add(t, e, 1, common.Buy, common.GoodTillCancel, 100, 10) // duplicate
	add(t, e, 2, common.Sell, common.GoodTillCancel, 100, 10)

	assert.Equal(t, []string{"duplicate_id"}, obs.rejects)
	require.Len(t, obs.trades, 1)
}

func TestGoodForDayOrderIDs(t *testing.T) {
	e := engine.New()
	add(t, e, 1, common.Buy, common.GoodForDay, 100, 10)
	add(t, e, 2, common.Buy, common.GoodTillCancel, 99, 5)

	ids := e.GoodForDayOrderIDs()
	assert.Equal(t, []common.OrderID{1}, ids)
}
