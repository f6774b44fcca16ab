// Package metrics exposes Prometheus gauges and counters reflecting
// live engine activity. It implements engine.Observer so it hangs off
// Engine.Attach the same way any other side-channel watcher does; it
// never touches engine internals directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"lobengine/internal/common"
	"lobengine/internal/engine"
)

// Collector is a self-registering set of order book metrics.
type Collector struct {
	bookDepth     *prometheus.GaugeVec
	bestPrice     *prometheus.GaugeVec
	tradesTotal   prometheus.Counter
	rejectedTotal *prometheus.CounterVec
}

// New constructs a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lob_book_depth",
			Help: "Live order count resting on each side of the book.",
		}, []string{"side"}),
		bestPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lob_book_best_price",
			Help: "Current best price on each side of the book.",
		}, []string{"side"}),
		tradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lob_trades_total",
			Help: "Total number of trades emitted by the matching engine.",
		}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lob_orders_rejected_total",
			Help: "Total number of orders silently rejected at admission, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(c.bookDepth, c.bestPrice, c.tradesTotal, c.rejectedTotal)
	return c
}

// ObserveTrade satisfies engine.Observer.
func (c *Collector) ObserveTrade(common.Trade) {
	c.tradesTotal.Inc()
}

// ObserveReject satisfies engine.Observer.
func (c *Collector) ObserveReject(reason string) {
	c.rejectedTotal.WithLabelValues(reason).Inc()
}

// Refresh updates the depth/best-price gauges from a fresh snapshot.
// Callers (C12's serve loop) poll this on the same cadence as the
// snapshot feed (C11) rather than hooking it into the hot Add/Cancel
// path, since depth-per-level requires a full scan Add/Cancel don't
// otherwise need to perform.
func (c *Collector) Refresh(bids, asks []engine.LevelInfo) {
	c.bookDepth.WithLabelValues("bid").Set(float64(sumCount(bids)))
	c.bookDepth.WithLabelValues("ask").Set(float64(sumCount(asks)))

	if len(bids) > 0 {
		c.bestPrice.WithLabelValues("bid").Set(float64(bids[0].Price))
	} else {
		c.bestPrice.DeleteLabelValues("bid")
	}
	if len(asks) > 0 {
		c.bestPrice.WithLabelValues("ask").Set(float64(asks[0].Price))
	} else {
		c.bestPrice.DeleteLabelValues("ask")
	}
}

// sumCount totals live order counts across levels — what lob_book_depth
// reports, per its own Help string (mirrors C4's per-level count, not
// resting quantity).
func sumCount(levels []engine.LevelInfo) int {
	var total int
	for _, lvl := range levels {
		total += lvl.Count
	}
	return total
}
