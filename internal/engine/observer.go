package engine

import "lobengine/internal/common"

// Observer receives side-channel notifications of engine activity. It is
// optional (Engine is fully functional with none set) and exists purely
// so outer layers — metrics (C10), logging — can watch trades and
// rejections without the engine importing zerolog/prometheus itself,
// keeping the matching hot path free of I/O (spec §5: "matching itself
// does no I/O and does not suspend").
//
// This generalizes the teacher's engine.SetReporter(srv) hook
// (cmd/server/server.go), which existed to let the engine call back into
// the net server for execution reports; here it is a named interface
// instead of a concrete *net.Server so any number of unrelated observers
// (metrics, a feed, a logger) can be attached independently.
type Observer interface {
	// ObserveTrade is called once per Trade produced by a match, in the
	// order the trades occurred.
	ObserveTrade(common.Trade)
	// ObserveReject is called when Add silently declines to book an
	// order, naming the reason (duplicate_id, market_no_liquidity,
	// fill_and_kill_no_cross, fill_or_kill_infeasible).
	ObserveReject(reason string)
}

// multiObserver fans out to every attached Observer so Engine.Attach can
// be called more than once (e.g. both metrics and a feed).
type multiObserver []Observer

func (m multiObserver) ObserveTrade(t common.Trade) {
	for _, o := range m {
		o.ObserveTrade(t)
	}
}

func (m multiObserver) ObserveReject(reason string) {
	for _, o := range m {
		o.ObserveReject(reason)
	}
}
