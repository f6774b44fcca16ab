// Package pruner runs the day-end sweep that cancels every resting
// GoodForDay order once the trading day ends (spec §4.6). It owns no
// book state of its own; it only calls back into the engine.
//
// This restructures the original PruneGoodForDayOrders loop
// (original_source/Orderbook.cpp) — a dedicated thread blocked on a
// condition variable with a computed timeout to the next day-end —
// around a tomb.Tomb the way the teacher supervises its own background
// goroutines (internal/worker.go, internal/server.go): the condition
// variable wait becomes a time.Timer raced against t.Dying() in a
// select.
package pruner

import (
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/common"
)

// bookCanceller is the slice of Engine the pruner depends on, so tests
// can supply a fake without building a real engine.
type bookCanceller interface {
	GoodForDayOrderIDs() []common.OrderID
	CancelBatch(ids []common.OrderID)
}

// Pruner cancels GoodForDay orders at the end of each trading day.
type Pruner struct {
	engine  bookCanceller
	dayEnd  time.Duration // time of day the trading session ends, e.g. 16*time.Hour
	slack   time.Duration // fixed delay added past the computed boundary
	nowFunc func() time.Time
}

// Option configures a Pruner away from its defaults.
type Option func(*Pruner)

// WithDayEnd sets the time of day (as a duration since midnight) the
// trading session ends. Default is 16:00 local, per spec §4.6.
func WithDayEnd(d time.Duration) Option {
	return func(p *Pruner) { p.dayEnd = d }
}

// WithSlack sets the fixed delay added after the computed day-end
// instant before the sweep fires, absorbing clock skew the way the
// original's 100ms constant does.
func WithSlack(d time.Duration) Option {
	return func(p *Pruner) { p.slack = d }
}

// withNow overrides the clock source; test-only.
func withNow(f func() time.Time) Option {
	return func(p *Pruner) { p.nowFunc = f }
}

// New builds a Pruner bound to engine, defaulting to a 16:00 local
// day-end with a 100ms slack.
func New(engine bookCanceller, opts ...Option) *Pruner {
	p := &Pruner{
		engine:  engine,
		dayEnd:  16 * time.Hour,
		slack:   100 * time.Millisecond,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// nextDayEnd computes the next instant strictly after now that lands on
// the configured day-end time of day, mirroring the original's
// "if already past end-of-day, roll to tomorrow" adjustment.
func (p *Pruner) nextDayEnd(now time.Time) time.Time {
	// Passing dayEnd as the nanosecond field lets time.Date normalize it
	// in civil time, so the boundary stays on the local clock time even
	// on days with a DST change.
	boundary := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, int(p.dayEnd), now.Location())
	if !boundary.After(now) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary.Add(p.slack)
}

// Run drives the sweep loop until t is told to die. It is meant to be
// started with t.Go, matching the teacher's supervision style
// (internal/server.go's tomb.WithContext + t.Go(...)).
func (p *Pruner) Run(t *tomb.Tomb) error {
	for {
		now := p.nowFunc()
		till := p.nextDayEnd(now).Sub(now)

		timer := time.NewTimer(till)
		select {
		case <-t.Dying():
			timer.Stop()
			return nil
		case <-timer.C:
			p.sweep()
		}
	}
}

func (p *Pruner) sweep() {
	ids := p.engine.GoodForDayOrderIDs()
	if len(ids) == 0 {
		return
	}
	log.Info().Int("count", len(ids)).Msg("pruning good-for-day orders")
	p.engine.CancelBatch(ids)
}
