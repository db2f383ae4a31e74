// Package notify carries alert transitions out of the core. The engine
// publishes fire-and-forget; implementations decide how events leave the
// process.
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"stock-ledger/internal/core"
)

// LogPublisher writes every alert transition to the structured log.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: logger.With().Str("component", "notify").Logger()}
}

func (p *LogPublisher) Publish(ev core.AlertEvent) {
	level := p.log.Info()
	if ev.Kind == core.AlertEventRaised && ev.Alert.Severity == core.SeverityCritical {
		level = p.log.Warn()
	}
	level.
		Str("kind", ev.Kind).
		Str("alert_id", ev.Alert.ID.String()).
		Str("product_id", ev.Alert.ProductID.String()).
		Str("warehouse_id", ev.Alert.WarehouseID.String()).
		Str("severity", string(ev.Alert.Severity)).
		Msg("alert event")
}

// Feed retains the most recent alert events in memory so the API can
// expose an activity stream without a broker. Oldest events are dropped
// once capacity is reached; publishing never blocks the engine.
type Feed struct {
	mu     sync.Mutex
	events []core.AlertEvent
	cap    int
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 256
	}
	return &Feed{cap: capacity}
}

func (f *Feed) Publish(ev core.AlertEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if len(f.events) > f.cap {
		f.events = f.events[len(f.events)-f.cap:]
	}
}

// Recent returns up to n events, newest first.
func (f *Feed) Recent(n int) []core.AlertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || n > len(f.events) {
		n = len(f.events)
	}
	out := make([]core.AlertEvent, n)
	for i := 0; i < n; i++ {
		out[i] = f.events[len(f.events)-1-i]
	}
	return out
}

// Multi fans one event out to several publishers.
type Multi []core.AlertPublisher

func (m Multi) Publish(ev core.AlertEvent) {
	for _, p := range m {
		p.Publish(ev)
	}
}
