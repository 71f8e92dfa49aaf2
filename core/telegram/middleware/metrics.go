package middleware

import (
	"context"
	"sync"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/router"
)

// Metrics counts deliveries passing through the chain.
type Metrics struct {
	updates atomic.Uint64
	failed  atomic.Uint64

	mu     sync.Mutex
	byKind map[events.Kind]uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Updates uint64
	Failed  uint64
	ByKind  map[string]uint64
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{byKind: make(map[events.Kind]uint64)}
}

// Middleware counts every update, its fan-out kinds, and failed deliveries.
func (m *Metrics) Middleware(next router.Handler) router.Handler {
	return func(ctx context.Context, upd tele.Update, c events.Classification) error {
		m.updates.Add(1)
		m.mu.Lock()
		for _, e := range c.Entries {
			m.byKind[e.Kind]++
		}
		m.mu.Unlock()

		err := next(ctx, upd, c)
		if err != nil {
			m.failed.Add(1)
		}
		return err
	}
}

// Snapshot reads the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind := make(map[string]uint64, len(m.byKind))
	for k, n := range m.byKind {
		byKind[k.String()] = n
	}
	return MetricsSnapshot{
		Updates: m.updates.Load(),
		Failed:  m.failed.Load(),
		ByKind:  byKind,
	}
}
