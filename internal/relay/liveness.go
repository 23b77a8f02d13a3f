package relay

import (
	"context"
	"log/slog"
	"time"
)

const DefaultProbeInterval = 30 * time.Second

// Monitor periodically probes every registered connection and evicts
// the unresponsive ones.
//
// Each sweep first evicts connections whose liveness flag is still
// cleared from the previous sweep, then clears the flag on the rest and
// issues a probe. A connection that stops responding therefore gets two
// full intervals of grace before eviction, and rooms can never
// accumulate unbounded stale members.
type Monitor struct {
	engine   *Engine
	log      *slog.Logger
	interval time.Duration
}

func NewMonitor(engine *Engine, logger *slog.Logger, interval time.Duration) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{engine: engine, log: logger, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Monitor) sweep() {
	for _, c := range m.engine.connections() {
		if !c.alive.Load() {
			m.log.Info("evicting unresponsive peer", "peer", c.ID())
			m.engine.evict(c)
			continue
		}
		c.alive.Store(false)
		if err := c.transport.Probe(); err != nil {
			// A transport that cannot accept a probe is as dead as one
			// that never answers.
			m.log.Info("evicting peer after failed probe", "peer", c.ID(), "err", err)
			m.engine.evict(c)
		}
	}
}
