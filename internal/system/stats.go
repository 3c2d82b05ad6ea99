package system

import (
	"time"

	coresys "github.com/l1jgo/pathd/internal/core/system"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/l1jgo/pathd/internal/handler"
	"github.com/l1jgo/pathd/internal/net"
	"github.com/l1jgo/pathd/internal/pathfind"
)

// StatsSystem samples registry, pool and session gauges every interval
// ticks. Phase 2.
type StatsSystem struct {
	grid      *grid.Registry
	engine    *pathfind.Engine
	store     *net.SessionStore
	metrics   *handler.Metrics
	tickCount int
	interval  int
}

func NewStatsSystem(g *grid.Registry, engine *pathfind.Engine, store *net.SessionStore, metrics *handler.Metrics, intervalTicks int) *StatsSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &StatsSystem{
		grid:     g,
		engine:   engine,
		store:    store,
		metrics:  metrics,
		interval: intervalTicks,
	}
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhaseStats }

func (s *StatsSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Sample()
}

// Sample refreshes the gauges immediately.
func (s *StatsSystem) Sample() {
	lookups, hits := s.grid.MemoStats()
	s.metrics.SetGauges(handler.Gauges{
		Chunks:      s.grid.Len(),
		Sessions:    s.store.Count(),
		PoolFree:    s.engine.Pool().Len(),
		MemoLookups: lookups,
		MemoHits:    hits,
		Fallbacks:   s.engine.Fallbacks(),
	})
}
