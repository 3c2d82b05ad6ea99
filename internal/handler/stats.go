package handler

import (
	"maps"

	"github.com/l1jgo/pathd/internal/net/packet"
	"go.uber.org/zap"
)

// HandleStats answers with a snapshot of the diagnostic counters.
func HandleStats(sess Responder, r *packet.Reader, deps *Deps) {
	var msg packet.Stats
	if err := r.Decode(&msg); err != nil {
		deps.Metrics.Malformed(packet.TypeStats)
		deps.FailLog.Warn("stats 解碼失敗", zap.Error(err))
	}
	sess.Send(packet.MustEncode(packet.TypeStatsResult, Snapshot(deps, msg.RequestID)))
}

// Snapshot gathers counters and live registry/pool state.
func Snapshot(deps *Deps, requestID []byte) packet.StatsResult {
	m := deps.Metrics
	lookups, hits := deps.Grid.MemoStats()
	pool := deps.Engine.Pool()
	return packet.StatsResult{
		RequestID:     requestID,
		Chunks:        deps.Grid.Len(),
		Messages:      maps.Clone(m.messages),
		Malformed:     m.malformed,
		Outcomes:      maps.Clone(m.outcomes),
		PartialPaths:  m.partials,
		Iterations:    m.iterations,
		PoolFree:      pool.Len(),
		PoolAllocated: pool.Allocated(),
		MemoLookups:   lookups,
		MemoHits:      hits,
		Fallbacks:     deps.Engine.Fallbacks(),
	}
}
