package handler

import (
	"time"

	"github.com/l1jgo/pathd/internal/pathfind"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the diagnostic counters. Every counter is exported to
// Prometheus and mirrored in plain fields for the stats message. Path worker
// only.
type Metrics struct {
	messagesTotal  *prometheus.CounterVec
	malformedTotal *prometheus.CounterVec
	pathTotal      *prometheus.CounterVec
	partialTotal   prometheus.Counter
	pathDuration   prometheus.Histogram
	pathIterations prometheus.Histogram
	pathWaypoints  prometheus.Histogram
	rejectedTotal  *prometheus.CounterVec
	chunksGauge    prometheus.Gauge
	sessionsGauge  prometheus.Gauge
	poolFreeGauge  prometheus.Gauge
	memoHitRatio   prometheus.Gauge
	fallbacksGauge prometheus.Gauge
	tickPhase      *prometheus.HistogramVec

	messages   map[string]uint64
	malformed  uint64
	outcomes   map[string]uint64
	partials   uint64
	iterations uint64
}

// NewMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry so runs do not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		messagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathd_messages_total",
			Help: "Inbound messages by type",
		}, []string{"type"}),
		malformedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathd_malformed_messages_total",
			Help: "Lines or payloads that failed to decode, by type (empty when the envelope itself was bad)",
		}, []string{"type"}),
		pathTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathd_path_queries_total",
			Help: "find_path results by outcome",
		}, []string{"outcome"}),
		partialTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pathd_partial_paths_total",
			Help: "find_path results that returned a partial path",
		}),
		pathDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathd_path_query_duration_seconds",
			Help:    "find_path wall time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14), // 50us to ~400ms
		}),
		pathIterations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathd_path_query_iterations",
			Help:    "Open-set extractions per find_path",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 2000, 4000, 10000},
		}),
		pathWaypoints: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathd_path_waypoints",
			Help:    "Waypoints per returned path after smoothing",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
		}),
		rejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathd_chunk_mutations_rejected_total",
			Help: "Registry mutations that were ignored, by message type and cause",
		}, []string{"type", "cause"}),
		chunksGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathd_chunks_registered",
			Help: "Chunk grids currently registered",
		}),
		sessionsGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathd_sessions",
			Help: "Connected client sessions",
		}),
		poolFreeGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathd_node_pool_free",
			Help: "Idle search nodes held by the pool",
		}),
		memoHitRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathd_chunk_memo_hit_ratio",
			Help: "Share of walkability lookups answered by the one-slot chunk memo",
		}),
		fallbacksGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "pathd_neighbour_fallbacks",
			Help: "Node expansions that fell back to plain 8-neighbour stepping",
		}),
		tickPhase: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pathd_tick_phase_seconds",
			Help:    "Path worker time spent per tick phase",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		}, []string{"phase"}),
		messages: make(map[string]uint64),
		outcomes: make(map[string]uint64),
	}
}

// Message counts one dispatched message.
func (m *Metrics) Message(typ string) {
	m.messagesTotal.WithLabelValues(typ).Inc()
	m.messages[typ]++
}

// Malformed counts a line or payload that could not be decoded.
func (m *Metrics) Malformed(typ string) {
	m.malformedTotal.WithLabelValues(typ).Inc()
	m.malformed++
}

// Rejected counts a registry mutation that was ignored.
func (m *Metrics) Rejected(typ, cause string) {
	m.rejectedTotal.WithLabelValues(typ, cause).Inc()
}

// Outcome names a result for labels: "found", "partial" or the failure reason.
func Outcome(res pathfind.Result) string {
	switch {
	case res.Partial:
		return "partial"
	case res.Found():
		return "found"
	}
	return res.Reason.String()
}

// ObservePath records one find_path result.
func (m *Metrics) ObservePath(res pathfind.Result, elapsed time.Duration) {
	outcome := Outcome(res)
	m.pathTotal.WithLabelValues(outcome).Inc()
	m.outcomes[outcome]++
	if res.Partial {
		m.partialTotal.Inc()
		m.partials++
	}
	m.pathDuration.Observe(elapsed.Seconds())
	m.pathIterations.Observe(float64(res.Iterations))
	m.iterations += uint64(res.Iterations)
	if res.Found() {
		m.pathWaypoints.Observe(float64(len(res.Path)))
	}
}

// ObservePhase records how long one tick phase took.
func (m *Metrics) ObservePhase(phase string, elapsed time.Duration) {
	m.tickPhase.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// Gauges carries the sampled values refreshed by the stats phase.
type Gauges struct {
	Chunks      int
	Sessions    int
	PoolFree    int
	MemoLookups uint64
	MemoHits    uint64
	Fallbacks   uint64
}

func (m *Metrics) SetGauges(g Gauges) {
	m.chunksGauge.Set(float64(g.Chunks))
	m.sessionsGauge.Set(float64(g.Sessions))
	m.poolFreeGauge.Set(float64(g.PoolFree))
	if g.MemoLookups > 0 {
		m.memoHitRatio.Set(float64(g.MemoHits) / float64(g.MemoLookups))
	}
	m.fallbacksGauge.Set(float64(g.Fallbacks))
}
