package system

import (
	"context"
	"time"

	"github.com/l1jgo/pathd/internal/core/event"
	coresys "github.com/l1jgo/pathd/internal/core/system"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/l1jgo/pathd/internal/persist"
	"go.uber.org/zap"
)

// QueryLogWriter is the storage side of the audit log.
type QueryLogWriter interface {
	InsertBatch(ctx context.Context, rows []persist.QueryLogRow) error
}

// SnapshotWriter is the storage side of chunk snapshots.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, geo grid.Geometry, chunks []*grid.Chunk) error
}

// maxBufferedRows caps the audit buffer while the database is unreachable.
const maxBufferedRows = 10000

// QueryLogSystem buffers one row per resolved find_path and writes them in
// batches every interval ticks. Phase 4 (Persist).
type QueryLogSystem struct {
	writer    QueryLogWriter
	log       *zap.Logger
	buf       []persist.QueryLogRow
	dropped   uint64
	tickCount int
	interval  int
}

func NewQueryLogSystem(bus *event.Bus, writer QueryLogWriter, log *zap.Logger, intervalTicks int) *QueryLogSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	s := &QueryLogSystem{
		writer:   writer,
		log:      log,
		interval: intervalTicks,
	}
	event.Subscribe(bus, s.onPathResolved)
	return s
}

func (s *QueryLogSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *QueryLogSystem) onPathResolved(ev event.PathResolved) {
	if len(s.buf) >= maxBufferedRows {
		s.buf = s.buf[1:]
		s.dropped++
	}
	outcome := ev.Reason
	switch {
	case ev.Partial:
		outcome = "partial"
	case ev.Found:
		outcome = "found"
	}
	s.buf = append(s.buf, persist.QueryLogRow{
		SessionID:  ev.SessionID,
		RequestID:  ev.RequestID,
		StartX:     ev.StartX,
		StartZ:     ev.StartZ,
		GoalX:      ev.GoalX,
		GoalZ:      ev.GoalZ,
		Mode:       ev.Mode,
		Outcome:    outcome,
		Partial:    ev.Partial,
		Iterations: ev.Iterations,
		Waypoints:  ev.Waypoints,
		Duration:   ev.Duration,
		CreatedAt:  ev.At,
	})
}

func (s *QueryLogSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Flush writes every buffered row now. Failed batches stay buffered.
func (s *QueryLogSystem) Flush() {
	if len(s.buf) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.writer.InsertBatch(ctx, s.buf); err != nil {
		s.log.Error("查詢紀錄寫入失敗", zap.Int("rows", len(s.buf)), zap.Error(err))
		return
	}
	if s.dropped > 0 {
		s.log.Warn("查詢紀錄緩衝已滿，舊紀錄已丟棄", zap.Uint64("dropped", s.dropped))
		s.dropped = 0
	}
	clear(s.buf)
	s.buf = s.buf[:0]
}

// Buffered returns the number of rows waiting for the next flush.
func (s *QueryLogSystem) Buffered() int { return len(s.buf) }

// SnapshotSystem saves every registered chunk when the registry changed
// since the last save. Phase 4 (Persist).
type SnapshotSystem struct {
	grid      *grid.Registry
	writer    SnapshotWriter
	log       *zap.Logger
	dirty     bool
	tickCount int
	interval  int // 0 = only on SaveNow
}

func NewSnapshotSystem(bus *event.Bus, g *grid.Registry, writer SnapshotWriter, log *zap.Logger, intervalTicks int) *SnapshotSystem {
	s := &SnapshotSystem{
		grid:     g,
		writer:   writer,
		log:      log,
		interval: intervalTicks,
	}
	event.Subscribe(bus, func(event.ChunkChanged) { s.dirty = true })
	return s
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *SnapshotSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	if s.dirty {
		s.SaveNow()
	}
}

// Dirty reports whether the registry changed since the last save.
func (s *SnapshotSystem) Dirty() bool { return s.dirty }

// SaveNow writes the snapshot regardless of the interval.
func (s *SnapshotSystem) SaveNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chunks := s.grid.Chunks()
	if err := s.writer.SaveSnapshot(ctx, s.grid.Geometry(), chunks); err != nil {
		s.log.Error("區塊快照儲存失敗", zap.Error(err))
		return err
	}
	s.dirty = false
	s.log.Info("區塊快照已儲存", zap.Int("chunks", len(chunks)))
	return nil
}
