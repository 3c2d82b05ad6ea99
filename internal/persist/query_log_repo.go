package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// QueryLogRow is one audited find_path.
type QueryLogRow struct {
	SessionID  uint64
	RequestID  string
	StartX     float64
	StartZ     float64
	GoalX      float64
	GoalZ      float64
	Mode       string
	Outcome    string
	Partial    bool
	Iterations int
	Waypoints  int
	Duration   time.Duration
	CreatedAt  time.Time
}

var queryLogColumns = []string{
	"session_id", "request_id", "start_x", "start_z", "goal_x", "goal_z",
	"mode", "outcome", "partial", "iterations", "waypoints", "duration_us", "created_at",
}

type QueryLogRepo struct {
	db *DB
}

func NewQueryLogRepo(db *DB) *QueryLogRepo {
	return &QueryLogRepo{db: db}
}

// InsertBatch copies rows into query_log with the COPY protocol.
func (r *QueryLogRepo) InsertBatch(ctx context.Context, rows []QueryLogRow) error {
	if len(rows) == 0 {
		return nil
	}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		q := rows[i]
		return []any{
			int64(q.SessionID), q.RequestID, q.StartX, q.StartZ, q.GoalX, q.GoalZ,
			q.Mode, q.Outcome, q.Partial, int32(q.Iterations), int32(q.Waypoints),
			q.Duration.Microseconds(), q.CreatedAt,
		}, nil
	})
	n, err := r.db.Pool.CopyFrom(ctx, pgx.Identifier{"query_log"}, queryLogColumns, src)
	if err != nil {
		return fmt.Errorf("query log copy: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("query log copy: wrote %d of %d rows", n, len(rows))
	}
	return nil
}

// Prune deletes audit rows older than cutoff and returns how many went.
func (r *QueryLogRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM query_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query log prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
