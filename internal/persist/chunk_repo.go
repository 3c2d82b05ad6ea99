package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/pathd/internal/grid"
	"go.uber.org/zap"
)

// ChunkRow is one stored chunk grid. Geometry is kept so a restart with a
// different resolution can skip rows it cannot index.
type ChunkRow struct {
	ChunkID  string
	ChunkX   int32
	ChunkZ   int32
	OriginX  float64
	OriginZ  float64
	CellSize float64
	Cells    int32
	Flags    []byte
	Version  int64
	SavedAt  time.Time
}

// ChunkRepo stores terrain snapshots for warm restarts. It never stores paths.
type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// SaveSnapshot replaces the stored snapshot with chunks in one transaction.
func (r *ChunkRepo) SaveSnapshot(ctx context.Context, geo grid.Geometry, chunks []*grid.Chunk) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunk_snapshot`); err != nil {
		return fmt.Errorf("snapshot clear: %w", err)
	}
	for _, c := range chunks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chunk_snapshot (chunk_id, chunk_x, chunk_z, origin_x, origin_z, cell_size, cells, flags, version, saved_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
			c.ID, c.Coord.X, c.Coord.Z, c.OriginX, c.OriginZ, geo.CellSize, int32(geo.ChunkCells), c.Flags, int64(c.Version),
		); err != nil {
			return fmt.Errorf("snapshot insert %s: %w", c.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// LoadSnapshot returns every stored chunk ordered by id.
func (r *ChunkRepo) LoadSnapshot(ctx context.Context) ([]ChunkRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT chunk_id, chunk_x, chunk_z, origin_x, origin_z, cell_size, cells, flags, version, saved_at
		 FROM chunk_snapshot
		 ORDER BY chunk_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(
			&c.ChunkID, &c.ChunkX, &c.ChunkZ, &c.OriginX, &c.OriginZ,
			&c.CellSize, &c.Cells, &c.Flags, &c.Version, &c.SavedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Restore registers snapshot rows into reg. Rows saved under another grid
// geometry are skipped and counted.
func Restore(reg *grid.Registry, rows []ChunkRow, log *zap.Logger) (restored, skipped int) {
	geo := reg.Geometry()
	for _, row := range rows {
		if row.CellSize != geo.CellSize || int(row.Cells) != geo.ChunkCells {
			log.Warn("快照區塊解析度不符，略過",
				zap.String("chunk", row.ChunkID),
				zap.Float64("cell_size", row.CellSize),
				zap.Int32("cells", row.Cells),
			)
			skipped++
			continue
		}
		coord := grid.ChunkCoord{X: row.ChunkX, Z: row.ChunkZ}
		if _, err := reg.Register(row.ChunkID, coord, row.OriginX, row.OriginZ, row.Flags, uint64(row.Version)); err != nil {
			log.Warn("快照區塊還原失敗", zap.String("chunk", row.ChunkID), zap.Error(err))
			skipped++
			continue
		}
		restored++
	}
	return restored, skipped
}
