package handler

import (
	"errors"

	"github.com/l1jgo/pathd/internal/core/event"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/l1jgo/pathd/internal/net/packet"
	"go.uber.org/zap"
)

// HandleRegisterChunk stores a chunk grid, replacing any previous one with
// the same id. A missing id is derived from the chunk coordinates.
func HandleRegisterChunk(_ Responder, r *packet.Reader, deps *Deps) {
	var msg packet.RegisterChunk
	if err := r.Decode(&msg); err != nil {
		deps.Metrics.Malformed(packet.TypeRegisterChunk)
		deps.FailLog.Warn("register_chunk 解碼失敗", zap.Error(err))
		return
	}
	coord := grid.ChunkCoord{X: msg.ChunkX, Z: msg.ChunkZ}
	id := msg.ChunkID
	if id == "" {
		id = grid.ChunkID(coord)
	}

	c, err := deps.Grid.Register(id, coord, msg.OriginX, msg.OriginZ, msg.Flags, msg.Version)
	if err != nil {
		deps.Metrics.Rejected(packet.TypeRegisterChunk, "size")
		deps.FailLog.Warn("區塊註冊被拒", zap.String("chunk", id), zap.Error(err))
		return
	}
	deps.Log.Debug("區塊已註冊",
		zap.String("chunk", id),
		zap.Uint64("version", c.Version),
	)
	event.Emit(deps.Bus, event.ChunkChanged{ChunkID: id, Op: event.ChunkRegistered, Version: c.Version})
}

// HandleUnregisterChunk drops a chunk grid. Unknown ids are a no-op.
func HandleUnregisterChunk(_ Responder, r *packet.Reader, deps *Deps) {
	var msg packet.UnregisterChunk
	if err := r.Decode(&msg); err != nil {
		deps.Metrics.Malformed(packet.TypeUnregisterChunk)
		deps.FailLog.Warn("unregister_chunk 解碼失敗", zap.Error(err))
		return
	}
	if !deps.Grid.Unregister(msg.ChunkID) {
		deps.Metrics.Rejected(packet.TypeUnregisterChunk, "unknown")
		return
	}
	deps.Log.Debug("區塊已移除", zap.String("chunk", msg.ChunkID))
	event.Emit(deps.Bus, event.ChunkChanged{ChunkID: msg.ChunkID, Op: event.ChunkUnregistered})
}

// HandleUpdateChunk replaces the whole flags buffer of a known chunk.
func HandleUpdateChunk(_ Responder, r *packet.Reader, deps *Deps) {
	var msg packet.UpdateChunk
	if err := r.Decode(&msg); err != nil {
		deps.Metrics.Malformed(packet.TypeUpdateChunk)
		deps.FailLog.Warn("update_chunk 解碼失敗", zap.Error(err))
		return
	}
	c, err := deps.Grid.Update(msg.ChunkID, msg.Flags)
	if err != nil {
		rejectMutation(deps, packet.TypeUpdateChunk, msg.ChunkID, err)
		return
	}
	event.Emit(deps.Bus, event.ChunkChanged{ChunkID: msg.ChunkID, Op: event.ChunkUpdated, Version: c.Version})
}

// HandleUpdateCells applies a sparse patch to a known chunk.
func HandleUpdateCells(_ Responder, r *packet.Reader, deps *Deps) {
	var msg packet.UpdateCells
	if err := r.Decode(&msg); err != nil {
		deps.Metrics.Malformed(packet.TypeUpdateCells)
		deps.FailLog.Warn("update_cells 解碼失敗", zap.Error(err))
		return
	}
	skipped, err := deps.Grid.UpdateCells(msg.ChunkID, msg.Cells)
	if err != nil {
		rejectMutation(deps, packet.TypeUpdateCells, msg.ChunkID, err)
		return
	}
	if skipped > 0 {
		deps.Metrics.Rejected(packet.TypeUpdateCells, "index")
		deps.FailLog.Warn("略過超出範圍的格子",
			zap.String("chunk", msg.ChunkID),
			zap.Int("skipped", skipped),
		)
	}
	c := deps.Grid.Get(msg.ChunkID)
	event.Emit(deps.Bus, event.ChunkChanged{ChunkID: msg.ChunkID, Op: event.ChunkCellsPatched, Version: c.Version})
}

// Unknown chunks are expected during streaming and only counted.
func rejectMutation(deps *Deps, typ, id string, err error) {
	if errors.Is(err, grid.ErrUnknownChunk) {
		deps.Metrics.Rejected(typ, "unknown")
		return
	}
	deps.Metrics.Rejected(typ, "size")
	deps.FailLog.Warn("區塊更新被拒", zap.String("type", typ), zap.String("chunk", id), zap.Error(err))
}
