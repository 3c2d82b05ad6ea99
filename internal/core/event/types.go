package event

import "time"

// PathResolved is emitted once per find_path, found or not.
type PathResolved struct {
	SessionID  uint64
	RequestID  string
	StartX     float64
	StartZ     float64
	GoalX      float64
	GoalZ      float64
	Mode       string
	Reason     string
	Found      bool
	Partial    bool
	Iterations int
	Waypoints  int
	Duration   time.Duration
	At         time.Time
}

// ChunkOp names a registry mutation.
type ChunkOp string

const (
	ChunkRegistered   ChunkOp = "register"
	ChunkUnregistered ChunkOp = "unregister"
	ChunkUpdated      ChunkOp = "update"
	ChunkCellsPatched ChunkOp = "update_cells"
)

// ChunkChanged is emitted after a registry mutation took effect.
type ChunkChanged struct {
	ChunkID string
	Op      ChunkOp
	Version uint64
}
