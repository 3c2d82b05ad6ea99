package packet

import (
	"encoding/json"

	"github.com/l1jgo/pathd/internal/grid"
)

// Message types. Every line on the wire is one Envelope.
const (
	TypeRegisterChunk   = "register_chunk"
	TypeUnregisterChunk = "unregister_chunk"
	TypeUpdateChunk     = "update_chunk"
	TypeUpdateCells     = "update_cells"
	TypeFindPath        = "find_path"
	TypePathResult      = "path_result"
	TypeStats           = "stats"
	TypeStatsResult     = "stats_result"
)

// Envelope is the outer shape of every inbound and outbound message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterChunk carries a full grid. Flags travel as base64.
type RegisterChunk struct {
	ChunkID string  `json:"chunkId"`
	ChunkX  int32   `json:"chunkX"`
	ChunkZ  int32   `json:"chunkZ"`
	OriginX float64 `json:"worldOriginX"`
	OriginZ float64 `json:"worldOriginZ"`
	Flags   []byte  `json:"flags"`
	Version uint64  `json:"version"`
}

type UnregisterChunk struct {
	ChunkID string `json:"chunkId"`
}

type UpdateChunk struct {
	ChunkID string `json:"chunkId"`
	Flags   []byte `json:"flags"`
}

type UpdateCells struct {
	ChunkID string           `json:"chunkId"`
	Cells   []grid.CellPatch `json:"cells"`
}

// FindPath is a path query. RequestID is echoed back verbatim, so callers
// may use strings or numbers.
type FindPath struct {
	RequestID       json.RawMessage `json:"requestId"`
	StartX          float64         `json:"startX"`
	StartZ          float64         `json:"startZ"`
	GoalX           float64         `json:"goalX"`
	GoalZ           float64         `json:"goalZ"`
	MaxIterations   int             `json:"maxIterations"`
	IgnoreSlopes    bool            `json:"ignoreSlopes"`
	IgnoreObstacles bool            `json:"ignoreObstacles"`
}

// RequestIDOnly recovers the request id from a find_path payload whose other
// fields failed to decode.
type RequestIDOnly struct {
	RequestID json.RawMessage `json:"requestId"`
}

type Point struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// PathResult answers FindPath. Path is null on failure.
type PathResult struct {
	RequestID json.RawMessage `json:"requestId"`
	Path      []Point         `json:"path"`
}

type Stats struct {
	RequestID json.RawMessage `json:"requestId,omitempty"`
}

type StatsResult struct {
	RequestID     json.RawMessage   `json:"requestId,omitempty"`
	Chunks        int               `json:"chunks"`
	Messages      map[string]uint64 `json:"messages"`
	Malformed     uint64            `json:"malformed"`
	Outcomes      map[string]uint64 `json:"outcomes"`
	PartialPaths  uint64            `json:"partialPaths"`
	Iterations    uint64            `json:"iterations"`
	PoolFree      int               `json:"poolFree"`
	PoolAllocated uint64            `json:"poolAllocated"`
	MemoLookups   uint64            `json:"memoLookups"`
	MemoHits      uint64            `json:"memoHits"`
	Fallbacks     uint64            `json:"neighbourFallbacks"`
}
