package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrUnknownChunk = errors.New("unknown chunk")
	ErrFlagsSize    = errors.New("flags buffer size mismatch")
)

// Geometry is the fixed resolution shared with the terrain system.
type Geometry struct {
	CellSize   float64
	ChunkCells int
	ChunkSpan  float64
}

// CellsPerChunk returns the flags buffer length every chunk must carry.
func (g Geometry) CellsPerChunk() int {
	return g.ChunkCells * g.ChunkCells
}

// ChunkCoord is the integer chunk position: floor(world / span).
type ChunkCoord struct {
	X, Z int32
}

// ChunkID formats the wire identifier of a chunk, e.g. "-1,3".
func ChunkID(c ChunkCoord) string {
	return strconv.Itoa(int(c.X)) + "," + strconv.Itoa(int(c.Z))
}

// ParseChunkID is the inverse of ChunkID.
func ParseChunkID(id string) (ChunkCoord, error) {
	xs, zs, ok := strings.Cut(id, ",")
	if !ok {
		return ChunkCoord{}, fmt.Errorf("chunk id %q: missing separator", id)
	}
	x, err := strconv.ParseInt(strings.TrimSpace(xs), 10, 32)
	if err != nil {
		return ChunkCoord{}, fmt.Errorf("chunk id %q: %w", id, err)
	}
	z, err := strconv.ParseInt(strings.TrimSpace(zs), 10, 32)
	if err != nil {
		return ChunkCoord{}, fmt.Errorf("chunk id %q: %w", id, err)
	}
	return ChunkCoord{X: int32(x), Z: int32(z)}, nil
}

// Chunk is one registered walkability grid.
// Flags are row-major by Z: index = localZ*ChunkCells + localX.
type Chunk struct {
	ID      string
	Coord   ChunkCoord
	OriginX float64
	OriginZ float64
	Flags   []byte
	Version uint64
}

// CellPatch is one entry of a sparse update.
type CellPatch struct {
	Index int  `json:"index"`
	Flags byte `json:"flags"`
}

// Registry owns every registered chunk grid. It is not safe for concurrent
// use: the path worker is its only owner.
type Registry struct {
	geo     Geometry
	byID    map[string]*Chunk
	byCoord map[ChunkCoord]*Chunk

	// one-slot memo of the last chunk lookup (hit or miss)
	memoValid bool
	memoCoord ChunkCoord
	memoChunk *Chunk

	lookups  uint64
	memoHits uint64
}

func NewRegistry(geo Geometry) *Registry {
	return &Registry{
		geo:     geo,
		byID:    make(map[string]*Chunk),
		byCoord: make(map[ChunkCoord]*Chunk),
	}
}

func (r *Registry) Geometry() Geometry { return r.geo }

// Len returns the number of registered chunks.
func (r *Registry) Len() int { return len(r.byID) }

// Register stores flags for a chunk, replacing any previous grid with the same id.
// The registry takes ownership of flags. A replaced chunk's version always
// increases, even if the supplied version does not.
func (r *Registry) Register(id string, coord ChunkCoord, originX, originZ float64, flags []byte, version uint64) (*Chunk, error) {
	if len(flags) != r.geo.CellsPerChunk() {
		return nil, fmt.Errorf("register %s: %w: got %d, want %d", id, ErrFlagsSize, len(flags), r.geo.CellsPerChunk())
	}
	if old := r.byID[id]; old != nil {
		if version <= old.Version {
			version = old.Version + 1
		}
		delete(r.byCoord, old.Coord)
	}
	c := &Chunk{
		ID:      id,
		Coord:   coord,
		OriginX: originX,
		OriginZ: originZ,
		Flags:   flags,
		Version: version,
	}
	if prev := r.byCoord[coord]; prev != nil && prev.ID != id {
		// another id claimed these coordinates; the newest registration wins
		delete(r.byID, prev.ID)
	}
	r.byID[id] = c
	r.byCoord[coord] = c
	r.memoValid = false
	return c, nil
}

// Update replaces the whole flags buffer of a registered chunk.
func (r *Registry) Update(id string, flags []byte) (*Chunk, error) {
	c := r.byID[id]
	if c == nil {
		return nil, fmt.Errorf("update %s: %w", id, ErrUnknownChunk)
	}
	if len(flags) != r.geo.CellsPerChunk() {
		return nil, fmt.Errorf("update %s: %w: got %d, want %d", id, ErrFlagsSize, len(flags), r.geo.CellsPerChunk())
	}
	c.Flags = flags
	c.Version++
	return c, nil
}

// UpdateCells applies a sparse patch. Out-of-range indices are skipped and
// counted in the returned value.
func (r *Registry) UpdateCells(id string, cells []CellPatch) (skipped int, err error) {
	c := r.byID[id]
	if c == nil {
		return 0, fmt.Errorf("update cells %s: %w", id, ErrUnknownChunk)
	}
	for _, p := range cells {
		if p.Index < 0 || p.Index >= len(c.Flags) {
			skipped++
			continue
		}
		c.Flags[p.Index] = p.Flags
	}
	c.Version++
	return skipped, nil
}

// Unregister drops a chunk. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) bool {
	c := r.byID[id]
	if c == nil {
		return false
	}
	delete(r.byID, id)
	if r.byCoord[c.Coord] == c {
		delete(r.byCoord, c.Coord)
	}
	r.memoValid = false
	return true
}

// Get returns the chunk registered under id, or nil.
func (r *Registry) Get(id string) *Chunk {
	return r.byID[id]
}

// ChunkCoordAt maps a world position to its chunk with floor division.
func (r *Registry) ChunkCoordAt(x, z float64) ChunkCoord {
	return ChunkCoord{
		X: int32(math.Floor(x / r.geo.ChunkSpan)),
		Z: int32(math.Floor(z / r.geo.ChunkSpan)),
	}
}

// HasChunkAt reports whether the chunk containing (x, z) is registered.
func (r *Registry) HasChunkAt(x, z float64) bool {
	return r.lookup(r.ChunkCoordAt(x, z)) != nil
}

// IsWalkable reports whether the cell containing (x, z) can be entered under mode.
// Unregistered chunks and out-of-range local cells are never walkable.
func (r *Registry) IsWalkable(x, z float64, mode Mode) bool {
	c := r.lookup(r.ChunkCoordAt(x, z))
	if c == nil {
		return false
	}
	lx := int(math.Floor((x - c.OriginX) / r.geo.CellSize))
	lz := int(math.Floor((z - c.OriginZ) / r.geo.CellSize))
	n := r.geo.ChunkCells
	if lx < 0 || lx >= n || lz < 0 || lz >= n {
		return false
	}
	idx := lz*n + lx
	if idx >= len(c.Flags) {
		return false
	}
	return mode.Passable(c.Flags[idx])
}

func (r *Registry) lookup(coord ChunkCoord) *Chunk {
	r.lookups++
	if r.memoValid && r.memoCoord == coord {
		r.memoHits++
		return r.memoChunk
	}
	c := r.byCoord[coord]
	r.memoValid = true
	r.memoCoord = coord
	r.memoChunk = c
	return c
}

// MemoStats returns total chunk lookups and how many the memo answered.
func (r *Registry) MemoStats() (lookups, hits uint64) {
	return r.lookups, r.memoHits
}

// Chunks returns all registered chunks ordered by id.
func (r *Registry) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
