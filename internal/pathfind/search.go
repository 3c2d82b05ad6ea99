package pathfind

import (
	"math"

	"github.com/l1jgo/pathd/internal/grid"
)

// Options are the engine's policy constants. Zero fields in a Query fall
// back to these.
type Options struct {
	MaxIterations   int
	MaxJumpDistance int     // cells per jump before a hop ends
	MaxLookups      int     // walkability lookups per query, bounds the work of one search
	PoolCapacity    int     // idle nodes kept between searches
	SnapRadius      int     // ring search radius in cells
	PartialMinGain  float64 // heuristic progress, in cells, a partial path must make
	LOSSampleStep   float64 // line-of-sight sample spacing as a fraction of a cell
	Smooth          bool
}

func DefaultOptions() Options {
	return Options{
		MaxIterations:   4000,
		MaxJumpDistance: 64,
		MaxLookups:      2_000_000,
		PoolCapacity:    500,
		SnapRadius:      5,
		PartialMinGain:  12,
		LOSSampleStep:   0.25,
		Smooth:          true,
	}
}

// Query is one path request in world coordinates.
type Query struct {
	StartX, StartZ float64
	GoalX, GoalZ   float64
	MaxIterations  int
	Mode           grid.Mode

	SnapRadius     int     // 0 = engine default
	PartialMinGain float64 // 0 = engine default
}

// Reason says why a query did not produce a full path.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonGoalChunkMissing
	ReasonStartBlocked
	ReasonGoalBlocked
	ReasonNoPath
	ReasonBudgetExhausted
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonGoalChunkMissing:
		return "goal_chunk_missing"
	case ReasonStartBlocked:
		return "start_blocked"
	case ReasonGoalBlocked:
		return "goal_blocked"
	case ReasonNoPath:
		return "no_path"
	case ReasonBudgetExhausted:
		return "budget_exhausted"
	}
	return "unknown"
}

// Waypoint is a world position on a returned path.
type Waypoint struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Result is the outcome of FindPath. Path is nil on failure. A partial path
// carries the Reason the full search stopped.
type Result struct {
	Path       []Waypoint
	Partial    bool
	Reason     Reason
	Iterations int
	Discovered int
	RawLength  int // waypoints before smoothing
	Lookups    int // walkability lookups spent, snapping included
}

func (r Result) Found() bool { return r.Path != nil }

// Engine runs jump point searches over a grid registry. It keeps its node
// pool and open set between queries and is owned by a single goroutine.
type Engine struct {
	reg  *grid.Registry
	geo  grid.Geometry
	opts Options

	pool       *Pool
	open       *OpenSet
	closed     map[uint64]struct{}
	discovered []*Node
	succ       []cell

	// per-query state
	mode         grid.Mode
	goalX, goalZ int32
	lookups      int

	fallbacks uint64
}

func NewEngine(reg *grid.Registry, opts Options) *Engine {
	if opts.MaxJumpDistance <= 0 {
		opts.MaxJumpDistance = DefaultOptions().MaxJumpDistance
	}
	if opts.MaxLookups <= 0 {
		opts.MaxLookups = DefaultOptions().MaxLookups
	}
	if opts.LOSSampleStep <= 0 {
		opts.LOSSampleStep = DefaultOptions().LOSSampleStep
	}
	return &Engine{
		reg:        reg,
		geo:        reg.Geometry(),
		opts:       opts,
		pool:       NewPool(opts.PoolCapacity),
		open:       NewOpenSet(),
		closed:     make(map[uint64]struct{}, 256),
		discovered: make([]*Node, 0, 256),
		succ:       make([]cell, 0, 16),
	}
}

func (e *Engine) Options() Options { return e.opts }

// Pool exposes the node pool for diagnostics.
func (e *Engine) Pool() *Pool { return e.pool }

// Fallbacks counts expansions that fell back to 8-neighbour stepping.
func (e *Engine) Fallbacks() uint64 { return e.fallbacks }

// FindPath plans a route for q. It never fails loudly: every failure is a
// Result with a nil Path and a Reason.
func (e *Engine) FindPath(q Query) Result {
	e.mode = q.Mode
	e.lookups = 0
	maxIter := q.MaxIterations
	if maxIter <= 0 {
		maxIter = e.opts.MaxIterations
	}
	radius := q.SnapRadius
	if radius <= 0 {
		radius = e.opts.SnapRadius
	}
	minGain := q.PartialMinGain
	if minGain <= 0 {
		minGain = e.opts.PartialMinGain
	}

	// Probing an unregistered chunk would burn the whole budget.
	if !e.reg.HasChunkAt(q.GoalX, q.GoalZ) {
		return Result{Reason: ReasonGoalChunkMissing}
	}
	sx, sz, ok := e.snap(q.StartX, q.StartZ, radius)
	if !ok {
		return Result{Reason: ReasonStartBlocked, Lookups: e.lookups}
	}
	gx, gz, ok := e.snap(q.GoalX, q.GoalZ, radius)
	if !ok {
		return Result{Reason: ReasonGoalBlocked, Lookups: e.lookups}
	}

	res := e.search(sx, sz, gx, gz, maxIter, minGain)
	e.release()
	res.Lookups = e.lookups
	return res
}

func (e *Engine) search(sx, sz, gx, gz int32, maxIter int, minGain float64) Result {
	e.goalX, e.goalZ = gx, gz

	start := e.acquire(sx, sz)
	start.H = e.heuristic(sx, sz)
	start.F = start.H
	e.open.Insert(start)

	reason := ReasonNoPath
	iter := 0
	for e.open.Len() > 0 {
		if iter >= maxIter || e.lookupsExhausted() {
			reason = ReasonBudgetExhausted
			break
		}
		iter++

		cur := e.open.ExtractMin()
		key := cur.Key()
		e.open.RemoveFromMap(key)
		if _, done := e.closed[key]; done {
			continue
		}
		e.closed[key] = struct{}{}

		if cur.X == gx && cur.Z == gz {
			return e.finish(cur, Result{Iterations: iter})
		}

		for _, s := range e.successors(cur) {
			k := cellKey(s.x, s.z)
			if _, done := e.closed[k]; done {
				continue
			}
			g := cur.G + Octile(s.x-cur.X, s.z-cur.Z)
			if n, ok := e.open.Get(k); ok {
				if g < n.G {
					n.G = g
					n.F = g + n.H
					n.Parent = cur
					e.open.DecreaseKey(n)
				}
				continue
			}
			n := e.acquire(s.x, s.z)
			n.G = g
			n.H = e.heuristic(s.x, s.z)
			n.F = g + n.H
			n.Parent = cur
			e.open.Insert(n)
		}
	}

	// No full path: fall back to the discovered node closest to the goal,
	// but only if it is meaningfully closer than where we started.
	var best *Node
	for _, n := range e.discovered {
		if n.Parent == nil {
			continue
		}
		if best == nil || n.H < best.H {
			best = n
		}
	}
	if best != nil && start.H-best.H > minGain {
		return e.finish(best, Result{Iterations: iter, Partial: true, Reason: reason})
	}
	return Result{Reason: reason, Iterations: iter, Discovered: len(e.discovered)}
}

// finish turns the chain ending at n into the result path. Must run before release.
func (e *Engine) finish(n *Node, res Result) Result {
	path := e.reconstruct(n)
	res.RawLength = len(path)
	if e.opts.Smooth {
		path = SmoothPath(path, e.geo.CellSize, e.opts.LOSSampleStep, e.walkableAt)
	}
	res.Path = path
	res.Discovered = len(e.discovered)
	return res
}

func (e *Engine) acquire(x, z int32) *Node {
	n := e.pool.Acquire(x, z)
	e.discovered = append(e.discovered, n)
	return n
}

// release returns every node of the finished search to the pool.
func (e *Engine) release() {
	e.open.Reset()
	clear(e.closed)
	e.pool.Release(e.discovered)
	for i := range e.discovered {
		e.discovered[i] = nil
	}
	e.discovered = e.discovered[:0]
}

func (e *Engine) lookupsExhausted() bool {
	return e.lookups >= e.opts.MaxLookups
}

func (e *Engine) heuristic(x, z int32) float64 {
	return Octile(x-e.goalX, z-e.goalZ)
}

// snap moves a world position to the nearest walkable cell within radius
// rings of the cell containing it.
func (e *Engine) snap(wx, wz float64, radius int) (int32, int32, bool) {
	cx, cz := e.cellOf(wx), e.cellOf(wz)
	if e.walkable(cx, cz) {
		return cx, cz, true
	}
	for r := int32(1); r <= int32(radius); r++ {
		found := false
		var bx, bz int32
		bestD := math.MaxFloat64
		for dx := -r; dx <= r; dx++ {
			for dz := -r; dz <= r; dz++ {
				if dx != -r && dx != r && dz != -r && dz != r {
					continue // interior already searched
				}
				x, z := cx+dx, cz+dz
				if !e.walkable(x, z) {
					continue
				}
				ddx, ddz := e.center(x)-wx, e.center(z)-wz
				if d := ddx*ddx + ddz*ddz; d < bestD {
					bestD, bx, bz, found = d, x, z, true
				}
			}
		}
		if found {
			return bx, bz, true
		}
	}
	return 0, 0, false
}

func (e *Engine) cellOf(w float64) int32 {
	return int32(math.Floor(w / e.geo.CellSize))
}

func (e *Engine) center(c int32) float64 {
	return (float64(c) + 0.5) * e.geo.CellSize
}

func (e *Engine) walkableAt(x, z float64) bool {
	return e.reg.IsWalkable(x, z, e.mode)
}
