package pathfind

// cell is a jump point candidate produced during successor generation.
type cell struct {
	x, z int32
}

// all 8 directions, orthogonals first
var directions = [8][2]int32{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// walkable tests the cell center against the registry under the query mode.
// Every call counts against the query's lookup budget.
func (e *Engine) walkable(x, z int32) bool {
	e.lookups++
	return e.reg.IsWalkable(e.center(x), e.center(z), e.mode)
}

// canStep reports whether a single move from (x, z) by (dx, dz) is legal.
// Diagonal moves need both orthogonal neighbours open: no corner cutting.
func (e *Engine) canStep(x, z, dx, dz int32) bool {
	if dx != 0 && dz != 0 {
		if !e.walkable(x+dx, z) || !e.walkable(x, z+dz) {
			return false
		}
	}
	return e.walkable(x+dx, z+dz)
}

// jump walks from (x, z) in direction (dx, dz) until it reaches the goal,
// a cell with a forced neighbour, or (diagonally) a cell from which a straight
// sub-jump succeeds. It gives up when blocked or when the lookup budget runs
// out. After maxDist steps it returns the cell it stopped on if stopAtLimit
// is set, so open ground is crossed in bounded hops; sub-jumps never do.
func (e *Engine) jump(x, z, dx, dz int32, maxDist int, stopAtLimit bool) (int32, int32, bool) {
	diagonal := dx != 0 && dz != 0
	for step := 0; step < maxDist; step++ {
		if e.lookupsExhausted() {
			return 0, 0, false
		}
		if !e.canStep(x, z, dx, dz) {
			return 0, 0, false
		}
		x += dx
		z += dz

		if x == e.goalX && z == e.goalZ {
			return x, z, true
		}
		if e.forced(x, z, dx, dz) {
			return x, z, true
		}
		if diagonal {
			remaining := maxDist - step - 1
			if _, _, ok := e.jump(x, z, dx, 0, remaining, false); ok {
				return x, z, true
			}
			if _, _, ok := e.jump(x, z, 0, dz, remaining, false); ok {
				return x, z, true
			}
		}
	}
	if stopAtLimit && maxDist > 0 {
		return x, z, true
	}
	return 0, 0, false
}

// forced reports whether (x, z), entered by moving (dx, dz), has a forced
// neighbour: a side cell that opens up right after a blocked one. Diagonal
// arrival never has one because the step already required both trailing
// orthogonals to be open.
func (e *Engine) forced(x, z, dx, dz int32) bool {
	switch {
	case dx != 0 && dz != 0:
		return false
	case dx != 0:
		return (e.walkable(x, z+1) && !e.walkable(x-dx, z+1)) ||
			(e.walkable(x, z-1) && !e.walkable(x-dx, z-1))
	default:
		return (e.walkable(x+1, z) && !e.walkable(x+1, z-dz)) ||
			(e.walkable(x-1, z) && !e.walkable(x-1, z-dz))
	}
}

// successors appends the jump points reachable from n to e.succ.
func (e *Engine) successors(n *Node) []cell {
	e.succ = e.succ[:0]
	maxDist := e.opts.MaxJumpDistance

	if n.Parent == nil {
		for _, d := range directions {
			e.tryJump(n.X, n.Z, d[0], d[1], maxDist)
		}
	} else {
		dx := sign(n.X - n.Parent.X)
		dz := sign(n.Z - n.Parent.Z)
		switch {
		case dx != 0 && dz != 0:
			e.tryJump(n.X, n.Z, dx, dz, maxDist)
			e.tryJump(n.X, n.Z, dx, 0, maxDist)
			e.tryJump(n.X, n.Z, 0, dz, maxDist)
		case dx != 0:
			e.tryJump(n.X, n.Z, dx, 0, maxDist)
			for _, s := range [2]int32{1, -1} {
				if e.walkable(n.X, n.Z+s) && !e.walkable(n.X-dx, n.Z+s) {
					e.tryJump(n.X, n.Z, 0, s, maxDist)
					e.tryJump(n.X, n.Z, dx, s, maxDist)
				}
			}
		case dz != 0:
			e.tryJump(n.X, n.Z, 0, dz, maxDist)
			for _, s := range [2]int32{1, -1} {
				if e.walkable(n.X+s, n.Z) && !e.walkable(n.X+s, n.Z-dz) {
					e.tryJump(n.X, n.Z, s, 0, maxDist)
					e.tryJump(n.X, n.Z, s, dz, maxDist)
				}
			}
		}
	}

	// Dense clutter can stop every jump before it finds anything; fall back
	// to plain 8-neighbour expansion so the search stays complete.
	if len(e.succ) == 0 {
		e.fallbacks++
		for _, d := range directions {
			if e.canStep(n.X, n.Z, d[0], d[1]) {
				e.succ = append(e.succ, cell{n.X + d[0], n.Z + d[1]})
			}
		}
	}
	return e.succ
}

func (e *Engine) tryJump(x, z, dx, dz int32, maxDist int) {
	if jx, jz, ok := e.jump(x, z, dx, dz, maxDist, true); ok {
		e.succ = append(e.succ, cell{jx, jz})
	}
}

func sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
