package pathfind

import (
	"math"
	"testing"

	"github.com/l1jgo/pathd/internal/data"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/stretchr/testify/require"
)

// newTestEngine registers a single chunk at the origin built from rows,
// with one world unit per cell.
func newTestEngine(t *testing.T, rows []string, tweak ...func(*Options)) (*Engine, *grid.Registry) {
	t.Helper()
	n := len(rows)
	reg := grid.NewRegistry(grid.Geometry{CellSize: 1, ChunkCells: n, ChunkSpan: float64(n)})
	flags, err := data.ParseRows(rows, n, data.GlyphWalkable)
	require.NoError(t, err)
	_, err = reg.Register("0,0", grid.ChunkCoord{}, 0, 0, flags, 1)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.MaxIterations = 100000
	for _, f := range tweak {
		f(&opts)
	}
	return NewEngine(reg, opts), reg
}

func at(x, z int) (float64, float64) {
	return float64(x) + 0.5, float64(z) + 0.5
}

func query(sx, sz, gx, gz int) Query {
	q := Query{}
	q.StartX, q.StartZ = at(sx, sz)
	q.GoalX, q.GoalZ = at(gx, gz)
	return q
}

// requireSamplesWalkable walks the polyline in small steps and fails on any
// sample that lands in a blocked cell.
func requireSamplesWalkable(t *testing.T, reg *grid.Registry, mode grid.Mode, path []Waypoint) {
	t.Helper()
	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]
		d := math.Hypot(b.X-a.X, b.Z-a.Z)
		steps := int(math.Ceil(d/0.05)) + 1
		for s := 0; s <= steps; s++ {
			tt := float64(s) / float64(steps)
			x, z := a.X+(b.X-a.X)*tt, a.Z+(b.Z-a.Z)*tt
			require.True(t, reg.IsWalkable(x, z, mode), "segment %d sample (%.2f, %.2f) is blocked", i, x, z)
		}
	}
}

// components labels 8-connected regions using the same no-corner-cutting rule
// as the engine.
func components(reg *grid.Registry, n int) [][]int {
	walk := func(x, z int) bool {
		if x < 0 || z < 0 || x >= n || z >= n {
			return false
		}
		cx, cz := at(x, z)
		return reg.IsWalkable(cx, cz, grid.Mode{})
	}
	label := make([][]int, n)
	for i := range label {
		label[i] = make([]int, n)
	}
	next := 0
	for x := 0; x < n; x++ {
		for z := 0; z < n; z++ {
			if !walk(x, z) || label[x][z] != 0 {
				continue
			}
			next++
			stack := [][2]int{{x, z}}
			label[x][z] = next
			for len(stack) > 0 {
				c := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, d := range directions {
					dx, dz := int(d[0]), int(d[1])
					nx, nz := c[0]+dx, c[1]+dz
					if !walk(nx, nz) || label[nx][nz] != 0 {
						continue
					}
					if dx != 0 && dz != 0 && (!walk(c[0]+dx, c[1]) || !walk(c[0], c[1]+dz)) {
						continue
					}
					label[nx][nz] = next
					stack = append(stack, [2]int{nx, nz})
				}
			}
		}
	}
	return label
}

// visitsCell reports whether the polyline passes through cell (cx, cz).
func visitsCell(path []Waypoint, cx, cz int) bool {
	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]
		steps := int(math.Ceil(math.Hypot(b.X-a.X, b.Z-a.Z)/0.05)) + 1
		for s := 0; s <= steps; s++ {
			tt := float64(s) / float64(steps)
			x, z := a.X+(b.X-a.X)*tt, a.Z+(b.Z-a.Z)*tt
			if int(math.Floor(x)) == cx && int(math.Floor(z)) == cz {
				return true
			}
		}
	}
	return false
}
