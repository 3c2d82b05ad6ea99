package pathfind

import "math"

const octileDiag = math.Sqrt2 - 2

// Octile is the 8-directional distance in cells for axis deltas dx, dz.
// Both the heuristic and edge costs use it, so the heuristic is consistent.
func Octile(dx, dz int32) float64 {
	if dx < 0 {
		dx = -dx
	}
	if dz < 0 {
		dz = -dz
	}
	m := dx
	if dz < m {
		m = dz
	}
	return float64(dx) + float64(dz) + octileDiag*float64(m)
}
