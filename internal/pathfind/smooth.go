package pathfind

import "math"

// WalkableFunc answers walkability for a world position.
type WalkableFunc func(x, z float64) bool

// reconstruct walks the parent chain from n back to the root and returns the
// cell centers in forward order.
func (e *Engine) reconstruct(n *Node) []Waypoint {
	count := 0
	for p := n; p != nil; p = p.Parent {
		count++
	}
	path := make([]Waypoint, count)
	i := count - 1
	for p := n; p != nil; p = p.Parent {
		path[i] = Waypoint{X: e.center(p.X), Z: e.center(p.Z)}
		i--
	}
	return path
}

// SmoothPath string-pulls path: from each kept waypoint it jumps to the
// furthest later waypoint in line of sight. The result never has more
// waypoints than the input. Paths of two or fewer points are returned as is.
func SmoothPath(path []Waypoint, cellSize, sampleStep float64, walk WalkableFunc) []Waypoint {
	if len(path) <= 2 {
		return path
	}
	out := make([]Waypoint, 0, len(path))
	out = append(out, path[0])
	i := 0
	for i < len(path)-1 {
		j := len(path) - 1
		for j > i+1 && !LineOfSight(path[i], path[j], cellSize, sampleStep, walk) {
			j--
		}
		out = append(out, path[j])
		i = j
	}
	return out
}

// LineOfSight samples the segment a-b every sampleStep cells and checks each
// sample. When consecutive samples change cell on both axes the two
// orthogonal cells must be open too, so a sight line cannot slip diagonally
// between two blocked corners.
func LineOfSight(a, b Waypoint, cellSize, sampleStep float64, walk WalkableFunc) bool {
	dx, dz := b.X-a.X, b.Z-a.Z
	dist := math.Hypot(dx, dz)
	step := sampleStep * cellSize
	n := int(math.Ceil(dist / step))
	if n < 1 {
		n = 1
	}

	prevX := math.Floor(a.X / cellSize)
	prevZ := math.Floor(a.Z / cellSize)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		x := a.X + dx*t
		z := a.Z + dz*t
		if !walk(x, z) {
			return false
		}
		cx := math.Floor(x / cellSize)
		cz := math.Floor(z / cellSize)
		if cx != prevX && cz != prevZ {
			if !walk((cx+0.5)*cellSize, (prevZ+0.5)*cellSize) ||
				!walk((prevX+0.5)*cellSize, (cz+0.5)*cellSize) {
				return false
			}
		}
		prevX, prevZ = cx, cz
	}
	return true
}
