package pathfind

// Node is one grid cell during a single search. Nodes are pooled; a node must
// not be touched after the search that acquired it has released it.
type Node struct {
	X, Z   int32 // global cell coordinates (floor(world / cell size))
	G      float64
	H      float64
	F      float64
	Parent *Node
	index  int // heap position, -1 when not queued
}

func (n *Node) reset(x, z int32) {
	n.X, n.Z = x, z
	n.G, n.H, n.F = 0, 0, 0
	n.Parent = nil
	n.index = -1
}

// Key returns the node's cell key.
func (n *Node) Key() uint64 {
	return cellKey(n.X, n.Z)
}

// cellKey packs two cell coordinates into one collision-free integer.
func cellKey(x, z int32) uint64 {
	return uint64(uint32(x))<<32 | uint64(uint32(z))
}
