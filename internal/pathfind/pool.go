package pathfind

// Pool recycles search nodes between queries. Only the path worker uses it.
type Pool struct {
	free      []*Node
	capacity  int
	allocated uint64
}

func NewPool(capacity int) *Pool {
	return &Pool{
		free:     make([]*Node, 0, capacity),
		capacity: capacity,
	}
}

// Acquire returns a reset node for cell (x, z), reusing a free one when possible.
func (p *Pool) Acquire(x, z int32) *Node {
	var n *Node
	if last := len(p.free) - 1; last >= 0 {
		n = p.free[last]
		p.free[last] = nil
		p.free = p.free[:last]
	} else {
		n = &Node{}
		p.allocated++
	}
	n.reset(x, z)
	return n
}

// Release hands nodes back. Nodes beyond capacity are dropped for the GC.
func (p *Pool) Release(nodes []*Node) {
	for _, n := range nodes {
		if len(p.free) >= p.capacity {
			return
		}
		n.Parent = nil // don't pin old chains
		p.free = append(p.free, n)
	}
}

// Len returns the number of idle nodes held by the pool.
func (p *Pool) Len() int { return len(p.free) }

// Cap returns the retention bound.
func (p *Pool) Cap() int { return p.capacity }

// Allocated returns how many nodes the pool has ever created.
func (p *Pool) Allocated() uint64 { return p.allocated }
