package pathfind

import "container/heap"

// nodeHeap implements container/heap as a min-heap on F.
type nodeHeap []*Node

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].F < h[j].F }
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*Node)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *nodeHeap) Pop() any {
	old := *h
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*h = old[:last]
	return n
}

// OpenSet is the A* frontier: a heap ordered by F plus a cell-key index
// for membership tests and decrease-key.
type OpenSet struct {
	heap  nodeHeap
	byKey map[uint64]*Node
}

func NewOpenSet() *OpenSet {
	return &OpenSet{
		heap:  make(nodeHeap, 0, 64),
		byKey: make(map[uint64]*Node, 64),
	}
}

func (o *OpenSet) Len() int { return o.heap.Len() }

// Insert queues n and indexes it by its cell key.
func (o *OpenSet) Insert(n *Node) {
	heap.Push(&o.heap, n)
	o.byKey[n.Key()] = n
}

// ExtractMin removes and returns the node with the lowest F, or nil when empty.
// The node stays in the key index until RemoveFromMap.
func (o *OpenSet) ExtractMin() *Node {
	if o.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(&o.heap).(*Node)
}

// DecreaseKey restores heap order after n.F was lowered. Keys only ever
// decrease, so n can only move toward the root.
func (o *OpenSet) DecreaseKey(n *Node) {
	if n.index < 0 {
		return
	}
	o.up(n.index)
}

func (o *OpenSet) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !o.heap.Less(i, parent) {
			return
		}
		o.heap.Swap(i, parent)
		i = parent
	}
}

// Get returns the indexed node for key.
func (o *OpenSet) Get(key uint64) (*Node, bool) {
	n, ok := o.byKey[key]
	return n, ok
}

func (o *OpenSet) RemoveFromMap(key uint64) {
	delete(o.byKey, key)
}

// Reset empties the set but keeps its storage for the next search.
func (o *OpenSet) Reset() {
	for i := range o.heap {
		o.heap[i].index = -1
		o.heap[i] = nil
	}
	o.heap = o.heap[:0]
	clear(o.byKey)
}
