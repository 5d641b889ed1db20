package astar

// node is one search vertex. seq gives FIFO ordering among equal f-scores.
type node struct {
	key    uint64
	parent uint64
	action MoveAction
	g      float64
	f      float64
	seq    uint64
	index  int // heap position, -1 once popped
	closed bool
	root   bool
}

// openSet implements container/heap.Interface as a min-heap on f.
type openSet []*node

func (q openSet) Len() int { return len(q) }

func (q openSet) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq < q[j].seq
}

func (q openSet) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *openSet) Pop() any {
	old := *q
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*q = old[:last]
	return n
}
