package cityflow

// searchItem is an entry of the open set
type searchItem struct {
	node     int32
	f        float64
	g        float64
	hops     int32
	lastEdge EdgeID
}

// searchQueue orders entries by (f, hops, last edge, node) so expansion order never depends on insertion order
type searchQueue []searchItem

func (pq searchQueue) Len() int { return len(pq) }

func (pq searchQueue) Less(i, j int) bool {
	a, b := &pq[i], &pq[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	if a.lastEdge != b.lastEdge {
		return a.lastEdge < b.lastEdge
	}
	return a.node < b.node
}

func (pq searchQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *searchQueue) Push(x interface{}) {
	*pq = append(*pq, x.(searchItem))
}

func (pq *searchQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}
