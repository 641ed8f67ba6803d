package hnsw

// candidate represents a potential neighbor with its distance to the query.
type candidate struct {
	id   uint32
	dist float64
}

// candidateMinHeap implements a min-heap for candidates based on their
// distance. Ties break on id so traversal order is deterministic.
type candidateMinHeap []candidate

func (h candidateMinHeap) Len() int { return len(h) }
func (h candidateMinHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].id < h[j].id
	}
	return h[i].dist < h[j].dist
}
func (h candidateMinHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateMinHeap) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *candidateMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// candidateMaxHeap implements a max-heap for candidates based on their
// distance, used as the bounded result set during beam search.
type candidateMaxHeap []candidate

func (h candidateMaxHeap) Len() int { return len(h) }
func (h candidateMaxHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].id > h[j].id
	}
	return h[i].dist > h[j].dist
}
func (h candidateMaxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateMaxHeap) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *candidateMaxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
