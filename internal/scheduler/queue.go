package scheduler

import "container/heap"

const (
	priorityHigh     = 0
	priorityLow      = 1
	prioritySentinel = -1
)

type request struct {
	priority int
	name     string
	seq      uint64 // FIFO order within a priority
}

type requestKey struct {
	priority int
	name     string
}

func (r request) key() requestKey { return requestKey{r.priority, r.name} }

// requestHeap orders by priority, then arrival.
type requestHeap []request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)   { *h = append(*h, x.(request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	*h = old[:n-1]
	return r
}

var _ heap.Interface = (*requestHeap)(nil)

func priorityLabel(p int) string {
	if p == priorityHigh {
		return "high"
	}
	return "low"
}
