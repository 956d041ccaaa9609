package vptree

import (
	"cmp"
	"container/heap"
	"math"
	"slices"
)

// Neighbour is a search result: a point and its distance to the query.
type Neighbour[P any] struct {
	Point    P
	Distance float64
}

type queueItem[P any] struct {
	Neighbour[P]
	seq int // insertion order, breaks distance ties
}

// maxHeap keeps the farthest item at index 0.
type maxHeap[P any] []queueItem[P]

func (h maxHeap[P]) Len() int { return len(h) }
func (h maxHeap[P]) Less(i, j int) bool {
	if h[i].Distance != h[j].Distance {
		return h[i].Distance > h[j].Distance
	}
	return h[i].seq > h[j].seq
}
func (h maxHeap[P]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *maxHeap[P]) Push(x any)   { *h = append(*h, x.(queueItem[P])) }
func (h *maxHeap[P]) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

// resultQueue retains the maxEntries closest points to a fixed query seen so
// far during a nearest-neighbour search.
type resultQueue[P any] struct {
	query      P
	distance   DistanceFunc[P]
	maxEntries int

	items maxHeap[P]
	seq   int
}

// newResultQueue grows its heap on demand; maxEntries may exceed the number of
// points in the tree.
func newResultQueue[P any](query P, distance DistanceFunc[P], maxEntries int) *resultQueue[P] {
	return &resultQueue[P]{
		query:      query,
		distance:   distance,
		maxEntries: maxEntries,
	}
}

// push offers p to the queue. When full, p replaces the farthest retained
// point only if it is strictly closer.
func (q *resultQueue[P]) push(p P) {
	if q.maxEntries <= 0 {
		return
	}
	d := q.distance(q.query, p)
	if len(q.items) >= q.maxEntries {
		if far, _ := q.peek(); d >= far.Distance {
			return
		}
		heap.Pop(&q.items)
	}
	heap.Push(&q.items, queueItem[P]{Neighbour: Neighbour[P]{Point: p, Distance: d}, seq: q.seq})
	q.seq++
}

// peek returns the farthest retained point.
func (q *resultQueue[P]) peek() (Neighbour[P], bool) {
	if len(q.items) == 0 {
		return Neighbour[P]{}, false
	}
	return q.items[0].Neighbour, true
}

// worst is the pruning bound: the farthest retained distance once the queue is
// full, +Inf before that.
func (q *resultQueue[P]) worst() float64 {
	if len(q.items) < q.maxEntries {
		return math.Inf(1)
	}
	far, _ := q.peek()
	return far.Distance
}

func (q *resultQueue[P]) len() int {
	return len(q.items)
}

// list returns the retained points by ascending distance, ties in insertion
// order.
func (q *resultQueue[P]) list() []Neighbour[P] {
	items := slices.Clone(q.items)
	slices.SortFunc(items, func(a, b queueItem[P]) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Neighbour[P], len(items))
	for i, item := range items {
		out[i] = item.Neighbour
	}
	return out
}
