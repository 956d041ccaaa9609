package vptree

import (
	"slices"
)

// sampleSize bounds the number of distances inspected when choosing a split
// threshold.
const sampleSize = 32

// Node is either a leaf holding a bucket of points or an internal node with a
// vantage point, a threshold and two children. Points at distance <= threshold
// from the vantage point live under closer, the rest under farther.
type Node[P comparable] struct {
	cfg *config[P]

	points []P // nil for internal nodes

	vantage   P
	threshold float64
	closer    *Node[P]
	farther   *Node[P]
}

// newNode copies points into a new leaf, picks a random vantage point and
// partitions.
func newNode[P comparable](points []P, cfg *config[P]) *Node[P] {
	n := &Node[P]{
		cfg:    cfg,
		points: slices.Clone(points),
	}
	if n.points == nil {
		n.points = []P{}
	}
	if len(n.points) > 0 {
		n.vantage = n.points[cfg.rng.IntN(len(n.points))]
	}
	n.partition()
	return n
}

// IsLeaf reports whether the node holds a point bucket rather than children.
func (n *Node[P]) IsLeaf() bool {
	return n.closer == nil
}

// Points returns a copy of a leaf's bucket. It is nil for internal nodes.
func (n *Node[P]) Points() []P {
	if !n.IsLeaf() {
		return nil
	}
	return slices.Clone(n.points)
}

// VantagePoint returns the point distances are measured against.
func (n *Node[P]) VantagePoint() P {
	return n.vantage
}

// Threshold returns the split distance.
func (n *Node[P]) Threshold() float64 {
	return n.threshold
}

// Closer returns the child holding points within the threshold.
func (n *Node[P]) Closer() *Node[P] {
	return n.closer
}

// Farther returns the child holding points beyond the threshold.
func (n *Node[P]) Farther() *Node[P] {
	return n.farther
}

// Len returns the number of points reachable from n. It is computed on demand.
func (n *Node[P]) Len() int {
	if n.IsLeaf() {
		return len(n.points)
	}
	return n.closer.Len() + n.farther.Len()
}

func (n *Node[P]) collect(dst []P) []P {
	if n.IsLeaf() {
		return append(dst, n.points...)
	}
	dst = n.closer.collect(dst)
	return n.farther.collect(dst)
}

// partition restores the node invariants: internal nodes with an empty child
// are collapsed back into a leaf, leaves above capacity are split.
func (n *Node[P]) partition() {
	if !n.IsLeaf() {
		if n.closer.Len() == 0 || n.farther.Len() == 0 {
			points := n.collect(make([]P, 0, n.Len()))
			n.closer, n.farther = nil, nil
			n.points = points
			n.partition()
			return
		}
		n.closer.partition()
		n.farther.partition()
		return
	}
	if len(n.points) > n.cfg.capacity {
		n.split()
	}
}

func (n *Node[P]) split() {
	dists := make([]float64, len(n.points))
	for i, p := range n.points {
		dists[i] = n.cfg.distance(n.vantage, p)
	}

	threshold := n.selectThreshold(dists)
	// A sample median can equal the maximum distance and leave the far side
	// empty; lowering it lets skewed buckets still split.
	if lower, ok := lowerThreshold(dists, threshold); ok {
		threshold = lower
	}
	n.threshold = threshold

	var closer, farther []P
	for i, p := range n.points {
		if dists[i] > threshold {
			farther = append(farther, p)
		} else {
			closer = append(closer, p)
		}
	}
	// Every point on one side: stay an oversized leaf.
	if len(closer) == 0 || len(farther) == 0 {
		return
	}

	n.closer = newNode(closer, n.cfg)
	n.farther = newNode(farther, n.cfg)
	n.points = nil
}

// selectThreshold returns the median of up to sampleSize distances drawn
// uniformly without replacement.
func (n *Node[P]) selectThreshold(dists []float64) float64 {
	sample := slices.Clone(dists)
	if len(sample) > sampleSize {
		// Partial Fisher-Yates: the first sampleSize slots become the sample.
		for i := 0; i < sampleSize; i++ {
			j := i + n.cfg.rng.IntN(len(sample)-i)
			sample[i], sample[j] = sample[j], sample[i]
		}
		sample = sample[:sampleSize]
	}
	return quickselect(sample, len(sample)/2, n.cfg.rng.IntN)
}

// quickselect returns the k-th smallest value of s, reordering s in place.
// intn picks pivots and must return a value in [0, n).
func quickselect(s []float64, k int, intn func(n int) int) float64 {
	left, right := 0, len(s)-1
	for left < right {
		pivotIdx := left + intn(right-left+1)
		pivot := s[pivotIdx]
		s[pivotIdx], s[right] = s[right], s[pivotIdx]

		store := left
		for i := left; i < right; i++ {
			if s[i] < pivot {
				s[store], s[i] = s[i], s[store]
				store++
			}
		}
		s[store], s[right] = s[right], s[store]

		switch {
		case store == k:
			return s[k]
		case store < k:
			left = store + 1
		default:
			right = store - 1
		}
	}
	return s[k]
}

// lowerThreshold handles a sampled threshold that puts every distance on the
// closer side. It returns the largest distance strictly below the maximum, so
// the split only fails when all distances are equal.
func lowerThreshold(dists []float64, threshold float64) (float64, bool) {
	maxDist := slices.Max(dists)
	if maxDist > threshold {
		return threshold, false
	}
	var (
		lower float64
		found bool
	)
	for _, d := range dists {
		if d < maxDist && (!found || d > lower) {
			lower, found = d, true
		}
	}
	return lower, found
}

// child returns the subtree p is routed to.
func (n *Node[P]) child(p P) *Node[P] {
	if n.cfg.distance(n.vantage, p) > n.threshold {
		return n.farther
	}
	return n.closer
}

func (n *Node[P]) contains(p P) bool {
	if !n.IsLeaf() {
		return n.child(p).contains(p)
	}
	return slices.Contains(n.points, p)
}

// add appends p to its leaf without any capacity check; the caller rebalances.
func (n *Node[P]) add(p P) {
	if !n.IsLeaf() {
		n.child(p).add(p)
		return
	}
	n.points = append(n.points, p)
}

func (n *Node[P]) remove(p P) bool {
	if !n.IsLeaf() {
		return n.child(p).remove(p)
	}
	i := slices.Index(n.points, p)
	if i < 0 {
		return false
	}
	n.points = slices.Delete(n.points, i, i+1)
	return true
}

func (n *Node[P]) nearest(q P, rq *resultQueue[P]) {
	if n.IsLeaf() {
		for _, p := range n.points {
			rq.push(p)
		}
		return
	}

	d := n.cfg.distance(n.vantage, q)
	if d > n.threshold {
		n.farther.nearest(q, rq)
		if d-n.threshold <= rq.worst() {
			n.closer.nearest(q, rq)
		}
		return
	}
	n.closer.nearest(q, rq)
	if rq.worst() > n.threshold-d {
		n.farther.nearest(q, rq)
	}
}

func (n *Node[P]) withinDistance(q P, maxDistance float64, result *[]Neighbour[P]) {
	if n.IsLeaf() {
		for _, p := range n.points {
			if d := n.cfg.distance(q, p); d <= maxDistance {
				*result = append(*result, Neighbour[P]{Point: p, Distance: d})
			}
		}
		return
	}

	d := n.cfg.distance(n.vantage, q)
	if d <= n.threshold+maxDistance {
		n.closer.withinDistance(q, maxDistance, result)
	}
	if d+maxDistance > n.threshold {
		n.farther.withinDistance(q, maxDistance, result)
	}
}
