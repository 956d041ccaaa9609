// Package vptree implements a vantage-point tree over an arbitrary metric space.
//
// Points are partitioned recursively around a randomly chosen vantage point and
// the median distance of a small sample, so nearest-neighbour and range queries
// can skip subtrees that the triangle inequality rules out. Leaves hold flat
// buckets of up to capacity points; insertions and removals are followed by a
// rebalance that splits grown leaves and collapses emptied branches.
//
// A Tree is not safe for concurrent mutation. Read-only queries (Contains,
// NearestNeighbours, WithinDistance) may run concurrently as long as nothing
// mutates the tree meanwhile.
package vptree

import (
	"math/rand/v2"
)

// DefaultCapacity is the leaf bucket size used when no capacity is given.
const DefaultCapacity = 32

// DistanceFunc measures the distance between two points. It must be
// non-negative, symmetric and satisfy the triangle inequality; the tree does
// not check this.
type DistanceFunc[P any] func(a, b P) float64

// Option configures a Tree
type Option func(*options)

type options struct {
	capacity int
	rng      *rand.Rand
}

// WithCapacity sets the maximum leaf bucket size before a split is attempted.
// Negative values are treated as zero; a capacity of zero or one splits as far
// as the distances allow.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.capacity = n
	}
}

// WithRand sets the random source used for vantage point and pivot selection.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithSeed seeds a deterministic random source.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func newOptions(opts []Option) options {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

// config is shared by every node of a tree.
type config[P comparable] struct {
	distance DistanceFunc[P]
	capacity int
	rng      *rand.Rand
}

// Tree is the index handle. It owns the root node, which is nil while the tree
// is empty.
type Tree[P comparable] struct {
	root *Node[P]
	cfg  *config[P]
}

// New creates an empty tree using the given distance function.
func New[P comparable](distance DistanceFunc[P], opts ...Option) *Tree[P] {
	o := newOptions(opts)
	return &Tree[P]{
		cfg: &config[P]{
			distance: distance,
			capacity: o.capacity,
			rng:      o.rng,
		},
	}
}

// AddList inserts points. An empty tree is built in a single bulk partition;
// otherwise every point is routed to its leaf and the tree is rebalanced once.
func (t *Tree[P]) AddList(points []P) {
	if len(points) == 0 {
		return
	}
	if t.root == nil {
		t.root = newNode(points, t.cfg)
		return
	}
	for _, p := range points {
		t.root.add(p)
	}
	t.Rebalance()
}

// Add inserts a single point. Equal points are not deduplicated.
func (t *Tree[P]) Add(p P) {
	t.AddList([]P{p})
}

// Remove deletes one point equal to p and reports whether one was found.
func (t *Tree[P]) Remove(p P) bool {
	if t.root == nil {
		return false
	}
	if !t.root.remove(p) {
		return false
	}
	t.Rebalance()
	if t.root.Len() == 0 {
		t.root = nil
	}
	return true
}

// Contains reports whether a point equal to p is in the tree.
func (t *Tree[P]) Contains(p P) bool {
	if t.root == nil {
		return false
	}
	return t.root.contains(p)
}

// Rebalance restores the capacity and no-empty-child invariants after
// mutation: grown leaves are split and internal nodes with an empty child are
// collapsed. Calling it again without intervening mutation changes nothing.
func (t *Tree[P]) Rebalance() {
	if t.root != nil {
		t.root.partition()
	}
}

// NearestNeighbours returns up to maxResults points closest to q, ordered by
// ascending distance. maxResults is the cap on the result size; numNeighbours
// is only used as the cap when maxResults is not positive.
func (t *Tree[P]) NearestNeighbours(q P, numNeighbours, maxResults int) []Neighbour[P] {
	limit := maxResults
	if limit <= 0 {
		limit = numNeighbours
	}
	if t.root == nil || limit <= 0 {
		return nil
	}
	rq := newResultQueue(q, t.cfg.distance, limit)
	t.root.nearest(q, rq)
	return rq.list()
}

// WithinDistance returns every point whose distance to q is at most
// maxDistance, in traversal order.
func (t *Tree[P]) WithinDistance(q P, maxDistance float64) []Neighbour[P] {
	if t.root == nil {
		return nil
	}
	var result []Neighbour[P]
	t.root.withinDistance(q, maxDistance, &result)
	return result
}

// Len returns the number of points in the tree, counting duplicates.
func (t *Tree[P]) Len() int {
	if t.root == nil {
		return 0
	}
	return t.root.Len()
}

// Capacity returns the leaf bucket size.
func (t *Tree[P]) Capacity() int {
	return t.cfg.capacity
}

// Root returns the root node, or nil for an empty tree.
func (t *Tree[P]) Root() *Node[P] {
	return t.root
}

// Points returns every point in the tree in depth-first order.
func (t *Tree[P]) Points() []P {
	if t.root == nil {
		return nil
	}
	return t.root.collect(make([]P, 0, t.root.Len()))
}

// Stats describes the shape of a tree.
type Stats struct {
	Points      int `json:"points"`
	Nodes       int `json:"nodes"`
	Leaves      int `json:"leaves"`
	Depth       int `json:"depth"`
	LargestLeaf int `json:"largest_leaf"`
	Oversized   int `json:"oversized_leaves"` // leaves left above capacity by equidistant points
}

// Stats walks the tree and reports its shape.
func (t *Tree[P]) Stats() Stats {
	var s Stats
	if t.root == nil {
		return s
	}
	var walk func(n *Node[P], depth int)
	walk = func(n *Node[P], depth int) {
		s.Nodes++
		if depth > s.Depth {
			s.Depth = depth
		}
		if n.IsLeaf() {
			s.Leaves++
			s.Points += len(n.points)
			if len(n.points) > s.LargestLeaf {
				s.LargestLeaf = len(n.points)
			}
			if len(n.points) > t.cfg.capacity {
				s.Oversized++
			}
			return
		}
		walk(n.closer, depth+1)
		walk(n.farther, depth+1)
	}
	walk(t.root, 1)
	return s
}
