package vptree

import (
	"errors"
	"fmt"
)

// ErrMalformedSnapshot is returned by Restore for a snapshot whose node graph
// is not a valid tree shape.
var ErrMalformedSnapshot = errors.New("vptree: malformed snapshot")

// Snapshot is the full internal state of a tree, laid out for serialization.
type Snapshot[P any] struct {
	Capacity int              `msgpack:"capacity" json:"capacity"`
	Root     *NodeSnapshot[P] `msgpack:"root,omitempty" json:"root,omitempty"`
}

// NodeSnapshot mirrors a Node. Leaves carry Points and no children; internal
// nodes carry both children and no points.
type NodeSnapshot[P any] struct {
	Points    []P              `msgpack:"points,omitempty" json:"points,omitempty"`
	Vantage   P                `msgpack:"vantage" json:"vantage"`
	Threshold float64          `msgpack:"threshold" json:"threshold"`
	Leaf      bool             `msgpack:"leaf" json:"leaf"`
	Closer    *NodeSnapshot[P] `msgpack:"closer,omitempty" json:"closer,omitempty"`
	Farther   *NodeSnapshot[P] `msgpack:"farther,omitempty" json:"farther,omitempty"`
}

// Snapshot captures the tree's structure. The points are copied; the snapshot
// shares no memory with the tree.
func (t *Tree[P]) Snapshot() *Snapshot[P] {
	s := &Snapshot[P]{Capacity: t.cfg.capacity}
	if t.root != nil {
		s.Root = t.root.snapshot()
	}
	return s
}

func (n *Node[P]) snapshot() *NodeSnapshot[P] {
	s := &NodeSnapshot[P]{
		Vantage:   n.vantage,
		Threshold: n.threshold,
		Leaf:      n.IsLeaf(),
	}
	if s.Leaf {
		s.Points = n.Points()
		return s
	}
	s.Closer = n.closer.snapshot()
	s.Farther = n.farther.snapshot()
	return s
}

// Restore rebuilds a tree from a snapshot without repartitioning. The
// snapshot's capacity wins over WithCapacity; other options apply as in New.
func Restore[P comparable](s *Snapshot[P], distance DistanceFunc[P], opts ...Option) (*Tree[P], error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}
	opts = append(opts[:len(opts):len(opts)], WithCapacity(s.Capacity))
	t := New(distance, opts...)
	if s.Root == nil {
		return t, nil
	}
	root, err := restoreNode(s.Root, t.cfg, 0)
	if err != nil {
		return nil, err
	}
	if root.Len() > 0 {
		t.root = root
	}
	return t, nil
}

func restoreNode[P comparable](s *NodeSnapshot[P], cfg *config[P], depth int) (*Node[P], error) {
	n := &Node[P]{
		cfg:       cfg,
		vantage:   s.Vantage,
		threshold: s.Threshold,
	}
	if s.Leaf {
		if s.Closer != nil || s.Farther != nil {
			return nil, fmt.Errorf("%w: leaf with children at depth %d", ErrMalformedSnapshot, depth)
		}
		n.points = append([]P{}, s.Points...)
		return n, nil
	}

	if s.Closer == nil || s.Farther == nil {
		return nil, fmt.Errorf("%w: internal node missing a child at depth %d", ErrMalformedSnapshot, depth)
	}
	if len(s.Points) > 0 {
		return nil, fmt.Errorf("%w: internal node with points at depth %d", ErrMalformedSnapshot, depth)
	}
	var err error
	if n.closer, err = restoreNode(s.Closer, cfg, depth+1); err != nil {
		return nil, err
	}
	if n.farther, err = restoreNode(s.Farther, cfg, depth+1); err != nil {
		return nil, err
	}
	return n, nil
}
