package vptree

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodePoints = 32

// testNodes builds the same point set under capacities above, equal to and
// well below its size.
func testNodes(t *testing.T) map[string]*Node[int] {
	t.Helper()
	nodes := make(map[string]*Node[int])
	for name, capacity := range map[string]int{
		"single leaf":   nodePoints * 2,
		"full leaf":     nodePoints,
		"split":         nodePoints / 8,
		"maximal split": 1,
	} {
		cfg := &config[int]{
			distance: absDistance,
			capacity: capacity,
			rng:      rand.New(rand.NewPCG(uint64(capacity), 1)),
		}
		nodes[name] = newNode(sequence(nodePoints), cfg)
	}
	return nodes
}

func TestNode_Len(t *testing.T) {
	for name, node := range testNodes(t) {
		assert.Equal(t, nodePoints, node.Len(), name)
	}
}

func TestNode_Shape(t *testing.T) {
	nodes := testNodes(t)
	assert.True(t, nodes["single leaf"].IsLeaf())
	assert.True(t, nodes["full leaf"].IsLeaf())
	assert.False(t, nodes["split"].IsLeaf())
	assert.Nil(t, nodes["split"].Points())
}

func TestNode_Add(t *testing.T) {
	point := nodePoints * 2
	for name, node := range testNodes(t) {
		assert.False(t, node.contains(point), name)
		node.add(point)
		assert.Equal(t, nodePoints+1, node.Len(), name)
		assert.True(t, node.contains(point), name)
	}
}

func TestNode_Contains(t *testing.T) {
	for name, node := range testNodes(t) {
		for i := 0; i < nodePoints; i++ {
			assert.True(t, node.contains(i), "%s: %d", name, i)
		}
		assert.False(t, node.contains(nodePoints*2), name)
	}
}

func TestNode_Remove(t *testing.T) {
	for name, node := range testNodes(t) {
		assert.False(t, node.remove(nodePoints*2), name)
		assert.True(t, node.remove(nodePoints/2), name)
		assert.Equal(t, nodePoints-1, node.Len(), name)

		for i := 0; i < nodePoints; i++ {
			node.remove(i)
		}
		assert.Equal(t, 0, node.Len(), name)
	}
}

func TestNode_Nearest(t *testing.T) {
	query := nodePoints / 2
	for name, node := range testNodes(t) {
		rq := newResultQueue(query, absDistance, 3)
		node.nearest(query, rq)
		res := pointsOf(rq.list())

		require.Len(t, res, 3, name)
		assert.Equal(t, query, res[0], name)
		assert.ElementsMatch(t, []int{query - 1, query, query + 1}, res, name)
	}
}

func TestNode_WithinDistance(t *testing.T) {
	query := nodePoints / 2
	maxDistance := nodePoints / 8
	for name, node := range testNodes(t) {
		var res []Neighbour[int]
		node.withinDistance(query, float64(maxDistance), &res)

		got := pointsOf(res)
		slices.Sort(got)
		want := make([]int, 0, 2*maxDistance+1)
		for i := query - maxDistance; i <= query+maxDistance; i++ {
			want = append(want, i)
		}
		assert.Equal(t, want, got, name)
	}
}

func TestNode_SplitKeepsThresholdInvariant(t *testing.T) {
	for name, node := range testNodes(t) {
		var check func(n *Node[int])
		check = func(n *Node[int]) {
			if n.IsLeaf() {
				return
			}
			for _, p := range n.Closer().collect(nil) {
				assert.LessOrEqual(t, absDistance(n.VantagePoint(), p), n.Threshold(), name)
			}
			for _, p := range n.Farther().collect(nil) {
				assert.Greater(t, absDistance(n.VantagePoint(), p), n.Threshold(), name)
			}
			check(n.Closer())
			check(n.Farther())
		}
		check(node)
	}
}

func TestQuickselect(t *testing.T) {
	pivots := map[string]func(n int) int{
		"first":  func(int) int { return 0 },
		"last":   func(n int) int { return n - 1 },
		"middle": func(n int) int { return n / 2 },
		"random": rand.New(rand.NewPCG(1, 2)).IntN,
	}
	inputs := [][]float64{
		{5},
		{2, 1},
		{3, 1, 2},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
		{1, 1, 1, 1, 1, 1},
		{4, 4, 1, 1, 4, 4, 1},
		{0, 10, 0, 10, 5, 5, 5, 10, 0},
	}

	for name, intn := range pivots {
		for _, in := range inputs {
			sorted := slices.Clone(in)
			slices.Sort(sorted)
			for k := range in {
				got := quickselect(slices.Clone(in), k, intn)
				assert.Equal(t, sorted[k], got, "%s pivots, input %v, k %d", name, in, k)
			}
		}
	}
}

func TestLowerThreshold(t *testing.T) {
	tests := []struct {
		name      string
		dists     []float64
		threshold float64
		want      float64
		ok        bool
	}{
		{"already splits", []float64{1, 2, 3}, 2, 2, false},
		{"lowered", []float64{1, 3, 3, 2}, 3, 2, true},
		{"all equal", []float64{4, 4, 4}, 4, 0, false},
		{"single", []float64{0}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := lowerThreshold(tt.dists, tt.threshold)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
