package match

import (
	"imdex/internal/models"
	"imdex/internal/vptree"
)

// DefaultThreshold is the Hamming distance used when none is given
const DefaultThreshold = 10

// PerceptualMatcher finds groups of similar images using perceptual hashing
type PerceptualMatcher struct {
	threshold int
}

// NewPerceptualMatcher creates a new PerceptualMatcher
func NewPerceptualMatcher(threshold int) *PerceptualMatcher {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &PerceptualMatcher{threshold: threshold}
}

// FindGroups finds groups of similar images based on Hamming distance. The
// images are bulk loaded into a throwaway vantage-point tree.
func (m *PerceptualMatcher) FindGroups(images []*models.ImageInfo) []*models.DuplicateGroup {
	if len(images) < 2 {
		return nil
	}

	points := make([]models.Point, len(images))
	for i, img := range images {
		points[i] = img.Point()
	}
	tree := vptree.New(models.Distance)
	tree.AddList(points)

	return m.FindGroupsIn(tree, images)
}

// FindGroupsIn groups images using an existing tree that holds their points.
// Tree points whose path is not among images are ignored.
func (m *PerceptualMatcher) FindGroupsIn(tree *vptree.Tree[models.Point], images []*models.ImageInfo) []*models.DuplicateGroup {
	if len(images) < 2 {
		return nil
	}

	pos := make(map[string]int, len(images))
	for i, img := range images {
		pos[img.Path] = i
	}

	sets := newUnionFind(len(images))
	for i, img := range images {
		for _, nb := range tree.WithinDistance(img.Point(), float64(m.threshold)) {
			if j, ok := pos[nb.Point.Path]; ok {
				sets.union(i, j)
			}
		}
	}

	members := make(map[int][]*models.ImageInfo)
	for i, img := range images {
		root := sets.find(i)
		members[root] = append(members[root], img)
	}
	return buildGroups(members)
}

// unionFind is a disjoint-set forest with union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

// find returns the root of x, halving the path on the way.
func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int) {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return
	}
	if uf.size[rx] < uf.size[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
}
