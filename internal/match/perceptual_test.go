package match

import (
	"fmt"
	"slices"
	"testing"

	"imdex/internal/models"
	"imdex/internal/vptree"
)

func img(path string, h uint64, score float64) *models.ImageInfo {
	return &models.ImageInfo{Path: path, Hash: models.NewHash(h), Score: score}
}

func TestPerceptualMatcher_FindGroups(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		images    []*models.ImageInfo
		want      [][]string // member paths per group
		keep      []string
	}{
		{name: "no images", threshold: 10},
		{
			name:      "single image",
			threshold: 10,
			images:    []*models.ImageInfo{img("a.jpg", 0b1111, 0)},
		},
		{
			name:      "too far apart",
			threshold: 2,
			images:    []*models.ImageInfo{img("a.jpg", 0, 0), img("b.jpg", 0b1111111111, 0)},
		},
		{
			name:      "identical hashes at zero",
			threshold: 0,
			images: []*models.ImageInfo{
				img("a.jpg", 0b1111, 1), img("b.jpg", 0b1111, 2), img("c.jpg", 0, 1),
			},
			want: [][]string{{"a.jpg", "b.jpg"}},
			keep: []string{"b.jpg"},
		},
		{
			name:      "near hashes, one outlier",
			threshold: 2,
			images: []*models.ImageInfo{
				img("a.jpg", 0b00000000, 1),
				img("b.jpg", 0b00000001, 2),
				img("c.jpg", 0b00000011, 1.5),
				img("d.jpg", 0b11111111, 1),
			},
			want: [][]string{{"a.jpg", "b.jpg", "c.jpg"}},
			keep: []string{"b.jpg"},
		},
		{
			name:      "keep highest score",
			threshold: 10,
			images: []*models.ImageInfo{
				img("low.jpg", 0b0000, 1), img("high.jpg", 0b0001, 10), img("mid.jpg", 0b0010, 5),
			},
			want: [][]string{{"high.jpg", "low.jpg", "mid.jpg"}},
			keep: []string{"high.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := NewPerceptualMatcher(tt.threshold).FindGroups(tt.images)
			if len(groups) != len(tt.want) {
				t.Fatalf("len(groups) = %d, want %d", len(groups), len(tt.want))
			}
			for i, g := range groups {
				var paths []string
				for _, im := range g.Images {
					paths = append(paths, im.Path)
				}
				if !slices.Equal(paths, tt.want[i]) {
					t.Errorf("group %d = %v, want %v", g.ID, paths, tt.want[i])
				}
				if g.Keep.Path != tt.keep[i] {
					t.Errorf("group %d keeps %s, want %s", g.ID, g.Keep.Path, tt.keep[i])
				}
			}
		})
	}
}

func TestPerceptualMatcher_NegativeThreshold(t *testing.T) {
	if got := NewPerceptualMatcher(-1).threshold; got != DefaultThreshold {
		t.Errorf("threshold = %d, want %d", got, DefaultThreshold)
	}
}

func TestPerceptualMatcher_Transitive(t *testing.T) {
	// a-b and b-c are within 1, a-c is 2 apart; the chain still forms one group
	matcher := NewPerceptualMatcher(1)
	images := []*models.ImageInfo{
		img("a.jpg", 0b00, 1),
		img("b.jpg", 0b01, 1),
		img("c.jpg", 0b11, 1),
	}
	groups := matcher.FindGroups(images)
	if len(groups) != 1 || len(groups[0].Images) != 3 {
		t.Errorf("expected one group of 3, got %d groups", len(groups))
	}
}

func TestPerceptualMatcher_MultipleGroups(t *testing.T) {
	matcher := NewPerceptualMatcher(1)
	images := []*models.ImageInfo{
		img("a.jpg", 0x0000000000000000, 1.0),
		img("b.jpg", 0x0000000000000001, 2.0), // group 1
		img("c.jpg", 0xFFFFFFFFFFFFFFFF, 1.0),
		img("d.jpg", 0xFFFFFFFFFFFFFFFE, 2.0), // group 2
	}
	groups := matcher.FindGroups(images)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Keep.Path != "b.jpg" || groups[1].Keep.Path != "d.jpg" {
		t.Errorf("keep = %s, %s, want b.jpg, d.jpg", groups[0].Keep.Path, groups[1].Keep.Path)
	}
}

func TestPerceptualMatcher_FindGroupsIn(t *testing.T) {
	images := []*models.ImageInfo{
		img("a.jpg", 0b0000, 1),
		img("b.jpg", 0b0001, 2),
		img("c.jpg", 0b1111, 3),
	}
	tree := vptree.New(models.Distance, vptree.WithCapacity(1), vptree.WithSeed(3))
	for _, im := range images {
		tree.Add(im.Point())
	}
	// an indexed point outside the image set bridges nothing
	tree.Add(models.Point{Path: "other.jpg", Hash: models.NewHash(0b0111)})

	groups := NewPerceptualMatcher(1).FindGroupsIn(tree, images)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Images) != 2 || groups[0].Keep.Path != "b.jpg" {
		t.Errorf("unexpected group: %d images, keep %s", len(groups[0].Images), groups[0].Keep.Path)
	}
}

// The tree-backed grouping must agree with brute force O(n²)
func TestPerceptualMatcher_EquivalenceWithBruteForce(t *testing.T) {
	images := make([]*models.ImageInfo, 200)
	for i := range images {
		images[i] = img(fmt.Sprintf("%03d.jpg", i), uint64(i*7), float64(i))
	}

	for _, threshold := range []int{0, 1, 3, 5} {
		groups := NewPerceptualMatcher(threshold).FindGroups(images)

		uf := newUnionFind(len(images))
		for i := 0; i < len(images); i++ {
			for j := i + 1; j < len(images); j++ {
				if images[i].Hash.Distance(images[j].Hash) <= threshold {
					uf.union(i, j)
				}
			}
		}
		sizes := make(map[int]int)
		for i := range images {
			sizes[uf.find(i)]++
		}
		expected := 0
		members := 0
		for _, n := range sizes {
			if n >= 2 {
				expected++
				members += n
			}
		}

		got := 0
		for _, g := range groups {
			got += len(g.Images)
		}
		if len(groups) != expected || got != members {
			t.Errorf("threshold %d: tree found %d groups (%d images), brute force %d (%d)",
				threshold, len(groups), got, expected, members)
		}
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(6)
	for i := range 6 {
		if uf.find(i) != i {
			t.Fatalf("find(%d) = %d before any union", i, uf.find(i))
		}
	}

	pairs := [][2]int{{0, 1}, {2, 3}, {3, 4}, {1, 1}}
	for _, p := range pairs {
		uf.union(p[0], p[1])
	}

	same := func(x, y int) bool { return uf.find(x) == uf.find(y) }
	if !same(0, 1) || !same(2, 4) {
		t.Error("united elements have different roots")
	}
	if same(0, 2) || same(5, 0) || same(5, 2) {
		t.Error("separate sets share a root")
	}
	if got := uf.size[uf.find(3)]; got != 3 {
		t.Errorf("size of {2,3,4} = %d, want 3", got)
	}

	uf.union(4, 0)
	if !same(1, 2) || uf.size[uf.find(1)] != 5 {
		t.Errorf("merged set size = %d, want 5", uf.size[uf.find(1)])
	}
}

func BenchmarkPerceptualMatcher(b *testing.B) {
	for _, n := range []int{1000, 5000} {
		images := spreadImages(n)
		matcher := NewPerceptualMatcher(DefaultThreshold)
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			for b.Loop() {
				matcher.FindGroups(images)
			}
		})
	}
}

func spreadImages(n int) []*models.ImageInfo {
	images := make([]*models.ImageInfo, n)
	for i := range images {
		images[i] = img(fmt.Sprintf("img%05d.jpg", i), uint64(i)*0x9e3779b97f4a7c15, float64(i))
	}
	return images
}
