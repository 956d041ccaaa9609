package match

import (
	"cmp"
	"slices"
	"strings"

	"imdex/internal/models"
)

// Matcher is the interface for duplicate detection strategies
type Matcher interface {
	FindGroups(images []*models.ImageInfo) []*models.DuplicateGroup
}

func byPath(a, b *models.ImageInfo) int {
	return strings.Compare(a.Path, b.Path)
}

// buildGroups turns sets of images into numbered groups. Sets with fewer than
// two members are dropped. IDs follow the smallest path of each set, so
// repeated runs over the same catalog number groups alike.
func buildGroups(sets map[int][]*models.ImageInfo) []*models.DuplicateGroup {
	var members [][]*models.ImageInfo
	for _, imgs := range sets {
		if len(imgs) < 2 {
			continue
		}
		imgs = slices.Clone(imgs)
		slices.SortFunc(imgs, byPath)
		members = append(members, imgs)
	}
	slices.SortFunc(members, func(a, b []*models.ImageInfo) int {
		return byPath(a[0], b[0])
	})

	groups := make([]*models.DuplicateGroup, 0, len(members))
	for i, imgs := range members {
		group := &models.DuplicateGroup{ID: i + 1, Images: imgs}
		selectKeepAndRemove(group)
		groups = append(groups, group)
	}
	if len(groups) == 0 {
		return nil
	}
	return groups
}

// preferred orders images best first: higher score, larger file, newer file,
// then path.
func preferred(a, b *models.ImageInfo) int {
	return cmp.Or(
		cmp.Compare(b.Score, a.Score),
		cmp.Compare(b.FileSize, a.FileSize),
		b.ModTime.Compare(a.ModTime),
		byPath(a, b),
	)
}

// selectKeepAndRemove picks the preferred image of the group to keep, marks
// the rest for removal and stamps every member with the group ID.
func selectKeepAndRemove(group *models.DuplicateGroup) {
	if len(group.Images) == 0 {
		return
	}

	ranked := slices.Clone(group.Images)
	slices.SortFunc(ranked, preferred)
	group.Keep, group.Remove = ranked[0], ranked[1:]

	for _, img := range group.Images {
		img.GroupID = group.ID
	}
}
