package match

import "imdex/internal/models"

// ExactMatcher finds groups of images with identical file hashes
type ExactMatcher struct{}

// NewExactMatcher creates a new ExactMatcher
func NewExactMatcher() *ExactMatcher {
	return &ExactMatcher{}
}

// FindGroups finds groups of images with identical file hashes. Images
// without a file hash are never grouped.
func (m *ExactMatcher) FindGroups(images []*models.ImageInfo) []*models.DuplicateGroup {
	if len(images) < 2 {
		return nil
	}

	ids := make(map[string]int)
	groupMap := make(map[int][]*models.ImageInfo)
	for _, img := range images {
		if img.FileHash == "" {
			continue
		}
		id, ok := ids[img.FileHash]
		if !ok {
			id = len(ids)
			ids[img.FileHash] = id
		}
		groupMap[id] = append(groupMap[id], img)
	}

	return buildGroups(groupMap)
}
