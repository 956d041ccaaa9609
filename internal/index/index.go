// Package index keeps the image catalog and its vantage-point tree in step
// and persists both to a storage.Storage.
package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"imdex/internal/logging"
	"imdex/internal/match"
	"imdex/internal/models"
	"imdex/internal/storage"
	"imdex/internal/vptree"
)

var (
	// ErrNotIndexed is returned by Open for a database that was never initialized.
	ErrNotIndexed = errors.New("index not initialized")
	// ErrInconsistent is returned when the catalog lists a path the tree lacks.
	ErrInconsistent = errors.New("path is in the catalog but not in the tree")
)

// Option configures an Index
type Option func(*options)

type options struct {
	seed uint64
}

// WithSeed fixes the tree's random source. Zero keeps the runtime seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

func (o options) treeOptions(capacity int) []vptree.Option {
	opts := []vptree.Option{vptree.WithCapacity(capacity)}
	if o.seed != 0 {
		opts = append(opts, vptree.WithSeed(o.seed))
	}
	return opts
}

// Index is the catalog of hashed images plus the tree over their points.
// It is not safe for concurrent mutation.
type Index struct {
	store    *storage.Storage
	opts     options
	settings Settings
	tree     *vptree.Tree[models.Point]
	images   map[string]*models.ImageInfo

	// pending catalog changes, written by Save
	upserts      map[string]*models.ImageInfo
	deletes      map[string]struct{}
	replace      bool
	treeModified bool
}

func newIndex(store *storage.Storage, settings Settings, opts []Option) *Index {
	ix := &Index{
		store:    store,
		settings: settings,
		images:   make(map[string]*models.ImageInfo),
		upserts:  make(map[string]*models.ImageInfo),
		deletes:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(&ix.opts)
	}
	ix.tree = vptree.New(models.Distance, ix.opts.treeOptions(settings.Capacity)...)
	return ix
}

// Create builds a fresh index over images, replacing whatever the store held.
func Create(ctx context.Context, store *storage.Storage, settings Settings, images []*models.ImageInfo, opts ...Option) (*Index, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	ix := newIndex(store, settings, opts)
	ix.load(images)
	ix.replace = true
	ix.treeModified = true
	for _, img := range ix.images {
		ix.upserts[img.Path] = img
	}

	logging.FromContext(ctx).Infow("built index", "images", ix.Len(), "hash_type", settings.HashType, "hash_size", settings.HashSize)

	if err := ix.Save(ctx); err != nil {
		return nil, err
	}
	return ix, nil
}

// Open loads the index from store. A stored tree that is missing, unreadable
// or out of step with the catalog is rebuilt from the catalog and written on
// the next Save.
func Open(ctx context.Context, store *storage.Storage, opts ...Option) (*Index, error) {
	logger := logging.FromContext(ctx)

	raw, err := store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	settings, err := decodeSettings(raw)
	if err != nil {
		return nil, err
	}

	images, err := store.GetAllImages()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	ix := newIndex(store, settings, opts)
	for _, img := range images {
		ix.images[img.Path] = img
	}

	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		if len(images) > 0 {
			logger.Warnw("no stored tree, rebuilding from catalog", "images", len(images))
		}
		ix.rebuildTree()
		return ix, nil
	}

	tree, err := decodeTree(snap.Data, settings, ix.opts.treeOptions(settings.Capacity)...)
	if err != nil {
		logger.Warnw("stored tree unreadable, rebuilding from catalog", "error", err)
		ix.rebuildTree()
		return ix, nil
	}
	if err := ix.checkTree(tree); err != nil {
		logger.Warnw("stored tree out of sync with catalog, rebuilding", "error", err)
		ix.rebuildTree()
		return ix, nil
	}

	ix.tree = tree
	logger.Debugw("opened index", "images", len(images), "saved", snap.UpdatedAt.Format(time.RFC3339))
	return ix, nil
}

// load replaces the catalog and bulk builds the tree.
func (ix *Index) load(images []*models.ImageInfo) {
	ix.images = make(map[string]*models.ImageInfo, len(images))
	for _, img := range images {
		ix.images[img.Path] = img
	}
	ix.rebuildTree()
}

func (ix *Index) rebuildTree() {
	ix.tree = vptree.New(models.Distance, ix.opts.treeOptions(ix.settings.Capacity)...)
	ix.tree.AddList(ix.points())
	ix.treeModified = true
}

// points returns the catalog's points ordered by path.
func (ix *Index) points() []models.Point {
	images := ix.Images()
	points := make([]models.Point, len(images))
	for i, img := range images {
		points[i] = img.Point()
	}
	return points
}

// checkTree verifies that tree holds exactly one point per catalog entry.
func (ix *Index) checkTree(tree *vptree.Tree[models.Point]) error {
	if tree.Len() != len(ix.images) {
		return fmt.Errorf("tree has %d points, catalog has %d images", tree.Len(), len(ix.images))
	}
	seen := make(map[string]struct{}, tree.Len())
	for _, p := range tree.Points() {
		img, ok := ix.images[p.Path]
		if !ok {
			return fmt.Errorf("tree point %s is not catalogued", p.Path)
		}
		if img.Hash != p.Hash {
			return fmt.Errorf("tree hash for %s differs from catalog", p.Path)
		}
		if _, dup := seen[p.Path]; dup {
			return fmt.Errorf("tree holds %s twice", p.Path)
		}
		seen[p.Path] = struct{}{}
	}
	return nil
}

// Settings returns the settings the index was built with.
func (ix *Index) Settings() Settings {
	return ix.settings
}

// Len returns the number of indexed images.
func (ix *Index) Len() int {
	return len(ix.images)
}

// Has reports whether path is indexed.
func (ix *Index) Has(path string) bool {
	_, ok := ix.images[path]
	return ok
}

// Get returns the catalog entry for path.
func (ix *Index) Get(path string) (*models.ImageInfo, bool) {
	img, ok := ix.images[path]
	return img, ok
}

// Images returns the catalog ordered by path.
func (ix *Index) Images() []*models.ImageInfo {
	images := make([]*models.ImageInfo, 0, len(ix.images))
	for _, img := range ix.images {
		images = append(images, img)
	}
	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})
	return images
}

// Stats reports the tree's shape.
func (ix *Index) Stats() vptree.Stats {
	return ix.tree.Stats()
}

// Add indexes images and returns how many entered the tree. A path that is
// already indexed with the same hash only has its metadata refreshed; one
// whose hash changed is re-added. When a path repeats within images, the
// last entry wins.
func (ix *Index) Add(images ...*models.ImageInfo) int {
	var fresh []models.Point
	queued := make(map[string]int) // path -> position in fresh
	for _, img := range images {
		old, ok := ix.images[img.Path]
		if ok && old.Hash == img.Hash {
			img.GroupID = old.GroupID
			ix.images[img.Path] = img
			ix.upserts[img.Path] = img
			continue
		}
		if i, dup := queued[img.Path]; dup {
			fresh[i] = img.Point()
		} else {
			if ok {
				ix.tree.Remove(old.Point())
			}
			queued[img.Path] = len(fresh)
			fresh = append(fresh, img.Point())
		}
		ix.images[img.Path] = img
		ix.upserts[img.Path] = img
		delete(ix.deletes, img.Path)
	}
	if len(fresh) > 0 {
		ix.tree.AddList(fresh)
		ix.treeModified = true
	}
	return len(fresh)
}

// Remove drops path from the catalog and the tree. It reports false for a
// path that is not indexed.
func (ix *Index) Remove(path string) (bool, error) {
	img, ok := ix.images[path]
	if !ok {
		return false, nil
	}
	if !ix.tree.Remove(img.Point()) {
		return false, fmt.Errorf("%w: %s", ErrInconsistent, path)
	}
	delete(ix.images, path)
	delete(ix.upserts, path)
	ix.deletes[path] = struct{}{}
	ix.treeModified = true
	return true, nil
}

// Lookup returns the point for a query image: the catalogued hash when path
// is indexed, otherwise a fresh hash computed with the index settings.
func (ix *Index) Lookup(path string, timeout time.Duration) (models.Point, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.Point{}, fmt.Errorf("failed to resolve path: %w", err)
	}
	if img, ok := ix.images[abs]; ok {
		return img.Point(), nil
	}
	info, err := ix.settings.Hasher().HashImageWithTimeout(abs, timeout)
	if err != nil {
		return models.Point{}, err
	}
	return info.Point(), nil
}

// Search returns indexed images within maxDistance of q, nearest first. The
// query's own path is left out.
func (ix *Index) Search(q models.Point, maxDistance int) []models.Match {
	matches := toMatches(q, ix.tree.WithinDistance(q, float64(maxDistance)))
	sortMatches(matches)
	return matches
}

// Nearest returns the indexed images closest to q, nearest first. At most
// maxResults are returned, or numNeighbours when maxResults is not positive.
// The query's own path is left out.
func (ix *Index) Nearest(q models.Point, numNeighbours, maxResults int) []models.Match {
	return toMatches(q, ix.tree.NearestNeighbours(q, numNeighbours, maxResults))
}

func toMatches(q models.Point, neighbours []vptree.Neighbour[models.Point]) []models.Match {
	matches := make([]models.Match, 0, len(neighbours))
	for _, n := range neighbours {
		if n.Point.Path == q.Path {
			continue
		}
		matches = append(matches, models.Match{Path: n.Point.Path, Distance: int(n.Distance)})
	}
	return matches
}

func sortMatches(matches []models.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Path < matches[j].Path
	})
}

// Clusters finds, for every indexed image, its numNeighbours nearest other
// images within maxDistance. Images without such neighbours are left out.
// Queries are spread over workers goroutines; the tree is only read.
func (ix *Index) Clusters(ctx context.Context, numNeighbours, maxDistance, workers int) ([]models.Cluster, error) {
	images := ix.Images()
	if len(images) == 0 || numNeighbours <= 0 {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}

	found := make([][]models.Match, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	chunk := (len(images) + workers - 1) / workers
	for start := 0; start < len(images); start += chunk {
		end := min(start+chunk, len(images))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				q := images[i].Point()
				// one extra slot for the image itself
				var near []models.Match
				for _, m := range ix.Nearest(q, numNeighbours, numNeighbours+1) {
					if m.Distance <= maxDistance && len(near) < numNeighbours {
						near = append(near, m)
					}
				}
				found[i] = near
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute clusters: %w", err)
	}

	var clusters []models.Cluster
	for i, near := range found {
		if len(near) > 0 {
			clusters = append(clusters, models.Cluster{Path: images[i].Path, Neighbours: near})
		}
	}
	return clusters, nil
}

// Groups partitions the catalog into groups of images whose hashes are
// within threshold of each other, transitively.
func (ix *Index) Groups(threshold int) []*models.DuplicateGroup {
	return match.NewPerceptualMatcher(threshold).FindGroupsIn(ix.tree, ix.Images())
}

// ExactGroups groups images with identical file contents.
func (ix *Index) ExactGroups() []*models.DuplicateGroup {
	return match.NewExactMatcher().FindGroups(ix.Images())
}

// Reset replaces the catalog and tree, switching to new settings.
func (ix *Index) Reset(settings Settings, images []*models.ImageInfo) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	ix.settings = settings
	ix.load(images)
	ix.replace = true
	ix.upserts = make(map[string]*models.ImageInfo, len(ix.images))
	ix.deletes = make(map[string]struct{})
	for _, img := range ix.images {
		ix.upserts[img.Path] = img
	}
	return nil
}

// Save writes pending catalog changes, the settings and the tree in one
// transaction.
func (ix *Index) Save(ctx context.Context) error {
	cs := storage.Changeset{
		Replace:  ix.replace,
		Settings: ix.settings.encode(),
	}
	for path := range ix.deletes {
		cs.Deletes = append(cs.Deletes, path)
	}
	sort.Strings(cs.Deletes)
	for _, img := range ix.upserts {
		cs.Upserts = append(cs.Upserts, img)
	}
	sort.Slice(cs.Upserts, func(i, j int) bool {
		return cs.Upserts[i].Path < cs.Upserts[j].Path
	})

	if ix.treeModified {
		data, err := encodeTree(ix.settings, ix.tree)
		if err != nil {
			return err
		}
		cs.Snapshot = &storage.Snapshot{Data: data, Points: ix.tree.Len()}
	}

	if err := ix.store.Commit(ctx, cs); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	logging.FromContext(ctx).Debugw("saved index",
		"upserts", len(cs.Upserts), "deletes", len(cs.Deletes), "tree", cs.Snapshot != nil)

	ix.upserts = make(map[string]*models.ImageInfo)
	ix.deletes = make(map[string]struct{})
	ix.replace = false
	ix.treeModified = false
	return nil
}
