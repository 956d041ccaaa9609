package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"imdex/internal/hash"
	"imdex/internal/models"
)

// Scanner scans folders for images and computes hashes
type Scanner struct {
	hasher     *hash.Hasher
	workers    int
	timeout    time.Duration
	recursive  bool
	skip       func(path string) bool
	progressFn func(scanned, total int, current string)
	logger     *zap.SugaredLogger
}

// Result is the outcome of a scan. Images are sorted by path.
type Result struct {
	Images []*models.ImageInfo
	Failed int
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout sets the timeout for hashing each image
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		s.timeout = d
	}
}

// WithProgress sets a progress callback
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// WithRecursive controls whether subdirectories are walked
func WithRecursive(r bool) Option {
	return func(s *Scanner) {
		s.recursive = r
	}
}

// WithSkip excludes paths for which fn returns true before they are hashed
func WithSkip(fn func(path string) bool) Option {
	return func(s *Scanner) {
		s.skip = fn
	}
}

// WithHasher replaces the default hasher
func WithHasher(h *hash.Hasher) Option {
	return func(s *Scanner) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithLogger sets the logger used to report failed images
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		hasher:    hash.NewHasher(),
		workers:   8,
		timeout:   30 * time.Second,
		recursive: true,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanFolder scans a folder for images and returns their info
func (s *Scanner) ScanFolder(ctx context.Context, folder string) (*Result, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Debugw("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != root && !s.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if hash.IsSupportedImage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}

	return s.ScanPaths(ctx, paths)
}

// ScanFolders scans multiple folders
func (s *Scanner) ScanFolders(ctx context.Context, folders []string) (*Result, error) {
	all := &Result{}
	for _, folder := range folders {
		res, err := s.ScanFolder(ctx, folder)
		if err != nil {
			return nil, err
		}
		all.Images = append(all.Images, res.Images...)
		all.Failed += res.Failed
	}
	sortImages(all.Images)
	return all, nil
}

// ScanPaths hashes the given image files. Images that fail to decode or hash
// are logged and counted; they never abort the scan.
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) (*Result, error) {
	if s.skip != nil {
		kept := paths[:0:0]
		for _, p := range paths {
			if !s.skip(p) {
				kept = append(kept, p)
			}
		}
		paths = kept
	}

	res := &Result{}
	if len(paths) == 0 {
		return res, nil
	}

	var (
		mu      sync.Mutex
		scanned int64
		failed  int64
		total   = len(paths)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := s.hasher.HashImageWithTimeout(path, s.timeout)
			n := atomic.AddInt64(&scanned, 1)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				s.logger.Warnw("failed to hash image", "path", path, "error", err)
			} else {
				mu.Lock()
				res.Images = append(res.Images, info)
				mu.Unlock()
			}
			if s.progressFn != nil {
				s.progressFn(int(n), total, path)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	res.Failed = int(failed)
	sortImages(res.Images)
	return res, nil
}

func sortImages(images []*models.ImageInfo) {
	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})
}
