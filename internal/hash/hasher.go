package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imdex/internal/models"
)

// Algorithm names a perceptual hash function
type Algorithm string

const (
	DHash Algorithm = "dhash" // difference hash
	PHash Algorithm = "phash" // DCT perception hash
	AHash Algorithm = "ahash" // average hash
)

const (
	DefaultAlgorithm = DHash
	DefaultSize      = 8
)

var (
	// ErrUnknownAlgorithm is returned for hash type names other than dhash, phash and ahash.
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
	// ErrUnsupportedSize is returned when the hash size cannot be used with the algorithm.
	ErrUnsupportedSize = errors.New("unsupported hash size")
)

// ParseAlgorithm resolves a hash type name. An empty name selects the default.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return DefaultAlgorithm, nil
	case DHash, PHash, AHash:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// ValidateSize checks that a hash of size x size bits can be computed.
func ValidateSize(alg Algorithm, size int) error {
	if size < 2 || size > 64 {
		return fmt.Errorf("%w: %d (must be between 2 and 64)", ErrUnsupportedSize, size)
	}
	// the DCT hash needs a power-of-two number of bits
	if alg == PHash && bits.OnesCount(uint(size*size)) != 1 {
		return fmt.Errorf("%w: %d (phash needs a power of two)", ErrUnsupportedSize, size)
	}
	return nil
}

// Hasher computes perceptual hashes for images
type Hasher struct {
	algorithm Algorithm
	size      int
}

// Option configures a Hasher
type Option func(*Hasher)

// WithAlgorithm selects the hash function
func WithAlgorithm(a Algorithm) Option {
	return func(h *Hasher) {
		if a != "" {
			h.algorithm = a
		}
	}
}

// WithSize sets the hash side length; the hash has size*size bits
func WithSize(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.size = n
		}
	}
}

// NewHasher creates a new Hasher
func NewHasher(opts ...Option) *Hasher {
	h := &Hasher{
		algorithm: DefaultAlgorithm,
		size:      DefaultSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Algorithm returns the configured hash function
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Size returns the configured hash side length
func (h *Hasher) Size() int {
	return h.size
}

// Validate reports whether the configuration can produce hashes
func (h *Hasher) Validate() error {
	if _, err := ParseAlgorithm(string(h.algorithm)); err != nil {
		return err
	}
	return ValidateSize(h.algorithm, h.size)
}

// HashImage computes the perceptual hash and extracts metadata for an image
func (h *Hasher) HashImage(path string) (*models.ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// Check for EXIF data (before reading image, as Decode consumes the reader)
	hasExif := checkExif(path)

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	hash, err := h.Fingerprint(img)
	if err != nil {
		return nil, err
	}

	fileHash, err := ComputeFileHash(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	info := &models.ImageInfo{
		Path:     path,
		Hash:     hash,
		FileHash: fileHash,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Format:   strings.ToLower(format),
		FileSize: stat.Size(),
		ModTime:  stat.ModTime(),
		HasExif:  hasExif,
	}
	info.Score = h.CalculateScore(info)

	return info, nil
}

// Fingerprint computes the perceptual hash of a decoded image
func (h *Hasher) Fingerprint(img image.Image) (models.Hash, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}

	if h.size == DefaultSize {
		var (
			hash *goimagehash.ImageHash
			err  error
		)
		switch h.algorithm {
		case PHash:
			hash, err = goimagehash.PerceptionHash(img)
		case AHash:
			hash, err = goimagehash.AverageHash(img)
		default:
			hash, err = goimagehash.DifferenceHash(img)
		}
		if err != nil {
			return "", fmt.Errorf("failed to compute hash: %w", err)
		}
		return models.NewHash(hash.GetHash()), nil
	}

	var (
		hash *goimagehash.ExtImageHash
		err  error
	)
	switch h.algorithm {
	case PHash:
		hash, err = goimagehash.ExtPerceptionHash(img, h.size, h.size)
	case AHash:
		hash, err = goimagehash.ExtAverageHash(img, h.size, h.size)
	default:
		hash, err = goimagehash.ExtDifferenceHash(img, h.size, h.size)
	}
	if err != nil {
		return "", fmt.Errorf("failed to compute hash: %w", err)
	}
	return models.NewHash(hash.GetHash()...), nil
}

// checkExif checks if an image file contains EXIF data
func checkExif(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	_, err = exif.Decode(file)
	return err == nil
}

// CalculateScore computes the quality score for an image
func (h *Hasher) CalculateScore(info *models.ImageInfo) float64 {
	resolution := float64(info.Width * info.Height)
	return resolution * models.FormatQualityMultiplier(info.Format) * models.MetadataMultiplier(info.HasExif)
}

// ComputeFileHash computes the SHA256 hash of a file
func ComputeFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsSupportedImage checks if a file is a supported image format
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return true
	default:
		return false
	}
}

// HashImageWithTimeout hashes an image with a timeout
func (h *Hasher) HashImageWithTimeout(path string, timeout time.Duration) (*models.ImageInfo, error) {
	if timeout <= 0 {
		return h.HashImage(path)
	}

	type result struct {
		info *models.ImageInfo
		err  error
	}
	done := make(chan result, 1)

	go func() {
		info, err := h.HashImage(path)
		done <- result{info, err}
	}()

	select {
	case r := <-done:
		return r.info, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout hashing image: %s", path)
	}
}
