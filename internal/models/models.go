package models

import "time"

// ImageInfo holds metadata and hash information for an indexed image
type ImageInfo struct {
	ID       int64     `json:"id"`
	Path     string    `json:"path"`
	Hash     Hash      `json:"hash"`
	FileHash string    `json:"file_hash,omitempty"` // SHA256 of the file contents
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Format   string    `json:"format"`
	FileSize int64     `json:"file_size"`
	ModTime  time.Time `json:"mod_time"`
	HasExif  bool      `json:"has_exif"`
	Score    float64   `json:"score"`
	GroupID  int       `json:"group_id,omitempty"`
}

// Point returns the value stored in the vantage-point tree for this image.
func (i *ImageInfo) Point() Point {
	return Point{Path: i.Path, Hash: i.Hash}
}

// Match is a single query hit
type Match struct {
	Path     string `json:"path"`
	Distance int    `json:"distance"`
}

// Cluster lists the near neighbours of one indexed image
type Cluster struct {
	Path       string  `json:"path"`
	Neighbours []Match `json:"neighbours"`
}

// DuplicateGroup represents a group of similar images
type DuplicateGroup struct {
	ID     int          `json:"id"`
	Images []*ImageInfo `json:"images"`
	Keep   *ImageInfo   `json:"keep"`   // Image to keep (highest score)
	Remove []*ImageInfo `json:"remove"` // Images to remove
}

// FormatQualityMultiplier returns quality multiplier for image format
func FormatQualityMultiplier(format string) float64 {
	switch format {
	case "png", "tiff", "bmp":
		return 1.2 // Lossless formats
	case "webp":
		return 1.1
	case "jpeg", "jpg":
		return 1.0
	case "gif":
		return 0.9 // Limited colors
	default:
		return 1.0
	}
}

// MetadataMultiplier returns quality multiplier based on metadata presence
func MetadataMultiplier(hasExif bool) float64 {
	if hasExif {
		return 1.1
	}
	return 1.0
}
