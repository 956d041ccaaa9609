package index

import (
	"fmt"
	"strconv"

	"imdex/internal/hash"
	"imdex/internal/vptree"
)

const (
	keyHashType = "hash_type"
	keyHashSize = "hash_size"
	keyCapacity = "capacity"
)

// Settings fix how images are hashed and how the tree is bucketed. They are
// stored with the catalog; changing the hash settings requires a rebuild.
type Settings struct {
	HashType hash.Algorithm `json:"hash_type"`
	HashSize int            `json:"hash_size"`
	Capacity int            `json:"capacity"`
}

// DefaultSettings returns dhash, size 8, capacity 32.
func DefaultSettings() Settings {
	return Settings{
		HashType: hash.DefaultAlgorithm,
		HashSize: hash.DefaultSize,
		Capacity: vptree.DefaultCapacity,
	}
}

// Validate checks that the hasher can run with these settings.
func (s Settings) Validate() error {
	alg, err := hash.ParseAlgorithm(string(s.HashType))
	if err != nil {
		return err
	}
	if err := hash.ValidateSize(alg, s.HashSize); err != nil {
		return err
	}
	if s.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative, got %d", s.Capacity)
	}
	return nil
}

// Hasher returns a hasher configured with these settings.
func (s Settings) Hasher() *hash.Hasher {
	return hash.NewHasher(hash.WithAlgorithm(s.HashType), hash.WithSize(s.HashSize))
}

// Overrides names the settings to change. Nil fields keep the current value.
type Overrides struct {
	HashType *hash.Algorithm
	HashSize *int
	Capacity *int
}

// Override returns s with every field set in o applied.
func (s Settings) Override(o Overrides) Settings {
	if o.HashType != nil {
		s.HashType = *o.HashType
	}
	if o.HashSize != nil {
		s.HashSize = *o.HashSize
	}
	if o.Capacity != nil {
		s.Capacity = *o.Capacity
	}
	return s
}

func (s Settings) encode() map[string]string {
	return map[string]string{
		keyHashType: string(s.HashType),
		keyHashSize: strconv.Itoa(s.HashSize),
		keyCapacity: strconv.Itoa(s.Capacity),
	}
}

func decodeSettings(m map[string]string) (Settings, error) {
	if len(m) == 0 {
		return Settings{}, ErrNotIndexed
	}
	s := DefaultSettings()
	if v, ok := m[keyHashType]; ok {
		alg, err := hash.ParseAlgorithm(v)
		if err != nil {
			return Settings{}, err
		}
		s.HashType = alg
	}
	if v, ok := m[keyHashSize]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to parse %s: %w", keyHashSize, err)
		}
		s.HashSize = n
	}
	if v, ok := m[keyCapacity]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to parse %s: %w", keyCapacity, err)
		}
		s.Capacity = n
	}
	return s, s.Validate()
}
