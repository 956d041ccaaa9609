package models

import (
	"encoding/binary"
	"encoding/hex"
	"math/bits"
)

// Hash holds the bits of a perceptual hash. It is a string so points stay
// comparable; the contents are raw big-endian bytes, not text.
type Hash string

// NewHash packs hash words big-endian.
func NewHash(words ...uint64) Hash {
	b := make([]byte, 8*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint64(b[8*i:], w)
	}
	return Hash(b)
}

// ParseHex decodes a hash printed by Hex.
func ParseHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

// Hex returns the hash as lowercase hex.
func (h Hash) Hex() string {
	return hex.EncodeToString([]byte(h))
}

// Bits returns the hash length in bits.
func (h Hash) Bits() int {
	return 8 * len(h)
}

// Uint64 returns the first 64 bits of the hash.
func (h Hash) Uint64() uint64 {
	var b [8]byte
	copy(b[:], h)
	return binary.BigEndian.Uint64(b[:])
}

// MarshalText implements encoding.TextMarshaler so JSON output is readable.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Distance returns the Hamming distance between two hashes. The shorter hash
// is treated as zero-padded.
func (h Hash) Distance(other Hash) int {
	a, b := h, other
	if len(a) < len(b) {
		a, b = b, a
	}
	n := 0
	i := 0
	for ; i+8 <= len(b); i += 8 {
		n += bits.OnesCount64(word(a, i) ^ word(b, i))
	}
	for ; i < len(b); i++ {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	for ; i < len(a); i++ {
		n += bits.OnesCount8(a[i])
	}
	return n
}

func word(h Hash, i int) uint64 {
	_ = h[i+7]
	return uint64(h[i])<<56 | uint64(h[i+1])<<48 | uint64(h[i+2])<<40 | uint64(h[i+3])<<32 |
		uint64(h[i+4])<<24 | uint64(h[i+5])<<16 | uint64(h[i+6])<<8 | uint64(h[i+7])
}

// Point is the value indexed by the vantage-point tree: an image path and its
// perceptual hash.
type Point struct {
	Path string `msgpack:"p" json:"path"`
	Hash Hash   `msgpack:"h" json:"hash"`
}

// Distance is the metric handed to the tree.
func Distance(a, b Point) float64 {
	return float64(a.Hash.Distance(b.Hash))
}
