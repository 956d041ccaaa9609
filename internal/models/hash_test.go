package models

import (
	"encoding/json"
	"testing"
)

func TestHash_Distance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Hash
		expected int
	}{
		{"identical", NewHash(0), NewHash(0), 0},
		{"one bit", NewHash(1), NewHash(0), 1},
		{"all bits", NewHash(0xFFFFFFFFFFFFFFFF), NewHash(0), 64},
		{"half bits", NewHash(0xAAAAAAAAAAAAAAAA), NewHash(0x5555555555555555), 64},
		{"two words", NewHash(1, 3), NewHash(0, 0), 3},
		{"padded", NewHash(0, 0xFF), NewHash(0), 8},
		{"odd length", Hash([]byte{0xF0, 0x01, 0x0F}), Hash([]byte{0x00, 0x01}), 8},
		{"empty", Hash(""), Hash(""), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Distance(tt.b); got != tt.expected {
				t.Errorf("Distance(%s, %s) = %d, want %d", tt.a.Hex(), tt.b.Hex(), got, tt.expected)
			}
			if got := tt.b.Distance(tt.a); got != tt.expected {
				t.Errorf("Distance is not symmetric: got %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestHash_Hex(t *testing.T) {
	h := NewHash(0x0123456789abcdef)
	if h.Hex() != "0123456789abcdef" {
		t.Errorf("Hex = %q, want 0123456789abcdef", h.Hex())
	}
	if h.Bits() != 64 {
		t.Errorf("Bits = %d, want 64", h.Bits())
	}
	if h.Uint64() != 0x0123456789abcdef {
		t.Errorf("Uint64 = %x", h.Uint64())
	}

	parsed, err := ParseHex(h.Hex())
	if err != nil {
		t.Fatalf("ParseHex failed: %v", err)
	}
	if parsed != h {
		t.Errorf("ParseHex = %q, want %q", parsed.Hex(), h.Hex())
	}

	if _, err := ParseHex("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestHash_JSON(t *testing.T) {
	p := Point{Path: "/a.jpg", Hash: NewHash(0xff)}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"path":"/a.jpg","hash":"00000000000000ff"}` {
		t.Errorf("json = %s", data)
	}

	var back Point
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back != p {
		t.Errorf("round trip = %+v, want %+v", back, p)
	}
}

func TestDistance(t *testing.T) {
	a := Point{Path: "a", Hash: NewHash(0b1111)}
	b := Point{Path: "b", Hash: NewHash(0b0001)}
	if got := Distance(a, b); got != 3 {
		t.Errorf("Distance = %v, want 3", got)
	}
	if got := Distance(a, a); got != 0 {
		t.Errorf("Distance to self = %v, want 0", got)
	}
}

func TestImageInfo_Point(t *testing.T) {
	info := &ImageInfo{Path: "/x.png", Hash: NewHash(42), Width: 10}
	if got := info.Point(); got != (Point{Path: "/x.png", Hash: NewHash(42)}) {
		t.Errorf("Point = %+v", got)
	}
}
