package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineMiles_Identity(t *testing.T) {
	points := [][2]float64{
		{31.9973, -102.0779},
		{29.76, -95.37},
		{0, 0},
		{-33.8688, 151.2093},
		{90, 0},
	}
	for _, p := range points {
		assert.InDelta(t, 0, HaversineMiles(p[0], p[1], p[0], p[1]), 1e-9)
	}
}

func TestHaversineMiles_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{31.9973, -102.0779, 29.76, -95.37},
		{40.7128, -74.0060, 51.5074, -0.1278},
		{-33.8688, 151.2093, 35.6762, 139.6503},
		{10, 179.5, 10, -179.5},
	}
	for _, p := range pairs {
		ab := HaversineMiles(p[0], p[1], p[2], p[3])
		ba := HaversineMiles(p[2], p[3], p[0], p[1])
		assert.InDelta(t, ab, ba, 1e-9)
	}
}

func TestHaversineMiles_KnownDistances(t *testing.T) {
	// Midland to Houston is roughly 440 miles.
	d := HaversineMiles(31.9973, -102.0779, 29.76, -95.37)
	assert.InDelta(t, 432, d, 15)

	// One degree of latitude is ~69.1 miles.
	assert.InDelta(t, 69.09, HaversineMiles(0, 0, 1, 0), 0.05)

	// Crossing the antimeridian takes the short way round.
	assert.Less(t, HaversineMiles(0, 179.9, 0, -179.9), 20.0)
}

func TestParseQueryList(t *testing.T) {
	tests := []struct {
		name string
		q    map[string][]string
		want []string
	}{
		{"missing", map[string][]string{}, nil},
		{"comma separated", map[string][]string{"k": {"a, b,c"}}, []string{"a", "b", "c"}},
		{"repeated", map[string][]string{"k": {"a", " b "}}, []string{"a", "b"}},
		{"mixed with duplicates", map[string][]string{"k": {"a,b", "b", "c,,a"}}, []string{"a", "b", "c"}},
		{"only empties", map[string][]string{"k": {",", ""}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQueryList(tt.q, "k"))
		})
	}
}
