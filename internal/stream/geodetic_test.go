package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeodeticENU(t *testing.T) {
	tests := []struct {
		name            string
		fix             GeodeticFix
		east, north, up float64
	}{
		{name: "origin", fix: GeodeticFix{Position: Geodetic{Lat: 24.786, Lon: 120.996}, Origin: Geodetic{Lat: 24.786, Lon: 120.996}}},
		{name: "east", fix: GeodeticFix{Position: Geodetic{Lon: 0.001}}, east: 111.3195, up: -0.00097},
		{name: "north", fix: GeodeticFix{Position: Geodetic{Lat: 0.001}}, north: 110.5743, up: -0.00096},
		{
			name:  "campus",
			fix:   GeodeticFix{Position: Geodetic{Lat: 24.787, Lon: 120.997, H: 150}, Origin: Geodetic{Lat: 24.786, Lon: 120.996}},
			east:  101.1258,
			north: 110.7727,
			up:    149.9982,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, n, u := tt.fix.ENU()
			assert.InDelta(t, tt.east, e, 1e-3)
			assert.InDelta(t, tt.north, n, 1e-3)
			assert.InDelta(t, tt.up, u, 1e-3)
		})
	}
}

func TestGeodeticLocalScales(t *testing.T) {
	fix := GeodeticFix{Position: Geodetic{Lat: 24.787, Lon: 120.997, H: 150}, Origin: Geodetic{Lat: 24.786, Lon: 120.996}}

	pos := fix.Local(10)
	assert.InDelta(t, 10.11258, pos.X, 1e-4)
	assert.InDelta(t, 11.07727, pos.Y, 1e-4)
	assert.InDelta(t, 14.99982, pos.Z, 1e-4)
	assert.True(t, pos.HasZ)

	assert.Equal(t, fix.Local(1), fix.Local(0), "non-positive scale falls back to one metre per unit")
}
