package geodesy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKm(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		d, err := DistanceKm(36.8, 10.18, 36.8, 10.18)
		require.NoError(t, err)
		assert.Equal(t, 0.0, d)
	})

	t.Run("one degree of longitude on the equator", func(t *testing.T) {
		d, err := DistanceKm(0, 0, 0, 1)
		require.NoError(t, err)
		assert.InDelta(t, 111.32, d, 0.05)
	})

	t.Run("symmetric", func(t *testing.T) {
		ab, err := DistanceKm(36.80, 10.18, 36.85, 10.25)
		require.NoError(t, err)
		ba, err := DistanceKm(36.85, 10.25, 36.80, 10.18)
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-9)
		assert.Greater(t, ab, 0.0)
	})

	t.Run("invalid coordinates", func(t *testing.T) {
		for _, c := range [][4]float64{
			{91, 0, 0, 0},
			{0, 181, 0, 0},
			{0, 0, -90.5, 0},
			{0, 0, 0, -180.01},
		} {
			_, err := DistanceKm(c[0], c[1], c[2], c[3])
			assert.ErrorIs(t, err, ErrInvalidCoordinate, "%v", c)
		}
	})
}

func TestBearingDeg(t *testing.T) {
	tests := []struct {
		name     string
		from, to [2]float64
		want     float64
	}{
		{name: "north", from: [2]float64{0, 0}, to: [2]float64{1, 0}, want: 0},
		{name: "east", from: [2]float64{0, 0}, to: [2]float64{0, 1}, want: 90},
		{name: "south", from: [2]float64{1, 0}, to: [2]float64{0, 0}, want: 180},
		{name: "west", from: [2]float64{0, 1}, to: [2]float64{0, 0}, want: 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BearingDeg(tt.from[0], tt.from[1], tt.to[0], tt.to[1])
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.01)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestCardinal(t *testing.T) {
	assert.Equal(t, "N", Cardinal(0))
	assert.Equal(t, "N", Cardinal(22.4))
	assert.Equal(t, "NE", Cardinal(22.6))
	assert.Equal(t, "E", Cardinal(90))
	assert.Equal(t, "S", Cardinal(180))
	assert.Equal(t, "NW", Cardinal(315))
	assert.Equal(t, "N", Cardinal(359))
	assert.Equal(t, "W", Cardinal(-90))
}

func TestInterpolate(t *testing.T) {
	lat, lng := Interpolate(10, 20, 12, 24, 0.25)
	assert.InDelta(t, 10.5, lat, 1e-12)
	assert.InDelta(t, 21, lng, 1e-12)

	lat, lng = Interpolate(10, 20, 12, 24, 2)
	assert.Equal(t, 12.0, lat)
	assert.Equal(t, 24.0, lng)
}

func TestLineLengthKm(t *testing.T) {
	l, err := LineLengthKm([][2]float64{{0, 0}, {0, 1}, {0, 2}})
	require.NoError(t, err)
	assert.InDelta(t, 222.64, l, 0.1)

	l, err = LineLengthKm([][2]float64{{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, l)
}
