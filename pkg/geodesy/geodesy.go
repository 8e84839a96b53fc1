package geodesy

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ErrInvalidCoordinate повертається для широти поза [-90, 90] або довготи поза [-180, 180]
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Compass8 - назви восьми румбів, починаючи з півночі за годинниковою стрілкою
var Compass8 = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Validate перевіряє діапазони широти і довготи
func Validate(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, lng)
	}
	return nil
}

// DistanceKm повертає відстань по великому колу (формула гаверсинусів) в кілометрах.
// Симетрична, дорівнює нулю лише для однакових точок.
func DistanceKm(lat1, lng1, lat2, lng2 float64) (float64, error) {
	if err := Validate(lat1, lng1); err != nil {
		return 0, err
	}
	if err := Validate(lat2, lng2); err != nil {
		return 0, err
	}
	if lat1 == lat2 && lng1 == lng2 {
		return 0, nil
	}
	return geo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2}) / 1000, nil
}

// BearingDeg повертає початковий азимут з першої точки на другу в діапазоні [0, 360)
func BearingDeg(lat1, lng1, lat2, lng2 float64) (float64, error) {
	if err := Validate(lat1, lng1); err != nil {
		return 0, err
	}
	if err := Validate(lat2, lng2); err != nil {
		return 0, err
	}
	b := geo.Bearing(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
	b = math.Mod(b+360, 360)
	if b >= 360 {
		b = 0
	}
	return b, nil
}

// Cardinal переводить азимут у румб восьмирумбової рози
func Cardinal(bearing float64) string {
	b := math.Mod(math.Mod(bearing, 360)+360, 360)
	return Compass8[int(math.Round(b/45))%8]
}

// Interpolate лінійно інтерполює широту й довготу між двома точками.
// ratio обрізається до [0, 1].
func Interpolate(lat1, lng1, lat2, lng2, ratio float64) (float64, float64) {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return lat1 + (lat2-lat1)*ratio, lng1 + (lng2-lng1)*ratio
}

// LineLengthKm рахує довжину ламаної з пар {lat, lng}
func LineLengthKm(line [][2]float64) (float64, error) {
	if len(line) < 2 {
		return 0, nil
	}
	ls := make(orb.LineString, 0, len(line))
	for _, p := range line {
		if err := Validate(p[0], p[1]); err != nil {
			return 0, err
		}
		ls = append(ls, orb.Point{p[1], p[0]})
	}
	return geo.LengthHaversine(ls) / 1000, nil
}
