package domain

import "math"

// DistanceUnknown marks a distance that could not be computed because one of
// the coordinates is missing or zero-invalid.
const DistanceUnknown = -1.0

const earthRadiusKm = 6371.0

// LatLng is a WGS84 coordinate pair. The zero value is treated as "no fix":
// the backend emits 0/0 for addresses without geocoding.
type LatLng struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate carries a usable fix.
func (c LatLng) Valid() bool {
	if c.Lat == 0 && c.Lng == 0 {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// DistanceKm returns the great-circle distance between two coordinates in
// kilometres, rounded to two decimal places, or DistanceUnknown when either
// coordinate is invalid.
func DistanceKm(from, to LatLng) float64 {
	if !from.Valid() || !to.Valid() {
		return DistanceUnknown
	}

	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	dLat := (to.Lat - from.Lat) * math.Pi / 180
	dLng := (to.Lng - from.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return Round2(earthRadiusKm * c)
}
