package geo

import (
	"errors"
	"math"
)

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
)

// Validate checks coordinate ranges.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if p.Lng < -180 || p.Lng > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// earthRadiusKM is the mean Earth radius used by the Haversine formula.
const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two points in km.
func HaversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	da := (lat2 - lat1) * math.Pi / 180
	db := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// DistanceKM is HaversineKM over two Points.
func DistanceKM(a, b Point) float64 {
	return HaversineKM(a.Lat, a.Lng, b.Lat, b.Lng)
}

// RoundKM rounds a transport distance to two decimals for presentation.
func RoundKM(km float64) float64 {
	return math.Round(km*100) / 100
}

// WithinRadius reports whether b lies within radiusKm of a.
func WithinRadius(a, b Point, radiusKm float64) bool {
	return DistanceKM(a, b) <= radiusKm
}
