// Package geo holds the distance and scoring math of the game and the
// coordinate-to-streak-code resolvers.
package geo

import (
	"math"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

const earthRadiusKm = 6371

// scaleDivisor maps the diagonal of a map's bounds to the score decay scale.
const scaleDivisor = 7.458421

// HaversineDistance returns the great-circle distance between a and b in meters.
func HaversineDistance(a, b chatguessr.LatLng) float64 {
	return haversineKm(a, b) * 1000
}

func haversineKm(a, b chatguessr.LatLng) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// CalculateScale derives the score decay scale from the map bounds.
func CalculateScale(b chatguessr.Bounds) float64 {
	return haversineKm(b.Min, b.Max) / scaleDivisor
}
