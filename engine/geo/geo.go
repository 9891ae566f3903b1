// Package geo provides great-circle distance, travel-time estimation, and
// presentation formatting for distances and durations.
package geo

import (
	"fmt"
	"math"

	"github.com/sosmeca/sosmeca-server/engine/domain"
)

const (
	earthRadiusKm = 6371
	// avgSpeedKmh is the assumed urban travel speed for ETA estimates.
	avgSpeedKmh = 30
)

// DistanceKm returns the haversine distance between a and b, rounded to one
// decimal place.
func DistanceKm(a, b domain.Coordinates) float64 {
	dLat := rad(b.Latitude - a.Latitude)
	dLon := rad(b.Longitude - a.Longitude)

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(rad(a.Latitude))*math.Cos(rad(b.Latitude))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return math.Round(earthRadiusKm*c*10) / 10
}

// EstimateMinutes converts a distance into whole minutes at avgSpeedKmh.
func EstimateMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm / avgSpeedKmh * 60))
}

// FormatDistance renders sub-kilometre distances in metres, otherwise in
// kilometres with one decimal.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatMinutes renders minute counts below an hour as "N min" and larger
// ones as "XhMM" (minutes omitted when zero).
func FormatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%02d", h, m)
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
