package geo

import (
	"github.com/golang/geo/s2"

	"trip-planner/internal/models"
)

// Earth radius constants
const (
	EarthRadiusMiles  = 3958.8
	EarthRadiusMeters = 6371000.0
)

// DistanceMiles calculates the great-circle distance between two points in miles
func DistanceMiles(a, b models.Coordinates) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * EarthRadiusMiles
}

// Centroid calculates the arithmetic mean position of a set of points
func Centroid(points []models.Coordinates) models.Coordinates {
	if len(points) == 0 {
		return models.Coordinates{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	return models.Coordinates{
		Lat: sumLat / float64(len(points)),
		Lon: sumLon / float64(len(points)),
	}
}

// Northernmost returns the index of the point with the highest latitude, -1 for an empty slice.
// Ties go to the earlier index.
func Northernmost(points []models.Coordinates) int {
	best := -1
	for i, p := range points {
		if best < 0 || p.Lat > points[best].Lat {
			best = i
		}
	}
	return best
}

// SameLocation reports whether two coordinates are exactly equal
func SameLocation(a, b models.Coordinates) bool {
	return a.Lat == b.Lat && a.Lon == b.Lon
}
