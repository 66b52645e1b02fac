package models

import "math"

// Outlier marks a point that belongs to no cluster and never gets a route
const Outlier = -1

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RoundCoordinate rounds a coordinate to 5 decimal places (~1m precision)
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// Record is a raw input row. Extra holds passthrough columns from the import.
type Record struct {
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// GeoPoint is a Record that geocoded successfully
type GeoPoint struct {
	Record
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Coords returns the coordinates of the point
func (p *GeoPoint) Coords() Coordinates {
	return Coordinates{Lat: p.Lat, Lon: p.Lon}
}

// FailureReason is the diagnostic label attached to an address that did not geocode
type FailureReason string

const (
	ReasonEmpty            FailureReason = "Empty"
	ReasonNoLeadingNumber  FailureReason = "No leading number"
	ReasonIncompleteStreet FailureReason = "Incomplete street"
	ReasonMissingState     FailureReason = "Missing state"
	ReasonMissingZip       FailureReason = "Missing zip"
	ReasonNotFound         FailureReason = "Not found"
)

// FailedGeocode is a record whose every address variant failed
type FailedGeocode struct {
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Reason  FailureReason     `json:"reason"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// ClusteredPoint is a GeoPoint labelled with a cluster ID (Outlier for none)
type ClusteredPoint struct {
	GeoPoint
	Cluster int `json:"cluster"`
}

// Route is the visiting order for one cluster
type Route struct {
	Cluster  int              `json:"cluster"`
	Points   []ClusteredPoint `json:"points"`
	Distance float64          `json:"distance"`
}

// GeocodeCacheEntry is the cached result of a successful lookup, keyed by the original address
type GeocodeCacheEntry struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	UsedVariant string  `json:"usedVariant"`
}

// TravelTimeCacheEntry represents a cached travel-time lookup
type TravelTimeCacheEntry struct {
	Origin       Coordinates `json:"origin"`
	Destination  Coordinates `json:"destination"`
	DurationSecs float64     `json:"duration_secs"`
}
