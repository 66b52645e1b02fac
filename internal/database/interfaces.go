package database

import (
	"context"

	"trip-planner/internal/models"
)

// GeocodeCache persists geocoding results keyed by the exact original address string.
// Entries are never expired; Get returns nil, nil on a miss.
type GeocodeCache interface {
	Get(ctx context.Context, address string) (*models.GeocodeCacheEntry, error)
	Set(ctx context.Context, address string, entry *models.GeocodeCacheEntry) error
	Clear(ctx context.Context) error
}

// TravelTimeCache handles travel-time matrix cache persistence
type TravelTimeCache interface {
	Get(ctx context.Context, origin, dest models.Coordinates) (*models.TravelTimeCacheEntry, error)
	SetBatch(ctx context.Context, entries []models.TravelTimeCacheEntry) error
	Clear(ctx context.Context) error
}
