package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"trip-planner/internal/models"
)

type geocodeCache struct {
	store *Store
}

func (r *geocodeCache) Get(ctx context.Context, address string) (*models.GeocodeCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var entry models.GeocodeCacheEntry
	err := r.store.db.QueryRowContext(ctx,
		`SELECT lat, lon, used_variant FROM geocode_cache WHERE address = ?`, address,
	).Scan(&entry.Lat, &entry.Lon, &entry.UsedVariant)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get geocode cache entry: %w", err)
	}

	return &entry, nil
}

func (r *geocodeCache) Set(ctx context.Context, address string, entry *models.GeocodeCacheEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO geocode_cache (address, lat, lon, used_variant) VALUES (?, ?, ?, ?)`,
		address, entry.Lat, entry.Lon, entry.UsedVariant,
	)
	if err != nil {
		return fmt.Errorf("failed to set geocode cache entry: %w", err)
	}

	return nil
}

func (r *geocodeCache) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM geocode_cache"); err != nil {
		return fmt.Errorf("failed to clear geocode cache: %w", err)
	}

	return nil
}
