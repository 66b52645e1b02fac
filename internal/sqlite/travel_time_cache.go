package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"trip-planner/internal/models"
)

type travelTimeCache struct {
	store *Store
}

func (r *travelTimeCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.TravelTimeCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `SELECT origin_lat, origin_lon, dest_lat, dest_lon, duration_secs
	          FROM travel_time_cache
	          WHERE origin_lat = ? AND origin_lon = ? AND dest_lat = ? AND dest_lon = ?`

	var entry models.TravelTimeCacheEntry
	err := r.store.db.QueryRowContext(ctx, query,
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lon),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lon),
	).Scan(
		&entry.Origin.Lat, &entry.Origin.Lon,
		&entry.Destination.Lat, &entry.Destination.Lon,
		&entry.DurationSecs,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get travel-time cache entry: %w", err)
	}

	return &entry, nil
}

func (r *travelTimeCache) SetBatch(ctx context.Context, entries []models.TravelTimeCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO travel_time_cache
	          (origin_lat, origin_lon, dest_lat, dest_lon, duration_secs)
	          VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		_, err := stmt.ExecContext(ctx,
			models.RoundCoordinate(entry.Origin.Lat), models.RoundCoordinate(entry.Origin.Lon),
			models.RoundCoordinate(entry.Destination.Lat), models.RoundCoordinate(entry.Destination.Lon),
			entry.DurationSecs)
		if err != nil {
			return fmt.Errorf("failed to insert batch entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *travelTimeCache) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM travel_time_cache"); err != nil {
		return fmt.Errorf("failed to clear travel-time cache: %w", err)
	}

	return nil
}
