package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trip-planner/internal/models"
	"trip-planner/internal/obs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres through the pgx stdlib driver and verifies the connection.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}

	return db, nil
}

// InitSchema creates the cache tables if they do not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address      TEXT PRIMARY KEY,
		lat          DOUBLE PRECISION NOT NULL,
		lon          DOUBLE PRECISION NOT NULL,
		used_variant TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS travel_time_cache (
		origin_lat    DOUBLE PRECISION NOT NULL,
		origin_lon    DOUBLE PRECISION NOT NULL,
		dest_lat      DOUBLE PRECISION NOT NULL,
		dest_lon      DOUBLE PRECISION NOT NULL,
		duration_secs DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (origin_lat, origin_lon, dest_lat, dest_lon)
	);
	`)
	if err != nil {
		return fmt.Errorf("init postgres schema: %w", err)
	}
	return nil
}

// GeocodeCache is a Postgres-backed cache mapping addresses to coordinates.
type GeocodeCache struct {
	DB *sql.DB
}

func NewGeocodeCache(db *sql.DB) *GeocodeCache {
	return &GeocodeCache{DB: db}
}

func (s *GeocodeCache) Get(ctx context.Context, address string) (_ *models.GeocodeCacheEntry, err error) {
	defer obs.Time(ctx, "geocode.cache.postgres.Get")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	var entry models.GeocodeCacheEntry
	err = s.DB.QueryRowContext(ctx,
		`SELECT lat, lon, used_variant FROM geocode_cache WHERE address = $1`, address,
	).Scan(&entry.Lat, &entry.Lon, &entry.UsedVariant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: %w", err)
	}

	return &entry, nil
}

func (s *GeocodeCache) Set(ctx context.Context, address string, entry *models.GeocodeCacheEntry) error {
	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("insert geocode cache: empty address key")
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO geocode_cache (address, lat, lon, used_variant)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (address) DO UPDATE
	SET lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		used_variant = EXCLUDED.used_variant;
	`, address, entry.Lat, entry.Lon, entry.UsedVariant)
	if err != nil {
		return fmt.Errorf("insert geocode cache address=%q: %w", address, err)
	}

	return nil
}

func (s *GeocodeCache) Clear(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM geocode_cache`); err != nil {
		return fmt.Errorf("clear geocode cache: %w", err)
	}
	return nil
}

// TravelTimeCache is a Postgres-backed cache of pairwise travel durations.
type TravelTimeCache struct {
	DB *sql.DB
}

func NewTravelTimeCache(db *sql.DB) *TravelTimeCache {
	return &TravelTimeCache{DB: db}
}

func (s *TravelTimeCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.TravelTimeCacheEntry, error) {
	if s.DB == nil {
		return nil, errors.New("travel-time cache: db is nil")
	}

	entry := models.TravelTimeCacheEntry{Origin: origin, Destination: dest}
	err := s.DB.QueryRowContext(ctx, `
	SELECT duration_secs FROM travel_time_cache
	WHERE origin_lat = $1 AND origin_lon = $2 AND dest_lat = $3 AND dest_lon = $4
	`,
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lon),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lon),
	).Scan(&entry.DurationSecs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get travel-time cache: %w", err)
	}

	return &entry, nil
}

func (s *TravelTimeCache) SetBatch(ctx context.Context, entries []models.TravelTimeCacheEntry) (err error) {
	defer obs.Time(ctx, "traveltime.cache.postgres.SetBatch")(&err)

	if s.DB == nil {
		return errors.New("travel-time cache: db is nil")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert travel-time cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO travel_time_cache (origin_lat, origin_lon, dest_lat, dest_lon, duration_secs)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (origin_lat, origin_lon, dest_lat, dest_lon) DO UPDATE
	SET duration_secs = EXCLUDED.duration_secs;
	`)
	if err != nil {
		return fmt.Errorf("insert travel-time cache: db prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			models.RoundCoordinate(e.Origin.Lat), models.RoundCoordinate(e.Origin.Lon),
			models.RoundCoordinate(e.Destination.Lat), models.RoundCoordinate(e.Destination.Lon),
			e.DurationSecs,
		); err != nil {
			return fmt.Errorf("insert travel-time cache: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert travel-time cache commit: %w", err)
	}
	return nil
}

func (s *TravelTimeCache) Clear(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM travel_time_cache`); err != nil {
		return fmt.Errorf("clear travel-time cache: %w", err)
	}
	return nil
}
