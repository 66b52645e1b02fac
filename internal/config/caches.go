package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"trip-planner/internal/database"
	"trip-planner/internal/postgres"
	"trip-planner/internal/rediscache"
	"trip-planner/internal/sqlite"
)

// Caches are the geocode and travel-time caches of the selected backend
type Caches struct {
	Backend    string
	Geocode    database.GeocodeCache
	TravelTime database.TravelTimeCache

	health func(ctx context.Context) error
	close  func() error
}

// HealthCheck pings the backing store
func (c *Caches) HealthCheck(ctx context.Context) error {
	if c.health == nil {
		return nil
	}
	return c.health(ctx)
}

// Close releases the backing store
func (c *Caches) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// OpenCaches opens the cache backend named by cfg.CacheBackend
func OpenCaches(ctx context.Context, cfg *Config) (*Caches, error) {
	log.Printf("[CACHE] Opening cache backend: %s", cfg.CacheBackend)

	switch cfg.CacheBackend {
	case BackendMemory:
		return &Caches{
			Backend:    BackendMemory,
			Geocode:    database.NewMemoryGeocodeCache(),
			TravelTime: database.NewMemoryTravelTimeCache(),
		}, nil

	case BackendSQLite:
		path := cfg.CachePath
		if path == "" {
			var err error
			if path, err = database.GetDefaultDBPath(); err != nil {
				return nil, err
			}
		}
		store, err := sqlite.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		return &Caches{
			Backend:    BackendSQLite,
			Geocode:    store.GeocodeCache(),
			TravelTime: store.TravelTimeCache(),
			health:     store.HealthCheck,
			close:      store.Close,
		}, nil

	case BackendRedis:
		client := rediscache.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if client == nil {
			return nil, fmt.Errorf("redis cache needs REDIS_ADDR")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return &Caches{
			Backend:    BackendRedis,
			Geocode:    rediscache.NewGeocodeCache(client, 0),
			TravelTime: rediscache.NewTravelTimeCache(client, 0),
			health:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close:      client.Close,
		}, nil

	case BackendPostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.InitSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &Caches{
			Backend:    BackendPostgres,
			Geocode:    postgres.NewGeocodeCache(db),
			TravelTime: postgres.NewTravelTimeCache(db),
			health:     db.PingContext,
			close:      db.Close,
		}, nil

	default:
		return openFileCaches(cfg.CachePath)
	}
}

func openFileCaches(dir string) (*Caches, error) {
	if dir == "" {
		var err error
		if dir, err = database.GetCacheDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	geocode, err := database.NewFileGeocodeCache(filepath.Join(dir, database.GeocodeCacheFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open geocode cache: %w", err)
	}
	travel, err := database.NewFileTravelTimeCache(filepath.Join(dir, database.TravelTimeCacheFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open travel-time cache: %w", err)
	}

	return &Caches{Backend: BackendFile, Geocode: geocode, TravelTime: travel}, nil
}
