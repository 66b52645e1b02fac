package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/database"
	"trip-planner/internal/models"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_ADDR", "GEOCODE_PROVIDER", "DISTANCE_METRIC", "CACHE_BACKEND", "CACHE_PATH", "REDIS_DB", "CLUSTER_SEED", "STARTING_ADDRESS"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ServerAddr)
	assert.Equal(t, "nominatim", cfg.GeocodeProvider)
	assert.Equal(t, "straight", cfg.DistanceMetric)
	assert.Equal(t, BackendFile, cfg.CacheBackend)
	assert.Zero(t, cfg.RedisDB)
	assert.Zero(t, cfg.ClusterSeed)
}

func TestFromEnvOverridesSavedConfig(t *testing.T) {
	t.Setenv("GEOCODE_PROVIDER", "")
	t.Setenv("DISTANCE_METRIC", "osrm")
	t.Setenv("CACHE_BACKEND", "SQLite")
	t.Setenv("CLUSTER_SEED", "42")
	t.Setenv("REDIS_DB", "3")

	saved := &database.AppConfig{GeocodeProvider: "locationiq", DistanceMetric: "mapbox", StartingAddress: "1 Depot Rd"}
	cfg, err := FromEnv(saved)
	require.NoError(t, err)

	assert.Equal(t, "locationiq", cfg.GeocodeProvider)
	assert.Equal(t, "osrm", cfg.DistanceMetric)
	assert.Equal(t, BackendSQLite, cfg.CacheBackend)
	assert.Equal(t, "1 Depot Rd", cfg.StartingAddress)
	assert.Equal(t, int64(42), cfg.ClusterSeed)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("CLUSTER_SEED", "abc")
	_, err := FromEnv(nil)
	assert.Error(t, err)

	t.Setenv("CLUSTER_SEED", "")
	t.Setenv("CACHE_BACKEND", "etcd")
	_, err = FromEnv(nil)
	assert.Error(t, err)

	t.Setenv("CACHE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = FromEnv(nil)
	assert.Error(t, err)
}

func roundTrip(t *testing.T, caches *Caches) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, caches.HealthCheck(ctx))

	entry := &models.GeocodeCacheEntry{Lat: 1, Lon: 2, UsedVariant: "1 Elm St"}
	require.NoError(t, caches.Geocode.Set(ctx, "1 Elm St", entry))
	hit, err := caches.Geocode.Get(ctx, "1 Elm St")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, *entry, *hit)

	a := models.Coordinates{Lat: 1, Lon: 1}
	b := models.Coordinates{Lat: 2, Lon: 2}
	require.NoError(t, caches.TravelTime.SetBatch(ctx, []models.TravelTimeCacheEntry{{Origin: a, Destination: b, DurationSecs: 60}}))
	tt, err := caches.TravelTime.Get(ctx, a, b)
	require.NoError(t, err)
	require.NotNil(t, tt)
	assert.Equal(t, 60.0, tt.DurationSecs)
}

func TestOpenCachesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	caches, err := OpenCaches(context.Background(), &Config{CacheBackend: BackendFile, CachePath: dir})
	require.NoError(t, err)
	defer caches.Close()

	assert.Equal(t, BackendFile, caches.Backend)
	roundTrip(t, caches)
	assert.FileExists(t, filepath.Join(dir, database.GeocodeCacheFile))
}

func TestOpenCachesSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	caches, err := OpenCaches(context.Background(), &Config{CacheBackend: BackendSQLite, CachePath: path})
	require.NoError(t, err)
	defer caches.Close()

	assert.Equal(t, BackendSQLite, caches.Backend)
	roundTrip(t, caches)
}

func TestOpenCachesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	caches, err := OpenCaches(context.Background(), &Config{CacheBackend: BackendRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer caches.Close()

	assert.Equal(t, BackendRedis, caches.Backend)
	roundTrip(t, caches)
}

func TestOpenCachesRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenCaches(context.Background(), &Config{CacheBackend: BackendRedis, RedisAddr: addr})
	assert.Error(t, err)
}

func TestOpenCachesMemory(t *testing.T) {
	caches, err := OpenCaches(context.Background(), &Config{CacheBackend: BackendMemory})
	require.NoError(t, err)
	assert.NoError(t, caches.Close())
	roundTrip(t, caches)
}
