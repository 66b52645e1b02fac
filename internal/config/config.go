package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"trip-planner/internal/database"
)

// Cache backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the process configuration read from the environment
type Config struct {
	ServerAddr string

	GeocodeProvider   string
	GeocodeAPIKey     string
	MapboxAccessToken string
	DistanceMetric    string
	OSRMBaseURL       string
	StartingAddress   string

	CacheBackend  string
	CachePath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	ClusterSeed int64
}

// Load reads .env if present, then the environment. Settings saved in the
// app config file fill in whatever the environment leaves unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	saved := &database.AppConfig{}
	if path, err := database.GetConfigFilePath(); err == nil {
		if loaded, err := database.LoadAppConfig(path); err == nil {
			saved = loaded
		} else {
			log.Printf("[ERROR] Ignoring saved config: %v", err)
		}
	}

	return FromEnv(saved)
}

// FromEnv builds a Config from the environment over saved defaults
func FromEnv(saved *database.AppConfig) (*Config, error) {
	if saved == nil {
		saved = &database.AppConfig{}
	}

	cfg := &Config{
		ServerAddr:        getEnv("SERVER_ADDR", "127.0.0.1:8080"),
		GeocodeProvider:   getEnv("GEOCODE_PROVIDER", orDefault(saved.GeocodeProvider, "nominatim")),
		GeocodeAPIKey:     os.Getenv("GEOCODE_API_KEY"),
		MapboxAccessToken: os.Getenv("MAPBOX_ACCESS_TOKEN"),
		DistanceMetric:    getEnv("DISTANCE_METRIC", orDefault(saved.DistanceMetric, "straight")),
		OSRMBaseURL:       os.Getenv("OSRM_BASE_URL"),
		StartingAddress:   getEnv("STARTING_ADDRESS", saved.StartingAddress),
		CacheBackend:      strings.ToLower(getEnv("CACHE_BACKEND", orDefault(saved.CacheBackend, BackendFile))),
		CachePath:         getEnv("CACHE_PATH", saved.CachePath),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.ClusterSeed, err = strconv.ParseInt(getEnv("CLUSTER_SEED", "0"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid CLUSTER_SEED: %w", err)
	}

	switch cfg.CacheBackend {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}
