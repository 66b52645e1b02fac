package database

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const (
	AppDirName          = ".trip-planner"
	CacheDirName        = "cache"
	GeocodeCacheFile    = "geocodes.json"
	TravelTimeCacheFile = "travel_times.json"
	SQLiteDBFileName    = "cache.db"
	ConfigFileName      = "config.json"
)

// appDirOverride replaces the home-based app dir (tests, containers)
var appDirOverride = os.Getenv("TRIP_PLANNER_HOME")

// GetAppDir returns ~/.trip-planner, creating it if needed
func GetAppDir() (string, error) {
	appDir := appDirOverride
	if appDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		appDir = filepath.Join(homeDir, AppDirName)
	}

	if err := os.MkdirAll(appDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}

	return appDir, nil
}

// GetCacheDir returns ~/.trip-planner/cache, creating it if needed
func GetCacheDir() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}

	cacheDir := filepath.Join(appDir, CacheDirName)
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	return cacheDir, nil
}

// GetGeocodeCachePath returns ~/.trip-planner/cache/geocodes.json
func GetGeocodeCachePath() (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, GeocodeCacheFile), nil
}

// GetTravelTimeCachePath returns ~/.trip-planner/cache/travel_times.json
func GetTravelTimeCachePath() (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, TravelTimeCacheFile), nil
}

// GetDefaultDBPath returns the default SQLite cache path: ~/.trip-planner/cache.db
func GetDefaultDBPath() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, SQLiteDBFileName), nil
}

// GetConfigFilePath returns ~/.trip-planner/config.json
func GetConfigFilePath() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, ConfigFileName), nil
}

// AppConfig stores persisted user preferences
type AppConfig struct {
	CacheBackend    string `json:"cache_backend"`
	CachePath       string `json:"cache_path"`
	GeocodeProvider string `json:"geocode_provider"`
	DistanceMetric  string `json:"distance_metric"`
	StartingAddress string `json:"starting_address"`
}

// LoadAppConfig loads the persisted config from path, returning an empty config if not found
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &AppConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveAppConfig saves the config to path
func SaveAppConfig(path string, config *AppConfig) error {
	if err := writeJSONAtomic(path, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	log.Printf("Config saved: cache_backend=%s provider=%s metric=%s", config.CacheBackend, config.GeocodeProvider, config.DistanceMetric)
	return nil
}
