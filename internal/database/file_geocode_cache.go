package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"trip-planner/internal/models"
)

// FileGeocodeCacheData represents the structure of the cache file
type FileGeocodeCacheData struct {
	Entries map[string]models.GeocodeCacheEntry `json:"entries"`
}

// FileGeocodeCache is a JSON-file implementation of GeocodeCache
type FileGeocodeCache struct {
	filePath string
	data     *FileGeocodeCacheData
	mu       sync.RWMutex
}

// NewFileGeocodeCache opens (or creates) the geocode cache file at filePath.
// An empty path uses ~/.trip-planner/cache/geocodes.json.
func NewFileGeocodeCache(filePath string) (*FileGeocodeCache, error) {
	if filePath == "" {
		var err error
		filePath, err = GetGeocodeCachePath()
		if err != nil {
			return nil, fmt.Errorf("failed to get cache file path: %w", err)
		}
	}
	log.Printf("[CACHE] Using geocode cache file: %s", filePath)

	cache := &FileGeocodeCache{
		filePath: filePath,
		data:     &FileGeocodeCacheData{Entries: map[string]models.GeocodeCacheEntry{}},
	}

	if err := cache.load(); err != nil {
		return nil, err
	}

	return cache, nil
}

func (c *FileGeocodeCache) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveUnlocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := json.Unmarshal(data, c.data); err != nil {
		return fmt.Errorf("failed to parse cache file: %w", err)
	}

	if c.data.Entries == nil {
		c.data.Entries = map[string]models.GeocodeCacheEntry{}
	}

	log.Printf("[CACHE] Loaded geocode cache: %d entries", len(c.data.Entries))
	return nil
}

func (c *FileGeocodeCache) saveUnlocked() error {
	return writeJSONAtomic(c.filePath, c.data)
}

func (c *FileGeocodeCache) Get(ctx context.Context, address string) (*models.GeocodeCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data.Entries[address]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *FileGeocodeCache) Set(ctx context.Context, address string, entry *models.GeocodeCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data.Entries[address] = *entry
	return c.saveUnlocked()
}

func (c *FileGeocodeCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data.Entries = map[string]models.GeocodeCacheEntry{}
	return c.saveUnlocked()
}

// writeJSONAtomic marshals v and replaces path through a temp file
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}

	return nil
}
