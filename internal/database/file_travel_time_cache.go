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

// FileTravelTimeCacheData represents the structure of the cache file
type FileTravelTimeCacheData struct {
	Entries []models.TravelTimeCacheEntry `json:"entries"`
}

// FileTravelTimeCache is a file-based implementation of TravelTimeCache
type FileTravelTimeCache struct {
	filePath string
	data     *FileTravelTimeCacheData
	index    map[string]int // coordinate pair key -> position in Entries
	mu       sync.RWMutex
}

// NewFileTravelTimeCache opens (or creates) the travel-time cache file at filePath.
// An empty path uses ~/.trip-planner/cache/travel_times.json.
func NewFileTravelTimeCache(filePath string) (*FileTravelTimeCache, error) {
	if filePath == "" {
		var err error
		filePath, err = GetTravelTimeCachePath()
		if err != nil {
			return nil, fmt.Errorf("failed to get cache file path: %w", err)
		}
	}
	log.Printf("[CACHE] Using travel-time cache file: %s", filePath)

	cache := &FileTravelTimeCache{
		filePath: filePath,
		data:     &FileTravelTimeCacheData{Entries: []models.TravelTimeCacheEntry{}},
		index:    make(map[string]int),
	}

	if err := cache.load(); err != nil {
		return nil, err
	}

	return cache, nil
}

func (c *FileTravelTimeCache) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return writeJSONAtomic(c.filePath, c.data)
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := json.Unmarshal(data, c.data); err != nil {
		return fmt.Errorf("failed to parse cache file: %w", err)
	}

	if c.data.Entries == nil {
		c.data.Entries = []models.TravelTimeCacheEntry{}
	}

	c.rebuildIndex()

	log.Printf("[CACHE] Loaded travel-time cache: %d entries", len(c.data.Entries))
	return nil
}

func (c *FileTravelTimeCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.TravelTimeCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if idx, ok := c.index[TravelTimeKey(origin, dest)]; ok {
		// Copy so callers cannot modify cache data without the lock
		entryCopy := c.data.Entries[idx]
		return &entryCopy, nil
	}
	return nil, nil
}

func (c *FileTravelTimeCache) SetBatch(ctx context.Context, entries []models.TravelTimeCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		key := TravelTimeKey(entry.Origin, entry.Destination)

		if idx, ok := c.index[key]; ok {
			c.data.Entries[idx] = entry
		} else {
			c.data.Entries = append(c.data.Entries, entry)
			c.index[key] = len(c.data.Entries) - 1
		}
	}

	return writeJSONAtomic(c.filePath, c.data)
}

func (c *FileTravelTimeCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data.Entries = []models.TravelTimeCacheEntry{}
	c.index = make(map[string]int)
	return writeJSONAtomic(c.filePath, c.data)
}

// TravelTimeKey creates a unique key for a coordinate pair, rounded to 5 decimal places
func TravelTimeKey(origin, dest models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f",
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lon),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lon))
}

// rebuildIndex must be called with the mutex already held.
func (c *FileTravelTimeCache) rebuildIndex() {
	c.index = make(map[string]int)
	for i := range c.data.Entries {
		c.index[TravelTimeKey(c.data.Entries[i].Origin, c.data.Entries[i].Destination)] = i
	}
}
