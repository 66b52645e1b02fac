package database

import (
	"context"
	"sync"

	"trip-planner/internal/models"
)

// MemoryGeocodeCache keeps geocode results for the lifetime of the process
type MemoryGeocodeCache struct {
	mu      sync.RWMutex
	entries map[string]models.GeocodeCacheEntry
}

func NewMemoryGeocodeCache() *MemoryGeocodeCache {
	return &MemoryGeocodeCache{entries: make(map[string]models.GeocodeCacheEntry)}
}

func (c *MemoryGeocodeCache) Get(ctx context.Context, address string) (*models.GeocodeCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.entries[address]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (c *MemoryGeocodeCache) Set(ctx context.Context, address string, entry *models.GeocodeCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[address] = *entry
	return nil
}

func (c *MemoryGeocodeCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]models.GeocodeCacheEntry)
	return nil
}

// Len returns the number of cached addresses
func (c *MemoryGeocodeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MemoryTravelTimeCache is an in-process TravelTimeCache
type MemoryTravelTimeCache struct {
	mu      sync.RWMutex
	entries map[string]models.TravelTimeCacheEntry
}

func NewMemoryTravelTimeCache() *MemoryTravelTimeCache {
	return &MemoryTravelTimeCache{entries: make(map[string]models.TravelTimeCacheEntry)}
}

func (c *MemoryTravelTimeCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.TravelTimeCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.entries[TravelTimeKey(origin, dest)]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (c *MemoryTravelTimeCache) SetBatch(ctx context.Context, entries []models.TravelTimeCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		c.entries[TravelTimeKey(e.Origin, e.Destination)] = e
	}
	return nil
}

func (c *MemoryTravelTimeCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]models.TravelTimeCacheEntry)
	return nil
}

// Len returns the number of cached pairs
func (c *MemoryTravelTimeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
