package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trip-planner/internal/database"
	"trip-planner/internal/models"
)

const (
	geocodePrefix    = "trip-planner:geocode:"
	travelTimePrefix = "trip-planner:traveltime:"
)

// Open returns a client for addr, or nil when addr is empty.
func Open(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// GeocodeCache stores geocode results as JSON values under a key per address.
type GeocodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGeocodeCache wraps client. A zero ttl keeps entries forever.
func NewGeocodeCache(client *redis.Client, ttl time.Duration) *GeocodeCache {
	return &GeocodeCache{client: client, ttl: ttl}
}

func (c *GeocodeCache) Get(ctx context.Context, address string) (*models.GeocodeCacheEntry, error) {
	raw, err := c.client.Get(ctx, geocodePrefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get geocode: %w", err)
	}

	var entry models.GeocodeCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode geocode entry: %w", err)
	}
	return &entry, nil
}

func (c *GeocodeCache) Set(ctx context.Context, address string, entry *models.GeocodeCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode geocode entry: %w", err)
	}
	if err := c.client.Set(ctx, geocodePrefix+address, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set geocode: %w", err)
	}
	return nil
}

func (c *GeocodeCache) Clear(ctx context.Context) error {
	return deletePrefix(ctx, c.client, geocodePrefix)
}

// TravelTimeCache stores pairwise durations keyed by rounded coordinates.
type TravelTimeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTravelTimeCache(client *redis.Client, ttl time.Duration) *TravelTimeCache {
	return &TravelTimeCache{client: client, ttl: ttl}
}

func (c *TravelTimeCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.TravelTimeCacheEntry, error) {
	secs, err := c.client.Get(ctx, travelTimePrefix+database.TravelTimeKey(origin, dest)).Float64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get travel time: %w", err)
	}
	return &models.TravelTimeCacheEntry{Origin: origin, Destination: dest, DurationSecs: secs}, nil
}

func (c *TravelTimeCache) SetBatch(ctx context.Context, entries []models.TravelTimeCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, e := range entries {
		pipe.Set(ctx, travelTimePrefix+database.TravelTimeKey(e.Origin, e.Destination), e.DurationSecs, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set travel times: %w", err)
	}
	return nil
}

func (c *TravelTimeCache) Clear(ctx context.Context) error {
	return deletePrefix(ctx, c.client, travelTimePrefix)
}

func deletePrefix(ctx context.Context, client *redis.Client, prefix string) error {
	iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", prefix, err)
	}
	return nil
}
