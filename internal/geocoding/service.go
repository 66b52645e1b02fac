package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"trip-planner/internal/database"
	"trip-planner/internal/metrics"
	"trip-planner/internal/models"
)

// ManualVariant is recorded as the used variant when coordinates were entered by hand.
const ManualVariant = "manual"

const (
	maxLookupAttempts = 3
	minRetryBackoff   = 250 * time.Millisecond
)

var (
	ErrEmptyFix           = errors.New("manual fix needs coordinates or a corrected address")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// Service geocodes addresses through a read-through cache, one provider
// request at a time with the provider's minimum spacing between requests.
type Service struct {
	provider Provider
	cache    database.GeocodeCache

	mu          sync.Mutex
	delay       time.Duration
	lastRequest time.Time
}

// NewService wires provider and cache. A nil cache keeps results in memory only.
func NewService(provider Provider, cache database.GeocodeCache) *Service {
	if cache == nil {
		cache = database.NewMemoryGeocodeCache()
	}
	return &Service{
		provider: provider,
		cache:    cache,
		delay:    provider.Delay(),
	}
}

// SetDelay overrides the provider's request spacing.
func (s *Service) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Geocode resolves address, trying each variant in turn. A nil entry with a
// nil error means the address is unresolved; the only error returned is the
// context's.
func (s *Service) Geocode(ctx context.Context, address string) (*models.GeocodeCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geocode(ctx, address)
}

func (s *Service) geocode(ctx context.Context, address string) (*models.GeocodeCacheEntry, error) {
	variants := Variants(address)
	if len(variants) == 0 {
		return nil, nil
	}

	cached, err := s.cache.Get(ctx, address)
	if err != nil {
		log.Printf("[ERROR] Geocode cache read failed: address=%s err=%v", address, err)
	}
	if cached != nil {
		metrics.GeocodeCacheHitsTotal.Inc()
		log.Printf("[CACHE] Geocode hit: address=%s", address)
		return cached, nil
	}
	metrics.GeocodeCacheMissesTotal.Inc()

	for _, variant := range variants {
		coords, err := s.lookup(ctx, variant)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Printf("[GEOCODING] Variant failed: address=%s variant=%s err=%v", address, variant, err)
			continue
		}

		entry := &models.GeocodeCacheEntry{Lat: coords.Lat, Lon: coords.Lon, UsedVariant: variant}
		if err := s.cache.Set(ctx, address, entry); err != nil {
			log.Printf("[ERROR] Geocode cache write failed: address=%s err=%v", address, err)
		}
		return entry, nil
	}

	log.Printf("[GEOCODING] Unresolved: address=%s variants=%d", address, len(variants))
	return nil, nil
}

// lookup sends one query, repeating temporary failures up to maxLookupAttempts
// times. Each retry backs off from the provider spacing, doubling per attempt,
// and still goes through wait. Must hold s.mu.
func (s *Service) lookup(ctx context.Context, query string) (*models.Coordinates, error) {
	backoff := s.delay
	if backoff < minRetryBackoff {
		backoff = minRetryBackoff
	}

	for attempt := 1; ; attempt++ {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}

		coords, err := s.provider.Lookup(ctx, query)
		if err == nil || attempt == maxLookupAttempts || !temporary(err) || ctx.Err() != nil {
			return coords, err
		}

		log.Printf("[GEOCODING] Retry %d/%d: query=%s backoff=%v err=%v", attempt, maxLookupAttempts-1, query, backoff, err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func temporary(err error) bool {
	var geoErr *ErrGeocodingFailed
	return errors.As(err, &geoErr) && geoErr.Temporary
}

// wait blocks until the provider may be called again. Must hold s.mu.
func (s *Service) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.lastRequest.IsZero() {
		if d := time.Until(s.lastRequest.Add(s.delay)); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	s.lastRequest = time.Now()
	return nil
}

// Batch is the outcome of geocoding a list of records.
type Batch struct {
	Geocoded []models.GeoPoint      `json:"geocoded"`
	Failed   []models.FailedGeocode `json:"failed"`
}

// GeocodeAll geocodes records strictly in order. Failures are classified
// against the whole batch. On cancellation the records processed so far are
// returned along with the context error.
func (s *Service) GeocodeAll(ctx context.Context, records []models.Record) (*Batch, error) {
	corpus := make([]string, len(records))
	for i, r := range records {
		corpus[i] = r.Address
	}
	classifier := NewClassifier(corpus)

	batch := &Batch{
		Geocoded: make([]models.GeoPoint, 0, len(records)),
		Failed:   []models.FailedGeocode{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			log.Printf("[GEOCODING] Batch cancelled: processed=%d total=%d", i, len(records))
			return batch, err
		}

		entry, err := s.geocode(ctx, r.Address)
		if err != nil {
			log.Printf("[GEOCODING] Batch cancelled: processed=%d total=%d", i, len(records))
			return batch, err
		}

		if entry == nil {
			reason := classifier.Classify(r.Address)
			metrics.GeocodeFailuresTotal.WithLabelValues(string(reason)).Inc()
			batch.Failed = append(batch.Failed, models.FailedGeocode{
				Name:    r.Name,
				Address: r.Address,
				Reason:  reason,
				Extra:   r.Extra,
			})
			continue
		}

		batch.Geocoded = append(batch.Geocoded, models.GeoPoint{Record: r, Lat: entry.Lat, Lon: entry.Lon})
	}

	log.Printf("[GEOCODING] Batch complete: geocoded=%d failed=%d", len(batch.Geocoded), len(batch.Failed))
	return batch, nil
}

// Fix is a user correction for a failed record: explicit coordinates, or a
// corrected address to geocode.
type Fix struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Address string   `json:"address,omitempty"`
}

// ApplyFix resolves item using fix. On success the returned point replaces the
// failed record. If a corrected address still fails, the returned FailedGeocode
// carries the new address and a fresh reason.
func (s *Service) ApplyFix(ctx context.Context, item models.FailedGeocode, fix Fix, corpus []string) (*models.GeoPoint, *models.FailedGeocode, error) {
	record := models.Record{Name: item.Name, Address: item.Address, Extra: item.Extra}

	if fix.Lat != nil && fix.Lon != nil {
		lat, lon := *fix.Lat, *fix.Lon
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, nil, fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidCoordinates, lat, lon)
		}

		entry := &models.GeocodeCacheEntry{Lat: lat, Lon: lon, UsedVariant: ManualVariant}
		if err := s.cache.Set(ctx, item.Address, entry); err != nil {
			log.Printf("[ERROR] Geocode cache write failed: address=%s err=%v", item.Address, err)
		}
		log.Printf("[GEOCODING] Manual coordinates applied: name=%s lat=%.6f lon=%.6f", item.Name, lat, lon)
		return &models.GeoPoint{Record: record, Lat: lat, Lon: lon}, nil, nil
	}

	if collapse(fix.Address) == "" {
		return nil, nil, ErrEmptyFix
	}

	entry, err := s.Geocode(ctx, fix.Address)
	if err != nil {
		return nil, nil, err
	}

	if entry == nil {
		failed := item
		failed.Address = fix.Address
		failed.Reason = ClassifyFailure(fix.Address, corpus)
		log.Printf("[GEOCODING] Manual fix failed: name=%s address=%s reason=%s", item.Name, fix.Address, failed.Reason)
		return nil, &failed, nil
	}

	if item.Address != "" && item.Address != fix.Address {
		if err := s.cache.Set(ctx, item.Address, entry); err != nil {
			log.Printf("[ERROR] Geocode cache write failed: address=%s err=%v", item.Address, err)
		}
	}

	record.Address = fix.Address
	log.Printf("[GEOCODING] Manual fix applied: name=%s address=%s", item.Name, fix.Address)
	return &models.GeoPoint{Record: record, Lat: entry.Lat, Lon: entry.Lon}, nil, nil
}
