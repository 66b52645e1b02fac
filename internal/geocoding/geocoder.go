package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trip-planner/internal/httpx"
	"trip-planner/internal/metrics"
	"trip-planner/internal/models"
)

const (
	ProviderNominatim  = "nominatim"
	ProviderLocationIQ = "locationiq"
	ProviderMapbox     = "mapbox"
)

var (
	ErrUnknownProvider = errors.New("unknown geocoding provider")
	ErrMissingAPIKey   = errors.New("geocoding provider requires an API key")
)

// ErrGeocodingFailed is returned when a provider cannot resolve a query
type ErrGeocodingFailed struct {
	Address string
	Reason  string
	// Temporary marks throttling, server and network failures that may
	// succeed when repeated.
	Temporary bool
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for address: %s - %s", e.Address, e.Reason)
}

// Provider resolves a single free-text query to coordinates
type Provider interface {
	Name() string
	// Delay is the minimum spacing between two requests to this provider.
	Delay() time.Duration
	Lookup(ctx context.Context, query string) (*models.Coordinates, error)
}

// ValidateProvider checks name and its key before any request is made
func ValidateProvider(name, apiKey string) error {
	switch normalizeProvider(name) {
	case ProviderNominatim:
		return nil
	case ProviderLocationIQ, ProviderMapbox:
		if strings.TrimSpace(apiKey) == "" {
			return fmt.Errorf("%s: %w", normalizeProvider(name), ErrMissingAPIKey)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// NewProvider builds the named provider against its public endpoint.
func NewProvider(name, apiKey string) (Provider, error) {
	if err := ValidateProvider(name, apiKey); err != nil {
		return nil, err
	}

	switch normalizeProvider(name) {
	case ProviderLocationIQ:
		return NewLocationIQ("", apiKey), nil
	case ProviderMapbox:
		return NewMapbox("", apiKey), nil
	default:
		return NewNominatim(""), nil
	}
}

func normalizeProvider(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ProviderNominatim
	}
	return n
}

// httpProvider holds what every provider shares: endpoint, client and pacing.
type httpProvider struct {
	name    string
	baseURL string
	client  *httpx.Client
	delay   time.Duration
}

func (p *httpProvider) Name() string { return p.name }
func (p *httpProvider) Delay() time.Duration { return p.delay }

func (p *httpProvider) getJSON(ctx context.Context, query, queryURL string, out any) error {
	metrics.GeocodeRequestsTotal.WithLabelValues(p.name).Inc()
	log.Printf("[GEOCODING] Request: provider=%s query=%s", p.name, query)

	resp, err := p.client.Get(ctx, queryURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[ERROR] Geocoding API request failed: provider=%s query=%s err=%v", p.name, query, err)
		return &ErrGeocodingFailed{Address: query, Reason: err.Error(), Temporary: httpx.Retryable(err)}
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Printf("[ERROR] Failed to decode geocoding response: provider=%s query=%s err=%v", p.name, query, err)
		return &ErrGeocodingFailed{Address: query, Reason: err.Error()}
	}
	return nil
}

// candidate is the array-of-results shape shared by Nominatim and LocationIQ
type candidate struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func firstCandidate(query string, results []candidate) (*models.Coordinates, error) {
	if len(results) == 0 {
		return nil, &ErrGeocodingFailed{Address: query, Reason: "no results found"}
	}

	result := results[0]
	lat, err := strconv.ParseFloat(strings.TrimSpace(result.Lat), 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return nil, &ErrGeocodingFailed{Address: query, Reason: "invalid latitude"}
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(result.Lon), 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return nil, &ErrGeocodingFailed{Address: query, Reason: "invalid longitude"}
	}

	log.Printf("[GEOCODING] Response: query=%s lat=%.6f lon=%.6f display_name=%s", query, lat, lon, result.DisplayName)
	return &models.Coordinates{Lat: lat, Lon: lon}, nil
}

func escape(q string) string { return url.QueryEscape(q) }
