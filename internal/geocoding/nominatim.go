package geocoding

import (
	"context"
	"fmt"
	"time"

	"trip-planner/internal/httpx"
	"trip-planner/internal/models"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org"

type nominatim struct {
	httpProvider
}

// NewNominatim returns the free OSM geocoder, limited to one request per second.
// An empty baseURL selects the public endpoint.
func NewNominatim(baseURL string) Provider {
	if baseURL == "" {
		baseURL = nominatimBaseURL
	}
	return &nominatim{httpProvider{
		name:    ProviderNominatim,
		baseURL: baseURL,
		client:  httpx.NewSingleAttemptClient(10 * time.Second),
		delay:   time.Second,
	}}
}

func (g *nominatim) Lookup(ctx context.Context, query string) (*models.Coordinates, error) {
	queryURL := fmt.Sprintf("%s/search?q=%s&format=json&limit=1", g.baseURL, escape(query))

	var results []candidate
	if err := g.getJSON(ctx, query, queryURL, &results); err != nil {
		return nil, err
	}
	return firstCandidate(query, results)
}
