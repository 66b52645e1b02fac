package geocoding

import (
	"context"
	"fmt"
	"time"

	"trip-planner/internal/httpx"
	"trip-planner/internal/models"
)

const locationIQBaseURL = "https://us1.locationiq.com"

type locationIQ struct {
	httpProvider
	apiKey string
}

// NewLocationIQ returns a keyed LocationIQ geocoder (two requests per second on the free tier).
func NewLocationIQ(baseURL, apiKey string) Provider {
	if baseURL == "" {
		baseURL = locationIQBaseURL
	}
	return &locationIQ{
		httpProvider: httpProvider{
			name:    ProviderLocationIQ,
			baseURL: baseURL,
			client:  httpx.NewSingleAttemptClient(10 * time.Second),
			delay:   500 * time.Millisecond,
		},
		apiKey: apiKey,
	}
}

func (g *locationIQ) Lookup(ctx context.Context, query string) (*models.Coordinates, error) {
	queryURL := fmt.Sprintf("%s/v1/search?key=%s&q=%s&format=json&limit=1", g.baseURL, escape(g.apiKey), escape(query))

	var results []candidate
	if err := g.getJSON(ctx, query, queryURL, &results); err != nil {
		return nil, err
	}
	return firstCandidate(query, results)
}
