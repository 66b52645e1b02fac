package geocoding

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"trip-planner/internal/httpx"
	"trip-planner/internal/models"
)

const mapboxBaseURL = "https://api.mapbox.com"

type mapbox struct {
	httpProvider
	accessToken string
}

type mapboxResponse struct {
	Features []struct {
		Center    []float64 `json:"center"`
		PlaceName string    `json:"place_name"`
	} `json:"features"`
}

// NewMapbox returns a Mapbox Places geocoder.
func NewMapbox(baseURL, accessToken string) Provider {
	if baseURL == "" {
		baseURL = mapboxBaseURL
	}
	return &mapbox{
		httpProvider: httpProvider{
			name:    ProviderMapbox,
			baseURL: baseURL,
			client:  httpx.NewSingleAttemptClient(10 * time.Second),
			delay:   100 * time.Millisecond,
		},
		accessToken: accessToken,
	}
}

func (g *mapbox) Lookup(ctx context.Context, query string) (*models.Coordinates, error) {
	queryURL := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?access_token=%s&limit=1",
		g.baseURL, url.PathEscape(query), escape(g.accessToken))

	var resp mapboxResponse
	if err := g.getJSON(ctx, query, queryURL, &resp); err != nil {
		return nil, err
	}

	if len(resp.Features) == 0 {
		return nil, &ErrGeocodingFailed{Address: query, Reason: "no results found"}
	}

	// GeoJSON order is [lon, lat]
	center := resp.Features[0].Center
	if len(center) != 2 {
		return nil, &ErrGeocodingFailed{Address: query, Reason: "invalid feature center"}
	}

	log.Printf("[GEOCODING] Response: query=%s lat=%.6f lon=%.6f place_name=%s", query, center[1], center[0], resp.Features[0].PlaceName)
	return &models.Coordinates{Lat: center[1], Lon: center[0]}, nil
}
