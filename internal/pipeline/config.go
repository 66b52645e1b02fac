package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"trip-planner/internal/clustering"
	"trip-planner/internal/distance"
	"trip-planner/internal/geocoding"
)

// ErrMissingAPIKey is returned when the selected metric or provider needs a
// credential that was not supplied
var ErrMissingAPIKey = errors.New("missing API key")

// Config holds every user choice for a run. It is built once by the caller
// and validated before any network or clustering work.
type Config struct {
	Strategy        clustering.Strategy `json:"strategy"`
	K               int                 `json:"k,omitempty"`
	MinSize         int                 `json:"minSize,omitempty"`
	MaxSize         int                 `json:"maxSize,omitempty"`
	Metric          string              `json:"metric,omitempty"`
	Provider        string              `json:"provider,omitempty"`
	APIKey          string              `json:"apiKey,omitempty"`
	RoutingAPIKey   string              `json:"routingApiKey,omitempty"`
	StartingAddress string              `json:"startingAddress,omitempty"`
}

// Params returns the clustering inputs of c
func (c Config) Params() clustering.Params {
	return clustering.Params{K: c.K, MinSize: c.MinSize, MaxSize: c.MaxSize}
}

// RoutingKey is the credential used by the distance metric. A Mapbox
// geocoding key doubles as the routing token when none is given.
func (c Config) RoutingKey() string {
	if strings.TrimSpace(c.RoutingAPIKey) != "" {
		return c.RoutingAPIKey
	}
	if strings.EqualFold(strings.TrimSpace(c.Provider), geocoding.ProviderMapbox) {
		return c.APIKey
	}
	return ""
}

// ValidateGeocoding checks the provider settings
func (c Config) ValidateGeocoding() error {
	if err := geocoding.ValidateProvider(c.Provider, c.APIKey); err != nil {
		return wrapMissingKey(err)
	}
	return nil
}

// ValidateClustering checks the strategy and its params
func (c Config) ValidateClustering() error {
	return clustering.Validate(c.Strategy, c.Params())
}

// ValidateRouting checks the metric and its credential. A starting address
// also needs a usable provider to be geocoded.
func (c Config) ValidateRouting() error {
	if err := distance.ValidateMetric(c.Metric, c.RoutingKey()); err != nil {
		return wrapMissingKey(err)
	}
	if strings.TrimSpace(c.StartingAddress) != "" {
		return c.ValidateGeocoding()
	}
	return nil
}

// Validate checks the whole configuration
func (c Config) Validate() error {
	if err := c.ValidateGeocoding(); err != nil {
		return err
	}
	if err := c.ValidateClustering(); err != nil {
		return err
	}
	return c.ValidateRouting()
}

func wrapMissingKey(err error) error {
	if errors.Is(err, geocoding.ErrMissingAPIKey) || errors.Is(err, distance.ErrMissingAccessToken) {
		return fmt.Errorf("%w: %w", ErrMissingAPIKey, err)
	}
	return err
}
