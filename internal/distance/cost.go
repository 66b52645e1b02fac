package distance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trip-planner/internal/database"
	"trip-planner/internal/geo"
	"trip-planner/internal/models"
)

const (
	MetricStraightLine = "straight"
	MetricMapbox       = "mapbox"
	MetricOSRM         = "osrm"
)

var (
	ErrUnknownMetric      = errors.New("unknown distance metric")
	ErrMissingAccessToken = errors.New("distance metric requires an API access token")
)

// CostModel gives the cost of travelling from a to b. It never fails: a pair
// that cannot be priced costs +Inf so nearest-neighbour search never picks it.
type CostModel interface {
	Name() string
	Cost(ctx context.Context, a, b models.Coordinates) float64
}

// MatrixModel can also price every ordered pair of points in bulk
type MatrixModel interface {
	CostModel
	Matrix(ctx context.Context, points []models.Coordinates) ([][]float64, error)
}

// ErrMatrixFailed is returned when a travel-time matrix cannot be built
type ErrMatrixFailed struct {
	Points int
	Reason string
}

func (e *ErrMatrixFailed) Error() string {
	return fmt.Sprintf("travel-time matrix failed for %d points: %s", e.Points, e.Reason)
}

// RequiresAccessToken reports whether metric needs a credential
func RequiresAccessToken(metric string) bool {
	return normalize(metric) == MetricMapbox
}

// ValidateMetric checks metric and its credential before any work starts
func ValidateMetric(metric, accessToken string) error {
	switch normalize(metric) {
	case MetricStraightLine, MetricOSRM:
		return nil
	case MetricMapbox:
		if strings.TrimSpace(accessToken) == "" {
			return fmt.Errorf("%s: %w", MetricMapbox, ErrMissingAccessToken)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
}

// New builds the cost model for metric. baseURL overrides the routing
// endpoint for the travel-time metrics and may be empty.
func New(metric, accessToken, baseURL string, cache database.TravelTimeCache) (CostModel, error) {
	if err := ValidateMetric(metric, accessToken); err != nil {
		return nil, err
	}

	switch normalize(metric) {
	case MetricMapbox:
		return NewMapboxMatrix(baseURL, accessToken, cache)
	case MetricOSRM:
		return NewOSRMTable(baseURL, cache), nil
	default:
		return NewGreatCircle(), nil
	}
}

func normalize(metric string) string {
	m := strings.ToLower(strings.TrimSpace(metric))
	switch m {
	case "", "straight-line", "straightline", "haversine", "greatcircle":
		return MetricStraightLine
	}
	return m
}

type greatCircle struct{}

// NewGreatCircle returns the straight-line model, in miles
func NewGreatCircle() CostModel {
	return greatCircle{}
}

func (greatCircle) Name() string { return MetricStraightLine }

func (greatCircle) Cost(_ context.Context, a, b models.Coordinates) float64 {
	return geo.DistanceMiles(a, b)
}
