package testutil

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"trip-planner/internal/models"
)

// CostCall tracks a call to the cost model
type CostCall struct {
	Origin models.Coordinates
	Dest   models.Coordinates
}

// MockCostModel is a direct (pairwise) cost model for tests.
// It returns scaled Euclidean distance between coordinates so results are deterministic.
type MockCostModel struct {
	ScaleFactor float64
	Overrides   map[string]float64

	mu    sync.Mutex
	Calls []CostCall
}

func NewMockCostModel() *MockCostModel {
	return &MockCostModel{
		ScaleFactor: 69, // 1 degree ≈ 69 miles
		Overrides:   make(map[string]float64),
	}
}

func (m *MockCostModel) makeKey(origin, dest models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f", origin.Lat, origin.Lon, dest.Lat, dest.Lon)
}

// SetCost sets a custom cost for a specific origin-destination pair
func (m *MockCostModel) SetCost(origin, dest models.Coordinates, cost float64) {
	m.Overrides[m.makeKey(origin, dest)] = cost
}

func (m *MockCostModel) Name() string { return "mock" }

func (m *MockCostModel) Cost(ctx context.Context, origin, dest models.Coordinates) float64 {
	m.mu.Lock()
	m.Calls = append(m.Calls, CostCall{Origin: origin, Dest: dest})
	m.mu.Unlock()

	if override, ok := m.Overrides[m.makeKey(origin, dest)]; ok {
		return override
	}

	dLat := dest.Lat - origin.Lat
	dLon := dest.Lon - origin.Lon
	return math.Sqrt(dLat*dLat+dLon*dLon) * m.ScaleFactor
}

// CallCount returns the number of Cost calls so far
func (m *MockCostModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// ResetCalls clears the recorded calls
func (m *MockCostModel) ResetCalls() {
	m.mu.Lock()
	m.Calls = nil
	m.mu.Unlock()
}

// ErrMatrixUnavailable is the default failure of MockMatrixModel when FailMatrix is set
var ErrMatrixUnavailable = errors.New("mock matrix unavailable")

// MockMatrixModel adds a Matrix capability on top of MockCostModel.
// Set FailMatrix to make every Matrix call fail.
type MockMatrixModel struct {
	*MockCostModel
	FailMatrix  bool
	MatrixCalls int
}

func NewMockMatrixModel() *MockMatrixModel {
	return &MockMatrixModel{MockCostModel: NewMockCostModel()}
}

func (m *MockMatrixModel) Name() string { return "mock-matrix" }

// Matrix returns a matrix of costs between all pairs of points
func (m *MockMatrixModel) Matrix(ctx context.Context, points []models.Coordinates) ([][]float64, error) {
	m.MatrixCalls++
	if m.FailMatrix {
		return nil, ErrMatrixUnavailable
	}

	n := len(points)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			if i != j {
				matrix[i][j] = m.MockCostModel.Cost(ctx, points[i], points[j])
			}
		}
	}
	return matrix, nil
}
