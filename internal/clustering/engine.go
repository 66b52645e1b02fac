package clustering

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"trip-planner/internal/geo"
	"trip-planner/internal/models"
)

// Strategy selects how the number of clusters is decided
type Strategy string

const (
	ByCount Strategy = "byCount"
	BySize  Strategy = "bySize"
)

// MaxRepairIterations caps the size-balancing passes of the by-size strategy
const MaxRepairIterations = 30

var (
	ErrInvalidClusterCount = errors.New("cluster count must be at least 1")
	ErrInvalidSizeRange    = errors.New("cluster size range must satisfy 1 <= min <= max")
	ErrUnknownStrategy     = errors.New("unknown clustering strategy")
)

// Params are the strategy inputs: K for ByCount, MinSize and MaxSize for BySize
type Params struct {
	K       int `json:"k,omitempty"`
	MinSize int `json:"minSize,omitempty"`
	MaxSize int `json:"maxSize,omitempty"`
}

// Logger receives best-effort warnings about clusters left out of range
type Logger interface {
	Warn(format string, args ...any)
}

type stdLogger struct{}

func (stdLogger) Warn(format string, args ...any) {
	log.Printf("[CLUSTER] "+format, args...)
}

// Validate checks params for strategy without touching any points
func Validate(strategy Strategy, params Params) error {
	switch strategy {
	case ByCount:
		if params.K < 1 {
			return fmt.Errorf("%w: k=%d", ErrInvalidClusterCount, params.K)
		}
	case BySize:
		if params.MinSize < 1 || params.MinSize > params.MaxSize {
			return fmt.Errorf("%w: min=%d max=%d", ErrInvalidSizeRange, params.MinSize, params.MaxSize)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	return nil
}

// Engine labels geocoded points with cluster IDs
type Engine struct {
	partitioner Partitioner
	logger      Logger
}

// NewEngine wires the clustering primitive. A nil logger writes to the standard log.
func NewEngine(partitioner Partitioner, logger Logger) *Engine {
	if logger == nil {
		logger = stdLogger{}
	}
	return &Engine{partitioner: partitioner, logger: logger}
}

// Cluster labels every point. On invalid params nothing is produced and the
// input is left untouched. IDs are not geographically ordered.
func (e *Engine) Cluster(points []models.GeoPoint, strategy Strategy, params Params) ([]models.ClusteredPoint, error) {
	if err := Validate(strategy, params); err != nil {
		log.Printf("[ERROR] Invalid clustering config: strategy=%s err=%v", strategy, err)
		return nil, err
	}

	out := make([]models.ClusteredPoint, len(points))
	if len(points) == 0 {
		return out, nil
	}

	coords := make([]models.Coordinates, len(points))
	for i := range points {
		coords[i] = points[i].Coords()
	}

	k := params.K
	if strategy == BySize {
		avg := float64(params.MinSize+params.MaxSize) / 2
		k = max(1, int(math.Round(float64(len(points))/avg)))
	}

	log.Printf("[CLUSTER] Partitioning: strategy=%s points=%d k=%d", strategy, len(points), k)
	assign, err := e.partitioner.Partition(coords, k)
	if err != nil {
		return nil, fmt.Errorf("partition points: %w", err)
	}
	if len(assign) != len(points) {
		return nil, fmt.Errorf("partition returned %d labels for %d points", len(assign), len(points))
	}

	if strategy == BySize {
		iterations := repair(coords, assign, params.MinSize, params.MaxSize)
		log.Printf("[CLUSTER] Size repair finished: iterations=%d", iterations)

		sizes := clusterSizes(assign)
		for _, c := range sortedIDs(sizes) {
			if sizes[c] < params.MinSize || sizes[c] > params.MaxSize {
				e.logger.Warn("cluster %d has %d points, outside %d-%d", c, sizes[c], params.MinSize, params.MaxSize)
			}
		}
	}

	for i := range points {
		out[i] = models.ClusteredPoint{GeoPoint: points[i], Cluster: assign[i]}
	}
	return out, nil
}

// repair moves points between clusters until sizes fall in [minSize, maxSize], no
// pass moves anything, or MaxRepairIterations is reached. It returns the
// number of passes run.
func repair(coords []models.Coordinates, assign []int, minSize, maxSize int) int {
	for iter := 1; iter <= MaxRepairIterations; iter++ {
		moved := false
		sizes := clusterSizes(assign)

		// Undersize: steal the closest point from any cluster that can spare one
		for _, c := range sortedIDs(sizes) {
			if sizes[c] >= minSize {
				continue
			}
			center := centroid(coords, assign, c)
			best, bestDist := -1, math.Inf(1)
			for i, p := range coords {
				if assign[i] == c || sizes[assign[i]] <= minSize {
					continue
				}
				if d := geo.DistanceMiles(p, center); d < bestDist {
					best, bestDist = i, d
				}
			}
			if best >= 0 {
				sizes[assign[best]]--
				sizes[c]++
				assign[best] = c
				moved = true
			}
		}

		// Oversize: push the farthest member to the nearest cluster with room
		for _, c := range sortedIDs(sizes) {
			if sizes[c] <= maxSize {
				continue
			}
			center := centroid(coords, assign, c)
			far, farDist := -1, -1.0
			for i, p := range coords {
				if assign[i] != c {
					continue
				}
				if d := geo.DistanceMiles(p, center); d > farDist {
					far, farDist = i, d
				}
			}

			target, targetDist := -1, math.Inf(1)
			for _, other := range sortedIDs(sizes) {
				if other == c || sizes[other] == 0 || sizes[other] >= maxSize {
					continue
				}
				if d := geo.DistanceMiles(coords[far], centroid(coords, assign, other)); d < targetDist {
					target, targetDist = other, d
				}
			}
			if target >= 0 {
				sizes[c]--
				sizes[target]++
				assign[far] = target
				moved = true
			}
		}

		if !moved {
			return iter
		}
	}
	return MaxRepairIterations
}

func clusterSizes(assign []int) map[int]int {
	sizes := make(map[int]int)
	for _, c := range assign {
		sizes[c]++
	}
	return sizes
}

func sortedIDs(sizes map[int]int) []int {
	ids := make([]int, 0, len(sizes))
	for c := range sizes {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	return ids
}

func centroid(coords []models.Coordinates, assign []int, c int) models.Coordinates {
	var members []models.Coordinates
	for i, p := range coords {
		if assign[i] == c {
			members = append(members, p)
		}
	}
	return geo.Centroid(members)
}
