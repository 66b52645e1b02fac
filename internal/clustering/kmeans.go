package clustering

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"trip-planner/internal/geo"
	"trip-planner/internal/models"
)

// Partitioner is the geometric clustering primitive: it splits points into at
// most k groups and returns one group index per point.
type Partitioner interface {
	Partition(points []models.Coordinates, k int) ([]int, error)
}

const defaultMaxIterations = 100

// KMeans is Lloyd's algorithm with k-means++ seeding over great-circle distance
type KMeans struct {
	rng           *rand.Rand
	MaxIterations int
}

// NewKMeans returns a k-means partitioner. A zero seed draws one from the clock,
// any other seed makes results reproducible.
func NewKMeans(seed int64) *KMeans {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &KMeans{
		rng:           rand.New(rand.NewSource(seed)),
		MaxIterations: defaultMaxIterations,
	}
}

func (km *KMeans) Partition(points []models.Coordinates, k int) ([]int, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidClusterCount, k)
	}

	n := len(points)
	assign := make([]int, n)
	if n == 0 {
		return assign, nil
	}
	if k > n {
		k = n
	}

	centers := km.seed(points, k)

	for iter := 0; iter < km.MaxIterations; iter++ {
		changed := false
		for i, p := range points {
			if best := nearest(p, centers); best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		members := make([][]models.Coordinates, k)
		for i, c := range assign {
			members[c] = append(members[c], points[i])
		}
		for c := range centers {
			if len(members[c]) > 0 {
				centers[c] = geo.Centroid(members[c])
				continue
			}
			// Re-seed an empty cluster at the point worst served by its center
			far, farDist := 0, -1.0
			for i, p := range points {
				if d := geo.DistanceMiles(p, centers[assign[i]]); d > farDist {
					far, farDist = i, d
				}
			}
			centers[c] = points[far]
			assign[far] = c
		}
	}

	return assign, nil
}

// seed picks k initial centers with k-means++: each new center is drawn with
// probability proportional to its squared distance from the nearest chosen one.
func (km *KMeans) seed(points []models.Coordinates, k int) []models.Coordinates {
	centers := make([]models.Coordinates, 0, k)
	centers = append(centers, points[km.rng.Intn(len(points))])

	weights := make([]float64, len(points))
	for len(centers) < k {
		total := 0.0
		for i, p := range points {
			d := geo.DistanceMiles(p, centers[nearest(p, centers)])
			weights[i] = d * d
			total += weights[i]
		}

		if total == 0 {
			// Every remaining point sits on a center already
			centers = append(centers, points[km.rng.Intn(len(points))])
			continue
		}

		target := km.rng.Float64() * total
		chosen := len(points) - 1
		for i, w := range weights {
			target -= w
			if target < 0 {
				chosen = i
				break
			}
		}
		centers = append(centers, points[chosen])
	}

	return centers
}

func nearest(p models.Coordinates, centers []models.Coordinates) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := geo.DistanceMiles(p, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
