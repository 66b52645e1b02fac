package sequencing

import (
	"log"
	"math"
	"sort"

	"trip-planner/internal/geo"
	"trip-planner/internal/models"
)

// Centroids returns the centroid of every non-outlier cluster, keyed by cluster ID
func Centroids(points []models.ClusteredPoint) map[int]models.Coordinates {
	members := make(map[int][]models.Coordinates)
	for i := range points {
		if points[i].Cluster == models.Outlier {
			continue
		}
		members[points[i].Cluster] = append(members[points[i].Cluster], points[i].Coords())
	}

	centroids := make(map[int]models.Coordinates, len(members))
	for id, coords := range members {
		centroids[id] = geo.Centroid(coords)
	}
	return centroids
}

// Order returns the cluster IDs in visiting order: the northernmost centroid
// first, then repeatedly the unvisited centroid nearest the current one.
// Ties go to the lower cluster ID.
func Order(points []models.ClusteredPoint) []int {
	centroids := Centroids(points)
	if len(centroids) == 0 {
		return []int{}
	}

	ids := make([]int, 0, len(centroids))
	for id := range centroids {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	coords := make([]models.Coordinates, len(ids))
	for i, id := range ids {
		coords[i] = centroids[id]
	}

	visited := make([]bool, len(ids))
	current := geo.Northernmost(coords)
	order := make([]int, 0, len(ids))

	for {
		visited[current] = true
		order = append(order, ids[current])
		if len(order) == len(ids) {
			break
		}

		next, nextDist := -1, math.Inf(1)
		for i := range ids {
			if visited[i] {
				continue
			}
			if d := geo.DistanceMiles(coords[current], coords[i]); d < nextDist {
				next, nextDist = i, d
			}
		}
		current = next
	}

	return order
}

// Renumber returns a copy of points with dense cluster IDs 0..K-1 assigned in
// visiting order. Outliers keep their label. Renumbering its own output is a no-op.
func Renumber(points []models.ClusteredPoint) []models.ClusteredPoint {
	order := Order(points)

	newID := make(map[int]int, len(order))
	for i, old := range order {
		newID[old] = i
	}

	out := make([]models.ClusteredPoint, len(points))
	for i := range points {
		out[i] = points[i]
		if points[i].Cluster != models.Outlier {
			out[i].Cluster = newID[points[i].Cluster]
		}
	}

	log.Printf("[SEQUENCE] Renumbered clusters: clusters=%d points=%d", len(order), len(points))
	return out
}
