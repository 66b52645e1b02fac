package routing

import (
	"context"
	"log"
	"math"

	"trip-planner/internal/distance"
	"trip-planner/internal/geo"
	"trip-planner/internal/metrics"
	"trip-planner/internal/models"
	"trip-planner/internal/sequencing"
)

// Optimizer orders every cluster's points into a visiting route
type Optimizer struct {
	model distance.CostModel
}

// NewOptimizer creates a nearest-neighbour route optimizer over model. Models
// that also implement distance.MatrixModel are priced one matrix per cluster.
func NewOptimizer(model distance.CostModel) *Optimizer {
	return &Optimizer{model: model}
}

// Optimize returns one route per non-outlier cluster, in geographic sequence.
// Each route starts next to where the previous one ended (or next to start for
// the first cluster) and ends at the member closest to the next cluster's
// centroid. Only context cancellation is returned as an error.
func (o *Optimizer) Optimize(ctx context.Context, points []models.ClusteredPoint, start *models.Coordinates) ([]models.Route, error) {
	order := sequencing.Order(points)
	centroids := sequencing.Centroids(points)

	groups := make(map[int][]models.ClusteredPoint, len(order))
	for i := range points {
		if points[i].Cluster == models.Outlier {
			continue
		}
		groups[points[i].Cluster] = append(groups[points[i].Cluster], points[i])
	}

	log.Printf("[ROUTING] Starting optimization: clusters=%d points=%d model=%s start=%v",
		len(order), len(points), o.model.Name(), start != nil)

	routes := make([]models.Route, 0, len(order))
	entry := start
	for idx, id := range order {
		if err := ctx.Err(); err != nil {
			return routes, err
		}

		var next *models.Coordinates
		if idx+1 < len(order) {
			c := centroids[order[idx+1]]
			next = &c
		}

		route, err := o.routeCluster(ctx, id, groups[id], entry, next)
		if err != nil {
			return routes, err
		}
		routes = append(routes, route)

		last := route.Points[len(route.Points)-1].Coords()
		entry = &last
	}

	log.Printf("[ROUTING] Optimization complete: routes=%d", len(routes))
	return routes, nil
}

// routeCluster orders one cluster's members. entry anchors the first stop;
// next, when set, biases the last stop toward the following cluster.
func (o *Optimizer) routeCluster(ctx context.Context, id int, members []models.ClusteredPoint, entry, next *models.Coordinates) (models.Route, error) {
	nodes := make([]models.Coordinates, 0, len(members)+1)
	anchored := false
	startNode := 0

	if entry != nil {
		match := -1
		for i := range members {
			if geo.SameLocation(members[i].Coords(), *entry) {
				match = i
				break
			}
		}
		if match < 0 {
			// The anchor is routed from but never reported as a stop
			nodes = append(nodes, *entry)
			anchored = true
		} else {
			startNode = match
		}
	}
	for i := range members {
		nodes = append(nodes, members[i].Coords())
	}
	if entry == nil {
		startNode = geo.Northernmost(nodes)
	}

	offset := 0
	if anchored {
		offset = 1
	}

	exitNode := -1
	if next != nil && len(members) > 1 {
		// Straight-line on purpose, whatever the cost model
		best := math.Inf(1)
		for i := range members {
			if d := geo.DistanceMiles(members[i].Coords(), *next); d < best {
				best, exitNode = d, i+offset
			}
		}
	}

	cost, err := o.costFunc(ctx, id, nodes)
	if err != nil {
		return models.Route{}, err
	}

	visit := nearestNeighbor(len(nodes), startNode, exitNode, cost)
	if anchored {
		visit = visit[1:]
	}

	route := models.Route{Cluster: id, Points: make([]models.ClusteredPoint, len(visit))}
	for i, node := range visit {
		route.Points[i] = members[node-offset]
	}

	skipped := 0
	for i := 1; i < len(visit); i++ {
		c := cost(visit[i-1], visit[i])
		if math.IsInf(c, 1) {
			skipped++
			continue
		}
		route.Distance += c
	}
	if skipped > 0 {
		log.Printf("[ROUTING] Unpriced legs left out of distance: cluster=%d legs=%d", id, skipped)
	}

	log.Printf("[ROUTING] Cluster routed: cluster=%d stops=%d distance=%.2f anchored=%v", id, len(route.Points), route.Distance, anchored)
	return route, nil
}

// costFunc prices node pairs from one matrix when the model supports it,
// falling back to direct pairwise costs when the matrix cannot be built.
func (o *Optimizer) costFunc(ctx context.Context, id int, nodes []models.Coordinates) (func(i, j int) float64, error) {
	direct := func(i, j int) float64 {
		if i == j {
			return 0
		}
		return o.model.Cost(ctx, nodes[i], nodes[j])
	}

	mm, ok := o.model.(distance.MatrixModel)
	if !ok || len(nodes) < 2 {
		return direct, nil
	}

	matrix, err := mm.Matrix(ctx, nodes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.RouteFallbacksTotal.Inc()
		log.Printf("[ROUTING] Matrix unavailable, using direct costs: cluster=%d nodes=%d err=%v", id, len(nodes), err)
		return direct, nil
	}

	return func(i, j int) float64 { return matrix[i][j] }, nil
}

// nearestNeighbor returns a visiting order over nodes 0..n-1 beginning at
// start. A non-negative exit other than start is held back and visited last.
// When every remaining candidate is unreachable the lowest index is taken so
// no node is dropped.
func nearestNeighbor(n, start, exit int, cost func(i, j int) float64) []int {
	if n == 0 {
		return []int{}
	}

	visited := make([]bool, n)
	visited[start] = true
	remaining := n - 1
	reserved := exit >= 0 && exit != start
	if reserved {
		visited[exit] = true
		remaining--
	}

	order := make([]int, 0, n)
	order = append(order, start)
	current := start

	for ; remaining > 0; remaining-- {
		best, bestCost := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if c := cost(current, j); c < bestCost {
				best, bestCost = j, c
			}
		}
		if best < 0 {
			for j := 0; j < n; j++ {
				if !visited[j] {
					best = j
					break
				}
			}
		}

		visited[best] = true
		order = append(order, best)
		current = best
	}

	if reserved {
		order = append(order, exit)
	}
	return order
}
