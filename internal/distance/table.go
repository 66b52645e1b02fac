package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trip-planner/internal/database"
	"trip-planner/internal/httpx"
	"trip-planner/internal/metrics"
	"trip-planner/internal/models"
)

const (
	mapboxBaseURL = "https://api.mapbox.com"
	osrmBaseURL   = "https://router.project-osrm.org"

	// Coordinates accepted per request by each service
	maxMapboxCoordinates = 25
	maxOSRMCoordinates   = 80
)

// tableModel prices pairs with a duration table endpoint. Mapbox's Matrix API
// and OSRM's table service share the request and response shape.
type tableModel struct {
	name        string
	baseURL     string
	pathPrefix  string
	accessToken string
	maxCoords   int
	pause       time.Duration

	client *httpx.Client
	cache  database.TravelTimeCache
}

type tableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
}

// NewMapboxMatrix returns a travel-time model backed by the Mapbox Matrix API.
func NewMapboxMatrix(baseURL, accessToken string, cache database.TravelTimeCache) (MatrixModel, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%s: %w", MetricMapbox, ErrMissingAccessToken)
	}
	if baseURL == "" {
		baseURL = mapboxBaseURL
	}
	return newTableModel(MetricMapbox, baseURL, "/directions-matrix/v1/mapbox/driving/", accessToken, maxMapboxCoordinates, time.Second, cache), nil
}

// NewOSRMTable returns a travel-time model backed by an OSRM table service.
func NewOSRMTable(baseURL string, cache database.TravelTimeCache) MatrixModel {
	if baseURL == "" {
		baseURL = osrmBaseURL
	}
	return newTableModel(MetricOSRM, baseURL, "/table/v1/driving/", "", maxOSRMCoordinates, 100*time.Millisecond, cache)
}

func newTableModel(name, baseURL, pathPrefix, accessToken string, maxCoords int, pause time.Duration, cache database.TravelTimeCache) *tableModel {
	if cache == nil {
		cache = database.NewMemoryTravelTimeCache()
	}
	return &tableModel{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		pathPrefix:  pathPrefix,
		accessToken: accessToken,
		maxCoords:   maxCoords,
		pause:       pause,
		client:      httpx.NewClient(30 * time.Second),
		cache:       cache,
	}
}

func (c *tableModel) Name() string { return c.name }

// Cost looks up a single pair, through the cache. Any failure costs +Inf.
func (c *tableModel) Cost(ctx context.Context, a, b models.Coordinates) float64 {
	if sameRounded(a, b) {
		return 0
	}

	cached, err := c.cache.Get(ctx, a, b)
	if err != nil {
		log.Printf("[ERROR] Travel-time cache read failed: err=%v", err)
	}
	if cached != nil {
		return cached.DurationSecs
	}

	m, err := c.Matrix(ctx, []models.Coordinates{a, b})
	if err != nil {
		log.Printf("[MATRIX] Pair lookup failed, treating as unreachable: origin=(%.6f,%.6f) dest=(%.6f,%.6f) err=%v",
			a.Lat, a.Lon, b.Lat, b.Lon, err)
		return math.Inf(1)
	}
	return m[0][1]
}

// Matrix builds the full duration matrix for points, in seconds. Cached pairs
// are reused; the rest is fetched in requests of at most maxCoords
// coordinates. Unroutable pairs are +Inf. Any failed request fails the whole
// matrix.
func (c *tableModel) Matrix(ctx context.Context, points []models.Coordinates) ([][]float64, error) {
	n := len(points)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	if n < 2 {
		return matrix, nil
	}

	missing := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if sameRounded(points[i], points[j]) {
				continue
			}

			cached, err := c.cache.Get(ctx, points[i], points[j])
			if err != nil {
				log.Printf("[ERROR] Travel-time cache read failed: err=%v", err)
			}
			if cached != nil {
				matrix[i][j] = cached.DurationSecs
			} else {
				matrix[i][j] = -1
				missing++
			}
		}
	}

	if missing == 0 {
		log.Printf("[MATRIX] Matrix all cached: metric=%s points=%d", c.name, n)
		return matrix, nil
	}

	log.Printf("[MATRIX] Matrix request: metric=%s points=%d missing=%d", c.name, n, missing)

	var batches [][]int
	if n <= c.maxCoords {
		batches = [][]int{indexRange(0, n)}
	} else {
		// Source and destination batches share one request, so each half gets half the budget
		size := c.maxCoords / 2
		if size < 1 {
			size = 1
		}
		for i := 0; i < n; i += size {
			batches = append(batches, indexRange(i, min(i+size, n)))
		}
	}

	var entries []models.TravelTimeCacheEntry
	requests := 0
	for _, src := range batches {
		for _, dst := range batches {
			if !needsFetch(matrix, src, dst) {
				continue
			}

			if requests > 0 && c.pause > 0 {
				timer := time.NewTimer(c.pause)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
			requests++

			durations, err := c.fetch(ctx, points, src, dst)
			if err != nil {
				metrics.MatrixFailuresTotal.WithLabelValues(c.name).Inc()
				log.Printf("[ERROR] Matrix request failed: metric=%s points=%d err=%v", c.name, n, err)
				return nil, &ErrMatrixFailed{Points: n, Reason: err.Error()}
			}

			for si, i := range src {
				for di, j := range dst {
					if matrix[i][j] != -1 {
						continue
					}
					d := durations[si][di]
					if d == nil {
						matrix[i][j] = math.Inf(1)
						continue
					}
					matrix[i][j] = *d
					entries = append(entries, models.TravelTimeCacheEntry{
						Origin:       points[i],
						Destination:  points[j],
						DurationSecs: *d,
					})
				}
			}
		}
	}

	log.Printf("[MATRIX] Matrix complete: metric=%s requests=%d entries=%d", c.name, requests, len(entries))

	if err := c.cache.SetBatch(ctx, entries); err != nil {
		log.Printf("[ERROR] Travel-time cache write failed: err=%v", err)
	}

	return matrix, nil
}

// fetch requests durations from every src point to every dst point.
func (c *tableModel) fetch(ctx context.Context, points []models.Coordinates, src, dst []int) ([][]*float64, error) {
	local := make(map[int]int, len(src)+len(dst))
	var coords []string
	add := func(idx int) {
		if _, ok := local[idx]; ok {
			return
		}
		local[idx] = len(coords)
		coords = append(coords, fmt.Sprintf("%.6f,%.6f", points[idx].Lon, points[idx].Lat))
	}
	for _, idx := range src {
		add(idx)
	}
	for _, idx := range dst {
		add(idx)
	}

	sources := make([]string, len(src))
	for k, idx := range src {
		sources[k] = strconv.Itoa(local[idx])
	}
	destinations := make([]string, len(dst))
	for k, idx := range dst {
		destinations[k] = strconv.Itoa(local[idx])
	}

	q := url.Values{}
	q.Set("annotations", "duration")
	q.Set("sources", strings.Join(sources, ";"))
	q.Set("destinations", strings.Join(destinations, ";"))
	if c.accessToken != "" {
		q.Set("access_token", c.accessToken)
	}
	queryURL := c.baseURL + c.pathPrefix + strings.Join(coords, ";") + "?" + q.Encode()

	metrics.MatrixRequestsTotal.WithLabelValues(c.name).Inc()
	resp, err := c.client.Get(ctx, queryURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var table tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if table.Code != "Ok" {
		return nil, fmt.Errorf("service error: code=%s message=%s", table.Code, table.Message)
	}
	if len(table.Durations) != len(src) {
		return nil, fmt.Errorf("expected %d rows, got %d", len(src), len(table.Durations))
	}
	for _, row := range table.Durations {
		if len(row) != len(dst) {
			return nil, fmt.Errorf("expected %d columns, got %d", len(dst), len(row))
		}
	}

	return table.Durations, nil
}

func needsFetch(matrix [][]float64, src, dst []int) bool {
	for _, i := range src {
		for _, j := range dst {
			if matrix[i][j] == -1 {
				return true
			}
		}
	}
	return false
}

func indexRange(from, to int) []int {
	out := make([]int, to-from)
	for i := range out {
		out[i] = from + i
	}
	return out
}

func sameRounded(a, b models.Coordinates) bool {
	return models.RoundCoordinate(a.Lat) == models.RoundCoordinate(b.Lat) &&
		models.RoundCoordinate(a.Lon) == models.RoundCoordinate(b.Lon)
}
