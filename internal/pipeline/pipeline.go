package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"trip-planner/internal/clustering"
	"trip-planner/internal/database"
	"trip-planner/internal/distance"
	"trip-planner/internal/geocoding"
	"trip-planner/internal/metrics"
	"trip-planner/internal/models"
	"trip-planner/internal/obs"
	"trip-planner/internal/routing"
	"trip-planner/internal/sequencing"
)

// ErrFixIndex is returned when a manual fix names a failed record that does not exist
var ErrFixIndex = errors.New("failed geocode index out of range")

// Deps are the collaborators shared by every run
type Deps struct {
	GeocodeCache    database.GeocodeCache
	TravelTimeCache database.TravelTimeCache
	Partitioner     clustering.Partitioner
	Notifier        Notifier
	RoutingBaseURL  string

	// NewProvider and NewCostModel default to geocoding.NewProvider and distance.New
	NewProvider  func(name, apiKey string) (geocoding.Provider, error)
	NewCostModel func(metric, accessToken string) (distance.CostModel, error)
}

// State is everything one run produced, stage by stage
type State struct {
	Records   []models.Record         `json:"records"`
	Geocoded  []models.GeoPoint       `json:"geocoded"`
	Failed    []models.FailedGeocode  `json:"failed"`
	Clustered []models.ClusteredPoint `json:"clustered"`
	Routes    []models.Route          `json:"routes"`
}

// Summary condenses a finished run
type Summary struct {
	Geocoded      int     `json:"geocoded"`
	Failed        int     `json:"failed"`
	Clusters      int     `json:"clusters"`
	ClusterSizes  []int   `json:"clusterSizes"`
	Outliers      int     `json:"outliers"`
	TotalDistance float64 `json:"totalDistance"`
}

// Summary reports counts per stage. ClusterSizes is indexed by cluster ID.
func (s *State) Summary() Summary {
	sum := Summary{
		Geocoded:     len(s.Geocoded),
		Failed:       len(s.Failed),
		ClusterSizes: []int{},
	}

	for _, p := range s.Clustered {
		if p.Cluster == models.Outlier {
			sum.Outliers++
			continue
		}
		for len(sum.ClusterSizes) <= p.Cluster {
			sum.ClusterSizes = append(sum.ClusterSizes, 0)
		}
		sum.ClusterSizes[p.Cluster]++
	}
	sum.Clusters = len(sum.ClusterSizes)

	for _, r := range s.Routes {
		sum.TotalDistance += r.Distance
	}
	return sum
}

// Pipeline runs geocoding, clustering, sequencing and route optimization.
// Each stage takes the previous stage's output and returns its own.
type Pipeline struct {
	deps Deps

	mu       sync.Mutex
	services map[string]*geocoding.Service

	// the partitioner may hold an RNG that is not safe for concurrent use
	clusterMu sync.Mutex
}

// New fills unset deps with in-memory caches, a clock-seeded k-means and the
// log notifier.
func New(deps Deps) *Pipeline {
	if deps.GeocodeCache == nil {
		deps.GeocodeCache = database.NewMemoryGeocodeCache()
	}
	if deps.TravelTimeCache == nil {
		deps.TravelTimeCache = database.NewMemoryTravelTimeCache()
	}
	if deps.Partitioner == nil {
		deps.Partitioner = clustering.NewKMeans(0)
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier()
	}
	if deps.NewProvider == nil {
		deps.NewProvider = geocoding.NewProvider
	}
	if deps.NewCostModel == nil {
		baseURL, cache := deps.RoutingBaseURL, deps.TravelTimeCache
		deps.NewCostModel = func(metric, accessToken string) (distance.CostModel, error) {
			return distance.New(metric, accessToken, baseURL, cache)
		}
	}

	return &Pipeline{
		deps:     deps,
		services: make(map[string]*geocoding.Service),
	}
}

// Run validates cfg, then geocodes, clusters and routes records. On failure
// the state holds whatever the finished stages produced.
func (p *Pipeline) Run(ctx context.Context, cfg Config, records []models.Record) (state *State, err error) {
	if err := cfg.Validate(); err != nil {
		p.deps.Notifier.Error("invalid settings: %v", err)
		return nil, err
	}

	ctx = obs.WithRunID(ctx)
	defer obs.Time(ctx, "pipeline.run")(&err)

	log.Printf("[PIPELINE] Run started: run_id=%s records=%d strategy=%s metric=%s",
		obs.RunID(ctx), len(records), cfg.Strategy, cfg.Metric)

	state = &State{Records: records}

	batch, err := p.Geocode(ctx, cfg, records)
	if batch != nil {
		state.Geocoded, state.Failed = batch.Geocoded, batch.Failed
	}
	if err != nil {
		return state, err
	}

	state.Clustered, err = p.Cluster(ctx, cfg, state.Geocoded)
	if err != nil {
		return state, err
	}

	state.Routes, err = p.Optimize(ctx, cfg, state.Clustered)
	if err != nil {
		return state, err
	}

	sum := state.Summary()
	log.Printf("[PIPELINE] Run complete: run_id=%s geocoded=%d failed=%d clusters=%d distance=%.2f",
		obs.RunID(ctx), sum.Geocoded, sum.Failed, sum.Clusters, sum.TotalDistance)
	return state, nil
}

// Geocode resolves records one at a time through the configured provider.
// On cancellation the partial batch is returned with the context error.
func (p *Pipeline) Geocode(ctx context.Context, cfg Config, records []models.Record) (batch *geocoding.Batch, err error) {
	svc, err := p.service(cfg)
	if err != nil {
		p.deps.Notifier.Error("cannot geocode: %v", err)
		return nil, err
	}

	defer p.stage(ctx, "geocode")(&err)

	batch, err = svc.GeocodeAll(ctx, records)
	if n := len(batch.Failed); n > 0 {
		p.deps.Notifier.Warn("%d of %d addresses could not be geocoded", n, len(records))
	}
	return batch, err
}

// ApplyFix corrects batch.Failed[index]. When the fix resolves, the record
// moves to the geocoded list; otherwise it stays failed with its new address
// and reason. The input batch is left as is. The bool reports whether the
// record resolved.
func (p *Pipeline) ApplyFix(ctx context.Context, cfg Config, batch geocoding.Batch, index int, fix geocoding.Fix) (*geocoding.Batch, bool, error) {
	if index < 0 || index >= len(batch.Failed) {
		return nil, false, fmt.Errorf("%w: %d", ErrFixIndex, index)
	}

	svc, err := p.service(cfg)
	if err != nil {
		return nil, false, err
	}

	corpus := make([]string, 0, len(batch.Geocoded)+len(batch.Failed))
	for _, g := range batch.Geocoded {
		corpus = append(corpus, g.Address)
	}
	for _, f := range batch.Failed {
		corpus = append(corpus, f.Address)
	}

	point, stillFailed, err := svc.ApplyFix(ctx, batch.Failed[index], fix, corpus)
	if err != nil {
		return nil, false, err
	}

	out := &geocoding.Batch{
		Geocoded: append([]models.GeoPoint{}, batch.Geocoded...),
		Failed:   append([]models.FailedGeocode{}, batch.Failed...),
	}

	if point == nil {
		out.Failed[index] = *stillFailed
		p.deps.Notifier.Warn("fix for %s did not resolve: %s", stillFailed.Name, stillFailed.Reason)
		return out, false, nil
	}

	out.Failed = append(out.Failed[:index], out.Failed[index+1:]...)
	out.Geocoded = append(out.Geocoded, *point)
	return out, true, nil
}

// Cluster labels points and renumbers the clusters north to south. Invalid
// settings are reported and nothing is produced.
func (p *Pipeline) Cluster(ctx context.Context, cfg Config, points []models.GeoPoint) (clustered []models.ClusteredPoint, err error) {
	if err := cfg.ValidateClustering(); err != nil {
		p.deps.Notifier.Error("invalid clustering settings: %v", err)
		return nil, err
	}

	defer p.stage(ctx, "cluster")(&err)

	p.clusterMu.Lock()
	defer p.clusterMu.Unlock()

	engine := clustering.NewEngine(p.deps.Partitioner, p.deps.Notifier)
	labeled, err := engine.Cluster(points, cfg.Strategy, cfg.Params())
	if err != nil {
		p.deps.Notifier.Error("clustering failed: %v", err)
		return nil, err
	}

	return sequencing.Renumber(labeled), nil
}

// Optimize builds one route per cluster. A starting address that cannot be
// geocoded is reported and ignored.
func (p *Pipeline) Optimize(ctx context.Context, cfg Config, points []models.ClusteredPoint) (routes []models.Route, err error) {
	if err := cfg.ValidateRouting(); err != nil {
		p.deps.Notifier.Error("cannot optimize routes: %v", err)
		return nil, err
	}

	model, err := p.deps.NewCostModel(cfg.Metric, cfg.RoutingKey())
	if err != nil {
		p.deps.Notifier.Error("cannot optimize routes: %v", err)
		return nil, err
	}

	defer p.stage(ctx, "optimize")(&err)

	start, err := p.startingPoint(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return routing.NewOptimizer(model).Optimize(ctx, points, start)
}

// Lookup geocodes a single address through the same cache and variant
// sequence as a batch. A nil entry means the address is unresolved.
func (p *Pipeline) Lookup(ctx context.Context, cfg Config, address string) (*models.GeocodeCacheEntry, error) {
	svc, err := p.service(cfg)
	if err != nil {
		return nil, err
	}
	return svc.Geocode(ctx, address)
}

func (p *Pipeline) startingPoint(ctx context.Context, cfg Config) (*models.Coordinates, error) {
	address := strings.TrimSpace(cfg.StartingAddress)
	if address == "" {
		return nil, nil
	}

	svc, err := p.service(cfg)
	if err != nil {
		return nil, err
	}

	entry, err := svc.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		p.deps.Notifier.Warn("starting address %q could not be geocoded, routes start at the northernmost stop", address)
		return nil, nil
	}

	log.Printf("[PIPELINE] Starting point resolved: lat=%.6f lon=%.6f", entry.Lat, entry.Lon)
	return &models.Coordinates{Lat: entry.Lat, Lon: entry.Lon}, nil
}

// service returns the geocoding service for cfg's provider, reusing it across
// runs so request spacing holds between them.
func (p *Pipeline) service(cfg Config) (*geocoding.Service, error) {
	if err := cfg.ValidateGeocoding(); err != nil {
		return nil, err
	}

	key := strings.ToLower(strings.TrimSpace(cfg.Provider)) + "\x00" + cfg.APIKey

	p.mu.Lock()
	defer p.mu.Unlock()

	if svc, ok := p.services[key]; ok {
		return svc, nil
	}

	provider, err := p.deps.NewProvider(cfg.Provider, cfg.APIKey)
	if err != nil {
		return nil, wrapMissingKey(err)
	}

	svc := geocoding.NewService(provider, p.deps.GeocodeCache)
	p.services[key] = svc
	return svc, nil
}

// stage times one pipeline stage into the log and the stage histogram
func (p *Pipeline) stage(ctx context.Context, name string) func(errp *error) {
	start := time.Now()
	done := obs.Time(ctx, "pipeline."+name)

	return func(errp *error) {
		metrics.StageDurationMs.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
		done(errp)
	}
}
