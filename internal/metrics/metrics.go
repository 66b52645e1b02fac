package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GeocodeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripplanner_geocode_requests_total",
		Help: "Total provider geocode requests, one per address variant tried",
	}, []string{"provider"})
	GeocodeCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripplanner_geocode_cache_hits_total",
		Help: "Total geocode cache hits",
	})
	GeocodeCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripplanner_geocode_cache_misses_total",
		Help: "Total geocode cache misses",
	})
	GeocodeFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripplanner_geocode_failures_total",
		Help: "Total unresolved addresses by failure reason",
	}, []string{"reason"})
	MatrixRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripplanner_matrix_requests_total",
		Help: "Total travel-time matrix requests",
	}, []string{"metric"})
	MatrixFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripplanner_matrix_failures_total",
		Help: "Total travel-time matrix requests that failed",
	}, []string{"metric"})
	RouteFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripplanner_route_fallbacks_total",
		Help: "Total clusters routed with the direct heuristic after a matrix failure",
	})
	StageDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripplanner_stage_duration_ms",
		Help:    "Pipeline stage duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(GeocodeRequestsTotal)
	prometheus.MustRegister(GeocodeCacheHitsTotal)
	prometheus.MustRegister(GeocodeCacheMissesTotal)
	prometheus.MustRegister(GeocodeFailuresTotal)
	prometheus.MustRegister(MatrixRequestsTotal)
	prometheus.MustRegister(MatrixFailuresTotal)
	prometheus.MustRegister(RouteFallbacksTotal)
	prometheus.MustRegister(StageDurationMs)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
