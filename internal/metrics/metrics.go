package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocode_resolutions_total",
		Help: "Resolutions by outcome (hit, missing, query_error, failed)",
	}, []string{"outcome"})
	ResolutionDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geocode_resolution_duration_ms",
		Help:    "Resolution duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocode_upstream_requests_total",
		Help: "Upstream HTTP attempts by service and result",
	}, []string{"service", "result"})
	UpstreamDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geocode_upstream_duration_ms",
		Help:    "Upstream HTTP attempt duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"service"})
	ElementCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocode_element_cache_total",
		Help: "Overpass element cache lookups by result (hit, miss, error)",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(ResolutionDurationMs)
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamDurationMs)
	prometheus.MustRegister(ElementCacheTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
