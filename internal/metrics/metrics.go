package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "districtd_build_info",
		Help: "Build information of the district lookup daemon",
	}, []string{"version", "commit", "date"})

	Lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "districtd_lookups_total", Help: "Total lookups by result kind.",
	}, []string{"result"})
	LookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "districtd_lookup_duration_seconds",
		Help:    "Lookup latency from validation through result.",
		Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "districtd_batch_size",
		Help:    "Number of points per batch lookup request.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	CandidatesPerLookup = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "districtd_candidates_per_lookup",
		Help:    "Bounding-box candidates examined per lookup.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "districtd_geometry_cache_hits_total", Help: "Decoded geometry cache hits.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "districtd_geometry_cache_misses_total", Help: "Decoded geometry cache misses.",
	})
	DecodeErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "districtd_geometry_decode_errors_total", Help: "Stored geometries that failed to decode.",
	})

	LookupsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "districtd_lookups_inflight", Help: "Lookups currently in flight.",
	})

	HTTPResponseCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "districtd_http_response_cache_hits_total", Help: "HTTP lookup responses served from the TTL cache.",
	})
)
