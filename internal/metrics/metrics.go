// Package metrics provides Prometheus metrics and HTTP middleware for
// monitoring face searches.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// SearchBuckets covers a single gateway call (a few ms) up to a full refined
// search hitting the timeout.
var SearchBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20}

var (
	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfie_search_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "selfie_search_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: SearchBuckets,
		},
		[]string{"method", "route"},
	)

	// SearchesTotal counts searches and recalls by outcome.
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfie_search_searches_total",
			Help: "Face searches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// SearchDuration records end-to-end search latency, embedding included.
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "selfie_search_search_duration_seconds",
			Help:    "Face search duration",
			Buckets: SearchBuckets,
		},
		[]string{"kind"},
	)

	// RefinementCycles records how many refinement cycles a search ran.
	RefinementCycles = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "selfie_search_refinement_cycles",
			Help:    "Refinement cycles per search",
			Buckets: []float64{0, 1, 2, 3},
		},
	)

	// MatchesTotal counts returned photos by tier.
	MatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfie_search_matches_total",
			Help: "Matched photos by tier",
		},
		[]string{"tier"},
	)

	// GatewayRequestsTotal counts vector search calls by backend and status.
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfie_search_gateway_requests_total",
			Help: "Vector search calls",
		},
		[]string{"backend", "status"},
	)

	// GatewayLatency records vector search latency in seconds.
	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "selfie_search_gateway_latency_seconds",
			Help:    "Vector search latency",
			Buckets: SearchBuckets,
		},
		[]string{"backend"},
	)

	// EmbedderRequestsTotal counts embedding service calls by result.
	EmbedderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfie_search_embedder_requests_total",
			Help: "Embedding service calls",
		},
		[]string{"result"},
	)

	// EmbedderLatency records embedding service latency in seconds.
	EmbedderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "selfie_search_embedder_latency_seconds",
			Help:    "Embedding service latency",
			Buckets: SearchBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SearchesTotal,
		SearchDuration,
		RefinementCycles,
		MatchesTotal,
		GatewayRequestsTotal,
		GatewayLatency,
		EmbedderRequestsTotal,
		EmbedderLatency,
	)
}
