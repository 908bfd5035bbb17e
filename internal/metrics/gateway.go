package metrics

import (
	"context"
	"time"

	"github.com/kozaktomas/selfie-search/internal/facematch"
)

type instrumentedGateway struct {
	backend string
	next    facematch.Gateway
}

// InstrumentGateway records call counts and latency for every vector search
// made through gw.
func InstrumentGateway(backend string, gw facematch.Gateway) facematch.Gateway {
	return &instrumentedGateway{backend: backend, next: gw}
}

func (g *instrumentedGateway) SearchFaces(ctx context.Context, query []float32, eventID string, threshold float64, maxResults int) ([]facematch.FaceCandidate, error) {
	start := time.Now()
	candidates, err := g.next.SearchFaces(ctx, query, eventID, threshold, maxResults)
	GatewayLatency.WithLabelValues(g.backend).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	GatewayRequestsTotal.WithLabelValues(g.backend, status).Inc()
	return candidates, err
}

// ObserveSearch records the outcome of one search or recall.
func ObserveSearch(kind, outcome string, elapsed time.Duration, result *facematch.Result) {
	SearchesTotal.WithLabelValues(kind, outcome).Inc()
	SearchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if result == nil {
		return
	}
	if kind == "search" {
		RefinementCycles.Observe(float64(result.Cycles))
	}
	MatchesTotal.WithLabelValues("1").Add(float64(len(result.Tier1)))
	MatchesTotal.WithLabelValues("2").Add(float64(len(result.Tier2)))
}

// ObserveEmbedding records one embedding service call.
func ObserveEmbedding(result string, elapsed time.Duration) {
	EmbedderRequestsTotal.WithLabelValues(result).Inc()
	EmbedderLatency.Observe(elapsed.Seconds())
}
