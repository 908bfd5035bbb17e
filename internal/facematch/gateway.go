package facematch

import (
	"context"
	"errors"
)

var (
	// ErrGateway marks a failed vector search. The whole search fails with it.
	ErrGateway = errors.New("vector search failed")
	// ErrInvalidQuery is returned for a malformed query vector or a missing event id.
	ErrInvalidQuery = errors.New("invalid search query")
)

// Gateway finds the faces of one event that are similar to a query embedding.
//
// Implementations must return only faces of eventID, each with CombinedScore
// at or above threshold as computed by the shared ScoreModel, sorted by score
// descending and at most maxResults of them. Every candidate carries its
// embedding.
//
// Scores are defined between unit-length vectors. Stored embeddings are not
// guaranteed to be normalized, so implementations normalize the query and
// each stored embedding before scoring and return the normalized embedding.
// This keeps ScoreModel.MinCosineFor an exact prefilter.
type Gateway interface {
	SearchFaces(ctx context.Context, query []float32, eventID string, threshold float64, maxResults int) ([]FaceCandidate, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, query []float32, eventID string, threshold float64, maxResults int) ([]FaceCandidate, error)

// SearchFaces calls f.
func (f GatewayFunc) SearchFaces(ctx context.Context, query []float32, eventID string, threshold float64, maxResults int) ([]FaceCandidate, error) {
	return f(ctx, query, eventID, threshold, maxResults)
}
