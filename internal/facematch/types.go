// Package facematch implements event-scoped face search: scoring, tiering,
// deduplication and the iterative prototype refinement used to find every
// photo of one person from a single selfie.
package facematch

import "time"

// Tier is the confidence band of a match.
type Tier int

const (
	TierNone Tier = 0
	Tier1    Tier = 1 // high confidence
	Tier2    Tier = 2 // possible match
)

// FaceCandidate is one indexed face returned by a gateway query.
type FaceCandidate struct {
	FaceID           string
	MediaID          string
	FaceIndex        int
	Embedding        []float32
	CosineSimilarity float64
	L2Distance       float64
	CombinedScore    float64
}

// FaceMatch is one photo in the final result.
type FaceMatch struct {
	MediaID string  `json:"media_id"`
	Score   float64 `json:"score"`
	Tier    Tier    `json:"tier"`
}

// Result is the outcome of a search or recall.
type Result struct {
	Tier1 []FaceMatch
	Tier2 []FaceMatch

	// Prototype is the last query vector used. For a search without any
	// refinement cycle it is the normalized selfie embedding.
	Prototype []float32

	Cycles     int // refinement cycles run in step B
	RoundTrips int // gateway calls made
	Tier1Faces int // distinct faces in the tier-1 set
	Duration   time.Duration
}

// Total returns the number of matched photos across both tiers.
func (r *Result) Total() int {
	return len(r.Tier1) + len(r.Tier2)
}
