package facematch

import (
	"math"
	"slices"
	"strings"

	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

// ScoreModel blends cosine similarity with a decaying L2 term.
//
//	combined = WCosine*cos + WL2*exp(-Gamma*l2)
type ScoreModel struct {
	WCosine float64
	WL2     float64
	Gamma   float64
}

// Combined returns the blended score for one pair of raw metrics.
func (m ScoreModel) Combined(cosine, l2 float64) float64 {
	return m.WCosine*cosine + m.WL2*math.Exp(-m.Gamma*l2)
}

// Score computes both raw metrics and the combined score for two embeddings.
func (m ScoreModel) Score(query, face []float32) (cosine, l2, combined float64) {
	cosine = vecmath.CosineSimilarity(query, face)
	l2 = vecmath.L2Distance(query, face)
	return cosine, l2, m.Combined(cosine, l2)
}

// Apply fills CombinedScore on every candidate from its raw metrics, drops
// those below threshold, sorts by score descending and keeps at most
// maxResults. Ties are ordered by face id so results are deterministic.
func (m ScoreModel) Apply(candidates []FaceCandidate, threshold float64, maxResults int) []FaceCandidate {
	kept := make([]FaceCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.CombinedScore = m.Combined(c.CosineSimilarity, c.L2Distance)
		if c.CombinedScore >= threshold {
			kept = append(kept, c)
		}
	}

	slices.SortFunc(kept, func(a, b FaceCandidate) int {
		if a.CombinedScore != b.CombinedScore {
			if a.CombinedScore > b.CombinedScore {
				return -1
			}
			return 1
		}
		return strings.Compare(a.FaceID, b.FaceID)
	})

	if maxResults > 0 && len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	return kept
}

// MinCosineFor returns the lowest cosine similarity a unit-length pair can
// have while still reaching threshold. Gateways use it to prefilter in the
// index before the exact score is applied.
func (m ScoreModel) MinCosineFor(threshold float64) float64 {
	// For unit vectors l2 = sqrt(2 - 2cos), and combined grows with cos.
	lo, hi := -1.0, 1.0
	if m.Combined(hi, 0) < threshold {
		return math.Inf(1)
	}
	for range 60 {
		mid := (lo + hi) / 2
		l2 := math.Sqrt(math.Max(0, 2-2*mid))
		if m.Combined(mid, l2) >= threshold {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}
