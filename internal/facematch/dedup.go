package facematch

import (
	"slices"
	"strings"
)

type mediaScore struct {
	score float64
	tier1 bool
}

// Deduplicate collapses per-face scores into one match per photo.
//
// A photo's score is the maximum over its faces, and it is tier 1 when any of
// its faces satisfies isTier1, even if that face is not the best-scoring one.
// Both lists are sorted by score descending, then media id ascending.
func Deduplicate(acc *Accumulator, isTier1 func(faceID string) bool) (tier1, tier2 []FaceMatch) {
	media := make(map[string]mediaScore)
	for faceID, fs := range acc.faces {
		ms, ok := media[fs.mediaID]
		if !ok || fs.score > ms.score {
			ms.score = fs.score
		}
		ms.tier1 = ms.tier1 || isTier1(faceID)
		media[fs.mediaID] = ms
	}

	tier1 = []FaceMatch{}
	tier2 = []FaceMatch{}
	for mediaID, ms := range media {
		if ms.tier1 {
			tier1 = append(tier1, FaceMatch{MediaID: mediaID, Score: ms.score, Tier: Tier1})
		} else {
			tier2 = append(tier2, FaceMatch{MediaID: mediaID, Score: ms.score, Tier: Tier2})
		}
	}

	sortMatches(tier1)
	sortMatches(tier2)
	return tier1, tier2
}

func sortMatches(matches []FaceMatch) {
	slices.SortFunc(matches, func(a, b FaceMatch) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.MediaID, b.MediaID)
	})
}
