package facematch

type faceScore struct {
	mediaID string
	score   float64
}

// Accumulator keeps the best combined score seen for every face during one
// search. It is not safe for concurrent use.
type Accumulator struct {
	faces map[string]faceScore
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{faces: make(map[string]faceScore)}
}

// Merge records score for faceID and reports whether it replaced the stored
// value. A face's score only ever goes up.
func (a *Accumulator) Merge(faceID, mediaID string, score float64) bool {
	if existing, ok := a.faces[faceID]; ok && score <= existing.score {
		return false
	}
	a.faces[faceID] = faceScore{mediaID: mediaID, score: score}
	return true
}

// MergeAll merges every candidate's combined score.
func (a *Accumulator) MergeAll(candidates []FaceCandidate) {
	for _, c := range candidates {
		a.Merge(c.FaceID, c.MediaID, c.CombinedScore)
	}
}

// Best returns the stored score for faceID.
func (a *Accumulator) Best(faceID string) (float64, bool) {
	fs, ok := a.faces[faceID]
	return fs.score, ok
}

// Len returns the number of distinct faces seen.
func (a *Accumulator) Len() int {
	return len(a.faces)
}
