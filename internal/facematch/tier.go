package facematch

// Classifier maps a combined score to a tier. Both thresholds are inclusive.
type Classifier struct {
	Tier1Threshold float64
	Tier2Threshold float64
}

// Classify returns Tier1, Tier2 or TierNone.
func (c Classifier) Classify(score float64) Tier {
	switch {
	case score >= c.Tier1Threshold:
		return Tier1
	case score >= c.Tier2Threshold:
		return Tier2
	default:
		return TierNone
	}
}

// IsTier1 reports whether score reaches the high-confidence band.
func (c Classifier) IsTier1(score float64) bool {
	return score >= c.Tier1Threshold
}
