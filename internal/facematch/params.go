package facematch

import (
	"fmt"
	"time"
)

// Default search tuning.
const (
	DefaultEmbeddingDim        = 512
	DefaultWCosine             = 0.80
	DefaultWL2                 = 0.20
	DefaultGamma               = 0.5
	DefaultTier1Threshold      = 0.40
	DefaultTier2Threshold      = 0.29
	DefaultRefinementCycles    = 3
	DefaultMaxCandidates       = 200
	DefaultMinSelfieConfidence = 0.5
	DefaultDisplayThreshold    = 0.29
	DefaultGatewayTimeout      = 5 * time.Second
	DefaultSearchTimeout       = 20 * time.Second
)

// Params holds the search tuning. It is passed by value and never mutated
// after an Engine is built.
type Params struct {
	EmbeddingDim        int
	WCosine             float64
	WL2                 float64
	Gamma               float64
	Tier1Threshold      float64
	Tier2Threshold      float64
	RefinementCycles    int
	MaxCandidates       int
	MinSelfieConfidence float64
	// DisplayThreshold hides weak recall matches from users.
	DisplayThreshold float64
	GatewayTimeout   time.Duration
	SearchTimeout    time.Duration
}

// DefaultParams returns the production tuning.
func DefaultParams() Params {
	return Params{
		EmbeddingDim:        DefaultEmbeddingDim,
		WCosine:             DefaultWCosine,
		WL2:                 DefaultWL2,
		Gamma:               DefaultGamma,
		Tier1Threshold:      DefaultTier1Threshold,
		Tier2Threshold:      DefaultTier2Threshold,
		RefinementCycles:    DefaultRefinementCycles,
		MaxCandidates:       DefaultMaxCandidates,
		MinSelfieConfidence: DefaultMinSelfieConfidence,
		DisplayThreshold:    DefaultDisplayThreshold,
		GatewayTimeout:      DefaultGatewayTimeout,
		SearchTimeout:       DefaultSearchTimeout,
	}
}

// Validate checks that the thresholds and limits are consistent.
func (p Params) Validate() error {
	if p.EmbeddingDim < 1 {
		return fmt.Errorf("embedding dimension must be positive, got %d", p.EmbeddingDim)
	}
	if p.WCosine <= 0 || p.WL2 < 0 {
		return fmt.Errorf("invalid score weights: cosine=%v l2=%v", p.WCosine, p.WL2)
	}
	if p.Gamma < 0 {
		return fmt.Errorf("gamma must not be negative, got %v", p.Gamma)
	}
	if p.Tier2Threshold > p.Tier1Threshold {
		return fmt.Errorf("tier 2 threshold %v is above tier 1 threshold %v", p.Tier2Threshold, p.Tier1Threshold)
	}
	if p.RefinementCycles < 0 {
		return fmt.Errorf("refinement cycles must not be negative, got %d", p.RefinementCycles)
	}
	if p.MaxCandidates < 1 {
		return fmt.Errorf("max candidates must be at least 1, got %d", p.MaxCandidates)
	}
	if p.MinSelfieConfidence < 0 || p.MinSelfieConfidence > 1 {
		return fmt.Errorf("min selfie confidence must be within [0, 1], got %v", p.MinSelfieConfidence)
	}
	return nil
}

// ScoreModel returns the combined score formula for these params.
func (p Params) ScoreModel() ScoreModel {
	return ScoreModel{WCosine: p.WCosine, WL2: p.WL2, Gamma: p.Gamma}
}

// Classifier returns the tier classifier for these params.
func (p Params) Classifier() Classifier {
	return Classifier{Tier1Threshold: p.Tier1Threshold, Tier2Threshold: p.Tier2Threshold}
}
