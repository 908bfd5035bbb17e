package embedder

import (
	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

// Validate checks that a selfie embedding is good enough to search with.
// A confidence exactly equal to minConfidence passes.
func Validate(s *Selfie, minConfidence float64, dim int) error {
	if s.Confidence < minConfidence {
		return &QualityError{
			Kind:       KindLowQuality,
			Message:    "Face detection confidence is too low. Try better lighting.",
			Confidence: s.Confidence,
		}
	}
	if len(s.Embedding) != dim || !vecmath.IsFinite(s.Embedding) {
		return NewQualityError(KindLowQuality)
	}
	return nil
}
