package facematch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

// Recall runs a single query with a previously refined prototype. There is
// no expansion, so the same prototype and index always give the same result.
func (e *Engine) Recall(ctx context.Context, prototype []float32, eventID string) (*Result, error) {
	if err := e.checkQuery(prototype, eventID); err != nil {
		return nil, err
	}

	if e.params.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.params.SearchTimeout)
		defer cancel()
	}

	start := time.Now()
	state := newRefinement()
	query := vecmath.L2Normalize(prototype)

	candidates, err := e.query(ctx, state, query, eventID, "recall")
	if err != nil {
		return nil, err
	}
	state.absorb(candidates, e.classifier, false)

	tier1, tier2 := Deduplicate(state.acc, state.isTier1)
	result := &Result{
		Tier1:      tier1,
		Tier2:      tier2,
		Prototype:  query,
		RoundTrips: state.roundTrips,
		Tier1Faces: len(state.tier1),
		Duration:   time.Since(start),
	}

	e.logger.Info("face recall finished",
		zap.String("event_id", eventID),
		zap.Int("tier1", len(result.Tier1)),
		zap.Int("tier2", len(result.Tier2)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}
