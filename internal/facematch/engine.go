package facematch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

// Engine runs face searches against one Gateway.
// An Engine holds no per-search state and can be shared between goroutines.
type Engine struct {
	gateway    Gateway
	params     Params
	classifier Classifier
	logger     *zap.Logger
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(gateway Gateway, params Params, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gateway:    gateway,
		params:     params,
		classifier: params.Classifier(),
		logger:     logger,
	}
}

// Params returns the tuning the engine was built with.
func (e *Engine) Params() Params {
	return e.params
}

// refinement is the state of a single search.
type refinement struct {
	acc        *Accumulator
	tier1      map[string]struct{}
	embeddings [][]float32
	roundTrips int
}

func newRefinement() *refinement {
	return &refinement{
		acc:   NewAccumulator(),
		tier1: make(map[string]struct{}),
	}
}

func (r *refinement) isTier1(faceID string) bool {
	_, ok := r.tier1[faceID]
	return ok
}

// absorb merges scores from one query and promotes faces reaching tier 1.
// With expand set, newly promoted faces also contribute their embedding to
// the next prototype. It returns the number of faces newly promoted.
func (r *refinement) absorb(candidates []FaceCandidate, c Classifier, expand bool) int {
	added := 0
	for _, cand := range candidates {
		r.acc.Merge(cand.FaceID, cand.MediaID, cand.CombinedScore)
		if !c.IsTier1(cand.CombinedScore) || r.isTier1(cand.FaceID) {
			continue
		}
		r.tier1[cand.FaceID] = struct{}{}
		added++
		if expand {
			r.embeddings = append(r.embeddings, vecmath.L2Normalize(cand.Embedding))
		}
	}
	return added
}

// Search finds every photo of the person in selfie within one event.
//
// The selfie query seeds a set of high-confidence faces whose averaged
// embedding (the prototype) is used to query again, up to RefinementCycles
// times or until a cycle finds nothing new. One last query with the final
// prototype widens the tier-2 set. Scores are then collapsed per photo.
func (e *Engine) Search(ctx context.Context, selfie []float32, eventID string) (*Result, error) {
	if err := e.checkQuery(selfie, eventID); err != nil {
		return nil, err
	}

	if e.params.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.params.SearchTimeout)
		defer cancel()
	}

	start := time.Now()
	state := newRefinement()
	query := vecmath.L2Normalize(selfie)
	prototype := query

	// Step A: selfie query.
	candidates, err := e.query(ctx, state, query, eventID, "initial")
	if err != nil {
		return nil, err
	}
	state.absorb(candidates, e.classifier, true)

	// Step B: refine while tier 1 keeps growing.
	cycles := 0
	lastAdded := 0
	for len(state.embeddings) > 0 && cycles < e.params.RefinementCycles {
		prototype, err = vecmath.BuildPrototype(state.embeddings)
		if err != nil {
			return nil, fmt.Errorf("build prototype: %w", err)
		}

		candidates, err = e.query(ctx, state, prototype, eventID, "refinement")
		if err != nil {
			return nil, err
		}
		cycles++
		lastAdded = state.absorb(candidates, e.classifier, true)

		e.logger.Debug("refinement cycle",
			zap.String("event_id", eventID),
			zap.Int("cycle", cycles),
			zap.Int("candidates", len(candidates)),
			zap.Int("added", lastAdded),
		)
		if lastAdded == 0 {
			break
		}
	}

	// Step C: final wide query with the last prototype queried in step B.
	// Faces added by the last capped cycle do not change it.
	if cycles > 0 {
		candidates, err = e.query(ctx, state, prototype, eventID, "final")
		if err != nil {
			return nil, err
		}
		state.absorb(candidates, e.classifier, false)
	}

	// Step D: one match per photo.
	tier1, tier2 := Deduplicate(state.acc, state.isTier1)

	result := &Result{
		Tier1:      tier1,
		Tier2:      tier2,
		Prototype:  prototype,
		Cycles:     cycles,
		RoundTrips: state.roundTrips,
		Tier1Faces: len(state.tier1),
		Duration:   time.Since(start),
	}

	e.logger.Info("face search finished",
		zap.String("event_id", eventID),
		zap.Int("cycles", result.Cycles),
		zap.Int("round_trips", result.RoundTrips),
		zap.Int("tier1", len(result.Tier1)),
		zap.Int("tier2", len(result.Tier2)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func (e *Engine) checkQuery(vec []float32, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidQuery)
	}
	if len(vec) != e.params.EmbeddingDim {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidQuery, e.params.EmbeddingDim, len(vec))
	}
	if !vecmath.IsFinite(vec) {
		return fmt.Errorf("%w: non-finite component", ErrInvalidQuery)
	}
	return nil
}

// query runs one gateway call under the per-call timeout.
func (e *Engine) query(ctx context.Context, state *refinement, vec []float32, eventID, step string) ([]FaceCandidate, error) {
	if e.params.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.params.GatewayTimeout)
		defer cancel()
	}

	state.roundTrips++
	candidates, err := e.gateway.SearchFaces(ctx, vec, eventID, e.params.Tier2Threshold, e.params.MaxCandidates)
	if err != nil {
		e.logger.Warn("vector search failed",
			zap.String("event_id", eventID),
			zap.String("step", step),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s query: %w", ErrGateway, step, err)
	}
	return candidates, nil
}
