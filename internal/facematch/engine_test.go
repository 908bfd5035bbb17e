package facematch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

const testDim = DefaultEmbeddingDim

// basis returns the i-th unit vector.
func basis(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

func face(id, mediaID string, score float64, emb []float32) FaceCandidate {
	return FaceCandidate{FaceID: id, MediaID: mediaID, Embedding: emb, CombinedScore: score}
}

// scriptedGateway returns a fixed response per call, filtered by threshold.
type scriptedGateway struct {
	responses  [][]FaceCandidate
	queries    [][]float32
	thresholds []float64
	limits     []int
}

func (g *scriptedGateway) SearchFaces(_ context.Context, query []float32, _ string, threshold float64, maxResults int) ([]FaceCandidate, error) {
	call := len(g.queries)
	g.queries = append(g.queries, slices.Clone(query))
	g.thresholds = append(g.thresholds, threshold)
	g.limits = append(g.limits, maxResults)
	if call >= len(g.responses) {
		return nil, nil
	}

	var out []FaceCandidate
	for _, c := range g.responses[call] {
		if c.CombinedScore >= threshold {
			out = append(out, c)
		}
	}
	return out, nil
}

// exactGateway scores every stored face against the query.
type exactGateway struct {
	model   ScoreModel
	faces   []FaceCandidate
	queries [][]float32
}

func (g *exactGateway) SearchFaces(_ context.Context, query []float32, _ string, threshold float64, maxResults int) ([]FaceCandidate, error) {
	g.queries = append(g.queries, slices.Clone(query))
	candidates := make([]FaceCandidate, len(g.faces))
	for i, f := range g.faces {
		f.CosineSimilarity = vecmath.CosineSimilarity(query, f.Embedding)
		f.L2Distance = vecmath.L2Distance(query, f.Embedding)
		candidates[i] = f
	}
	return g.model.Apply(candidates, threshold, maxResults), nil
}

// perturb adds gaussian noise of total magnitude sigma to base (nil means zero).
func perturb(r *rand.Rand, base []float32, sigma float64) []float32 {
	v := make([]float32, testDim)
	for i := range v {
		n := float32(r.NormFloat64() * sigma / math.Sqrt(testDim))
		if base != nil {
			v[i] = base[i] + n
		} else {
			v[i] = n
		}
	}
	return vecmath.L2Normalize(v)
}

// syntheticEvent builds one person's faces spread over photos plus unrelated faces.
func syntheticEvent(r *rand.Rand, person []float32, own, strangers int) []FaceCandidate {
	var faces []FaceCandidate
	for i := range own {
		sigma := 0.5 + 3*r.Float64()
		faces = append(faces, FaceCandidate{
			FaceID:    fmt.Sprintf("own-%03d", i),
			MediaID:   fmt.Sprintf("photo-%03d", i/2), // two faces share each photo
			Embedding: perturb(r, person, sigma),
		})
	}
	for i := range strangers {
		faces = append(faces, FaceCandidate{
			FaceID:    fmt.Sprintf("other-%03d", i),
			MediaID:   fmt.Sprintf("photo-%03d", i%(own/2+5)),
			Embedding: perturb(r, nil, 1),
		})
	}
	return faces
}

func newTestEngine(gw Gateway) *Engine {
	return NewEngine(gw, DefaultParams(), zap.NewNop())
}

func assertVectorClose(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("vector length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("component %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEngine_Search_RefinementScenario(t *testing.T) {
	embA, embB, embC, embD := basis(0), basis(2), basis(3), basis(1)
	refined := []FaceCandidate{
		face("A", "M1", 0.45, embA),
		face("B", "M2", 0.35, embB),
		face("D", "M4", 0.42, embD),
	}
	gw := &scriptedGateway{responses: [][]FaceCandidate{
		{face("A", "M1", 0.45, embA), face("B", "M2", 0.32, embB), face("C", "M3", 0.20, embC)},
		refined,
		refined,
		refined,
	}}

	selfie := basis(5)
	for i := range selfie {
		selfie[i] *= 3
	}

	result, err := newTestEngine(gw).Search(context.Background(), selfie, "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTier1 := []FaceMatch{
		{MediaID: "M1", Score: 0.45, Tier: Tier1},
		{MediaID: "M4", Score: 0.42, Tier: Tier1},
	}
	wantTier2 := []FaceMatch{{MediaID: "M2", Score: 0.35, Tier: Tier2}}
	if !reflect.DeepEqual(result.Tier1, wantTier1) {
		t.Errorf("tier1 = %+v, want %+v", result.Tier1, wantTier1)
	}
	if !reflect.DeepEqual(result.Tier2, wantTier2) {
		t.Errorf("tier2 = %+v, want %+v", result.Tier2, wantTier2)
	}

	if result.Cycles != 2 {
		t.Errorf("cycles = %d, want 2", result.Cycles)
	}
	if result.RoundTrips != 4 || len(gw.queries) != 4 {
		t.Errorf("round trips = %d (gateway saw %d), want 4", result.RoundTrips, len(gw.queries))
	}
	if result.Tier1Faces != 2 {
		t.Errorf("tier-1 faces = %d, want 2", result.Tier1Faces)
	}

	// Step A queries with the normalized selfie.
	assertVectorClose(t, gw.queries[0], basis(5))
	// Cycle 1 uses the prototype of [A], cycle 2 the prototype of [A, D].
	assertVectorClose(t, gw.queries[1], embA)
	pair := make([]float32, testDim)
	pair[0], pair[1] = float32(1/math.Sqrt2), float32(1/math.Sqrt2)
	assertVectorClose(t, gw.queries[2], pair)
	// Cycle 2 added nothing, so the final pass reuses its prototype.
	assertVectorClose(t, gw.queries[3], pair)
	assertVectorClose(t, result.Prototype, pair)

	for i := range gw.thresholds {
		if gw.thresholds[i] != DefaultTier2Threshold || gw.limits[i] != DefaultMaxCandidates {
			t.Errorf("call %d used threshold %v limit %d", i, gw.thresholds[i], gw.limits[i])
		}
	}
}

func TestEngine_Search_TierBoundaries(t *testing.T) {
	gw := &scriptedGateway{responses: [][]FaceCandidate{{
		face("exact", "M1", 0.40, basis(0)),
		face("below", "M2", 0.399, basis(1)),
		face("excluded", "M3", 0.289, basis(2)),
	}}}

	result, err := newTestEngine(gw).Search(context.Background(), basis(9), "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Tier1) != 1 || result.Tier1[0].MediaID != "M1" {
		t.Errorf("tier1 = %+v, want only M1", result.Tier1)
	}
	if len(result.Tier2) != 1 || result.Tier2[0].MediaID != "M2" {
		t.Errorf("tier2 = %+v, want only M2", result.Tier2)
	}
}

func TestEngine_Search_NoTier1SkipsRefinement(t *testing.T) {
	gw := &scriptedGateway{responses: [][]FaceCandidate{{
		face("B", "M2", 0.33, basis(1)),
	}}}

	selfie := basis(4)
	result, err := newTestEngine(gw).Search(context.Background(), selfie, "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.RoundTrips != 1 || result.Cycles != 0 {
		t.Errorf("round trips = %d cycles = %d, want 1 and 0", result.RoundTrips, result.Cycles)
	}
	if len(result.Tier1) != 0 || len(result.Tier2) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	assertVectorClose(t, result.Prototype, selfie)
}

func TestEngine_Search_EmptyEvent(t *testing.T) {
	gw := &scriptedGateway{}

	result, err := newTestEngine(gw).Search(context.Background(), basis(0), "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tier1 == nil || result.Tier2 == nil || result.Total() != 0 {
		t.Errorf("expected empty non-nil lists, got %+v", result)
	}
	if result.RoundTrips != 1 {
		t.Errorf("round trips = %d, want 1", result.RoundTrips)
	}
}

func TestEngine_Search_StopsAfterMaxCycles(t *testing.T) {
	// Every call yields one brand new tier-1 face.
	var responses [][]FaceCandidate
	for i := range 6 {
		responses = append(responses, []FaceCandidate{
			face(fmt.Sprintf("F%d", i), fmt.Sprintf("M%d", i), 0.5, basis(i)),
		})
	}
	gw := &scriptedGateway{responses: responses}

	result, err := newTestEngine(gw).Search(context.Background(), basis(10), "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Cycles != DefaultRefinementCycles {
		t.Errorf("cycles = %d, want %d", result.Cycles, DefaultRefinementCycles)
	}
	// A + three cycles + final pass.
	if result.RoundTrips != 5 {
		t.Errorf("round trips = %d, want 5", result.RoundTrips)
	}

	// The final pass reuses the prototype of the third cycle even though
	// that cycle added F3.
	want := make([]float32, testDim)
	for i := range 3 {
		want[i] = float32(1 / math.Sqrt(3))
	}
	assertVectorClose(t, gw.queries[3], want)
	assertVectorClose(t, gw.queries[4], gw.queries[3])
	assertVectorClose(t, result.Prototype, gw.queries[3])

	// F4 crosses tier 1 in the final pass: it is classified tier 1 but does
	// not trigger another query.
	if result.Tier1Faces != 5 || len(result.Tier1) != 5 {
		t.Errorf("tier-1 faces = %d, tier-1 photos = %d, want 5 and 5", result.Tier1Faces, len(result.Tier1))
	}
}

func TestEngine_Search_ZeroCyclesConfigured(t *testing.T) {
	gw := &scriptedGateway{responses: [][]FaceCandidate{{face("A", "M1", 0.6, basis(0))}}}
	params := DefaultParams()
	params.RefinementCycles = 0

	result, err := NewEngine(gw, params, nil).Search(context.Background(), basis(1), "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RoundTrips != 1 || len(result.Tier1) != 1 {
		t.Errorf("unexpected result: round trips %d, tier1 %+v", result.RoundTrips, result.Tier1)
	}
}

func TestEngine_Search_GatewayError(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	gw := GatewayFunc(func(context.Context, []float32, string, float64, int) ([]FaceCandidate, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return []FaceCandidate{face("A", "M1", 0.5, basis(0))}, nil
	})

	_, err := newTestEngine(gw).Search(context.Background(), basis(1), "event-1")
	if !errors.Is(err, ErrGateway) {
		t.Errorf("expected ErrGateway, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected the gateway error to be wrapped, got %v", err)
	}
}

func TestEngine_Search_GatewayTimeout(t *testing.T) {
	gw := GatewayFunc(func(ctx context.Context, _ []float32, _ string, _ float64, _ int) ([]FaceCandidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	params := DefaultParams()
	params.GatewayTimeout = 10 * time.Millisecond

	start := time.Now()
	_, err := NewEngine(gw, params, zap.NewNop()).Search(context.Background(), basis(0), "event-1")
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrGateway) {
		t.Errorf("expected a gateway deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("search took %v despite the call timeout", elapsed)
	}
}

func TestEngine_Search_InvalidQuery(t *testing.T) {
	engine := newTestEngine(&scriptedGateway{})

	nan := basis(0)
	nan[3] = float32(math.NaN())

	tests := []struct {
		name    string
		query   []float32
		eventID string
	}{
		{"short vector", []float32{1, 0}, "event-1"},
		{"non-finite", nan, "event-1"},
		{"missing event", basis(0), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Search(context.Background(), tt.query, tt.eventID)
			if !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("expected ErrInvalidQuery, got %v", err)
			}
		})
	}
}

func TestEngine_Search_Invariants(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	person := vecmath.L2Normalize(randomUnit(r))
	params := DefaultParams()
	params.MaxCandidates = 10000 // no truncation, so every qualifying face is seen

	gw := &exactGateway{model: params.ScoreModel(), faces: syntheticEvent(r, person, 60, 80)}
	selfie := perturb(r, person, 0.6)

	result, err := NewEngine(gw, params, zap.NewNop()).Search(context.Background(), selfie, "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total() == 0 {
		t.Fatal("expected matches in the synthetic event")
	}

	// Recompute every face's best score over all issued queries.
	model := params.ScoreModel()
	bestByMedia := make(map[string]float64)
	tier1Media := make(map[string]bool)
	for _, f := range gw.faces {
		best := math.Inf(-1)
		for _, q := range gw.queries {
			_, _, s := model.Score(q, f.Embedding)
			best = math.Max(best, s)
		}
		if best < params.Tier2Threshold {
			continue
		}
		if cur, ok := bestByMedia[f.MediaID]; !ok || best > cur {
			bestByMedia[f.MediaID] = best
		}
		if best >= params.Tier1Threshold {
			tier1Media[f.MediaID] = true
		}
	}

	seen := make(map[string]bool)
	check := func(m FaceMatch, wantTier Tier) {
		if seen[m.MediaID] {
			t.Errorf("media %s appears more than once", m.MediaID)
		}
		seen[m.MediaID] = true
		if m.Tier != wantTier {
			t.Errorf("media %s has tier %d in the tier-%d list", m.MediaID, m.Tier, wantTier)
		}
		if want := bestByMedia[m.MediaID]; m.Score != want {
			t.Errorf("media %s score = %v, want max %v", m.MediaID, m.Score, want)
		}
		if tier1Media[m.MediaID] != (wantTier == Tier1) {
			t.Errorf("media %s tier %d disagrees with its faces", m.MediaID, wantTier)
		}
	}
	for _, m := range result.Tier1 {
		check(m, Tier1)
	}
	for _, m := range result.Tier2 {
		check(m, Tier2)
	}
	if len(seen) != len(bestByMedia) {
		t.Errorf("result has %d photos, expected %d", len(seen), len(bestByMedia))
	}

	if result.Cycles > params.RefinementCycles {
		t.Errorf("ran %d cycles, limit is %d", result.Cycles, params.RefinementCycles)
	}
	if !slices.IsSortedFunc(result.Tier1, func(a, b FaceMatch) int {
		if a.Score > b.Score {
			return -1
		} else if a.Score < b.Score {
			return 1
		}
		return 0
	}) {
		t.Error("tier1 is not sorted by score descending")
	}
}

func TestRefinement_Tier1SetOnlyGrows(t *testing.T) {
	c := DefaultParams().Classifier()
	state := newRefinement()

	rounds := [][]FaceCandidate{
		{face("a", "m1", 0.5, basis(0)), face("b", "m2", 0.3, basis(1))},
		{face("a", "m1", 0.2, basis(0)), face("c", "m3", 0.45, basis(2))},
		{face("b", "m2", 0.41, basis(1))},
		{},
	}

	prev := map[string]struct{}{}
	for i, round := range rounds {
		state.absorb(round, c, true)
		for id := range prev {
			if !state.isTier1(id) {
				t.Fatalf("round %d dropped tier-1 face %s", i, id)
			}
		}
		prev = maps.Clone(state.tier1)
	}

	if len(state.tier1) != 3 || len(state.embeddings) != 3 {
		t.Errorf("tier-1 set = %d faces with %d embeddings, want 3 and 3", len(state.tier1), len(state.embeddings))
	}
	// A later lower score never lowers the accumulated one.
	if s, _ := state.acc.Best("a"); s != 0.5 {
		t.Errorf("best(a) = %v, want 0.5", s)
	}
}

func TestRefinement_AbsorbWithoutExpansion(t *testing.T) {
	state := newRefinement()
	added := state.absorb([]FaceCandidate{face("x", "m1", 0.7, basis(0))}, DefaultParams().Classifier(), false)
	if added != 1 || !state.isTier1("x") {
		t.Errorf("face should be promoted, added=%d", added)
	}
	if len(state.embeddings) != 0 {
		t.Error("non-expanding absorb must not contribute embeddings")
	}
}

func TestEngine_Recall_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	person := vecmath.L2Normalize(randomUnit(r))
	params := DefaultParams()
	gw := &exactGateway{model: params.ScoreModel(), faces: syntheticEvent(r, person, 40, 40)}
	engine := NewEngine(gw, params, zap.NewNop())

	first, err := engine.Recall(context.Background(), person, "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 5 {
		again, err := engine.Recall(context.Background(), person, "event-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Tier1, again.Tier1) || !reflect.DeepEqual(first.Tier2, again.Tier2) {
			t.Fatal("recall results differ between identical calls")
		}
	}

	if first.RoundTrips != 1 || first.Cycles != 0 {
		t.Errorf("recall made %d round trips and %d cycles, want 1 and 0", first.RoundTrips, first.Cycles)
	}
	for _, m := range first.Tier1 {
		if m.Score < params.Tier1Threshold {
			t.Errorf("tier-1 recall match %s scored %v", m.MediaID, m.Score)
		}
	}
}

func TestEngine_Recall_ClassifiesPerFace(t *testing.T) {
	gw := &scriptedGateway{responses: [][]FaceCandidate{{
		face("f1", "M1", 0.41, basis(0)),
		face("f2", "M1", 0.30, basis(1)),
		face("f3", "M2", 0.35, basis(2)),
	}}}

	result, err := newTestEngine(gw).Recall(context.Background(), basis(0), "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTier1 := []FaceMatch{{MediaID: "M1", Score: 0.41, Tier: Tier1}}
	wantTier2 := []FaceMatch{{MediaID: "M2", Score: 0.35, Tier: Tier2}}
	if !reflect.DeepEqual(result.Tier1, wantTier1) || !reflect.DeepEqual(result.Tier2, wantTier2) {
		t.Errorf("got tier1=%+v tier2=%+v", result.Tier1, result.Tier2)
	}
}

func randomUnit(r *rand.Rand) []float32 {
	v := make([]float32, testDim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return vecmath.L2Normalize(v)
}
