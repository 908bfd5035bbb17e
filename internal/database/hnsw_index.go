package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

// HNSWOptions tunes the in-memory index.
type HNSWOptions struct {
	M            int // max neighbors per node, defaults to HNSWMaxNeighbors
	EfSearch     int // candidate pool size, defaults to HNSWEfSearch
	EmbeddingDim int // faces with another dimension are skipped
	// MaxAge is how long a graph serves searches before it is rebuilt.
	// Zero keeps graphs until Invalidate is called.
	MaxAge time.Duration
}

// eventGraph is the immutable index of one event.
type eventGraph struct {
	graph    *hnsw.Graph[string] // nil for an event without faces
	dim      int
	idToFace map[string]*StoredFace
	builtAt  time.Time
}

// HNSWIndex is a face searcher that keeps one in-memory HNSW graph per event.
// Graphs are built lazily from the FaceReader on first search and kept until
// they expire or are invalidated. Scores are recomputed exactly for every neighbor returned.
type HNSWIndex struct {
	faces  FaceReader
	model  facematch.ScoreModel
	opts   HNSWOptions
	logger *zap.Logger

	mu     sync.RWMutex
	events map[string]*eventGraph
	build  sync.Mutex // serializes graph builds
}

// NewHNSWIndex creates an empty index backed by faces.
func NewHNSWIndex(faces FaceReader, model facematch.ScoreModel, opts HNSWOptions, logger *zap.Logger) *HNSWIndex {
	if opts.M <= 0 {
		opts.M = HNSWMaxNeighbors
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = HNSWEfSearch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HNSWIndex{
		faces:  faces,
		model:  model,
		opts:   opts,
		logger: logger,
		events: make(map[string]*eventGraph),
	}
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = h.opts.M
	g.Ml = 1.0 / float64(h.opts.M) // Standard HNSW formula
	g.EfSearch = h.opts.EfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// buildGraph builds the graph of one event from its faces.
func (h *HNSWIndex) buildGraph(faces []StoredFace) *eventGraph {
	eg := &eventGraph{
		idToFace: make(map[string]*StoredFace, len(faces)),
		builtAt:  time.Now(),
	}

	var g *hnsw.Graph[string]
	eg.dim = h.opts.EmbeddingDim
	for i := range faces {
		face := &faces[i]
		if len(face.Embedding) == 0 {
			continue
		}
		if eg.dim == 0 {
			eg.dim = len(face.Embedding)
		}
		if len(face.Embedding) != eg.dim {
			h.logger.Warn("skipping face with unexpected dimension",
				zap.String("face_id", face.ID),
				zap.Int("dim", len(face.Embedding)),
			)
			continue
		}
		if g == nil {
			g = h.newGraph()
		}
		unit := *face
		unit.Embedding = vecmath.L2Normalize(face.Embedding)
		g.Add(hnsw.MakeNode(face.ID, unit.Embedding))
		eg.idToFace[face.ID] = &unit
	}

	eg.graph = g
	return eg
}

// cached returns the graph of an event unless it is missing or expired.
func (h *HNSWIndex) cached(eventID string) (*eventGraph, bool) {
	h.mu.RLock()
	eg, ok := h.events[eventID]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if h.opts.MaxAge > 0 && time.Since(eg.builtAt) >= h.opts.MaxAge {
		return nil, false
	}
	return eg, true
}

// eventGraph returns the cached graph of an event, building it if needed.
func (h *HNSWIndex) eventGraph(ctx context.Context, eventID string) (*eventGraph, error) {
	if eg, ok := h.cached(eventID); ok {
		return eg, nil
	}

	h.build.Lock()
	defer h.build.Unlock()

	// Another search may have built it while we waited.
	if eg, ok := h.cached(eventID); ok {
		return eg, nil
	}

	start := time.Now()
	faces, err := h.faces.GetEventFaces(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event faces: %w", err)
	}
	eg := h.buildGraph(faces)

	h.mu.Lock()
	h.events[eventID] = eg
	h.mu.Unlock()

	h.logger.Info("built face index",
		zap.String("event_id", eventID),
		zap.Int("faces", len(eg.idToFace)),
		zap.Duration("duration", time.Since(start)),
	)
	return eg, nil
}

// SearchFaces implements facematch.Gateway.
func (h *HNSWIndex) SearchFaces(ctx context.Context, query []float32, eventID string, threshold float64, maxResults int) ([]facematch.FaceCandidate, error) {
	eg, err := h.eventGraph(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if eg.graph == nil {
		return nil, nil
	}
	if len(query) != eg.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), eg.dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = vecmath.L2Normalize(query)

	// Ask for more neighbors than needed since the score filter drops some.
	k := len(eg.idToFace)
	if maxResults > 0 {
		k = min(maxResults*HNSWSearchMultiplier, k)
	}
	neighbors := eg.graph.Search(query, k)

	candidates := make([]facematch.FaceCandidate, 0, len(neighbors))
	for _, n := range neighbors {
		face, ok := eg.idToFace[n.Key]
		if !ok {
			continue
		}
		candidates = append(candidates, facematch.FaceCandidate{
			FaceID:           face.ID,
			MediaID:          face.MediaID,
			FaceIndex:        face.FaceIndex,
			Embedding:        face.Embedding,
			CosineSimilarity: vecmath.CosineSimilarity(query, face.Embedding),
			L2Distance:       vecmath.L2Distance(query, face.Embedding),
		})
	}

	return h.model.Apply(candidates, threshold, maxResults), nil
}

// Warm builds the graph of an event ahead of the first search.
func (h *HNSWIndex) Warm(ctx context.Context, eventID string) (int, error) {
	eg, err := h.eventGraph(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return len(eg.idToFace), nil
}

// Invalidate drops the cached graph of an event.
func (h *HNSWIndex) Invalidate(eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.events, eventID)
}

// IndexedEvents returns the number of events with a cached graph.
func (h *HNSWIndex) IndexedEvents() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Count returns the number of faces indexed for an event, 0 if not built yet.
func (h *HNSWIndex) Count(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if eg, ok := h.events[eventID]; ok {
		return len(eg.idToFace)
	}
	return 0
}
