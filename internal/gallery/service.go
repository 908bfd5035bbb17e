// Package gallery answers "find me in this event" requests: it validates the
// selfie, embeds it, runs the face search and turns face matches into
// displayable photos.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/database"
	"github.com/kozaktomas/selfie-search/internal/embedder"
	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/media"
	"github.com/kozaktomas/selfie-search/internal/metrics"
	"github.com/kozaktomas/selfie-search/internal/selfie"
)

// Embedder turns a selfie into a face embedding.
type Embedder interface {
	EmbedSelfie(ctx context.Context, image []byte) (*embedder.Selfie, error)
}

// Deps are the collaborators of a Service. Profiles may be nil, in which
// case prototypes are never stored and recall always reports no profile.
type Deps struct {
	Events   database.EventReader
	Media    database.MediaReader
	Profiles database.ProfileWriter
	Engine   *facematch.Engine
	Embedder Embedder
	URLs     *media.Resolver
}

// Options limit the accepted selfies.
type Options struct {
	MaxSelfieSize      int64
	MaxSelfieDimension int
}

// Service runs searches for gallery visitors.
type Service struct {
	deps   Deps
	params facematch.Params
	opts   Options
	logger *zap.Logger
}

// NewService creates a gallery service.
func NewService(deps Deps, opts Options, logger *zap.Logger) *Service {
	if opts.MaxSelfieSize <= 0 {
		opts.MaxSelfieSize = selfie.DefaultMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:   deps,
		params: deps.Engine.Params(),
		opts:   opts,
		logger: logger,
	}
}

// SearchRequest is one selfie search.
type SearchRequest struct {
	Selfie      []byte
	ContentType string // as declared by the client, may be empty
	EventHash   string
	AlbumID     string // restricts results to one album when set
	Subject     string // authenticated visitor; the prototype is stored for them when set
}

// SearchResponse lists matched photos by tier.
type SearchResponse struct {
	Tier1        []Match `json:"tier1"`
	Tier2        []Match `json:"tier2"`
	TotalMatches int     `json:"total_matches"`
	SearchTimeMs int64   `json:"search_time_ms"`

	Cycles     int `json:"-"`
	RoundTrips int `json:"-"`
}

// RecallResponse is a SearchResponse for a stored profile.
type RecallResponse struct {
	HasProfile bool `json:"has_profile"`
	SearchResponse
}

// ProfileStatus tells a visitor whether a stored profile exists for an event.
type ProfileStatus struct {
	HasProfile bool       `json:"has_profile"`
	MatchCount int        `json:"match_count,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Search embeds the selfie and finds the visitor in the event.
func (s *Service) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	var result *facematch.Result
	defer func() {
		metrics.ObserveSearch("search", Outcome(err), time.Since(start), result)
	}()

	img, err := s.checkSelfie(req)
	if err != nil {
		return nil, err
	}

	event, err := s.event(ctx, req.EventHash)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embed(ctx, img.Data)
	if err != nil {
		return nil, err
	}

	result, err = s.deps.Engine.Search(ctx, embedding, event.ID)
	if err != nil {
		return nil, fmt.Errorf("face search: %w", err)
	}

	resp, err = s.buildResponse(ctx, result, req.AlbumID)
	if err != nil {
		return nil, err
	}
	resp.SearchTimeMs = time.Since(start).Milliseconds()

	if req.Subject != "" {
		s.saveProfile(ctx, req.Subject, event.ID, result)
	}

	s.logger.Info("selfie search",
		zap.String("event_id", event.ID),
		zap.String("album_id", req.AlbumID),
		zap.Int("tier1", len(resp.Tier1)),
		zap.Int("tier2", len(resp.Tier2)),
		zap.Int("cycles", result.Cycles),
		zap.Int64("search_time_ms", resp.SearchTimeMs),
	)
	return resp, nil
}

// Recall repeats a search with the subject's stored prototype.
func (s *Service) Recall(ctx context.Context, eventHash, subject string) (resp *RecallResponse, err error) {
	start := time.Now()
	var result *facematch.Result
	defer func() {
		metrics.ObserveSearch("recall", Outcome(err), time.Since(start), result)
	}()

	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidInput)
	}
	event, err := s.event(ctx, eventHash)
	if err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, subject, event.ID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return &RecallResponse{}, nil
	}

	result, err = s.deps.Engine.Recall(ctx, profile.Prototype, event.ID)
	if errors.Is(err, facematch.ErrInvalidQuery) {
		// A stored prototype that cannot be queried counts as no profile.
		s.logger.Warn("unusable stored prototype",
			zap.String("event_id", event.ID),
			zap.Int("dim", len(profile.Prototype)),
			zap.Error(err),
		)
		return &RecallResponse{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("face recall: %w", err)
	}

	search, err := s.buildResponse(ctx, result, "")
	if err != nil {
		return nil, err
	}
	search.SearchTimeMs = time.Since(start).Milliseconds()
	return &RecallResponse{HasProfile: true, SearchResponse: *search}, nil
}

// Profile reports whether the subject has a stored profile for the event.
// Unknown events and anonymous visitors simply have none.
func (s *Service) Profile(ctx context.Context, eventHash, subject string) (*ProfileStatus, error) {
	if eventHash == "" {
		return nil, fmt.Errorf("%w: missing event_hash", ErrInvalidInput)
	}
	if subject == "" {
		return &ProfileStatus{}, nil
	}

	event, err := s.deps.Events.GetEventByHash(ctx, eventHash)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event == nil {
		return &ProfileStatus{}, nil
	}

	profile, err := s.profile(ctx, subject, event.ID)
	if err != nil || profile == nil {
		return &ProfileStatus{}, err
	}
	updated := profile.UpdatedAt
	return &ProfileStatus{HasProfile: true, MatchCount: profile.MatchCount, UpdatedAt: &updated}, nil
}

func (s *Service) checkSelfie(req SearchRequest) (*selfie.Image, error) {
	if req.EventHash == "" {
		return nil, fmt.Errorf("%w: missing event_hash", ErrInvalidInput)
	}
	if req.ContentType != "" && !strings.HasPrefix(req.ContentType, "image/") {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, selfie.ErrUnsupportedType)
	}

	img, err := selfie.Prepare(req.Selfie, s.opts.MaxSelfieSize, s.opts.MaxSelfieDimension)
	switch {
	case err == nil:
		return img, nil
	case errors.Is(err, selfie.ErrCorrupt):
		qe := embedder.NewQualityError(embedder.KindInvalidImage)
		return nil, fmt.Errorf("%w: %w", qe, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
}

func (s *Service) event(ctx context.Context, eventHash string) (*database.Event, error) {
	if eventHash == "" {
		return nil, fmt.Errorf("%w: missing event_hash", ErrInvalidInput)
	}
	event, err := s.deps.Events.GetEventByHash(ctx, eventHash)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (s *Service) profile(ctx context.Context, subject, eventID string) (*database.FaceSearchProfile, error) {
	if s.deps.Profiles == nil {
		return nil, nil
	}
	profile, err := s.deps.Profiles.GetProfile(ctx, subject, eventID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// embed calls the embedding service and validates the answer.
func (s *Service) embed(ctx context.Context, image []byte) ([]float32, error) {
	start := time.Now()
	sf, err := s.deps.Embedder.EmbedSelfie(ctx, image)
	if err == nil {
		err = embedder.Validate(sf, s.params.MinSelfieConfidence, s.params.EmbeddingDim)
	}
	metrics.ObserveEmbedding(Outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return sf.Embedding, nil
}

// saveProfile stores the refined prototype. Failures only cost the visitor a
// future recall, so the search still succeeds.
func (s *Service) saveProfile(ctx context.Context, subject, eventID string, result *facematch.Result) {
	if s.deps.Profiles == nil || len(result.Prototype) == 0 {
		return
	}
	profile := &database.FaceSearchProfile{
		Subject:    subject,
		EventID:    eventID,
		Prototype:  result.Prototype,
		MatchCount: result.Total(),
	}
	if err := s.deps.Profiles.SaveProfile(ctx, profile); err != nil {
		s.logger.Warn("failed to save search profile",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}

// roundScore rounds to 3 decimal places for display.
func roundScore(score float64) float64 {
	return math.Round(score*1000) / 1000
}
