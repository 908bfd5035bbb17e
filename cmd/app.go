package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/config"
	"github.com/kozaktomas/selfie-search/internal/database"
	"github.com/kozaktomas/selfie-search/internal/database/postgres"
	"github.com/kozaktomas/selfie-search/internal/embedder"
	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/gallery"
	"github.com/kozaktomas/selfie-search/internal/logging"
	"github.com/kozaktomas/selfie-search/internal/media"
	"github.com/kozaktomas/selfie-search/internal/metrics"
)

// app holds everything a command needs to run searches.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pool    *postgres.Pool
	index   *database.HNSWIndex // nil unless FACE_INDEX=hnsw
	service *gallery.Service
}

// newApp loads configuration, connects to PostgreSQL and wires the search service.
func newApp() (*app, error) {
	cfg := config.Load()
	cfg.Debug = cfg.Debug || debug
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Embedding.URL == "" {
		return nil, errors.New("EMBEDDING_URL environment variable is required")
	}

	params := cfg.Search.Params()
	pool, err := postgres.Initialize(&cfg.Database, params.ScoreModel(), cfg.Search.HNSW.EfSearch, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, pool: pool}
	if err := a.wire(params); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(params facematch.Params) error {
	ctx := context.Background()

	events, err := database.GetEventReader(ctx)
	if err != nil {
		return err
	}
	mediaReader, err := database.GetMediaReader(ctx)
	if err != nil {
		return err
	}
	profiles, err := database.GetProfileWriter(ctx)
	if err != nil {
		return err
	}

	gateway, err := a.gateway(ctx, params)
	if err != nil {
		return err
	}

	signer, err := newSigner(a.cfg.Media)
	if err != nil {
		return err
	}

	a.service = gallery.NewService(gallery.Deps{
		Events:   events,
		Media:    mediaReader,
		Profiles: profiles,
		Engine:   facematch.NewEngine(gateway, params, a.logger),
		Embedder: embedder.NewClient(a.cfg.Embedding.URL, a.cfg.Embedding.Secret, a.cfg.Embedding.Timeout, a.logger),
		URLs:     media.NewResolver(signer),
	}, gallery.Options{
		MaxSelfieSize:      a.cfg.Search.Selfie.MaxSize,
		MaxSelfieDimension: a.cfg.Search.Selfie.MaxDimension,
	}, a.logger)
	return nil
}

// gateway returns the configured face gateway wrapped with metrics.
func (a *app) gateway(ctx context.Context, params facematch.Params) (facematch.Gateway, error) {
	switch a.cfg.Search.Index {
	case config.IndexHNSW:
		faces, err := database.GetFaceReader(ctx)
		if err != nil {
			return nil, err
		}
		a.index = database.NewHNSWIndex(faces, params.ScoreModel(), database.HNSWOptions{
			M:            a.cfg.Search.HNSW.M,
			EfSearch:     a.cfg.Search.HNSW.EfSearch,
			EmbeddingDim: params.EmbeddingDim,
			MaxAge:       a.cfg.Search.HNSW.MaxAge,
		}, a.logger)
		a.logger.Info("using in-memory HNSW face index",
			zap.Int("m", a.cfg.Search.HNSW.M),
			zap.Int("ef_search", a.cfg.Search.HNSW.EfSearch),
			zap.Duration("max_age", a.cfg.Search.HNSW.MaxAge),
		)
		return metrics.InstrumentGateway(config.IndexHNSW, a.index), nil
	default:
		searcher, err := database.GetFaceSearcher(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.Info("using pgvector face search", zap.Int("ef_search", a.cfg.Search.HNSW.EfSearch))
		return metrics.InstrumentGateway(config.IndexPgvector, searcher), nil
	}
}

// newSigner picks presigned R2 URLs when credentials are set, public URLs otherwise.
func newSigner(cfg config.MediaConfig) (media.Signer, error) {
	if cfg.UseR2() {
		return media.NewR2Signer(media.R2Options{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
			TTL:             cfg.URLTTL,
		}), nil
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("either R2 credentials or MEDIA_PUBLIC_BASE_URL must be set")
	}
	return media.PublicSigner{BaseURL: cfg.PublicBaseURL}, nil
}

func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("closing database pool", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
