package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/selfie-search/internal/facematch"
)

//go:embed search.yaml
var searchYAML []byte

const (
	IndexPgvector = "pgvector"
	IndexHNSW     = "hnsw"
)

type Config struct {
	Search    SearchConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Media     MediaConfig
	Auth      AuthConfig
	Web       WebConfig
	Debug     bool
}

type SearchConfig struct {
	EmbeddingDim        int           `yaml:"embedding_dim"`
	WCosine             float64       `yaml:"w_cosine"`
	WL2                 float64       `yaml:"w_l2"`
	Gamma               float64       `yaml:"gamma"`
	Tier1Threshold      float64       `yaml:"tier1_threshold"`
	Tier2Threshold      float64       `yaml:"tier2_threshold"`
	DisplayThreshold    float64       `yaml:"display_threshold"`
	RefinementCycles    int           `yaml:"refinement_cycles"`
	MaxCandidates       int           `yaml:"max_candidates"`
	MinSelfieConfidence float64       `yaml:"min_selfie_confidence"`
	GatewayTimeout      time.Duration `yaml:"gateway_timeout"`
	SearchTimeout       time.Duration `yaml:"search_timeout"`
	Index               string        `yaml:"index"` // pgvector or hnsw
	HNSW                HNSWConfig    `yaml:"hnsw"`
	Selfie              SelfieConfig  `yaml:"selfie"`
}

type HNSWConfig struct {
	M        int           `yaml:"m"`
	EfSearch int           `yaml:"ef_search"`
	MaxAge   time.Duration `yaml:"max_age"`
}

type SelfieConfig struct {
	MaxSize      int64 `yaml:"max_size"`      // bytes
	MaxDimension int   `yaml:"max_dimension"` // longest side sent to the embedder
}

// Params converts the search section into engine tuning.
func (s SearchConfig) Params() facematch.Params {
	return facematch.Params{
		EmbeddingDim:        s.EmbeddingDim,
		WCosine:             s.WCosine,
		WL2:                 s.WL2,
		Gamma:               s.Gamma,
		Tier1Threshold:      s.Tier1Threshold,
		Tier2Threshold:      s.Tier2Threshold,
		RefinementCycles:    s.RefinementCycles,
		MaxCandidates:       s.MaxCandidates,
		MinSelfieConfidence: s.MinSelfieConfidence,
		DisplayThreshold:    s.DisplayThreshold,
		GatewayTimeout:      s.GatewayTimeout,
		SearchTimeout:       s.SearchTimeout,
	}
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL     string        // embed_selfie endpoint
	Secret  string        // shared secret sent with every request
	Timeout time.Duration // defaults to 30s
}

// MediaConfig selects how photo URLs are built. With R2 credentials set, URLs
// are presigned; otherwise PublicBaseURL is prefixed to the object key.
type MediaConfig struct {
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	PublicBaseURL     string
	URLTTL            time.Duration // defaults to 4h
}

// UseR2 reports whether presigned R2 URLs are configured.
func (m MediaConfig) UseR2() bool {
	return m.R2AccountID != "" && m.R2AccessKeyID != "" && m.R2SecretAccessKey != "" && m.R2Bucket != ""
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegativeInt is envInt that also accepts zero.
func envNonNegativeInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// defaultSearch returns the embedded search defaults.
func defaultSearch() SearchConfig {
	var search SearchConfig
	if err := yaml.Unmarshal(searchYAML, &search); err != nil {
		// Embedded at build time, so this only fails on a broken build.
		panic("failed to unmarshal embedded search.yaml: " + err.Error())
	}
	return search
}

func Load() *Config {
	s := defaultSearch()

	return &Config{
		Search: SearchConfig{
			EmbeddingDim:        s.EmbeddingDim,
			WCosine:             envFloat("FACE_W_COSINE", s.WCosine),
			WL2:                 envFloat("FACE_W_L2", s.WL2),
			Gamma:               envFloat("FACE_GAMMA", s.Gamma),
			Tier1Threshold:      envFloat("FACE_TIER1_THRESHOLD", s.Tier1Threshold),
			Tier2Threshold:      envFloat("FACE_TIER2_THRESHOLD", s.Tier2Threshold),
			DisplayThreshold:    envFloat("FACE_DISPLAY_THRESHOLD", s.DisplayThreshold),
			RefinementCycles:    envNonNegativeInt("FACE_REFINEMENT_CYCLES", s.RefinementCycles),
			MaxCandidates:       envInt("FACE_MAX_CANDIDATES", s.MaxCandidates),
			MinSelfieConfidence: envFloat("FACE_MIN_SELFIE_CONFIDENCE", s.MinSelfieConfidence),
			GatewayTimeout:      envDuration("FACE_GATEWAY_TIMEOUT", s.GatewayTimeout),
			SearchTimeout:       envDuration("FACE_SEARCH_TIMEOUT", s.SearchTimeout),
			Index:               strings.ToLower(envString("FACE_INDEX", s.Index)),
			HNSW: HNSWConfig{
				M:        envInt("FACE_HNSW_M", s.HNSW.M),
				EfSearch: envInt("FACE_HNSW_EF_SEARCH", s.HNSW.EfSearch),
				MaxAge:   envDuration("FACE_HNSW_MAX_AGE", s.HNSW.MaxAge),
			},
			Selfie: SelfieConfig{
				MaxSize:      int64(envInt("MAX_SELFIE_SIZE", int(s.Selfie.MaxSize))),
				MaxDimension: envInt("MAX_SELFIE_DIMENSION", s.Selfie.MaxDimension),
			},
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:     os.Getenv("EMBEDDING_URL"),
			Secret:  os.Getenv("FACE_PROCESSING_SECRET"),
			Timeout: envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Media: MediaConfig{
			R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			R2Bucket:          os.Getenv("R2_BUCKET"),
			PublicBaseURL:     os.Getenv("MEDIA_PUBLIC_BASE_URL"),
			URLTTL:            envDuration("MEDIA_URL_TTL", 4*time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			JWTIssuer: os.Getenv("AUTH_JWT_ISSUER"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Debug: envBool("LOG_DEBUG"),
	}
}

// Validate rejects settings the search engine cannot run with.
func (c *Config) Validate() error {
	if err := c.Search.Params().Validate(); err != nil {
		return fmt.Errorf("invalid search config: %w", err)
	}
	if c.Search.DisplayThreshold < c.Search.Tier2Threshold {
		return fmt.Errorf("display threshold %v is below tier 2 threshold %v", c.Search.DisplayThreshold, c.Search.Tier2Threshold)
	}
	switch c.Search.Index {
	case IndexPgvector, IndexHNSW:
	default:
		return fmt.Errorf("unknown FACE_INDEX %q (want %s or %s)", c.Search.Index, IndexPgvector, IndexHNSW)
	}
	return nil
}
