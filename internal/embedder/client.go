// Package embedder talks to the face embedding service that turns a selfie
// into a 512-dimensional face embedding.
package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEmbeddingURL = "http://localhost:8000/embed_selfie"
	defaultTimeout      = 30 * time.Second
	maxResponseBytes    = 1 << 20
)

// Selfie is the embedding service's answer for a successfully processed selfie.
type Selfie struct {
	Embedding  []float32
	Confidence float64
	FaceCount  int
}

// Client calls the embedding service over HTTP.
type Client struct {
	url    string
	secret string
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a new embedding client.
func NewClient(url, secret string, timeout time.Duration, logger *zap.Logger) *Client {
	if url == "" {
		url = defaultEmbeddingURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    strings.TrimSuffix(url, "/"),
		secret: secret,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type embedRequest struct {
	ImageBase64 string `json:"image_base64"`
	Secret      string `json:"secret"`
}

type embedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Confidence float64   `json:"confidence"`
	FaceCount  int       `json:"face_count"`
	Error      string    `json:"error"`
	Message    string    `json:"message"`
}

// EmbedSelfie sends the image to the embedding service.
//
// Errors are one of: *QualityError for photos the service rejected,
// *ProviderError for failures the service reported, or ErrUnavailable when
// the service could not be reached or returned something unreadable.
func (c *Client) EmbedSelfie(ctx context.Context, image []byte) (*Selfie, error) {
	payload, err := json.Marshal(embedRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Secret:      c.secret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("embedding request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	var embResp embedResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		// Python's json module writes NaN and Infinity literals for broken
		// embeddings, which are not valid JSON.
		if resp.StatusCode == http.StatusOK && hasNonFiniteLiteral(body) {
			return nil, NewQualityError(KindLowQuality)
		}
		c.logger.Warn("unreadable embedding response",
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: status %d: unreadable response", ErrUnavailable, resp.StatusCode)
	}

	if embResp.Error != "" {
		return nil, mapProviderError(embResp.Error, embResp.Message)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("embedding service error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	return &Selfie{
		Embedding:  embResp.Embedding,
		Confidence: embResp.Confidence,
		FaceCount:  embResp.FaceCount,
	}, nil
}

func hasNonFiniteLiteral(body []byte) bool {
	return bytes.Contains(body, []byte("NaN")) || bytes.Contains(body, []byte("Infinity"))
}

func mapProviderError(code, message string) error {
	switch code {
	case KindNoFace, KindInvalidImage:
		return NewQualityError(code)
	case "invalid_embedding":
		return NewQualityError(KindLowQuality)
	case "processing_failed":
		return &ProviderError{Code: code, Message: "Face processing failed. Please try again."}
	default:
		if message == "" {
			message = "Unknown error"
		}
		return &ProviderError{Code: code, Message: message}
	}
}
