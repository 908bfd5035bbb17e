// Package media builds the URLs under which matched photos are served.
package media

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultURLTTL = 4 * time.Hour

// Signer turns an object key into a URL a browser can load.
type Signer interface {
	SignURL(ctx context.Context, key string) (string, error)
}

// R2Signer creates time-limited presigned GET URLs for a private R2 bucket.
// Signing is local, no request is made to R2.
type R2Signer struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// R2Options configures an R2Signer.
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	TTL             time.Duration
	// Endpoint overrides the account endpoint, e.g. for a local S3 emulator.
	Endpoint string
}

// NewR2Signer creates a signer for the R2 S3-compatible API.
func NewR2Signer(opts R2Options) *R2Signer {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		UsePathStyle: true,
	})

	return &R2Signer{
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		ttl:     ttl,
	}
}

func (s *R2Signer) SignURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicSigner serves objects from a public base URL (CDN or public bucket).
type PublicSigner struct {
	BaseURL string
}

func (s PublicSigner) SignURL(_ context.Context, key string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.Join(parts, "/"), nil
}
