package media

import (
	"context"
)

// URLs are the three renditions shown for a matched photo.
type URLs struct {
	Thumbnail string `json:"thumbnail_url"`
	Full      string `json:"full_url"`
	Original  string `json:"original_url"`
}

// Resolver picks object keys per rendition and signs them.
type Resolver struct {
	signer Signer
}

func NewResolver(signer Signer) *Resolver {
	return &Resolver{signer: signer}
}

// Resolve returns the URLs for one photo. The preview rendition is used for
// thumbnail and full view when present, otherwise the original is used.
func (r *Resolver) Resolve(ctx context.Context, key, previewKey string) (URLs, error) {
	original, err := r.signer.SignURL(ctx, key)
	if err != nil {
		return URLs{}, err
	}
	if previewKey == "" {
		return URLs{Thumbnail: original, Full: original, Original: original}, nil
	}

	preview, err := r.signer.SignURL(ctx, previewKey)
	if err != nil {
		return URLs{}, err
	}
	return URLs{Thumbnail: preview, Full: preview, Original: original}, nil
}
