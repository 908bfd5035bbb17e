// Package selfie validates uploaded selfies before they are sent for embedding.
package selfie

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxSize      = 5 << 20 // 5 MB
	DefaultMaxDimension = 1600
)

var (
	ErrEmpty           = errors.New("selfie is empty")
	ErrTooLarge        = errors.New("selfie too large")
	ErrUnsupportedType = errors.New("selfie must be an image")
	// ErrCorrupt means the bytes look like an image but cannot be decoded.
	ErrCorrupt = errors.New("selfie image cannot be decoded")
)

// decodable lists formats we can inspect locally. Other image types are
// passed through to the embedding service untouched.
var decodable = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp"}

var passthrough = []string{"image/heic", "image/heif", "image/avif"}

// Image is a checked selfie.
type Image struct {
	Data   []byte
	MIME   string
	Width  int // 0 when the format is not decoded locally
	Height int
}

// Check sniffs the content type and validates the size and header of a selfie.
func Check(data []byte, maxSize int64) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w (max %d MB)", ErrTooLarge, maxSize>>20)
	}

	mtype := mimetype.Detect(data)
	img := &Image{Data: data, MIME: mtype.String()}

	switch {
	case mimetype.EqualsAny(mtype.String(), decodable...):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if cfg.Width == 0 || cfg.Height == 0 {
			return nil, fmt.Errorf("%w: empty dimensions", ErrCorrupt)
		}
		img.Width, img.Height = cfg.Width, cfg.Height
	case mimetype.EqualsAny(mtype.String(), passthrough...):
	default:
		return nil, fmt.Errorf("%w, got %s", ErrUnsupportedType, mtype.String())
	}

	return img, nil
}

// Prepare checks the selfie and downscales it so that neither side exceeds
// maxDimension. Small or non-decodable images are returned unchanged.
func Prepare(data []byte, maxSize int64, maxDimension int) (*Image, error) {
	img, err := Check(data, maxSize)
	if err != nil {
		return nil, err
	}
	if maxDimension <= 0 || img.Width == 0 || (img.Width <= maxDimension && img.Height <= maxDimension) {
		return img, nil
	}

	resized, w, h, err := resize(data, maxDimension)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return &Image{Data: resized, MIME: "image/jpeg", Width: w, Height: h}, nil
}

// resize fits an image within maxSize (width or height) keeping aspect ratio
// and encodes it as JPEG.
func resize(data []byte, maxSize int) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), newWidth, newHeight, nil
}
