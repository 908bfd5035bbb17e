package embedder

import (
	"errors"
	"fmt"
)

// ErrUnavailable means the embedding service could not be reached or gave an
// unusable answer. Callers report it as a temporary outage.
var ErrUnavailable = errors.New("face processing service unavailable")

// Quality error kinds. These are caused by the submitted photo and are never
// retried.
const (
	KindNoFace       = "no_face_detected"
	KindInvalidImage = "invalid_image"
	KindLowQuality   = "low_quality_selfie"
)

// User-facing messages per kind.
var qualityMessages = map[string]string{
	KindNoFace:       "No face detected in your selfie. Please try again with better lighting and face the camera directly.",
	KindInvalidImage: "Could not process your photo. Please try taking a new selfie.",
	KindLowQuality:   "Could not generate a valid face embedding. Please try again with better lighting.",
}

// QualityError reports a selfie that cannot be searched with.
type QualityError struct {
	Kind       string
	Message    string
	Confidence float64 // set when rejected for low detection confidence
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewQualityError returns a quality error with the default message for kind.
func NewQualityError(kind string) *QualityError {
	return &QualityError{Kind: kind, Message: qualityMessages[kind]}
}

// ProviderError is a failure reported by the embedding service itself, such
// as processing_failed or an error code this client does not know.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider error %s: %s", e.Code, e.Message)
}

// IsQualityError reports whether err is caused by the photo.
func IsQualityError(err error) bool {
	var qe *QualityError
	return errors.As(err, &qe)
}
