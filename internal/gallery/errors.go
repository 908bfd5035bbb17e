package gallery

import (
	"errors"

	"github.com/kozaktomas/selfie-search/internal/embedder"
	"github.com/kozaktomas/selfie-search/internal/facematch"
)

var (
	// ErrInvalidInput wraps every problem with the request itself.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEventNotFound means the hash matches no public event.
	ErrEventNotFound = errors.New("event not found or not public")
)

// Outcome labels used for metrics and logs.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeNotFound    = "not_found"
	OutcomeQuality     = "quality"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Outcome classifies err into one of the Outcome* labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalid
	case errors.Is(err, ErrEventNotFound):
		return OutcomeNotFound
	case embedder.IsQualityError(err):
		return OutcomeQuality
	case errors.Is(err, embedder.ErrUnavailable), errors.Is(err, facematch.ErrGateway):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
