package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/embedder"
	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/gallery"
	"github.com/kozaktomas/selfie-search/internal/selfie"
)

// respondServiceError maps gallery errors to HTTP answers.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var quality *embedder.QualityError
	var provider *embedder.ProviderError

	switch {
	case errors.Is(err, selfie.ErrTooLarge):
		respondErrorMessage(w, http.StatusBadRequest, "selfie_too_large", err.Error())
	case errors.Is(err, selfie.ErrUnsupportedType), errors.Is(err, selfie.ErrEmpty):
		respondErrorMessage(w, http.StatusBadRequest, "invalid_selfie", err.Error())
	case errors.Is(err, gallery.ErrInvalidInput):
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, gallery.ErrEventNotFound):
		respondErrorMessage(w, http.StatusNotFound, "event_not_found", "Event not found or not public")
	case errors.As(err, &quality):
		body := errorResponse{Error: quality.Kind, Message: quality.Message}
		if quality.Confidence > 0 {
			c := quality.Confidence
			body.Confidence = &c
		}
		respondJSON(w, http.StatusUnprocessableEntity, body)
	case errors.As(err, &provider):
		logger.Warn("embedding provider error", zap.String("code", provider.Code), zap.String("message", sanitizeForLog(provider.Message)))
		respondErrorMessage(w, http.StatusInternalServerError, provider.Code, "Face processing failed. Please try again.")
	case errors.Is(err, embedder.ErrUnavailable):
		logger.Warn("embedding service unavailable", zap.Error(err))
		respondErrorMessage(w, http.StatusServiceUnavailable, "service_unavailable", "Face processing service unavailable")
	case errors.Is(err, facematch.ErrGateway):
		logger.Warn("face index unavailable", zap.Error(err))
		respondErrorMessage(w, http.StatusServiceUnavailable, "search_unavailable", "Face search is temporarily unavailable")
	default:
		logger.Error("face search error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}
