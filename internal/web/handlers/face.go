package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/gallery"
	"github.com/kozaktomas/selfie-search/internal/selfie"
	"github.com/kozaktomas/selfie-search/internal/web/middleware"
)

// multipartOverhead is allowed on top of the selfie for the other form fields.
const multipartOverhead = 1 << 20

// FaceService is the gallery functionality served over HTTP.
type FaceService interface {
	Search(ctx context.Context, req gallery.SearchRequest) (*gallery.SearchResponse, error)
	Recall(ctx context.Context, eventHash, subject string) (*gallery.RecallResponse, error)
	Profile(ctx context.Context, eventHash, subject string) (*gallery.ProfileStatus, error)
}

// FaceHandler handles selfie search endpoints.
type FaceHandler struct {
	svc           FaceService
	maxSelfieSize int64
	logger        *zap.Logger
}

// NewFaceHandler creates a new face handler.
func NewFaceHandler(svc FaceService, maxSelfieSize int64, logger *zap.Logger) *FaceHandler {
	if maxSelfieSize <= 0 {
		maxSelfieSize = selfie.DefaultMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FaceHandler{svc: svc, maxSelfieSize: maxSelfieSize, logger: logger}
}

// formValue returns the first non-empty form value among keys.
func formValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := r.FormValue(k); v != "" {
			return v
		}
	}
	return ""
}

// Search handles POST /api/v1/face/search (multipart: selfie, event_hash, album_id).
func (h *FaceHandler) Search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSelfieSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxSelfieSize + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondErrorMessage(w, http.StatusBadRequest, "selfie_too_large",
				fmt.Sprintf("Selfie too large (max %d MB)", h.maxSelfieSize>>20))
			return
		}
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", "expected multipart form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("selfie")
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", "Missing selfie or event_hash")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxSelfieSize+1))
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", "could not read selfie")
		return
	}

	req := gallery.SearchRequest{
		Selfie:      data,
		ContentType: header.Header.Get("Content-Type"),
		EventHash:   formValue(r, "event_hash", "eventHash"),
		AlbumID:     formValue(r, "album_id", "albumId"),
		Subject:     middleware.GetSubjectFromContext(r.Context()),
	}
	if req.EventHash == "" {
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", "Missing selfie or event_hash")
		return
	}

	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type recallRequest struct {
	EventHash       string `json:"event_hash"`
	LegacyEventHash string `json:"eventHash"`
}

// Recall handles POST /api/v1/face/recall. Requires an authenticated subject.
func (h *FaceHandler) Recall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", errInvalidRequestBody)
		return
	}
	eventHash := req.EventHash
	if eventHash == "" {
		eventHash = req.LegacyEventHash
	}
	if eventHash == "" {
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", "Missing event_hash")
		return
	}

	subject := middleware.GetSubjectFromContext(r.Context())
	if subject == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp, err := h.svc.Recall(r.Context(), eventHash, subject)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	if !resp.HasProfile {
		respondJSON(w, http.StatusOK, map[string]bool{"has_profile": false})
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Profile handles GET /api/v1/face/profile?event_hash=. Anonymous visitors
// and unknown events get has_profile false.
func (h *FaceHandler) Profile(w http.ResponseWriter, r *http.Request) {
	eventHash := r.URL.Query().Get("event_hash")
	if eventHash == "" {
		eventHash = r.URL.Query().Get("eventHash")
	}
	if eventHash == "" {
		respondErrorMessage(w, http.StatusBadRequest, "invalid_request", "Missing event_hash")
		return
	}

	status, err := h.svc.Profile(r.Context(), eventHash, middleware.GetSubjectFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("profile check failed", zap.Error(err))
		respondJSON(w, http.StatusOK, gallery.ProfileStatus{})
		return
	}
	respondJSON(w, http.StatusOK, status)
}
