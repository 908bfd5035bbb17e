package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/selfie-search/internal/embedder"
	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/gallery"
	"github.com/kozaktomas/selfie-search/internal/media"
	"github.com/kozaktomas/selfie-search/internal/selfie"
	"github.com/kozaktomas/selfie-search/internal/web/middleware"
)

type fakeFaceService struct {
	searchReq  gallery.SearchRequest
	searchResp *gallery.SearchResponse
	recallResp *gallery.RecallResponse
	profile    *gallery.ProfileStatus
	err        error

	recallArgs  [2]string
	profileArgs [2]string
}

func (f *fakeFaceService) Search(_ context.Context, req gallery.SearchRequest) (*gallery.SearchResponse, error) {
	f.searchReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.searchResp, nil
}

func (f *fakeFaceService) Recall(_ context.Context, eventHash, subject string) (*gallery.RecallResponse, error) {
	f.recallArgs = [2]string{eventHash, subject}
	if f.err != nil {
		return nil, f.err
	}
	return f.recallResp, nil
}

func (f *fakeFaceService) Profile(_ context.Context, eventHash, subject string) (*gallery.ProfileStatus, error) {
	f.profileArgs = [2]string{eventHash, subject}
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func sampleResponse() *gallery.SearchResponse {
	return &gallery.SearchResponse{
		Tier1: []gallery.Match{{
			MediaID: "m1",
			AlbumID: "a1",
			URLs:    media.URLs{Thumbnail: "https://cdn/t.webp", Full: "https://cdn/t.webp", Original: "https://cdn/o.jpg"},
			Width:   4000,
			Height:  3000,
			Score:   0.912,
			Tier:    facematch.Tier1,
		}},
		Tier2:        []gallery.Match{},
		TotalMatches: 1,
		SearchTimeMs: 42,
	}
}

func multipartRequest(t *testing.T, fields map[string]string, selfieData []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if selfieData != nil {
		part, err := mw.CreateFormFile("selfie", "selfie.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(selfieData)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/face/search", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestFaceHandler_Search_Success(t *testing.T) {
	svc := &fakeFaceService{searchResp: sampleResponse()}
	handler := NewFaceHandler(svc, 0, nil)

	req := multipartRequest(t, map[string]string{"event_hash": "wedding", "album_id": "a1"}, []byte("jpeg-bytes"))
	req = req.WithContext(middleware.SetSubjectInContext(req.Context(), "user-1"))
	recorder := httptest.NewRecorder()
	handler.Search(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if svc.searchReq.EventHash != "wedding" || svc.searchReq.AlbumID != "a1" || svc.searchReq.Subject != "user-1" {
		t.Errorf("unexpected request: %+v", svc.searchReq)
	}
	if string(svc.searchReq.Selfie) != "jpeg-bytes" {
		t.Errorf("selfie bytes not forwarded")
	}

	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	tier1, ok := result["tier1"].([]any)
	if !ok || len(tier1) != 1 {
		t.Fatalf("expected one tier1 match, got %v", result["tier1"])
	}
	match := tier1[0].(map[string]any)
	for key, want := range map[string]any{
		"media_id":      "m1",
		"album_id":      "a1",
		"thumbnail_url": "https://cdn/t.webp",
		"original_url":  "https://cdn/o.jpg",
		"score":         0.912,
		"tier":          float64(1),
	} {
		if match[key] != want {
			t.Errorf("%s = %v, want %v", key, match[key], want)
		}
	}
	if result["total_matches"] != float64(1) || result["search_time_ms"] != float64(42) {
		t.Errorf("unexpected totals: %v", result)
	}
	if tier2, ok := result["tier2"].([]any); !ok || len(tier2) != 0 {
		t.Errorf("tier2 must be an empty list, got %v", result["tier2"])
	}
}

func TestFaceHandler_Search_LegacyFieldNames(t *testing.T) {
	svc := &fakeFaceService{searchResp: sampleResponse()}
	req := multipartRequest(t, map[string]string{"eventHash": "wedding", "albumId": "a2"}, []byte("x"))
	recorder := httptest.NewRecorder()
	NewFaceHandler(svc, 0, nil).Search(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if svc.searchReq.EventHash != "wedding" || svc.searchReq.AlbumID != "a2" || svc.searchReq.Subject != "" {
		t.Errorf("unexpected request: %+v", svc.searchReq)
	}
}

func TestFaceHandler_Search_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{"missing selfie", func(t *testing.T) *http.Request {
			return multipartRequest(t, map[string]string{"event_hash": "wedding"}, nil)
		}},
		{"missing event hash", func(t *testing.T) *http.Request {
			return multipartRequest(t, nil, []byte("x"))
		}},
		{"not multipart", func(*testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/face/search", strings.NewReader(`{"event_hash":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeFaceService{searchResp: sampleResponse()}
			recorder := httptest.NewRecorder()
			NewFaceHandler(svc, 0, nil).Search(recorder, tc.req(t))
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", recorder.Code)
			}
			if svc.searchReq.EventHash != "" {
				t.Error("service must not be called")
			}
		})
	}
}

func TestFaceHandler_Search_BodyTooLarge(t *testing.T) {
	svc := &fakeFaceService{searchResp: sampleResponse()}
	handler := NewFaceHandler(svc, 1024, nil)

	req := multipartRequest(t, map[string]string{"event_hash": "wedding"}, bytes.Repeat([]byte{0xff}, multipartOverhead+4096))
	recorder := httptest.NewRecorder()
	handler.Search(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "selfie_too_large") {
		t.Errorf("unexpected body %s", recorder.Body.String())
	}
}

func TestFaceHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"too large", fmt.Errorf("%w: %w", gallery.ErrInvalidInput, selfie.ErrTooLarge), http.StatusBadRequest, "selfie_too_large"},
		{"unsupported", fmt.Errorf("%w: %w", gallery.ErrInvalidInput, selfie.ErrUnsupportedType), http.StatusBadRequest, "invalid_selfie"},
		{"invalid input", fmt.Errorf("%w: missing event_hash", gallery.ErrInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"event not found", gallery.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
		{"no face", embedder.NewQualityError(embedder.KindNoFace), http.StatusUnprocessableEntity, "no_face_detected"},
		{"invalid image", embedder.NewQualityError(embedder.KindInvalidImage), http.StatusUnprocessableEntity, "invalid_image"},
		{"low quality", &embedder.QualityError{Kind: embedder.KindLowQuality, Confidence: 0.3}, http.StatusUnprocessableEntity, "low_quality_selfie"},
		{"processing failed", &embedder.ProviderError{Code: "processing_failed"}, http.StatusInternalServerError, "processing_failed"},
		{"embedder down", fmt.Errorf("embed: %w", embedder.ErrUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{"index down", fmt.Errorf("face search: %w", facematch.ErrGateway), http.StatusServiceUnavailable, "search_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeFaceService{err: tc.err}
			recorder := httptest.NewRecorder()
			NewFaceHandler(svc, 0, nil).Search(recorder, multipartRequest(t, map[string]string{"event_hash": "wedding"}, []byte("x")))

			if recorder.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, recorder.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if body.Error != tc.wantCode {
				t.Errorf("expected error %q, got %q", tc.wantCode, body.Error)
			}
		})
	}
}

func TestFaceHandler_LowQualityIncludesConfidence(t *testing.T) {
	svc := &fakeFaceService{err: &embedder.QualityError{Kind: embedder.KindLowQuality, Message: "too dark", Confidence: 0.31}}
	recorder := httptest.NewRecorder()
	NewFaceHandler(svc, 0, nil).Search(recorder, multipartRequest(t, map[string]string{"event_hash": "e"}, []byte("x")))

	var body errorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body.Confidence == nil || *body.Confidence != 0.31 || body.Message != "too dark" {
		t.Errorf("unexpected body %+v", body)
	}
}

func recallRequestWith(body, subject string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/face/recall", strings.NewReader(body))
	if subject != "" {
		req = req.WithContext(middleware.SetSubjectInContext(req.Context(), subject))
	}
	return req
}

func TestFaceHandler_Recall(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakeFaceService{recallResp: &gallery.RecallResponse{HasProfile: true, SearchResponse: *sampleResponse()}}
		recorder := httptest.NewRecorder()
		NewFaceHandler(svc, 0, nil).Recall(recorder, recallRequestWith(`{"event_hash":"wedding"}`, "user-1"))

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", recorder.Code)
		}
		if svc.recallArgs != [2]string{"wedding", "user-1"} {
			t.Errorf("unexpected args %v", svc.recallArgs)
		}
		var result map[string]any
		json.Unmarshal(recorder.Body.Bytes(), &result)
		if result["has_profile"] != true || result["total_matches"] != float64(1) {
			t.Errorf("unexpected body %v", result)
		}
	})

	t.Run("no profile", func(t *testing.T) {
		svc := &fakeFaceService{recallResp: &gallery.RecallResponse{}}
		recorder := httptest.NewRecorder()
		NewFaceHandler(svc, 0, nil).Recall(recorder, recallRequestWith(`{"eventHash":"wedding"}`, "user-1"))

		if strings.TrimSpace(recorder.Body.String()) != `{"has_profile":false}` {
			t.Errorf("unexpected body %s", recorder.Body.String())
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name       string
			body       string
			subject    string
			err        error
			wantStatus int
		}{
			{"invalid json", `{`, "user-1", nil, http.StatusBadRequest},
			{"missing hash", `{}`, "user-1", nil, http.StatusBadRequest},
			{"anonymous", `{"event_hash":"wedding"}`, "", nil, http.StatusUnauthorized},
			{"unknown event", `{"event_hash":"nope"}`, "user-1", gallery.ErrEventNotFound, http.StatusNotFound},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				svc := &fakeFaceService{err: tc.err, recallResp: &gallery.RecallResponse{}}
				recorder := httptest.NewRecorder()
				NewFaceHandler(svc, 0, nil).Recall(recorder, recallRequestWith(tc.body, tc.subject))
				if recorder.Code != tc.wantStatus {
					t.Errorf("expected status %d, got %d", tc.wantStatus, recorder.Code)
				}
			})
		}
	})
}

func TestFaceHandler_Profile(t *testing.T) {
	updated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeFaceService{profile: &gallery.ProfileStatus{HasProfile: true, MatchCount: 7, UpdatedAt: &updated}}
	handler := NewFaceHandler(svc, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/face/profile?event_hash=wedding", nil)
	req = req.WithContext(middleware.SetSubjectInContext(req.Context(), "user-1"))
	recorder := httptest.NewRecorder()
	handler.Profile(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if svc.profileArgs != [2]string{"wedding", "user-1"} {
		t.Errorf("unexpected args %v", svc.profileArgs)
	}
	var result map[string]any
	json.Unmarshal(recorder.Body.Bytes(), &result)
	if result["has_profile"] != true || result["match_count"] != float64(7) || result["updated_at"] != "2026-05-01T12:00:00Z" {
		t.Errorf("unexpected body %v", result)
	}

	recorder = httptest.NewRecorder()
	handler.Profile(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/face/profile", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("missing hash: expected status 400, got %d", recorder.Code)
	}

	svc.err = errors.New("db down")
	recorder = httptest.NewRecorder()
	handler.Profile(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/face/profile?eventHash=wedding", nil))
	if strings.TrimSpace(recorder.Body.String()) != `{"has_profile":false}` {
		t.Errorf("failure must degrade to no profile, got %s", recorder.Body.String())
	}
}
