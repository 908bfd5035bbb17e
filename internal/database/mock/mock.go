// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/selfie-search/internal/database"
	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

// MockEventReader is a mock implementation of database.EventReader
type MockEventReader struct {
	mu     sync.RWMutex
	events map[string]*database.Event // keyed by EventHash

	// Error injection
	GetError error
}

// NewMockEventReader creates a new mock event reader
func NewMockEventReader() *MockEventReader {
	return &MockEventReader{
		events: make(map[string]*database.Event),
	}
}

// AddEvent adds an event to the mock store
func (m *MockEventReader) AddEvent(event database.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.EventHash] = &event
}

// GetEventByHash returns a public event by hash
func (m *MockEventReader) GetEventByHash(ctx context.Context, eventHash string) (*database.Event, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.events[eventHash]
	if !ok || !event.IsPublic {
		return nil, nil
	}
	cp := *event
	return &cp, nil
}

// MockMediaReader is a mock implementation of database.MediaReader
type MockMediaReader struct {
	mu    sync.RWMutex
	media map[string]*database.Media

	// Error injection
	GetError error
}

// NewMockMediaReader creates a new mock media reader
func NewMockMediaReader() *MockMediaReader {
	return &MockMediaReader{
		media: make(map[string]*database.Media),
	}
}

// AddMedia adds photos to the mock store
func (m *MockMediaReader) AddMedia(media ...database.Media) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range media {
		item := media[i]
		m.media[item.ID] = &item
	}
}

// GetMediaByIDs returns the known photos among ids
func (m *MockMediaReader) GetMediaByIDs(ctx context.Context, ids []string) ([]database.Media, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.Media
	for _, id := range ids {
		if item, ok := m.media[id]; ok {
			results = append(results, *item)
		}
	}
	return results, nil
}

// MockFaceReader is a mock implementation of database.FaceReader and
// database.FaceSearcher. Searches are exact brute-force scans.
type MockFaceReader struct {
	mu    sync.RWMutex
	faces map[string][]database.StoredFace // keyed by EventID
	model facematch.ScoreModel

	searches int

	// Error injection
	GetFacesError error
	CountError    error
	SearchError   error
}

// NewMockFaceReader creates a new mock face reader scoring with the default model
func NewMockFaceReader() *MockFaceReader {
	return &MockFaceReader{
		faces: make(map[string][]database.StoredFace),
		model: facematch.DefaultParams().ScoreModel(),
	}
}

// AddFaces adds faces to the mock store, grouped by their EventID
func (m *MockFaceReader) AddFaces(faces ...database.StoredFace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range faces {
		m.faces[f.EventID] = append(m.faces[f.EventID], f)
	}
}

// GetEventFaces retrieves all faces of an event
func (m *MockFaceReader) GetEventFaces(ctx context.Context, eventID string) ([]database.StoredFace, error) {
	if m.GetFacesError != nil {
		return nil, m.GetFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.StoredFace(nil), m.faces[eventID]...), nil
}

// CountEventFaces returns the number of faces of an event
func (m *MockFaceReader) CountEventFaces(ctx context.Context, eventID string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces[eventID]), nil
}

// SearchFaces scores every face of the event against query
func (m *MockFaceReader) SearchFaces(ctx context.Context, query []float32, eventID string, threshold float64, maxResults int) ([]facematch.FaceCandidate, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.searches++
	faces := m.faces[eventID]
	m.mu.Unlock()

	query = vecmath.L2Normalize(query)
	candidates := make([]facematch.FaceCandidate, 0, len(faces))
	for _, f := range faces {
		emb := vecmath.L2Normalize(f.Embedding)
		candidates = append(candidates, facematch.FaceCandidate{
			FaceID:           f.ID,
			MediaID:          f.MediaID,
			FaceIndex:        f.FaceIndex,
			Embedding:        emb,
			CosineSimilarity: vecmath.CosineSimilarity(query, emb),
			L2Distance:       vecmath.L2Distance(query, emb),
		})
	}
	return m.model.Apply(candidates, threshold, maxResults), nil
}

// Searches returns how many SearchFaces calls were made
func (m *MockFaceReader) Searches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searches
}

// MockProfileWriter is a mock implementation of database.ProfileWriter
type MockProfileWriter struct {
	mu       sync.RWMutex
	profiles map[string]*database.FaceSearchProfile // keyed by subject/event
	nextID   int

	// Error injection
	GetError  error
	SaveError error
}

// NewMockProfileWriter creates a new mock profile writer
func NewMockProfileWriter() *MockProfileWriter {
	return &MockProfileWriter{
		profiles: make(map[string]*database.FaceSearchProfile),
	}
}

func profileKey(subject, eventID string) string {
	return subject + "/" + eventID
}

// GetProfile returns the stored profile, or nil if none exists
func (m *MockProfileWriter) GetProfile(ctx context.Context, subject, eventID string) (*database.FaceSearchProfile, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[profileKey(subject, eventID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.Prototype = append([]float32(nil), p.Prototype...)
	return &cp, nil
}

// SaveProfile inserts or replaces a profile
func (m *MockProfileWriter) SaveProfile(ctx context.Context, profile *database.FaceSearchProfile) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	key := profileKey(profile.Subject, profile.EventID)
	if existing, ok := m.profiles[key]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		profile.ID = fmt.Sprintf("profile-%d", m.nextID)
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	cp := *profile
	cp.Prototype = append([]float32(nil), profile.Prototype...)
	m.profiles[key] = &cp
	return nil
}

// Count returns the number of stored profiles
func (m *MockProfileWriter) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

// Compile-time interface checks
var (
	_ database.EventReader   = (*MockEventReader)(nil)
	_ database.MediaReader   = (*MockMediaReader)(nil)
	_ database.FaceReader    = (*MockFaceReader)(nil)
	_ database.FaceSearcher  = (*MockFaceReader)(nil)
	_ database.ProfileWriter = (*MockProfileWriter)(nil)
)
