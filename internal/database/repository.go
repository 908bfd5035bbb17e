package database

import (
	"context"

	"github.com/kozaktomas/selfie-search/internal/facematch"
)

// EventReader provides read-only access to events
type EventReader interface {
	// GetEventByHash returns the public event with the given hash, or nil if
	// there is none (unknown hash or not public).
	GetEventByHash(ctx context.Context, eventHash string) (*Event, error)
}

// MediaReader provides read-only access to photos
type MediaReader interface {
	// GetMediaByIDs returns the photos with the given ids. Unknown ids are skipped
	// and the result order is unspecified.
	GetMediaByIDs(ctx context.Context, ids []string) ([]Media, error)
}

// FaceReader provides read-only access to face embeddings
type FaceReader interface {
	// GetEventFaces retrieves every face of an event, embeddings included
	GetEventFaces(ctx context.Context, eventID string) ([]StoredFace, error)
	// CountEventFaces returns the number of faces indexed for an event
	CountEventFaces(ctx context.Context, eventID string) (int, error)
}

// FaceSearcher finds similar faces within an event.
type FaceSearcher interface {
	facematch.Gateway
}

// ProfileReader provides read-only access to stored search profiles
type ProfileReader interface {
	// GetProfile returns the subject's profile for an event, or nil if none exists
	GetProfile(ctx context.Context, subject, eventID string) (*FaceSearchProfile, error)
}

// ProfileWriter provides write access to search profiles
type ProfileWriter interface {
	ProfileReader

	// SaveProfile inserts or replaces the profile for (Subject, EventID).
	// ID, CreatedAt and UpdatedAt are filled in on return.
	SaveProfile(ctx context.Context, profile *FaceSearchProfile) error
}
