package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by the Get* functions before a backend registered itself.
var ErrNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

var (
	postgresEventReader   func() EventReader
	postgresMediaReader   func() MediaReader
	postgresFaceReader    func() FaceReader
	postgresFaceSearcher  func() FaceSearcher
	postgresProfileWriter func() ProfileWriter
	postgresInitialized   bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	events func() EventReader,
	media func() MediaReader,
	faces func() FaceReader,
	searcher func() FaceSearcher,
	profiles func() ProfileWriter,
) {
	postgresEventReader = events
	postgresMediaReader = media
	postgresFaceReader = faces
	postgresFaceSearcher = searcher
	postgresProfileWriter = profiles
	postgresInitialized = true
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

func lookup[T any](ctor func() T, name string) (T, error) {
	var zero T
	if !postgresInitialized {
		return zero, ErrNotInitialized
	}
	if ctor == nil {
		return zero, fmt.Errorf("PostgreSQL %s not registered", name)
	}
	return ctor(), nil
}

// GetEventReader returns an EventReader from the PostgreSQL backend
func GetEventReader(_ context.Context) (EventReader, error) {
	return lookup(postgresEventReader, "event reader")
}

// GetMediaReader returns a MediaReader from the PostgreSQL backend
func GetMediaReader(_ context.Context) (MediaReader, error) {
	return lookup(postgresMediaReader, "media reader")
}

// GetFaceReader returns a FaceReader from the PostgreSQL backend
func GetFaceReader(_ context.Context) (FaceReader, error) {
	return lookup(postgresFaceReader, "face reader")
}

// GetFaceSearcher returns the pgvector-backed FaceSearcher
func GetFaceSearcher(_ context.Context) (FaceSearcher, error) {
	return lookup(postgresFaceSearcher, "face searcher")
}

// GetProfileWriter returns a ProfileWriter from the PostgreSQL backend
func GetProfileWriter(_ context.Context) (ProfileWriter, error) {
	return lookup(postgresProfileWriter, "profile writer")
}
