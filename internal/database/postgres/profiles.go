package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/selfie-search/internal/database"
)

// ProfileRepository stores refined search prototypes per subject and event.
type ProfileRepository struct {
	pool *Pool
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(pool *Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// GetProfile returns the subject's profile for an event, or nil.
func (r *ProfileRepository) GetProfile(ctx context.Context, subject, eventID string) (*database.FaceSearchProfile, error) {
	query := `
		SELECT id, subject, event_id, prototype_embedding, match_count, created_at, updated_at
		FROM face_search_profiles
		WHERE subject = $1 AND event_id = $2
	`

	var p database.FaceSearchProfile
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, subject, eventID).Scan(
		&p.ID, &p.Subject, &p.EventID, &vec, &p.MatchCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Prototype = vec.Slice()
	return &p, nil
}

// SaveProfile inserts the profile or replaces the prototype of an existing one.
func (r *ProfileRepository) SaveProfile(ctx context.Context, profile *database.FaceSearchProfile) error {
	if profile.Subject == "" || profile.EventID == "" {
		return errors.New("profile subject and event are required")
	}
	if len(profile.Prototype) == 0 {
		return errors.New("profile prototype is empty")
	}

	query := `
		INSERT INTO face_search_profiles (id, subject, event_id, prototype_embedding, match_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject, event_id) DO UPDATE SET
			prototype_embedding = EXCLUDED.prototype_embedding,
			match_count = EXCLUDED.match_count,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		uuid.NewString(), profile.Subject, profile.EventID,
		pgvector.NewVector(profile.Prototype), profile.MatchCount,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
