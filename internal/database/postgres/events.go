package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/selfie-search/internal/database"
)

// EventRepository provides PostgreSQL-backed event lookups.
type EventRepository struct {
	pool *Pool
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(pool *Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// GetEventByHash returns the public event with the given hash, or nil.
func (r *EventRepository) GetEventByHash(ctx context.Context, eventHash string) (*database.Event, error) {
	query := `
		SELECT id, event_hash, name, is_public, face_search_enabled, created_at
		FROM events
		WHERE event_hash = $1 AND is_public
	`

	var e database.Event
	err := r.pool.QueryRow(ctx, query, eventHash).Scan(
		&e.ID, &e.EventHash, &e.Name, &e.IsPublic, &e.FaceSearchEnabled, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}
