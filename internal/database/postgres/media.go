package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/selfie-search/internal/database"
)

// MediaRepository provides PostgreSQL-backed photo lookups.
type MediaRepository struct {
	pool *Pool
}

// NewMediaRepository creates a new PostgreSQL media repository.
func NewMediaRepository(pool *Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

// GetMediaByIDs returns the photos with the given ids in a single query.
func (r *MediaRepository) GetMediaByIDs(ctx context.Context, ids []string) ([]database.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, event_id, album_id, r2_key, preview_r2_key, width, height, created_at
		FROM media
		WHERE id = ANY($1::uuid[])
	`

	rows, err := r.pool.Query(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var media []database.Media
	for rows.Next() {
		var m database.Media
		var albumID, previewKey sql.NullString
		if err := rows.Scan(
			&m.ID, &m.EventID, &albumID, &m.R2Key, &previewKey, &m.Width, &m.Height, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		m.AlbumID = albumID.String
		m.PreviewR2Key = previewKey.String
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return media, nil
}
