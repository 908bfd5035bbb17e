package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/selfie-search/internal/database"
	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/vecmath"
)

// pgvector caps hnsw.ef_search at this value.
const maxEfSearch = 1000

// FaceRepository provides PostgreSQL-backed face reads and pgvector similarity search.
type FaceRepository struct {
	pool     *Pool
	model    facematch.ScoreModel
	efSearch int
}

// NewFaceRepository creates a new PostgreSQL face repository. Search results
// are scored with model; efSearch <= 0 selects database.HNSWEfSearch.
func NewFaceRepository(pool *Pool, model facematch.ScoreModel, efSearch int) *FaceRepository {
	if efSearch <= 0 {
		efSearch = database.HNSWEfSearch
	}
	return &FaceRepository{pool: pool, model: model, efSearch: efSearch}
}

// GetEventFaces retrieves every face of an event.
func (r *FaceRepository) GetEventFaces(ctx context.Context, eventID string) ([]database.StoredFace, error) {
	query := `
		SELECT id, media_id, event_id, face_index, embedding, confidence,
		       bbox_x1, bbox_y1, bbox_x2, bbox_y2, created_at
		FROM face_embeddings
		WHERE event_id = $1
		ORDER BY media_id, face_index
	`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("query event faces: %w", err)
	}
	defer rows.Close()

	var faces []database.StoredFace
	for rows.Next() {
		face, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// CountEventFaces returns the number of faces indexed for an event.
func (r *FaceRepository) CountEventFaces(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings WHERE event_id = $1", eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count event faces: %w", err)
	}
	return count, nil
}

// SearchFaces implements facematch.Gateway on top of the pgvector HNSW index.
// The index returns nearest neighbors by cosine distance within the event;
// the combined score is applied afterwards so every backend ranks identically.
// Cosine distance ignores scale; L2 is taken between normalized vectors.
func (r *FaceRepository) SearchFaces(
	ctx context.Context, query []float32, eventID string, threshold float64, maxResults int,
) ([]facematch.FaceCandidate, error) {
	minCos := r.model.MinCosineFor(threshold)
	if math.IsInf(minCos, 1) {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// ef_search bounds how many rows the index scan can return.
	ef := min(max(r.efSearch, maxResults), maxEfSearch)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", ef)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	sqlQuery := `
		SELECT id, media_id, face_index, embedding,
		       1 - (embedding <=> $1::vector) AS cosine,
		       l2_normalize(embedding) <-> $1::vector AS l2
		FROM face_embeddings
		WHERE event_id = $2 AND (embedding <=> $1::vector) <= $3
		ORDER BY embedding <=> $1::vector
		LIMIT $4
	`

	vec := pgvector.NewVector(vecmath.L2Normalize(query))
	rows, err := tx.QueryContext(ctx, sqlQuery, vec, eventID, 1-minCos, maxResults)
	if err != nil {
		return nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var candidates []facematch.FaceCandidate
	for rows.Next() {
		var c facematch.FaceCandidate
		var emb pgvector.Vector
		if err := rows.Scan(&c.FaceID, &c.MediaID, &c.FaceIndex, &emb, &c.CosineSimilarity, &c.L2Distance); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Embedding = vecmath.L2Normalize(emb.Slice())
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	return r.model.Apply(candidates, threshold, maxResults), nil
}

// scanFaceRow scans one face_embeddings row.
func scanFaceRow(scanner interface{ Scan(...any) error }) (database.StoredFace, error) {
	var face database.StoredFace
	var vec pgvector.Vector
	var x1, y1, x2, y2 sql.NullInt32

	if err := scanner.Scan(
		&face.ID,
		&face.MediaID,
		&face.EventID,
		&face.FaceIndex,
		&vec,
		&face.Confidence,
		&x1, &y1, &x2, &y2,
		&face.CreatedAt,
	); err != nil {
		return face, fmt.Errorf("scan face: %w", err)
	}

	face.Embedding = vec.Slice()
	if x1.Valid && y1.Valid && x2.Valid && y2.Valid {
		face.BBox = []float64{float64(x1.Int32), float64(y1.Int32), float64(x2.Int32), float64(y2.Int32)}
	}
	return face, nil
}
