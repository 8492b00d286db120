package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/pgvector/pgvector-go"
)

// VectorRepository is a pgvector-backed VectorIndex over a single collection.
type VectorRepository struct {
	pool       *Pool
	collection string
}

// NewVectorRepository creates a vector index stored in the vectors table under collection.
func NewVectorRepository(pool *Pool, collection string) *VectorRepository {
	return &VectorRepository{pool: pool, collection: collection}
}

var _ database.VectorIndex = (*VectorRepository)(nil)

// Upsert inserts or replaces the vector stored under id.
func (r *VectorRepository) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO vectors (collection, id, embedding, metadata)
		VALUES ($1, $2, $3::vector, $4::jsonb)
		ON CONFLICT (collection, id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata
	`, r.collection, id, pgvector.NewVector(embedding), string(meta))
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

// Query returns up to topK entries ordered by cosine similarity.
func (r *VectorRepository) Query(ctx context.Context, embedding []float32, topK int, filter database.VectorFilter) ([]database.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	args := []any{r.collection, pgvector.NewVector(embedding)}
	var conditions []string

	// Sorted keys keep the generated SQL stable.
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, filter[k])
		conditions = append(conditions, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}

	where := "collection = $1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $2::vector) AS similarity, metadata
		FROM vectors
		WHERE %s
		ORDER BY embedding <=> $2::vector, id
		LIMIT $%d
	`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []database.VectorMatch
	for rows.Next() {
		var m database.VectorMatch
		var meta []byte
		if err := rows.Scan(&m.ID, &m.Score, &meta); err != nil {
			return nil, fmt.Errorf("scan vector match: %w", err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata of %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector matches: %w", err)
	}
	return matches, nil
}

// All returns every vector of the collection, used to rebuild in-memory indexes.
func (r *VectorRepository) All(ctx context.Context) ([]database.StoredVector, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, embedding, metadata FROM vectors WHERE collection = $1 ORDER BY created_at, id
	`, r.collection)
	if err != nil {
		return nil, fmt.Errorf("list vectors: %w", err)
	}
	defer rows.Close()

	var out []database.StoredVector
	for rows.Next() {
		var v database.StoredVector
		var emb pgvector.Vector
		var meta []byte
		if err := rows.Scan(&v.ID, &emb, &meta); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = emb.Slice()
		if err := json.Unmarshal(meta, &v.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata of %s: %w", v.ID, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}
	return out, nil
}

// Count returns the number of vectors in the collection.
func (r *VectorRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vectors WHERE collection = $1`, r.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}
