package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/lib/pq"
)

// DocumentRepository stores per-user image and face records in PostgreSQL.
type DocumentRepository struct {
	pool *Pool
}

// NewDocumentRepository creates a document repository backed by pool.
func NewDocumentRepository(pool *Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

var _ database.DocumentStore = (*DocumentRepository)(nil)

// CreateImage inserts an image record and fills in the server-assigned upload time.
func (r *DocumentRepository) CreateImage(ctx context.Context, img *database.Image) error {
	faces := img.Faces
	if faces == nil {
		faces = []string{}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO images (user_id, id, storage_path, url, faces)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING uploaded_at
	`, img.UserID, img.ID, img.StoragePath, img.URL, pq.Array(faces)).Scan(&img.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert image %s: %w", img.ID, err)
	}
	img.Faces = faces
	return nil
}

// GetImage returns the image or database.ErrNotFound.
func (r *DocumentRepository) GetImage(ctx context.Context, userID, imageID string) (*database.Image, error) {
	var img database.Image
	var faces pq.StringArray
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, id, storage_path, url, uploaded_at, faces
		FROM images
		WHERE user_id = $1 AND id = $2
	`, userID, imageID).Scan(&img.UserID, &img.ID, &img.StoragePath, &img.URL, &img.UploadedAt, &faces)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", imageID, err)
	}
	img.Faces = []string(faces)
	return &img, nil
}

// AppendImageFace adds faceID to the image's face set, ignoring duplicates.
func (r *DocumentRepository) AppendImageFace(ctx context.Context, userID, imageID, faceID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE images
		SET faces = CASE WHEN $3 = ANY(faces) THEN faces ELSE array_append(faces, $3) END
		WHERE user_id = $1 AND id = $2
	`, userID, imageID, faceID)
	if err != nil {
		return fmt.Errorf("append face to image %s: %w", imageID, err)
	}
	return requireAffected(result, database.ErrNotFound)
}
