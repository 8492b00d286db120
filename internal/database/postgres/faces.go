package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const faceColumns = `user_id, id, embedding, name, bbox_x, bbox_y, bbox_w, bbox_h,
	image_refs, need_naming, last_named, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFace(row rowScanner) (*database.Face, error) {
	var f database.Face
	var embedding pgvector.Vector
	var name sql.NullString
	var refs pq.StringArray
	var lastNamed sql.NullTime

	err := row.Scan(
		&f.UserID, &f.ID, &embedding, &name,
		&f.BBox.X, &f.BBox.Y, &f.BBox.W, &f.BBox.H,
		&refs, &f.NeedNaming, &lastNamed, &f.CreatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}

	f.Embedding = embedding.Slice()
	if name.Valid {
		f.Name = &name.String
	}
	f.ImageRefs = []string(refs)
	if lastNamed.Valid {
		t := lastNamed.Time
		f.LastNamed = &t
	}
	return &f, nil
}

func scanFaces(rows *sql.Rows) ([]database.Face, error) {
	defer rows.Close()

	var faces []database.Face
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// CreateFace inserts a new face. A face without a name is stored as needing naming.
func (r *DocumentRepository) CreateFace(ctx context.Context, face *database.Face) error {
	refs := face.ImageRefs
	if refs == nil {
		refs = []string{}
	}
	var name sql.NullString
	if face.Name != nil {
		name = sql.NullString{String: *face.Name, Valid: true}
	}
	face.NeedNaming = face.Name == nil

	err := r.pool.QueryRow(ctx, `
		INSERT INTO faces (user_id, id, embedding, name, bbox_x, bbox_y, bbox_w, bbox_h, image_refs, need_naming)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, face.UserID, face.ID, pgvector.NewVector(face.Embedding), name,
		face.BBox.X, face.BBox.Y, face.BBox.W, face.BBox.H,
		pq.Array(refs), face.NeedNaming).Scan(&face.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert face %s: %w", face.ID, err)
	}
	face.ImageRefs = refs
	return nil
}

// GetFace returns the face or database.ErrNotFound.
func (r *DocumentRepository) GetFace(ctx context.Context, userID, faceID string) (*database.Face, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+faceColumns+` FROM faces WHERE user_id = $1 AND id = $2`, userID, faceID)
	f, err := scanFace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get face %s: %w", faceID, err)
	}
	return f, nil
}

// SetFaceName names the face, clears need_naming and stamps last_named.
func (r *DocumentRepository) SetFaceName(ctx context.Context, userID, faceID, name string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE faces
		SET name = $3, need_naming = FALSE, last_named = NOW()
		WHERE user_id = $1 AND id = $2
	`, userID, faceID, name)
	if err != nil {
		return fmt.Errorf("set name of face %s: %w", faceID, err)
	}
	return requireAffected(result, database.ErrNotFound)
}

// AppendFaceImage adds imageID to the face's references, ignoring duplicates.
func (r *DocumentRepository) AppendFaceImage(ctx context.Context, userID, faceID, imageID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE faces
		SET image_refs = CASE WHEN $3 = ANY(image_refs) THEN image_refs ELSE array_append(image_refs, $3) END
		WHERE user_id = $1 AND id = $2
	`, userID, faceID, imageID)
	if err != nil {
		return fmt.Errorf("append image to face %s: %w", faceID, err)
	}
	return requireAffected(result, database.ErrNotFound)
}

// FindFacesByName returns the user's faces carrying exactly name.
func (r *DocumentRepository) FindFacesByName(ctx context.Context, userID, name string) ([]database.Face, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+faceColumns+`
		FROM faces
		WHERE user_id = $1 AND name = $2
		ORDER BY created_at, id
	`, userID, name)
	if err != nil {
		return nil, fmt.Errorf("find faces by name: %w", err)
	}
	return scanFaces(rows)
}

// ListFaces returns every face of the user, oldest first.
func (r *DocumentRepository) ListFaces(ctx context.Context, userID string) ([]database.Face, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+faceColumns+`
		FROM faces
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	return scanFaces(rows)
}

// AllFaces returns the faces of every user.
func (r *DocumentRepository) AllFaces(ctx context.Context) ([]database.Face, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+faceColumns+` FROM faces ORDER BY user_id, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list all faces: %w", err)
	}
	return scanFaces(rows)
}
