package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist under the given user.
var ErrNotFound = errors.New("not found")

// ImageStore provides access to a user's image records.
type ImageStore interface {
	// CreateImage inserts a new image; UploadedAt is assigned by the store.
	CreateImage(ctx context.Context, img *Image) error
	// GetImage returns ErrNotFound if no image exists for the user.
	GetImage(ctx context.Context, userID, imageID string) (*Image, error)
	// AppendImageFace adds faceID to the image's face set if not already present.
	AppendImageFace(ctx context.Context, userID, imageID, faceID string) error
}

// FaceStore provides access to a user's face records.
type FaceStore interface {
	// CreateFace inserts a new face record.
	CreateFace(ctx context.Context, face *Face) error
	// GetFace returns ErrNotFound if no face exists for the user.
	GetFace(ctx context.Context, userID, faceID string) (*Face, error)
	// SetFaceName stores the name, clears need_naming and stamps last_named.
	// Returns ErrNotFound if no face exists for the user.
	SetFaceName(ctx context.Context, userID, faceID, name string) error
	// AppendFaceImage adds imageID to the face's image references if not already present.
	AppendFaceImage(ctx context.Context, userID, faceID, imageID string) error
	// FindFacesByName returns faces whose name equals name exactly.
	FindFacesByName(ctx context.Context, userID, name string) ([]Face, error)
	// ListFaces returns every face of the user in store order.
	ListFaces(ctx context.Context, userID string) ([]Face, error)
	// AllFaces returns faces of every user, used to rebuild vector indexes.
	AllFaces(ctx context.Context) ([]Face, error)
}

// DocumentStore groups the per-user image and face collections.
type DocumentStore interface {
	ImageStore
	FaceStore
}

// VectorFilter is a set of metadata equality conditions, all of which must hold.
type VectorFilter map[string]string

// Matches reports whether metadata satisfies every condition of the filter.
func (f VectorFilter) Matches(metadata map[string]any) bool {
	for key, want := range f {
		got, ok := metadata[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// VectorIndex is a nearest-neighbor index over fixed-dimension embeddings.
type VectorIndex interface {
	// Upsert inserts or replaces the vector stored under id.
	Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error
	// Query returns up to topK entries ranked by descending similarity.
	// A nil filter matches every entry.
	Query(ctx context.Context, embedding []float32, topK int, filter VectorFilter) ([]VectorMatch, error)
}

// IndexPersister is implemented by vector indexes that keep state on local disk.
type IndexPersister interface {
	// Save writes the index to its configured path (no-op without a path).
	Save() error
	// Count returns the number of indexed vectors.
	Count() int
}
