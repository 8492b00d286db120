package database

import (
	"time"
)

// Image is an uploaded photo stored under a user.
type Image struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	StoragePath string    `json:"storage_path"`
	URL         string    `json:"url"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Faces       []string  `json:"faces"` // append-only set of face IDs
}

// BoundingBox locates a face in pixel coordinates of its source image.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Face is a durable identity a detection resolves to.
// NeedNaming is true exactly when Name is nil.
type Face struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Embedding  []float32   `json:"-"`
	Name       *string     `json:"name"`
	BBox       BoundingBox `json:"face_coordinates"`
	ImageRefs  []string    `json:"image_refs"`
	NeedNaming bool        `json:"need_naming"`
	LastNamed  *time.Time  `json:"last_named,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// VectorMatch is a nearest-neighbor hit returned by a VectorIndex.
// Score is cosine similarity: higher means more similar.
type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// StoredVector is a vector entry as kept by an index backend.
type StoredVector struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
}
