// Package faces resolves detected faces to per-user identities, names them,
// and serves face crops and person lookups.
package faces

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"go.uber.org/zap"
)

// notFound is a sentinel that also matches database.ErrNotFound.
type notFound string

func (e notFound) Error() string { return string(e) }

func (e notFound) Is(target error) bool { return target == database.ErrNotFound }

var (
	// ErrFaceNotFound is returned when the face does not exist under the user.
	ErrFaceNotFound error = notFound("face not found")
	// ErrPersonNotFound is returned when no face of the user carries the name.
	ErrPersonNotFound error = notFound("person not found")
	// ErrImageNotFound is returned when a face references an image that does not exist.
	ErrImageNotFound error = notFound("image not found")

	// ErrDetectionFailed is returned when the face embedding provider fails for
	// any reason other than finding no face.
	ErrDetectionFailed = errors.New("face detection failed")
	// ErrInvalidName is returned for a name that is blank after trimming.
	ErrInvalidName = errors.New("name must not be blank")
)

// BlobStore stores raw image bytes.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	PublicURL(path string) string
}

// FaceDetector detects faces and computes their embeddings.
type FaceDetector interface {
	// DetectFaces returns embedding.ErrNoFaceDetected when the image has no face.
	DetectFaces(ctx context.Context, imageData []byte) ([]embedding.Detection, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    database.DocumentStore
	Blobs    BlobStore
	Index    database.VectorIndex // face index, keyed by face id
	Detector FaceDetector
	Matching config.MatchingConfig
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Service runs the face workflows. It holds no per-request state.
type Service struct {
	store    database.DocumentStore
	blobs    BlobStore
	index    database.VectorIndex
	detector FaceDetector
	matching config.MatchingConfig
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewService creates a Service. A zero TopK falls back to constants.DefaultTopK.
func NewService(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	matching := deps.Matching
	if matching.TopK <= 0 {
		matching.TopK = constants.DefaultTopK
	}
	return &Service{
		store:    deps.Store,
		blobs:    deps.Blobs,
		index:    deps.Index,
		detector: deps.Detector,
		matching: matching,
		metrics:  deps.Metrics,
		log:      log.Named("faces"),
	}
}
