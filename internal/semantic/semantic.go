// Package semantic stores image and text embeddings in a shared space and
// runs cross-modal nearest-neighbor queries over a user's images.
package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"go.uber.org/zap"
)

// Entry types stored in vector metadata.
const (
	TypeImage = "image"
	TypeText  = "text"
)

// Embedder computes image and text embeddings in the same vector space.
type Embedder interface {
	ImageEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
	TextEmbedding(ctx context.Context, text string) ([]float32, error)
}

// UpsertResult is returned after storing an image embedding.
type UpsertResult struct {
	Status   string `json:"status"`
	VectorID string `json:"vector_id"`
}

// TextResult is returned after storing a text embedding and querying images with it.
type TextResult struct {
	Status   string                 `json:"status"`
	VectorID string                 `json:"vector_id"`
	Matches  []database.VectorMatch `json:"matches"`
}

// Service runs the semantic embedding workflow.
type Service struct {
	embedder Embedder
	index    database.VectorIndex
	topK     int
	log      *zap.Logger
}

// NewService creates a semantic Service. A non-positive topK falls back to constants.DefaultTopK.
func NewService(embedder Embedder, index database.VectorIndex, topK int, log *zap.Logger) *Service {
	if topK <= 0 {
		topK = constants.DefaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{embedder: embedder, index: index, topK: topK, log: log.Named("semantic")}
}

// EmbedImage embeds the image and stores it under a new vector id scoped to the user.
func (s *Service) EmbedImage(ctx context.Context, userID string, imageData []byte) (*UpsertResult, error) {
	if _, _, err := facematch.DecodeConfig(imageData); err != nil {
		return nil, err
	}

	vec, err := s.embedder.ImageEmbedding(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("image embedding: %w", err)
	}

	vectorID := uuid.NewString()
	meta := map[string]any{"user_id": userID, "type": TypeImage}
	if err := s.index.Upsert(ctx, vectorID, vec, meta); err != nil {
		return nil, fmt.Errorf("store image embedding: %w", err)
	}

	s.log.Debug("image embedded", zap.String("user_id", userID), zap.String("vector_id", vectorID))
	return &UpsertResult{Status: "success", VectorID: vectorID}, nil
}

// EmbedText stores the text embedding, then returns the user's images nearest to it.
func (s *Service) EmbedText(ctx context.Context, userID, text string) (*TextResult, error) {
	vec, err := s.embedder.TextEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("text embedding: %w", err)
	}

	vectorID := uuid.NewString()
	meta := map[string]any{"user_id": userID, "type": TypeText, "text": text}
	if err := s.index.Upsert(ctx, vectorID, vec, meta); err != nil {
		return nil, fmt.Errorf("store text embedding: %w", err)
	}

	matches, err := s.index.Query(ctx, vec, s.topK, database.VectorFilter{"user_id": userID, "type": TypeImage})
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	if matches == nil {
		matches = []database.VectorMatch{}
	}
	for i := range matches {
		if matches[i].Metadata == nil {
			matches[i].Metadata = map[string]any{}
		}
	}

	s.log.Debug("text embedded",
		zap.String("user_id", userID),
		zap.String("vector_id", vectorID),
		zap.Int("matches", len(matches)))
	return &TextResult{Status: "success", VectorID: vectorID, Matches: matches}, nil
}
