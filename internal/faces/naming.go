package faces

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"go.uber.org/zap"
)

// NameFace assigns a name to a face, overwriting any previous name.
// An unknown face is reported before a blank name.
func (s *Service) NameFace(ctx context.Context, userID, faceID, name string) (*NameResult, error) {
	_, err := s.store.GetFace(ctx, userID, faceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrFaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get face: %w", err)
	}

	name = facematch.NormalizeName(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	err = s.store.SetFaceName(ctx, userID, faceID, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrFaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set face name: %w", err)
	}

	s.log.Info("face named", zap.String("user_id", userID), zap.String("face_id", faceID))
	return &NameResult{Status: "success", FaceID: faceID}, nil
}
