package faces

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"go.uber.org/zap"
)

// FaceCrop returns the face cut out of its first image, encoded as JPEG.
func (s *Service) FaceCrop(ctx context.Context, userID, faceID string) ([]byte, error) {
	face, err := s.store.GetFace(ctx, userID, faceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrFaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get face: %w", err)
	}
	if len(face.ImageRefs) == 0 {
		return nil, ErrImageNotFound
	}

	img, err := s.store.GetImage(ctx, userID, face.ImageRefs[0])
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}

	data, err := s.blobs.Get(ctx, img.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}

	crop, err := facematch.CropFace(data, face.BBox)
	if err != nil {
		return nil, fmt.Errorf("crop face %s: %w", faceID, err)
	}
	return crop, nil
}

// PersonImages returns the images of every face named name, deduplicated in
// first-seen order. References to missing images are skipped.
func (s *Service) PersonImages(ctx context.Context, userID, name string) ([]database.Image, error) {
	name = facematch.NormalizeName(name)

	faces, err := s.store.FindFacesByName(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("find faces by name: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrPersonNotFound
	}

	images := []database.Image{}
	seen := make(map[string]bool)
	for _, f := range faces {
		for _, imageID := range f.ImageRefs {
			if seen[imageID] {
				continue
			}
			seen[imageID] = true

			img, err := s.store.GetImage(ctx, userID, imageID)
			if errors.Is(err, database.ErrNotFound) {
				s.log.Warn("face references missing image",
					zap.String("user_id", userID),
					zap.String("face_id", f.ID),
					zap.String("image_id", imageID))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get image %s: %w", imageID, err)
			}
			images = append(images, *img)
		}
	}
	return images, nil
}

// UserFaces lists every face of the user in store order.
func (s *Service) UserFaces(ctx context.Context, userID string) ([]FaceSummary, error) {
	faces, err := s.store.ListFaces(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	out := make([]FaceSummary, 0, len(faces))
	for _, f := range faces {
		out = append(out, summarize(f))
	}
	return out, nil
}
