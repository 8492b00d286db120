package faces

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"go.uber.org/zap"
)

// imagePath is the blob path of an uploaded image. Uploads with the same
// filename overwrite the same blob.
func imagePath(userID, filename, imageID string) string {
	base := path.Base(filename)
	if base == "." || base == "/" || base == "" {
		base = imageID
	}
	return fmt.Sprintf("users/%s/images/%s", userID, base)
}

// blobContentType keeps a client-declared image type and otherwise uses the
// decoded format. Multipart clients send application/octet-stream by default.
func blobContentType(declared, format string) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "application/octet-stream" {
		return "image/" + format
	}
	return declared
}

// Resolve detects the faces in an uploaded image and resolves each one to an
// existing identity of the user or a new unnamed one.
//
// Nothing is persisted when the image has no face. Writes are not transactional
// across detections: a failure leaves earlier detections committed.
func (s *Service) Resolve(ctx context.Context, userID string, imageData []byte, filename, contentType string) (*ResolveResult, error) {
	_, format, err := facematch.DecodeConfig(imageData)
	if err != nil {
		return nil, err
	}

	detections, err := s.detector.DetectFaces(ctx, imageData)
	if errors.Is(err, embedding.ErrNoFaceDetected) || (err == nil && len(detections) == 0) {
		s.log.Debug("no face detected", zap.String("user_id", userID))
		s.metrics.UploadFinished("no_face")
		return &ResolveResult{Results: []FaceResult{}}, nil
	}
	if err != nil {
		s.log.Error("face detection failed", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}

	imageID := uuid.NewString()
	storagePath, err := s.blobs.Put(ctx, imagePath(userID, filename, imageID), imageData, blobContentType(contentType, format))
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	img := &database.Image{
		ID:          imageID,
		UserID:      userID,
		StoragePath: storagePath,
		URL:         s.blobs.PublicURL(storagePath),
	}
	if err := s.store.CreateImage(ctx, img); err != nil {
		return nil, fmt.Errorf("create image record: %w", err)
	}
	s.metrics.UploadFinished("stored")

	result := &ResolveResult{
		Results:      make([]FaceResult, 0, len(detections)),
		UnnamedFaces: []FaceResult{},
		ImageID:      imageID,
	}
	for i, det := range detections {
		fr, err := s.resolveDetection(ctx, userID, imageID, det)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		result.Results = append(result.Results, *fr)
		if fr.NeedNaming {
			result.UnnamedFaces = append(result.UnnamedFaces, *fr)
		}
	}

	s.log.Info("image resolved",
		zap.String("user_id", userID),
		zap.String("image_id", imageID),
		zap.Int("faces", len(result.Results)),
		zap.Int("new_faces", len(result.UnnamedFaces)))
	return result, nil
}

func (s *Service) resolveDetection(ctx context.Context, userID, imageID string, det embedding.Detection) (*FaceResult, error) {
	match, err := s.matchFace(ctx, userID, det.Embedding)
	if err != nil {
		return nil, err
	}
	if match != nil {
		if s.matching.LinkMatchedImages {
			if err := s.linkImage(ctx, userID, match.FaceID, imageID); err != nil {
				return nil, err
			}
		}
		s.metrics.FaceResolved(StatusMatched)
		return match, nil
	}

	fr, err := s.createFace(ctx, userID, imageID, det)
	if err != nil {
		return nil, err
	}
	s.metrics.FaceResolved(StatusNewFace)
	return fr, nil
}

// matchFace returns the first index candidate scoring strictly above the
// threshold whose face still exists under the user, or nil.
func (s *Service) matchFace(ctx context.Context, userID string, emb []float32) (*FaceResult, error) {
	candidates, err := s.index.Query(ctx, emb, s.matching.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("query face index: %w", err)
	}

	for _, c := range candidates {
		if c.Score <= s.matching.SimilarityThreshold {
			continue
		}
		face, err := s.store.GetFace(ctx, userID, c.ID)
		if errors.Is(err, database.ErrNotFound) {
			// Belongs to another user or was never committed.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get face %s: %w", c.ID, err)
		}

		s.log.Debug("face matched",
			zap.String("user_id", userID),
			zap.String("face_id", face.ID),
			zap.Float64("score", c.Score))
		return &FaceResult{
			Status:     StatusMatched,
			FaceID:     face.ID,
			Name:       face.Name,
			Confidence: c.Score,
		}, nil
	}
	return nil, nil
}

func (s *Service) createFace(ctx context.Context, userID, imageID string, det embedding.Detection) (*FaceResult, error) {
	face := &database.Face{
		ID:        uuid.NewString(),
		UserID:    userID,
		Embedding: det.Embedding,
		BBox:      det.BBox,
		ImageRefs: []string{imageID},
	}
	if err := s.store.CreateFace(ctx, face); err != nil {
		return nil, fmt.Errorf("create face record: %w", err)
	}
	if err := s.index.Upsert(ctx, face.ID, face.Embedding, nil); err != nil {
		return nil, fmt.Errorf("index face %s: %w", face.ID, err)
	}
	if err := s.store.AppendImageFace(ctx, userID, imageID, face.ID); err != nil {
		return nil, fmt.Errorf("link face %s to image: %w", face.ID, err)
	}

	s.log.Debug("new face", zap.String("user_id", userID), zap.String("face_id", face.ID))
	return &FaceResult{Status: StatusNewFace, FaceID: face.ID, NeedNaming: true}, nil
}

// linkImage records that a matched face also appears in imageID.
func (s *Service) linkImage(ctx context.Context, userID, faceID, imageID string) error {
	if err := s.store.AppendFaceImage(ctx, userID, faceID, imageID); err != nil {
		return fmt.Errorf("link image to face %s: %w", faceID, err)
	}
	if err := s.store.AppendImageFace(ctx, userID, imageID, faceID); err != nil {
		return fmt.Errorf("link face %s to image: %w", faceID, err)
	}
	return nil
}
