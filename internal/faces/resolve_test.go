package faces

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
)

func detection(values ...float32) embedding.Detection {
	return embedding.Detection{
		Embedding: values,
		BBox:      database.BoundingBox{X: 10, Y: 10, W: 30, H: 30},
		Score:     0.99,
	}
}

func TestResolve_NoFacePersistsNothing(t *testing.T) {
	tests := []struct {
		name       string
		detections []embedding.Detection
		err        error
	}{
		{"provider reports no face", nil, embedding.ErrNoFaceDetected},
		{"empty detection list", []embedding.Detection{}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, config.MatchingConfig{})
			env.detector.Detections = tc.detections
			env.detector.Err = tc.err

			result, err := env.svc.Resolve(context.Background(), "alice", testPNG(t, 20, 20), "a.png", "image/png")
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if result.Results == nil || len(result.Results) != 0 {
				t.Errorf("expected empty results, got %v", result.Results)
			}
			if result.UnnamedFaces != nil {
				t.Errorf("expected nil unnamed faces, got %v", result.UnnamedFaces)
			}
			if env.store.ImageCount() != 0 || env.store.FaceCount() != 0 || env.index.Len() != 0 || env.blobs.Len() != 0 {
				t.Error("expected nothing to be persisted")
			}

			body, _ := json.Marshal(result)
			if string(body) != `{"results":[],"unnamed_faces":null}` {
				t.Errorf("unexpected JSON %s", body)
			}
		})
	}
}

func TestResolve_DetectionFailure(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	env.detector.Err = errors.New("model crashed")

	_, err := env.svc.Resolve(context.Background(), "alice", testPNG(t, 20, 20), "a.png", "image/png")
	if !errors.Is(err, ErrDetectionFailed) {
		t.Fatalf("expected ErrDetectionFailed, got %v", err)
	}
	if env.store.ImageCount() != 0 || env.blobs.Len() != 0 {
		t.Error("expected nothing to be persisted")
	}
}

func TestResolve_UndecodableImage(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})

	if _, err := env.svc.Resolve(context.Background(), "alice", []byte("not an image"), "a.png", ""); err == nil {
		t.Fatal("expected error")
	}
	if env.detector.Calls != 0 {
		t.Error("detector must not be called for an undecodable image")
	}
}

func TestResolve_Threshold(t *testing.T) {
	tests := []struct {
		name          string
		score         float64
		expectMatched bool
	}{
		{"well below", 0.10, false},
		{"just below", 0.44, false},
		{"exactly at threshold", 0.45, false},
		{"just above", 0.4501, true},
		{"strong", 0.90, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, config.MatchingConfig{})
			env.store.AddFace(database.Face{ID: "face-a", UserID: "alice", Name: strPtr("Ann"), ImageRefs: []string{"img-0"}})
			env.index.Matches = []database.VectorMatch{{ID: "face-a", Score: tc.score}}
			env.detector.Detections = []embedding.Detection{detection(1, 0)}

			result, err := env.svc.Resolve(context.Background(), "alice", testPNG(t, 50, 50), "b.png", "image/png")
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			got := result.Results[0]

			if tc.expectMatched {
				if got.Status != StatusMatched || got.FaceID != "face-a" || got.Confidence != tc.score {
					t.Errorf("expected match on face-a, got %+v", got)
				}
				if got.Name == nil || *got.Name != "Ann" {
					t.Errorf("expected name Ann, got %v", got.Name)
				}
				if env.store.FaceCount() != 1 || len(env.index.UpsertCalls) != 0 {
					t.Error("a match must not create a face or vector")
				}
				if len(result.UnnamedFaces) != 0 {
					t.Errorf("expected no unnamed faces, got %v", result.UnnamedFaces)
				}
			} else {
				if got.Status != StatusNewFace || !got.NeedNaming || got.FaceID == "face-a" {
					t.Errorf("expected new face, got %+v", got)
				}
				if env.store.FaceCount() != 2 || len(env.index.UpsertCalls) != 1 {
					t.Error("expected one new face and one vector")
				}
			}
		})
	}
}

func TestResolve_FirstAboveThresholdWins(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	env.store.AddFace(database.Face{ID: "face-a", UserID: "alice"})
	env.store.AddFace(database.Face{ID: "face-b", UserID: "alice", Name: strPtr("Bob")})
	env.store.AddFace(database.Face{ID: "face-other", UserID: "bob"})
	env.index.Matches = []database.VectorMatch{
		{ID: "face-gone", Score: 0.97},  // no record
		{ID: "face-other", Score: 0.95}, // other user's face
		{ID: "face-b", Score: 0.60},
		{ID: "face-a", Score: 0.90},
	}
	env.detector.Detections = []embedding.Detection{detection(1, 0)}

	result, err := env.svc.Resolve(context.Background(), "alice", testPNG(t, 50, 50), "b.png", "image/png")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	got := result.Results[0]
	if got.Status != StatusMatched || got.FaceID != "face-b" || got.Confidence != 0.60 {
		t.Errorf("expected first existing candidate face-b, got %+v", got)
	}

	q := env.index.QueryCalls[0]
	if q.TopK != 5 || q.Filter != nil {
		t.Errorf("expected unfiltered top-5 query, got %+v", q)
	}
}

func TestResolve_NewThenMatched(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	ctx := context.Background()

	// Image A: a face never seen before.
	env.detector.Detections = []embedding.Detection{detection(1, 0)}
	first, err := env.svc.Resolve(ctx, "alice", testPNG(t, 100, 100), "a.png", "image/png")
	if err != nil {
		t.Fatalf("Resolve A failed: %v", err)
	}
	if len(first.Results) != 1 || first.Results[0].Status != StatusNewFace || !first.Results[0].NeedNaming {
		t.Fatalf("expected one new face, got %+v", first.Results)
	}
	faceID := first.Results[0].FaceID
	if len(first.UnnamedFaces) != 1 || first.UnnamedFaces[0].FaceID != faceID {
		t.Errorf("expected the new face to be unnamed, got %+v", first.UnnamedFaces)
	}

	img, err := env.store.GetImage(ctx, "alice", first.ImageID)
	if err != nil {
		t.Fatalf("image A not stored: %v", err)
	}
	if !slices.Equal(img.Faces, []string{faceID}) {
		t.Errorf("expected image faces [%s], got %v", faceID, img.Faces)
	}
	face, err := env.store.GetFace(ctx, "alice", faceID)
	if err != nil {
		t.Fatalf("face not stored: %v", err)
	}
	if !face.NeedNaming || face.Name != nil || !slices.Equal(face.ImageRefs, []string{first.ImageID}) {
		t.Errorf("unexpected face record %+v", face)
	}
	if len(env.index.UpsertCalls) != 1 || env.index.UpsertCalls[0].ID != faceID {
		t.Errorf("expected the face embedding to be indexed under its id")
	}

	// Image B: same person, cosine similarity 0.9.
	env.detector.Detections = []embedding.Detection{detection(0.9, float32(math.Sqrt(1-0.81)))}
	second, err := env.svc.Resolve(ctx, "alice", testPNG(t, 100, 100), "b.png", "image/png")
	if err != nil {
		t.Fatalf("Resolve B failed: %v", err)
	}
	got := second.Results[0]
	if got.Status != StatusMatched || got.FaceID != faceID {
		t.Fatalf("expected match on %s, got %+v", faceID, got)
	}
	if math.Abs(got.Confidence-0.9) > 1e-3 {
		t.Errorf("expected confidence ~0.9, got %v", got.Confidence)
	}
	if env.store.FaceCount() != 1 {
		t.Errorf("expected no new face, got %d faces", env.store.FaceCount())
	}

	// The matched face keeps only its original image.
	face, _ = env.store.GetFace(ctx, "alice", faceID)
	if !slices.Equal(face.ImageRefs, []string{first.ImageID}) {
		t.Errorf("expected image refs unchanged, got %v", face.ImageRefs)
	}
	imgB, _ := env.store.GetImage(ctx, "alice", second.ImageID)
	if len(imgB.Faces) != 0 {
		t.Errorf("expected image B to have no new faces, got %v", imgB.Faces)
	}
}

func TestResolve_LinkMatchedImages(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{LinkMatchedImages: true})
	ctx := context.Background()
	env.store.AddFace(database.Face{ID: "face-a", UserID: "alice", ImageRefs: []string{"img-0"}})
	env.index.Matches = []database.VectorMatch{{ID: "face-a", Score: 0.8}}
	env.detector.Detections = []embedding.Detection{detection(1, 0)}

	result, err := env.svc.Resolve(ctx, "alice", testPNG(t, 50, 50), "b.png", "image/png")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	face, _ := env.store.GetFace(ctx, "alice", "face-a")
	if !slices.Equal(face.ImageRefs, []string{"img-0", result.ImageID}) {
		t.Errorf("expected the new image to be linked, got %v", face.ImageRefs)
	}
	img, _ := env.store.GetImage(ctx, "alice", result.ImageID)
	if !slices.Equal(img.Faces, []string{"face-a"}) {
		t.Errorf("expected image to reference face-a, got %v", img.Faces)
	}
}

func TestResolve_MultipleDetections(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	env.store.AddFace(database.Face{ID: "face-a", UserID: "alice", Name: strPtr("Ann")})

	// Only the first detection is similar to face-a.
	env.index.Upsert(context.Background(), "face-a", []float32{1, 0, 0}, nil)
	env.index.UpsertCalls = nil
	env.detector.Detections = []embedding.Detection{
		detection(1, 0, 0),
		detection(0, 1, 0),
		detection(0, 0, 1),
	}

	result, err := env.svc.Resolve(context.Background(), "alice", testPNG(t, 50, 50), "group.png", "image/png")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(result.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(result.Results))
	}
	if result.Results[0].Status != StatusMatched {
		t.Errorf("expected first detection to match, got %+v", result.Results[0])
	}
	if len(result.UnnamedFaces) != 2 ||
		result.UnnamedFaces[0].FaceID != result.Results[1].FaceID ||
		result.UnnamedFaces[1].FaceID != result.Results[2].FaceID {
		t.Errorf("expected unnamed faces to follow detection order, got %+v", result.UnnamedFaces)
	}
	if env.store.CreateImageCalls != 1 || env.blobs.PutCalls != 1 {
		t.Error("expected exactly one image upload")
	}
}

// failingIndex fails every Upsert after the first n.
type failingIndex struct {
	database.VectorIndex
	n int
}

func (f *failingIndex) Upsert(ctx context.Context, id string, emb []float32, meta map[string]any) error {
	if f.n == 0 {
		return errors.New("index unavailable")
	}
	f.n--
	return f.VectorIndex.Upsert(ctx, id, emb, meta)
}

func TestResolve_PartialFailureKeepsEarlierWrites(t *testing.T) {
	env := newTestEnv(t, config.MatchingConfig{})
	svc := NewService(Deps{
		Store:    env.store,
		Blobs:    env.blobs,
		Index:    &failingIndex{VectorIndex: env.index, n: 1},
		Detector: env.detector,
		Matching: config.MatchingConfig{SimilarityThreshold: 0.45},
	})
	env.detector.Detections = []embedding.Detection{detection(1, 0), detection(0, 1)}

	if _, err := svc.Resolve(context.Background(), "alice", testPNG(t, 50, 50), "a.png", "image/png"); err == nil {
		t.Fatal("expected error from second detection")
	}
	if env.store.ImageCount() != 1 {
		t.Errorf("expected image to stay committed, got %d", env.store.ImageCount())
	}
	if env.index.Len() != 1 {
		t.Errorf("expected first face vector to stay committed, got %d", env.index.Len())
	}
}

func TestResolve_BlobPath(t *testing.T) {
	tests := []struct {
		name         string
		filename     string
		contentType  string
		expectedPath string
		expectedType string
	}{
		{"plain filename", "photo.png", "image/png", "users/alice/images/photo.png", "image/png"},
		{"directories stripped", "../../etc/photo.png", "image/png", "users/alice/images/photo.png", "image/png"},
		{"content type from format", "photo.png", "", "users/alice/images/photo.png", "image/png"},
		{"octet-stream replaced by format", "photo.png", "application/octet-stream", "users/alice/images/photo.png", "image/png"},
		{"declared image type kept", "photo.png", "image/x-png", "users/alice/images/photo.png", "image/x-png"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, config.MatchingConfig{})
			env.detector.Detections = []embedding.Detection{detection(1, 0)}

			result, err := env.svc.Resolve(context.Background(), "alice", testPNG(t, 20, 20), tc.filename, tc.contentType)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			img, _ := env.store.GetImage(context.Background(), "alice", result.ImageID)
			if img.StoragePath != tc.expectedPath {
				t.Errorf("expected path %q, got %q", tc.expectedPath, img.StoragePath)
			}
			if img.URL != "https://blobs.test/"+tc.expectedPath {
				t.Errorf("unexpected URL %q", img.URL)
			}
			if got := env.blobs.ContentTypes[tc.expectedPath]; got != tc.expectedType {
				t.Errorf("expected content type %q, got %q", tc.expectedType, got)
			}
		})
	}
}

func TestImagePath_EmptyFilename(t *testing.T) {
	if got := imagePath("alice", "", "img-1"); got != "users/alice/images/img-1" {
		t.Errorf("imagePath = %q", got)
	}
}

func TestFaceResult_JSON(t *testing.T) {
	tests := []struct {
		name     string
		result   FaceResult
		expected string
	}{
		{
			name:     "matched named",
			result:   FaceResult{Status: StatusMatched, FaceID: "f1", Name: strPtr("Ann"), Confidence: 0.9},
			expected: `{"status":"matched","face_id":"f1","name":"Ann","confidence":0.9}`,
		},
		{
			name:     "matched unnamed",
			result:   FaceResult{Status: StatusMatched, FaceID: "f1", Confidence: 0.5},
			expected: `{"status":"matched","face_id":"f1","name":null,"confidence":0.5}`,
		},
		{
			name:     "new face",
			result:   FaceResult{Status: StatusNewFace, FaceID: "f2", NeedNaming: true},
			expected: `{"status":"new_face","face_id":"f2","need_naming":true}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, err := json.Marshal(tc.result)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(body) != tc.expected {
				t.Errorf("got %s; want %s", body, tc.expected)
			}
		})
	}
}
