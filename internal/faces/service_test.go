package faces

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database/mock"
)

type testEnv struct {
	svc      *Service
	store    *mock.MockDocumentStore
	index    *mock.MockVectorIndex
	blobs    *mock.MockBlobStore
	detector *mock.MockFaceDetector
}

func newTestEnv(t *testing.T, matching config.MatchingConfig) *testEnv {
	t.Helper()
	if matching.SimilarityThreshold == 0 {
		matching.SimilarityThreshold = 0.45
	}
	env := &testEnv{
		store:    mock.NewMockDocumentStore(),
		index:    mock.NewMockVectorIndex(),
		blobs:    mock.NewMockBlobStore(),
		detector: &mock.MockFaceDetector{},
	}
	env.svc = NewService(Deps{
		Store:    env.store,
		Blobs:    env.blobs,
		Index:    env.index,
		Detector: env.detector,
		Matching: matching,
	})
	return env
}

// testPNG returns a width x height PNG.
func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func strPtr(s string) *string {
	return &s
}
