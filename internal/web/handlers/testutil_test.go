package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/faces"
	"github.com/kozaktomas/face-registry/internal/semantic"
	"go.uber.org/zap"
)

// testHandlers wires handlers to in-memory collaborators.
type testHandlers struct {
	faces    *FacesHandler
	semantic *SemanticHandler

	store    *mock.MockDocumentStore
	index    *mock.MockVectorIndex
	blobs    *mock.MockBlobStore
	detector *mock.MockFaceDetector

	semanticIndex *mock.MockVectorIndex
	embedder      *mock.MockSemanticEmbedder
}

func newTestHandlers(t *testing.T) *testHandlers {
	t.Helper()
	h := &testHandlers{
		store:         mock.NewMockDocumentStore(),
		index:         mock.NewMockVectorIndex(),
		blobs:         mock.NewMockBlobStore(),
		detector:      &mock.MockFaceDetector{},
		semanticIndex: mock.NewMockVectorIndex(),
		embedder:      &mock.MockSemanticEmbedder{},
	}
	facesSvc := faces.NewService(faces.Deps{
		Store:    h.store,
		Blobs:    h.blobs,
		Index:    h.index,
		Detector: h.detector,
		Matching: config.MatchingConfig{SimilarityThreshold: 0.45, TopK: 5},
	})
	h.faces = NewFacesHandler(facesSvc, zap.NewNop())
	h.semantic = NewSemanticHandler(semantic.NewService(h.embedder, h.semanticIndex, 5, nil), zap.NewNop())
	return h
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartRequest builds a POST request with data in the "file" field.
func multipartRequest(t *testing.T, path, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// testPNG returns a gray PNG of the given size.
func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
