package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
)

func setupMockServer(t *testing.T, faceStatus int, faceBody string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(faceStatus)
		w.Write([]byte(faceBody))
	})

	mux.HandleFunc("/embed/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"dim":3,"embedding":[0.1,0.2,0.3],"model":"ViT-B-32","pretrained":"openai"}`))
	})

	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req textEmbeddingRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Text == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"dim":2,"embedding":[0.5,0.5]}`))
	})

	return httptest.NewServer(mux)
}

func TestDetectFaces(t *testing.T) {
	body := `{"faces_count":2,"model":"buffalo_l","faces":[
		{"face_index":0,"dim":2,"embedding":[1,0],"bbox":[10.2,20.6,40.4,60.5],"det_score":0.98},
		{"face_index":1,"dim":2,"embedding":[0,1],"bbox":[100,100,130,150],"det_score":0.91}
	]}`
	server := setupMockServer(t, http.StatusOK, body)
	defer server.Close()

	c := NewClient(server.URL + "/")
	detections, err := c.DetectFaces(context.Background(), []byte("fake image"))
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(detections))
	}

	want := database.BoundingBox{X: 10, Y: 21, W: 30, H: 40}
	if detections[0].BBox != want {
		t.Errorf("expected bbox %+v, got %+v", want, detections[0].BBox)
	}
	if detections[1].Embedding[1] != 1 {
		t.Errorf("expected provider order to be kept, got %v", detections[1].Embedding)
	}
}

func TestDetectFaces_NoFace(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty list", http.StatusOK, `{"faces_count":0,"faces":[]}`},
		{"enforced detection", http.StatusUnprocessableEntity, `{"detail":"Face could not be detected in numpy array."}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := setupMockServer(t, tc.status, tc.body)
			defer server.Close()

			_, err := NewClient(server.URL).DetectFaces(context.Background(), []byte("img"))
			if !errors.Is(err, ErrNoFaceDetected) {
				t.Errorf("expected ErrNoFaceDetected, got %v", err)
			}
		})
	}
}

func TestDetectFaces_ServerError(t *testing.T) {
	server := setupMockServer(t, http.StatusInternalServerError, `{"detail":"model crashed"}`)
	defer server.Close()

	_, err := NewClient(server.URL).DetectFaces(context.Background(), []byte("img"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNoFaceDetected) {
		t.Error("server error must not be reported as no face")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected APIError with status 500, got %v", err)
	}
}

func TestDetectFaces_InvalidBBox(t *testing.T) {
	server := setupMockServer(t, http.StatusOK, `{"faces":[{"embedding":[1],"bbox":[1,2]}]}`)
	defer server.Close()

	if _, err := NewClient(server.URL).DetectFaces(context.Background(), []byte("img")); err == nil {
		t.Error("expected error for malformed bbox")
	}
}

func TestImageAndTextEmbedding(t *testing.T) {
	server := setupMockServer(t, http.StatusOK, `{}`)
	defer server.Close()

	c := NewClient(server.URL)

	img, err := c.ImageEmbedding(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("ImageEmbedding failed: %v", err)
	}
	if len(img) != 3 {
		t.Errorf("expected 3 dimensions, got %d", len(img))
	}

	txt, err := c.TextEmbedding(context.Background(), "a dog on a beach")
	if err != nil {
		t.Fatalf("TextEmbedding failed: %v", err)
	}
	if len(txt) != 2 {
		t.Errorf("expected 2 dimensions, got %d", len(txt))
	}
}

func TestCornerToBox(t *testing.T) {
	tests := []struct {
		name     string
		corners  []float64
		expected database.BoundingBox
	}{
		{"integer corners", []float64{10, 10, 40, 40}, database.BoundingBox{X: 10, Y: 10, W: 30, H: 30}},
		{"rounded", []float64{0.4, 0.6, 9.5, 9.4}, database.BoundingBox{X: 0, Y: 1, W: 10, H: 8}},
		{"inverted clamps to zero", []float64{50, 50, 40, 40}, database.BoundingBox{X: 50, Y: 50, W: 0, H: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cornerToBox(tc.corners)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("cornerToBox(%v) = %+v; want %+v", tc.corners, got, tc.expected)
			}
		})
	}
}
