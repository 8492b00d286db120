package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/face-registry/internal/embedding"
)

// MockBlobStore keeps blobs in memory.
type MockBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// ContentTypes records the content type of every Put.
	ContentTypes map[string]string
	PutCalls     int

	PutError error
	GetError error
}

// NewMockBlobStore creates an empty mock blob store.
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		blobs:        make(map[string][]byte),
		ContentTypes: make(map[string]string),
	}
}

// Put stores data under path, overwriting existing data.
func (m *MockBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if m.PutError != nil {
		return "", m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	m.blobs[path] = slices.Clone(data)
	m.ContentTypes[path] = contentType
	return path, nil
}

// Get returns the blob stored under path.
func (m *MockBlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", path)
	}
	return slices.Clone(data), nil
}

// PublicURL returns a fake public URL.
func (m *MockBlobStore) PublicURL(path string) string {
	return "https://blobs.test/" + path
}

// Len returns the number of stored blobs.
func (m *MockBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// MockFaceDetector returns scripted detections.
type MockFaceDetector struct {
	Detections []embedding.Detection
	Err        error
	Calls      int
}

// DetectFaces returns Detections, or Err when set.
func (m *MockFaceDetector) DetectFaces(ctx context.Context, imageData []byte) ([]embedding.Detection, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Detections, nil
}

// MockSemanticEmbedder returns fixed image and text embeddings.
type MockSemanticEmbedder struct {
	ImageVector []float32
	TextVector  []float32

	ImageError error
	TextError  error

	TextCalls []string
}

// ImageEmbedding returns ImageVector.
func (m *MockSemanticEmbedder) ImageEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	if m.ImageError != nil {
		return nil, m.ImageError
	}
	return m.ImageVector, nil
}

// TextEmbedding returns TextVector and records the text.
func (m *MockSemanticEmbedder) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	if m.TextError != nil {
		return nil, m.TextError
	}
	m.TextCalls = append(m.TextCalls, text)
	return m.TextVector, nil
}
