// Package mock provides in-memory implementations of the storage and provider interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

type key struct {
	userID string
	id     string
}

// MockDocumentStore is an in-memory database.DocumentStore.
type MockDocumentStore struct {
	mu        sync.RWMutex
	images    map[key]*database.Image
	faces     map[key]*database.Face
	faceOrder []key

	// Now stamps server timestamps.
	Now func() time.Time

	// Track calls
	CreateImageCalls   int
	CreateFaceCalls    int
	SetFaceNameCalls   int
	AppendImageCalls   int
	AppendFaceImgCalls int

	// Error injection
	CreateImageError     error
	GetImageError        error
	AppendImageFaceError error
	CreateFaceError      error
	GetFaceError         error
	SetFaceNameError     error
	AppendFaceImageError error
	FindByNameError      error
	ListFacesError       error
}

var _ database.DocumentStore = (*MockDocumentStore)(nil)

// NewMockDocumentStore creates an empty mock document store.
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		images: make(map[key]*database.Image),
		faces:  make(map[key]*database.Face),
		Now:    time.Now,
	}
}

// AddImage seeds an image record.
func (m *MockDocumentStore) AddImage(img database.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img.Faces = slices.Clone(img.Faces)
	m.images[key{img.UserID, img.ID}] = &img
}

// AddFace seeds a face record.
func (m *MockDocumentStore) AddFace(face database.Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putFace(face)
}

func (m *MockDocumentStore) putFace(face database.Face) {
	k := key{face.UserID, face.ID}
	if _, ok := m.faces[k]; !ok {
		m.faceOrder = append(m.faceOrder, k)
	}
	face.ImageRefs = slices.Clone(face.ImageRefs)
	m.faces[k] = &face
}

// ImageCount returns the number of stored images across all users.
func (m *MockDocumentStore) ImageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images)
}

// FaceCount returns the number of stored faces across all users.
func (m *MockDocumentStore) FaceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces)
}

func cloneImage(img *database.Image) *database.Image {
	c := *img
	c.Faces = slices.Clone(img.Faces)
	return &c
}

func cloneFace(f *database.Face) *database.Face {
	c := *f
	c.ImageRefs = slices.Clone(f.ImageRefs)
	c.Embedding = slices.Clone(f.Embedding)
	if f.Name != nil {
		name := *f.Name
		c.Name = &name
	}
	return &c
}

// CreateImage stores a new image and stamps UploadedAt.
func (m *MockDocumentStore) CreateImage(ctx context.Context, img *database.Image) error {
	if m.CreateImageError != nil {
		return m.CreateImageError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateImageCalls++
	img.UploadedAt = m.Now()
	if img.Faces == nil {
		img.Faces = []string{}
	}
	m.images[key{img.UserID, img.ID}] = cloneImage(img)
	return nil
}

// GetImage returns a copy of the image or database.ErrNotFound.
func (m *MockDocumentStore) GetImage(ctx context.Context, userID, imageID string) (*database.Image, error) {
	if m.GetImageError != nil {
		return nil, m.GetImageError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[key{userID, imageID}]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneImage(img), nil
}

// AppendImageFace adds faceID to the image's face set.
func (m *MockDocumentStore) AppendImageFace(ctx context.Context, userID, imageID, faceID string) error {
	if m.AppendImageFaceError != nil {
		return m.AppendImageFaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendImageCalls++
	img, ok := m.images[key{userID, imageID}]
	if !ok {
		return database.ErrNotFound
	}
	if !slices.Contains(img.Faces, faceID) {
		img.Faces = append(img.Faces, faceID)
	}
	return nil
}

// CreateFace stores a new face and stamps CreatedAt.
func (m *MockDocumentStore) CreateFace(ctx context.Context, face *database.Face) error {
	if m.CreateFaceError != nil {
		return m.CreateFaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateFaceCalls++
	face.CreatedAt = m.Now()
	face.NeedNaming = face.Name == nil
	if face.ImageRefs == nil {
		face.ImageRefs = []string{}
	}
	m.putFace(*cloneFace(face))
	return nil
}

// GetFace returns a copy of the face or database.ErrNotFound.
func (m *MockDocumentStore) GetFace(ctx context.Context, userID, faceID string) (*database.Face, error) {
	if m.GetFaceError != nil {
		return nil, m.GetFaceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.faces[key{userID, faceID}]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneFace(f), nil
}

// SetFaceName names the face and clears need_naming.
func (m *MockDocumentStore) SetFaceName(ctx context.Context, userID, faceID, name string) error {
	if m.SetFaceNameError != nil {
		return m.SetFaceNameError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[key{userID, faceID}]
	if !ok {
		return database.ErrNotFound
	}
	m.SetFaceNameCalls++
	now := m.Now()
	f.Name = &name
	f.NeedNaming = false
	f.LastNamed = &now
	return nil
}

// AppendFaceImage adds imageID to the face's image references.
func (m *MockDocumentStore) AppendFaceImage(ctx context.Context, userID, faceID, imageID string) error {
	if m.AppendFaceImageError != nil {
		return m.AppendFaceImageError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendFaceImgCalls++
	f, ok := m.faces[key{userID, faceID}]
	if !ok {
		return database.ErrNotFound
	}
	if !slices.Contains(f.ImageRefs, imageID) {
		f.ImageRefs = append(f.ImageRefs, imageID)
	}
	return nil
}

// FindFacesByName returns the user's faces whose name equals name.
func (m *MockDocumentStore) FindFacesByName(ctx context.Context, userID, name string) ([]database.Face, error) {
	if m.FindByNameError != nil {
		return nil, m.FindByNameError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Face
	for _, k := range m.faceOrder {
		f := m.faces[k]
		if k.userID == userID && f.Name != nil && *f.Name == name {
			out = append(out, *cloneFace(f))
		}
	}
	return out, nil
}

// ListFaces returns the user's faces in insertion order.
func (m *MockDocumentStore) ListFaces(ctx context.Context, userID string) ([]database.Face, error) {
	if m.ListFacesError != nil {
		return nil, m.ListFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Face
	for _, k := range m.faceOrder {
		if k.userID == userID {
			out = append(out, *cloneFace(m.faces[k]))
		}
	}
	return out, nil
}

// AllFaces returns every face in insertion order.
func (m *MockDocumentStore) AllFaces(ctx context.Context) ([]database.Face, error) {
	if m.ListFacesError != nil {
		return nil, m.ListFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Face, 0, len(m.faceOrder))
	for _, k := range m.faceOrder {
		out = append(out, *cloneFace(m.faces[k]))
	}
	return out, nil
}
