package mock

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/kozaktomas/face-registry/internal/database"
)

// UpsertCall tracks a VectorIndex.Upsert call
type UpsertCall struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
}

// QueryCall tracks a VectorIndex.Query call
type QueryCall struct {
	Embedding []float32
	TopK      int
	Filter    database.VectorFilter
}

// MockVectorIndex is an in-memory database.VectorIndex.
// When Matches is set, Query returns it verbatim (truncated to topK) instead of searching.
type MockVectorIndex struct {
	mu      sync.Mutex
	vectors map[string]database.StoredVector
	order   []string

	Matches []database.VectorMatch

	UpsertCalls []UpsertCall
	QueryCalls  []QueryCall

	UpsertError error
	QueryError  error
}

var _ database.VectorIndex = (*MockVectorIndex)(nil)

// NewMockVectorIndex creates an empty mock vector index.
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{vectors: make(map[string]database.StoredVector)}
}

// Upsert stores the vector under id.
func (m *MockVectorIndex) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls = append(m.UpsertCalls, UpsertCall{ID: id, Embedding: embedding, Metadata: metadata})
	if _, ok := m.vectors[id]; !ok {
		m.order = append(m.order, id)
	}
	m.vectors[id] = database.StoredVector{ID: id, Embedding: slices.Clone(embedding), Metadata: metadata}
	return nil
}

// Query returns the scripted matches, or the stored vectors ranked by cosine similarity.
func (m *MockVectorIndex) Query(ctx context.Context, embedding []float32, topK int, filter database.VectorFilter) ([]database.VectorMatch, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls = append(m.QueryCalls, QueryCall{Embedding: embedding, TopK: topK, Filter: filter})

	var matches []database.VectorMatch
	if m.Matches != nil {
		matches = slices.Clone(m.Matches)
	} else {
		for _, id := range m.order {
			v := m.vectors[id]
			if !filter.Matches(v.Metadata) {
				continue
			}
			matches = append(matches, database.VectorMatch{
				ID:       id,
				Score:    database.CosineSimilarity(embedding, v.Embedding),
				Metadata: v.Metadata,
			})
		}
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of stored vectors.
func (m *MockVectorIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vectors)
}
