package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Count     int       `json:"count"`
	Dim       int       `json:"dim"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const hnswMetadataVersion = 2

// HNSWIndex is an in-memory VectorIndex backed by an HNSW graph.
// It can be persisted to disk so it survives restarts.
type HNSWIndex struct {
	graph    *hnsw.Graph[string]
	metadata map[string]map[string]any // Maps node ID to its payload
	dim      int
	mu       sync.RWMutex
	path     string // Path to save/load index
}

// NewHNSWIndex creates a new empty HNSW index for vectors of the given dimension.
func NewHNSWIndex(dim int) *HNSWIndex {
	return &HNSWIndex{
		graph:    newGraph(),
		metadata: make(map[string]map[string]any),
		dim:      dim,
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Upsert adds or replaces a vector in the index.
func (h *HNSWIndex) Upsert(_ context.Context, id string, embedding []float32, metadata map[string]any) error {
	if id == "" {
		return errors.New("vector id cannot be empty")
	}
	if len(embedding) == 0 {
		return errors.New("vector cannot be empty")
	}
	if h.dim > 0 && len(embedding) != h.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(embedding), h.dim)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	// The graph does not replace existing keys on Add, so a replacement
	// rebuilds the graph without the old node.
	if _, ok := h.graph.Lookup(id); ok {
		h.graph = h.rebuildWithout(id)
	}

	h.graph.Add(hnsw.MakeNode(id, vec))
	h.metadata[id] = metadata
	return nil
}

// rebuildWithout returns a new graph holding every node except id.
// Callers must hold the write lock.
func (h *HNSWIndex) rebuildWithout(id string) *hnsw.Graph[string] {
	g := newGraph()
	for key := range h.metadata {
		if key == id {
			continue
		}
		if vec, ok := h.graph.Lookup(key); ok {
			g.Add(hnsw.MakeNode(key, vec))
		}
	}
	return g
}

// Query finds the topK nearest neighbors whose metadata satisfies filter.
func (h *HNSWIndex) Query(_ context.Context, embedding []float32, topK int, filter VectorFilter) ([]VectorMatch, error) {
	if topK <= 0 {
		return nil, errors.New("topK must be greater than 0")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 {
		return nil, nil
	}
	if h.dim > 0 && len(embedding) != h.dim {
		return nil, fmt.Errorf("vector dimension %d does not match index dimension %d", len(embedding), h.dim)
	}

	// Request more candidates to ensure we have enough after filtering.
	searchK := topK
	if len(filter) > 0 {
		searchK = max(topK*HNSWSearchMultiplier, HNSWMinSearch)
	}

	neighbors := h.graph.Search(embedding, searchK)

	// Search does not return neighbors best-first.
	scored := make([]VectorMatch, 0, len(neighbors))
	for _, n := range neighbors {
		scored = append(scored, VectorMatch{
			ID:    n.Key,
			Score: CosineSimilarity(embedding, n.Value),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	results := make([]VectorMatch, 0, topK)
	for _, m := range scored {
		meta := h.metadata[m.ID]
		if !filter.Matches(meta) {
			continue
		}
		m.Metadata = meta
		results = append(results, m)
		if len(results) >= topK {
			break
		}
	}

	return results, nil
}

// Count returns the number of indexed vectors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph.Len()
}

// Build replaces the index contents with the given vectors.
func (h *HNSWIndex) Build(vectors []StoredVector) error {
	latest := make(map[string]StoredVector, len(vectors))
	order := make([]string, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		if h.dim > 0 && len(v.Embedding) != h.dim {
			return fmt.Errorf("vector %s has dimension %d, expected %d", v.ID, len(v.Embedding), h.dim)
		}
		if _, seen := latest[v.ID]; !seen {
			order = append(order, v.ID)
		}
		latest[v.ID] = v
	}

	g := newGraph()
	metadata := make(map[string]map[string]any, len(latest))
	for _, id := range order {
		v := latest[id]
		g.Add(hnsw.MakeNode(id, v.Embedding))
		metadata[id] = v.Metadata
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.metadata = metadata
	return nil
}

// SetPath sets the path for saving/loading the index.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the graph, its payloads and a .meta header next to it.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil // No path set
	}

	if h.graph.Len() == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".meta")
		_ = os.Remove(h.path + ".payload")
		return nil
	}

	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	payload, err := json.Marshal(h.metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal payloads: %w", err)
	}
	if err := os.WriteFile(h.path+".payload", payload, 0600); err != nil {
		return fmt.Errorf("failed to write payload file: %w", err)
	}

	meta, err := json.Marshal(HNSWIndexMetadata{
		Count:     h.graph.Len(),
		Dim:       h.dim,
		BuildTime: time.Now(),
		Version:   hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(h.path+".meta", meta, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// Load reads a previously saved index from path and remembers the path for Save.
// A missing file leaves the index empty.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // No index file, starts empty
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if meta.Version != hnswMetadataVersion {
		return fmt.Errorf("HNSW index version %d is not supported", meta.Version)
	}
	if h.dim > 0 && meta.Dim != h.dim {
		return fmt.Errorf("HNSW index dimension %d does not match configured %d", meta.Dim, h.dim)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".payload") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read payload file: %w", err)
	}
	metadata := make(map[string]map[string]any)
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal payloads: %w", err)
	}

	g := saved.Graph
	g.Distance = hnsw.CosineDistance
	g.EfSearch = HNSWEfSearch
	h.graph = g
	h.metadata = metadata
	return nil
}
