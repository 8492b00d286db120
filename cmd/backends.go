package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/kozaktomas/face-registry/internal/metrics"
	vectordb "github.com/kozaktomas/face-registry/internal/qdrant"
	"github.com/qdrant/go-client/qdrant"
)

// pgvector collections in the vectors table.
const (
	pgFaceCollection     = "face-recognition"
	pgSemanticCollection = "image-embeddings"
)

// indexTarget describes one logical vector index and where each backend keeps it.
type indexTarget struct {
	name             string // metric label
	backend          string
	dim              int
	pgCollection     string
	qdrantCollection string
	hnswPath         string
}

func faceIndexTarget(cfg *config.Config) indexTarget {
	return indexTarget{
		name:             "faces",
		backend:          cfg.Index.FaceBackend,
		dim:              cfg.Embedding.FaceDim,
		pgCollection:     pgFaceCollection,
		qdrantCollection: cfg.Qdrant.FaceCollection,
		hnswPath:         cfg.Index.HNSWFacePath,
	}
}

func semanticIndexTarget(cfg *config.Config) indexTarget {
	return indexTarget{
		name:             "semantic",
		backend:          cfg.Index.SemanticBackend,
		dim:              cfg.Embedding.SemanticDim,
		pgCollection:     pgSemanticCollection,
		qdrantCollection: cfg.Qdrant.SemanticCollection,
		hnswPath:         cfg.Index.HNSWSemanticPath,
	}
}

// indexFactory opens vector indexes for the configured backends and keeps
// track of what must be saved or closed on exit.
type indexFactory struct {
	cfg     *config.Config
	pool    *postgres.Pool
	metrics *metrics.Metrics

	qdrant *qdrant.Client
	hnsw   map[string]*database.HNSWIndex
}

func newIndexFactory(cfg *config.Config, pool *postgres.Pool, m *metrics.Metrics) *indexFactory {
	return &indexFactory{
		cfg:     cfg,
		pool:    pool,
		metrics: m,
		hnsw:    make(map[string]*database.HNSWIndex),
	}
}

// open returns the index described by target.
func (f *indexFactory) open(ctx context.Context, target indexTarget) (database.VectorIndex, error) {
	switch target.backend {
	case config.BackendPgvector:
		return postgres.NewVectorRepository(f.pool, target.pgCollection), nil

	case config.BackendHNSW:
		idx := database.NewHNSWIndex(target.dim)
		if target.hnswPath != "" {
			fmt.Printf("Loading %s HNSW index from %s...\n", target.name, target.hnswPath)
			if err := idx.Load(target.hnswPath); err != nil {
				return nil, fmt.Errorf("loading %s HNSW index: %w", target.name, err)
			}
			fmt.Printf("%s HNSW index ready with %d vectors\n", target.name, idx.Count())
		} else {
			fmt.Printf("Using in-memory %s HNSW index (not persisted)\n", target.name)
		}
		f.hnsw[target.name] = idx
		f.metrics.SetIndexSize(target.name, idx.Count())
		return idx, nil

	case config.BackendQdrant:
		if f.qdrant == nil {
			client, err := vectordb.NewClient(f.cfg.Qdrant)
			if err != nil {
				return nil, err
			}
			f.qdrant = client
		}
		idx, err := vectordb.NewIndex(ctx, f.qdrant, target.qdrantCollection, target.dim)
		if err != nil {
			return nil, fmt.Errorf("opening %s qdrant collection: %w", target.name, err)
		}
		return idx, nil
	}
	return nil, fmt.Errorf("unknown vector index backend %q", target.backend)
}

// trackSizes reports the size of every HNSW index until ctx is done.
func (f *indexFactory) trackSizes(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, idx := range f.hnsw {
				f.metrics.SetIndexSize(name, idx.Count())
			}
		}
	}
}

// save persists every HNSW index that was opened with a path.
func (f *indexFactory) save(targets ...indexTarget) {
	for _, target := range targets {
		idx, ok := f.hnsw[target.name]
		if !ok || target.hnswPath == "" {
			continue
		}
		if err := idx.Save(); err != nil {
			fmt.Printf("Warning: failed to save %s HNSW index: %v\n", target.name, err)
			continue
		}
		fmt.Printf("%s HNSW index saved to %s (%d vectors)\n", target.name, target.hnswPath, idx.Count())
	}
}

func (f *indexFactory) close() {
	if f.qdrant != nil {
		f.qdrant.Close()
	}
}
