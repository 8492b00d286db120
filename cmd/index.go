package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the vector indexes",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the face vector index from the faces table",
	Long: `Re-populate the configured face vector index (FACE_INDEX_BACKEND) from the
embeddings stored with every face record. Use it after switching backends or
losing a persisted HNSW index file.`,
	RunE: runIndexRebuild,
}

var indexCopySemanticCmd = &cobra.Command{
	Use:   "copy-semantic",
	Short: "Copy semantic embeddings from PostgreSQL into the configured backend",
	Long: `Copy every vector of the pgvector semantic collection into the backend
selected by SEMANTIC_INDEX_BACKEND (hnsw or qdrant).`,
	RunE: runIndexCopySemantic,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show face and vector counts",
	RunE:  runIndexStats,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexCopySemanticCmd)
	indexCmd.AddCommand(indexStatsCmd)
}

func newProgressBar(total int, description, unit string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// openIndexPool loads the config and connects to an up-to-date database.
func openIndexPool(ctx context.Context) (*config.Config, *postgres.Pool, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return cfg, pool, nil
}

// requirePersistent rejects an HNSW target that would be lost on exit.
func requirePersistent(target indexTarget) error {
	if target.backend == config.BackendHNSW && target.hnswPath == "" {
		return fmt.Errorf("the %s HNSW index has no persistence path configured", target.name)
	}
	return nil
}

// copyVectors writes vectors into dst. HNSW indexes are rebuilt in one pass.
func copyVectors(ctx context.Context, dst database.VectorIndex, vectors []database.StoredVector, description string) (int, error) {
	if h, ok := dst.(*database.HNSWIndex); ok {
		if err := h.Build(vectors); err != nil {
			return 0, err
		}
		return h.Count(), nil
	}

	bar := newProgressBar(len(vectors), description, "vectors")
	copied := 0
	for _, v := range vectors {
		if err := dst.Upsert(ctx, v.ID, v.Embedding, v.Metadata); err != nil {
			bar.Finish()
			return copied, fmt.Errorf("upsert %s: %w", v.ID, err)
		}
		copied++
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()
	return copied, nil
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, pool, err := openIndexPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	target := faceIndexTarget(cfg)
	if err := requirePersistent(target); err != nil {
		return err
	}
	indexes := newIndexFactory(cfg, pool, nil)
	defer indexes.close()
	dst, err := indexes.open(ctx, target)
	if err != nil {
		return err
	}

	all, err := postgres.NewDocumentRepository(pool).AllFaces(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Indexing %d faces into %s backend...\n", len(all), target.backend)

	vectors := make([]database.StoredVector, 0, len(all))
	skipped := 0
	for _, f := range all {
		if len(f.Embedding) == 0 {
			skipped++
			continue
		}
		vectors = append(vectors, database.StoredVector{ID: f.ID, Embedding: f.Embedding})
	}

	n, err := copyVectors(ctx, dst, vectors, "Indexing faces")
	if err != nil {
		return err
	}
	indexes.save(target)

	fmt.Printf("Face index rebuilt: %d vectors", n)
	if skipped > 0 {
		fmt.Printf(" (%d faces without embedding skipped)", skipped)
	}
	fmt.Println()
	return nil
}

func runIndexCopySemantic(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, pool, err := openIndexPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	target := semanticIndexTarget(cfg)
	if target.backend == config.BackendPgvector {
		return errors.New("SEMANTIC_INDEX_BACKEND is pgvector; nothing to copy")
	}
	if err := requirePersistent(target); err != nil {
		return err
	}

	vectors, err := postgres.NewVectorRepository(pool, target.pgCollection).All(ctx)
	if err != nil {
		return err
	}

	indexes := newIndexFactory(cfg, pool, nil)
	defer indexes.close()
	dst, err := indexes.open(ctx, target)
	if err != nil {
		return err
	}

	fmt.Printf("Copying %d semantic vectors into %s backend...\n", len(vectors), target.backend)
	n, err := copyVectors(ctx, dst, vectors, "Copying embeddings")
	if err != nil {
		return err
	}
	indexes.save(target)
	fmt.Printf("Copied %d vectors\n", n)
	return nil
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, pool, err := openIndexPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	all, err := postgres.NewDocumentRepository(pool).AllFaces(ctx)
	if err != nil {
		return err
	}
	users := make(map[string]struct{})
	unnamed := 0
	for _, f := range all {
		users[f.UserID] = struct{}{}
		if f.NeedNaming {
			unnamed++
		}
	}
	fmt.Printf("Faces:    %d (%d unnamed) across %d users\n", len(all), unnamed, len(users))

	for _, target := range []indexTarget{faceIndexTarget(cfg), semanticIndexTarget(cfg)} {
		count, err := postgres.NewVectorRepository(pool, target.pgCollection).Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pgvector %-9s %d vectors (backend in use: %s)\n", target.name+":", count, target.backend)
	}
	return nil
}
