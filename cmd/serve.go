package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-registry/internal/blobstore"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/faces"
	"github.com/kozaktomas/face-registry/internal/logger"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/semantic"
	"github.com/kozaktomas/face-registry/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Face Registry HTTP API.
Pending database migrations are applied on startup. Vector index backends,
blob storage and the embedding server are configured through environment
variables (see .env).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("link-matched-images", false, "Append uploads to matched faces (overrides FACE_LINK_MATCHED_IMAGES)")
}

// applyServeFlags lets explicitly set flags win over environment configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("link-matched-images") {
		cfg.Matching.LinkMatchedImages = mustGetBool(cmd, "link-matched-images")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	blobs, err := blobstore.New(ctx, cfg.Blob)
	if err != nil {
		return err
	}
	fmt.Printf("Blob storage ready (bucket %s)\n", cfg.Blob.Bucket)

	m := metrics.New()
	indexes := newIndexFactory(cfg, pool, m)
	defer indexes.close()

	faceTarget, semanticTarget := faceIndexTarget(cfg), semanticIndexTarget(cfg)
	faceIndex, err := indexes.open(ctx, faceTarget)
	if err != nil {
		return err
	}
	semanticIndex, err := indexes.open(ctx, semanticTarget)
	if err != nil {
		return err
	}
	fmt.Printf("Vector indexes: faces=%s semantic=%s\n", faceTarget.backend, semanticTarget.backend)
	go indexes.trackSizes(ctx, 30*time.Second)

	models := embedding.NewClient(cfg.Embedding.URL)
	services := web.Services{
		Faces: faces.NewService(faces.Deps{
			Store:    postgres.NewDocumentRepository(pool),
			Blobs:    blobs,
			Index:    faceIndex,
			Detector: models,
			Matching: cfg.Matching,
			Metrics:  m,
			Logger:   log,
		}),
		Semantic: semantic.NewService(models, semanticIndex, cfg.Semantic.TopK, log),
	}

	server := web.NewServer(cfg.Web, services, m, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Face Registry on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// In-flight requests are drained by now.
	indexes.save(faceTarget, semanticTarget)
	return nil
}
