package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	applied, err := pool.Migrate(context.Background())
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Database schema is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Printf("Applied migration: %s\n", name)
	}
	fmt.Printf("Applied %d migration(s)\n", len(applied))
	return nil
}
