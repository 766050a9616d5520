package main

import (
	"fmt"
	"time"

	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/history"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch TenderNed once and update the tender cache",
	RunE:  runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	src, err := loadSource()
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	if err := db.ApplyMigrations(ctx, pool); err != nil {
		return err
	}

	client := ingest.NewTenderNedClient(src, src.NewFetcher())
	pipeline := ingest.NewPipeline(db.NewStore(pool), client, history.NewStore(""), time.Duration(src.CacheTTLMinutes)*time.Minute)

	run, err := pipeline.Refresh(ctx, ingest.TriggerCLI, uuid.New().String()[:8])
	if err != nil {
		return err
	}
	fmt.Printf("Refresh %s: %d fetched, %d details, %d stored\n", run.JobID, run.Fetched, run.DetailsRead, run.Upserted)
	return nil
}
