package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/tender-finder/internal/api"
	"github.com/david/tender-finder/internal/auth"
	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/history"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	reg, err := ingest.LoadRegistry(os.Getenv("SOURCES_FILE"))
	if err != nil {
		log.Fatalf("Failed to load sources: %v", err)
	}
	src, err := reg.Source(ingest.DefaultSourceID)
	if err != nil {
		log.Fatal(err)
	}

	hist := history.NewStore(os.Getenv("HISTORY_DB_PATH"))
	defer hist.Close()
	if !hist.Loaded() {
		log.Printf("History dataset %s not found; award history stays empty until `tenderctl import` has run", hist.Path())
	}

	store := db.NewStore(pool)
	client := ingest.NewTenderNedClient(src, src.NewFetcher())
	pipeline := ingest.NewPipeline(store, client, hist, time.Duration(src.CacheTTLMinutes)*time.Minute)

	if src.Schedule != "" {
		sched, err := ingest.NewScheduler(pipeline, src.Schedule)
		if err != nil {
			log.Fatalf("Invalid refresh schedule: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := api.NewServer(pipeline, store, hist, auth.NewService(pool))

	go func() {
		log.Printf("Server starting on port %s...", port)
		if err := srv.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Print("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
