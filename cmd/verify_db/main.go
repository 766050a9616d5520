package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/history"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	cache, err := db.NewStore(pool).CacheStats(ctx, 30*time.Minute)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Cached tenders: %d\n", cache.TotalTenders)
	if cache.LastRefresh != nil {
		fmt.Printf("Last refresh:   %s (fresh: %v)\n", cache.LastRefresh.Format(time.RFC3339), cache.IsFresh)
	} else {
		fmt.Println("Last refresh:   never")
	}

	hist := history.NewStore(os.Getenv("HISTORY_DB_PATH"))
	defer hist.Close()
	if !hist.Loaded() {
		fmt.Printf("History dataset %s not found\n", hist.Path())
		return
	}
	counts, err := hist.Counts(ctx)
	if err != nil {
		log.Fatalf("History query failed: %v", err)
	}
	fmt.Printf("History notices: %d (ICT %d)\n", counts.Notices, counts.ICT)
	fmt.Printf("History lots:    %d\n", counts.Lots)
}
