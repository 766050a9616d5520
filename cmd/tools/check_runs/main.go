package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/david/tender-finder/internal/db"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	limit := flag.Int("n", 10, "number of runs")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListRefreshRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Job", "Trigger", "Status", "Fetched", "Details", "Stored", "Duration", "Started At", "Error"})

	for _, run := range runs {
		duration := "Running..."
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{run.JobID, run.Trigger, run.Status, run.Fetched, run.DetailsRead, run.Upserted, duration, run.StartedAt.Format("2006-01-02 15:04:05"), run.Error})
	}
	t.Render()
}
