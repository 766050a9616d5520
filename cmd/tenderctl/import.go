package main

import (
	"fmt"
	"os"

	"github.com/david/tender-finder/internal/history"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file> [file...]",
	Short: "Build the award history dataset from TenderNed open data",
	Long:  "Recreate the local SQLite award dataset from one or more TenderNed open-data exports (.xlsx or .json).",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

var importDBPath string

func init() {
	importCmd.Flags().StringVar(&importDBPath, "db", "", "Dataset path (default: HISTORY_DB_PATH or "+history.DefaultPath+")")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := importDBPath
	if path == "" {
		path = os.Getenv("HISTORY_DB_PATH")
	}
	if path == "" {
		path = history.DefaultPath
	}

	ctx := cmd.Context()
	im, err := history.CreateDataset(ctx, path)
	if err != nil {
		return err
	}
	defer im.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"File", "Rows", "Notices", "ICT", "Lots"})

	var total history.ImportStats
	for _, file := range args {
		stats, err := im.ImportFile(ctx, file)
		if err != nil {
			return fmt.Errorf("import %s: %w", file, err)
		}
		t.AppendRow(table.Row{file, stats.Rows, stats.Notices, stats.ICT, stats.Lots})
		total.Rows += stats.Rows
		total.Notices += stats.Notices
		total.ICT += stats.ICT
		total.Lots += stats.Lots
	}
	t.AppendFooter(table.Row{"Total", total.Rows, total.Notices, total.ICT, total.Lots})
	t.Render()

	fmt.Printf("Dataset written to %s\n", path)
	return nil
}
