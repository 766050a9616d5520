// Command tenderctl is the operator CLI: dataset import, live reports and
// one-off cache refreshes.
package main

import (
	"fmt"
	"os"

	"github.com/david/tender-finder/internal/ingest"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tenderctl",
	Short: "TenderNed tender intelligence for MSPs",
	Long:  "tenderctl imports the TenderNed award dataset, prints enriched reports of open ICT tenders and refreshes the tender cache.",
}

var sourcesFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&sourcesFile, "sources", "", "Path to a sources.yaml (default: SOURCES_FILE or the embedded registry)")
}

// loadSource resolves the TenderNed source from the registry.
func loadSource() (ingest.SourceConfig, error) {
	path := sourcesFile
	if path == "" {
		path = os.Getenv("SOURCES_FILE")
	}
	reg, err := ingest.LoadRegistry(path)
	if err != nil {
		return ingest.SourceConfig{}, err
	}
	return reg.Source(ingest.DefaultSourceID)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
