package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/david/tender-finder/internal/enrich"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/david/tender-finder/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch open tenders live and print an enriched MSP report",
	Long:  "Fetch current TenderNed publications, keep the IT-relevant ones, enrich them and print a table sorted by MSP fit.",
	RunE:  runReport,
}

var reportOpts ingest.ListOptions

const maxTitleWidth = 60

func init() {
	f := reportCmd.Flags()
	f.IntVar(&reportOpts.MinScore, "min-score", 0, "Minimum relevance score")
	f.StringVar(&reportOpts.MSPTier, "tier", "", "MSP tier (relevant, possibly_relevant, not_msp)")
	f.StringVar(&reportOpts.Segment, "segment", "", "Segment substring, e.g. cloud")
	f.StringVar(&reportOpts.Type, "type", "", "Publication type substring, e.g. aankondiging")
	f.StringVar(&reportOpts.ContractType, "contract-type", "", "Contract type code (D, L, W)")
	f.StringVarP(&reportOpts.Query, "query", "q", "", "Text in title or description")
	f.BoolVar(&reportOpts.OpenOnly, "open", false, "Only tenders that have not closed")
	f.BoolVar(&reportOpts.SignalsOnly, "signals", false, "Only tenders with signals")
	f.StringVar(&reportOpts.Sort, "sort", ingest.SortMSPFit, "Sort by msp_fit, relevance, value, signals or closing")
	f.IntVarP(&reportOpts.Limit, "limit", "n", ingest.DefaultListLimit, "Maximum rows")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	if err := reportOpts.Validate(); err != nil {
		return err
	}
	src, err := loadSource()
	if err != nil {
		return err
	}

	client := ingest.NewTenderNedClient(src, src.NewFetcher())
	raws, stats, err := client.FetchPublications(cmd.Context())
	if err != nil {
		return err
	}

	var summaries []models.TenderSummary
	for _, raw := range raws {
		if !enrich.IsITRelevant(raw) {
			continue
		}
		summaries = append(summaries, ingest.NewSummary(raw, enrich.Enrich(raw)))
	}
	summaries = ingest.Deduplicate(summaries)
	res := ingest.FilterSummaries(summaries, reportOpts, time.Now())

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Fit", "Tier", "Rel", "Client type", "Title", "Segments", "Value", "Signals", "Days"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, WidthMax: maxTitleWidth},
		{Number: 6, WidthMax: 30},
	})
	for _, s := range res.Tenders {
		days := "-"
		if s.DaysToClose != nil {
			days = fmt.Sprint(*s.DaysToClose)
		}
		t.AppendRow(table.Row{
			s.MSPFit.Score,
			tierColor(s.MSPFit.Tier).Sprint(s.MSPFit.Tier),
			s.Relevance.Score,
			s.ClientType,
			s.Title,
			strings.Join(s.Segments, ", "),
			s.Value.Display,
			len(s.Signals),
			days,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d of %d IT tenders (%d fetched)", len(res.Tenders), res.Total, stats.Listed)})
	t.Render()
	return nil
}

func tierColor(tier models.MSPTier) text.Colors {
	switch tier {
	case models.MSPRelevant:
		return text.Colors{text.FgGreen}
	case models.MSPPossiblyRelevant:
		return text.Colors{text.FgYellow}
	}
	return text.Colors{text.FgHiBlack}
}
