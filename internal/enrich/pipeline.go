// Package enrich derives the MSP classification of a TenderNed tender:
// relevance, segments, client type, certifications, value, fit and signals.
// Everything here is a pure function over a RawTender and static tables.
package enrich

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/david/tender-finder/internal/models"
)

// Enrich computes the enrichment bundle for one tender.
func Enrich(raw models.RawTender) models.Enrichment {
	text := combinedText(raw.Title, raw.Description)
	certText := raw.Title + " " + raw.Description

	relevance := ScoreRelevance(raw.Title, raw.Description, raw.CpvCodes)
	segments := DetectSegments(raw.Title, raw.Description, raw.CpvCodes)
	client := ClassifyClient(raw.ClientName)

	explicit := DetectExplicitCerts(certText)
	implied := DetectImpliedCerts(certText, explicit)
	expected := ExpectedRequirements(client, segments)

	value := EstimateValue(raw, client, segments)
	fit := ScoreMSPFit(raw.Title, raw.Description, raw.ContractTypeCode, client, segments)

	signals := DetectSignals(SignalInput{
		Raw:         raw,
		Client:      client,
		Segments:    segments,
		Expected:    expected,
		Value:       value,
		MSPFit:      fit,
		Text:        text,
		AppSoftware: isAppSoftware(text),
	})

	return models.Enrichment{
		Relevance:              relevance,
		Segments:               segments,
		ClientType:             client,
		ExpectedCertifications: expected,
		ExplicitCertifications: explicit,
		ImpliedCertifications:  implied,
		Value:                  value,
		MSPFit:                 fit,
		Signals:                signals,
	}
}

// EnrichBatch enriches tenders in parallel. Result i belongs to raws[i].
// workers <= 0 uses GOMAXPROCS.
func EnrichBatch(ctx context.Context, raws []models.RawTender, workers int) ([]models.Enrichment, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]models.Enrichment, len(raws))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range raws {
		i := i
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = Enrich(raws[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
