package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/david/tender-finder/internal/enrich"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// maxDocumentBytes caps a single TenderNed response body.
const maxDocumentBytes = 16 << 20

var amsterdam = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// FetchStats describes one pass over the TenderNed listing.
type FetchStats struct {
	Pages        int
	Listed       int
	Duplicates   int
	DetailsRead  int
	DetailErrors int
	CPVFiltered  int
}

// TenderNedClient reads publications from the TenderNed TNS API.
type TenderNedClient struct {
	src     SourceConfig
	fetcher Fetcher
	now     func() time.Time
}

func NewTenderNedClient(src SourceConfig, fetcher Fetcher) *TenderNedClient {
	if fetcher == nil {
		fetcher = src.NewFetcher()
	}
	return &TenderNedClient{src: src, fetcher: fetcher, now: time.Now}
}

// FetchPublications walks the listing pages, then reads each publication's
// detail for CPV codes. A failed detail read keeps the listing record.
func (c *TenderNedClient) FetchPublications(ctx context.Context) ([]models.RawTender, FetchStats, error) {
	var stats FetchStats
	pubs, err := c.fetchListing(ctx, &stats)
	if err != nil {
		return nil, stats, err
	}

	if c.src.Detail.Enabled && len(pubs) > 0 {
		if err := c.fetchDetails(ctx, pubs, &stats); err != nil {
			return nil, stats, err
		}
		if c.src.Detail.CPVFilter {
			pubs = filterByCPV(pubs, &stats)
		}
	}

	now := c.now()
	out := make([]models.RawTender, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, c.toRawTender(p, now))
	}
	log.Printf("[TenderNed] Fetched %d publications (%d pages, %d duplicates, %d details, %d detail errors, %d outside CPV list)",
		len(out), stats.Pages, stats.Duplicates, stats.DetailsRead, stats.DetailErrors, stats.CPVFiltered)
	return out, stats, nil
}

// FetchPublication reads one publication straight from the detail endpoint.
func (c *TenderNedClient) FetchPublication(ctx context.Context, id string) (models.RawTender, error) {
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return models.RawTender{}, fmt.Errorf("invalid publication id %q", id)
	}
	var pub tnsPublication
	if err := c.getJSON(ctx, strings.TrimRight(c.src.BaseURL, "/")+"/"+id, &pub); err != nil {
		telemetry.FetchErrors.WithLabelValues("detail").Inc()
		return models.RawTender{}, fmt.Errorf("failed to fetch publication %s: %w", id, err)
	}
	if pub.PublicatieID == "" {
		pub.PublicatieID = tnsID(id)
	}
	pub.detailRead = true
	return c.toRawTender(pub, c.now()), nil
}

func (c *TenderNedClient) fetchListing(ctx context.Context, stats *FetchStats) ([]tnsPublication, error) {
	seen := make(map[tnsID]struct{})
	var pubs []tnsPublication

	for page := 0; page < c.src.MaxPages; page++ {
		pageURL := fmt.Sprintf("%s?page=%d&size=%d", strings.TrimRight(c.src.BaseURL, "/"), page, c.src.PageSize)

		var resp tnsPage
		if err := c.getJSON(ctx, pageURL, &resp); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			telemetry.FetchErrors.WithLabelValues("listing").Inc()
			if page == 0 {
				return nil, fmt.Errorf("failed to fetch first listing page: %w", err)
			}
			log.Printf("[TenderNed] Error fetching page %d, keeping %d publications: %v", page, len(pubs), err)
			break
		}
		stats.Pages++
		if len(resp.Content) == 0 {
			break
		}

		for _, p := range resp.Content {
			stats.Listed++
			if p.PublicatieID == "" {
				continue
			}
			if _, dup := seen[p.PublicatieID]; dup {
				stats.Duplicates++
				continue
			}
			seen[p.PublicatieID] = struct{}{}
			pubs = append(pubs, p)
		}
		log.Printf("[TenderNed] Page %d: %d publications", page, len(resp.Content))

		if resp.Last || len(resp.Content) < c.src.PageSize {
			break
		}
	}
	return pubs, nil
}

func (c *TenderNedClient) fetchDetails(ctx context.Context, pubs []tnsPublication, stats *FetchStats) error {
	limit := c.src.Detail.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range pubs {
		g.Go(func() error {
			id := string(pubs[i].PublicatieID)
			var detail tnsPublication
			err := c.getJSON(gctx, strings.TrimRight(c.src.BaseURL, "/")+"/"+id, &detail)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				stats.DetailErrors++
				telemetry.FetchErrors.WithLabelValues("detail").Inc()
				log.Printf("[TenderNed] Skipping detail for %s: %v", id, err)
				return nil
			}
			stats.DetailsRead++
			mergeDetail(&pubs[i], detail)
			return nil
		})
	}
	return g.Wait()
}

// filterByCPV keeps publications with at least one monitored CPV code and
// those whose detail could not be read.
func filterByCPV(pubs []tnsPublication, stats *FetchStats) []tnsPublication {
	kept := pubs[:0]
	for _, p := range pubs {
		if !p.detailRead || hasMonitoredCPV(p.CpvCodes) {
			kept = append(kept, p)
			continue
		}
		stats.CPVFiltered++
	}
	return kept
}

func hasMonitoredCPV(codes []tnsCpv) bool {
	for _, cpv := range codes {
		if enrich.MatchesCPV(cpv.Code) {
			return true
		}
	}
	return false
}

// mergeDetail copies the CPV codes and any fields the listing left empty.
func mergeDetail(dst *tnsPublication, detail tnsPublication) {
	dst.detailRead = true
	dst.CpvCodes = detail.CpvCodes
	if dst.OpdrachtBeschrijving == "" {
		dst.OpdrachtBeschrijving = detail.OpdrachtBeschrijving
	}
	if len(dst.GeraamdeWaarde) == 0 {
		dst.GeraamdeWaarde = detail.GeraamdeWaarde
	}
	if dst.AanbestedingDetail == nil {
		dst.AanbestedingDetail = detail.AanbestedingDetail
	}
	if dst.TsenderLink == "" {
		dst.TsenderLink = detail.TsenderLink
	}
}

func (c *TenderNedClient) getJSON(ctx context.Context, url string, v any) error {
	doc, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	defer doc.Body.Close()

	body, err := io.ReadAll(io.LimitReader(doc.Body, maxDocumentBytes))
	if err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

func (c *TenderNedClient) toRawTender(p tnsPublication, now time.Time) models.RawTender {
	raw := models.RawTender{
		PublicationID:    string(p.PublicatieID),
		Title:            normalizeSpace(p.AanbestedingNaam),
		Description:      DescriptionText(p.OpdrachtBeschrijving),
		ClientName:       normalizeSpace(p.OpdrachtgeverNaam),
		ContractTypeCode: strings.ToUpper(strings.TrimSpace(p.TypeOpdracht.Code)),
		ContractType:     p.TypeOpdracht.Omschrijving,
		Procedure:        p.Procedure.Omschrijving,
		PublicationType:  p.TypePublicatie.Omschrijving,
		European:         p.Europees,
		Digital:          p.Digitaal,
		ClosingAt:        parseTNSTime(p.SluitingsDatum),
		PublishedAt:      parseTNSTime(p.PublicatieDatum),
		EstimatedValue:   p.officialValue(),
		TSenderURL:       p.TsenderLink,
		DetailURL:        c.TenderNedURL(string(p.PublicatieID)),
		DetailFetched:    p.detailRead,
	}
	if strings.Contains(p.OpdrachtBeschrijving, "<") {
		raw.DescriptionHTML = SanitizeHTML(p.OpdrachtBeschrijving)
	}
	if p.Link != nil && p.Link.Href != "" && raw.DetailURL == "" {
		raw.DetailURL = p.Link.Href
	}

	raw.CpvCodes = make([]models.CpvEntry, 0, len(p.CpvCodes))
	for _, cpv := range p.CpvCodes {
		if strings.TrimSpace(cpv.Code) == "" {
			continue
		}
		raw.CpvCodes = append(raw.CpvCodes, models.CpvEntry{Code: strings.TrimSpace(cpv.Code), Description: cpv.Omschrijving})
	}

	switch {
	case p.AantalDagenTotSluitingsDatum != nil:
		d := *p.AantalDagenTotSluitingsDatum
		raw.DaysToClose = &d
	case raw.ClosingAt != nil:
		d := daysUntil(*raw.ClosingAt, now)
		raw.DaysToClose = &d
	}
	return raw
}

// TenderNedURL is the public announcement page for a publication.
func (c *TenderNedClient) TenderNedURL(id string) string {
	if id == "" || c.src.SiteURL == "" {
		return ""
	}
	return strings.TrimRight(c.src.SiteURL, "/") + "/" + id
}

func daysUntil(t, now time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

var tnsTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTNSTime parses TenderNed timestamps; zone-less values are Amsterdam local time.
func parseTNSTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for i, layout := range tnsTimeLayouts {
		var t time.Time
		var err error
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, amsterdam)
		}
		if err == nil {
			return &t
		}
	}
	return nil
}
