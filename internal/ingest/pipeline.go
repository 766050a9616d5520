package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/enrich"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	enrichWorkers     = 4
	historyWorkers    = 4
	historyPerTender  = 5
	defaultRefreshTTL = 30 * time.Minute
)

// Refresh run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Refresh triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerOnDemand  = "on_demand"
	TriggerCLI       = "cli"
)

// TenderStore is the tender cache the pipeline reads and refreshes.
type TenderStore interface {
	UpsertTenders(ctx context.Context, raws []models.RawTender, fetchedAt time.Time) (int, error)
	ListTenders(ctx context.Context, q db.TenderQuery) ([]models.RawTender, error)
	GetTender(ctx context.Context, id string) (models.RawTender, error)
	CountTenders(ctx context.Context) (int, error)
	IsCacheFresh(ctx context.Context, ttl time.Duration) (bool, error)
	SetLastRefresh(ctx context.Context, t time.Time) error
	CacheStats(ctx context.Context, ttl time.Duration) (models.CacheStats, error)
	CreateRefreshRun(ctx context.Context, jobID, trigger string) (int64, error)
	FinishRefreshRun(ctx context.Context, run models.RefreshRun) error
}

type PublicationSource interface {
	FetchPublications(ctx context.Context) ([]models.RawTender, FetchStats, error)
}

// DetailSource is implemented by sources that can read a single publication.
type DetailSource interface {
	FetchPublication(ctx context.Context, id string) (models.RawTender, error)
}

// AwardHistory looks up past awards of a contracting authority.
type AwardHistory interface {
	AwardsForClient(ctx context.Context, client string, limit int) ([]models.Award, error)
}

// Pipeline keeps the tender cache fresh and turns cached records into enriched summaries.
type Pipeline struct {
	Store   TenderStore
	Source  PublicationSource
	History AwardHistory
	TTL     time.Duration

	now func() time.Time
	mu  sync.Mutex
}

func NewPipeline(store TenderStore, source PublicationSource, history AwardHistory, ttl time.Duration) *Pipeline {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	return &Pipeline{
		Store:   store,
		Source:  source,
		History: history,
		TTL:     ttl,
		now:     time.Now,
	}
}

// Refresh fetches TenderNed and replaces the cached records. Runs are serialized.
func (p *Pipeline) Refresh(ctx context.Context, trigger, jobID string) (models.RefreshRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx, trigger, jobID)
}

func (p *Pipeline) refreshLocked(ctx context.Context, trigger, jobID string) (models.RefreshRun, error) {
	start := p.now()
	run := models.RefreshRun{JobID: jobID, Trigger: trigger, Status: RunRunning, StartedAt: start}

	id, err := p.Store.CreateRefreshRun(ctx, jobID, trigger)
	if err != nil {
		log.Printf("[Refresh] Failed to record run: %v", err)
	}
	run.ID = id

	log.Printf("[Refresh] Starting (%s)", trigger)
	runErr := p.fetchAndStore(ctx, &run)

	finished := p.now()
	run.FinishedAt = &finished
	run.Status = RunCompleted
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}
	if run.ID != 0 {
		// The request context may already be cancelled; the run record still has to close.
		if err := p.Store.FinishRefreshRun(context.WithoutCancel(ctx), run); err != nil {
			log.Printf("[Refresh] Failed to update run %d: %v", run.ID, err)
		}
	}
	telemetry.ObserveRefresh(trigger, run.Status, run.Fetched, finished.Sub(start))

	if runErr != nil {
		log.Printf("[Refresh] Failed after %s: %v", finished.Sub(start).Round(time.Millisecond), runErr)
		return run, runErr
	}
	log.Printf("[Refresh] Done in %s: %d fetched, %d stored", finished.Sub(start).Round(time.Millisecond), run.Fetched, run.Upserted)
	return run, nil
}

func (p *Pipeline) fetchAndStore(ctx context.Context, run *models.RefreshRun) error {
	raws, stats, err := p.Source.FetchPublications(ctx)
	run.Fetched = len(raws)
	run.DetailsRead = stats.DetailsRead
	if err != nil {
		return fmt.Errorf("failed to fetch publications: %w", err)
	}

	fetchedAt := p.now()
	n, err := p.Store.UpsertTenders(ctx, raws, fetchedAt)
	run.Upserted = n
	if err != nil {
		return fmt.Errorf("failed to store tenders: %w", err)
	}
	if err := p.Store.SetLastRefresh(ctx, fetchedAt); err != nil {
		return fmt.Errorf("failed to mark refresh: %w", err)
	}
	return nil
}

// EnsureFresh refreshes a stale cache. When that fails and older records exist
// they are served and the refresh error is only logged.
func (p *Pipeline) EnsureFresh(ctx context.Context) error {
	fresh, err := p.Store.IsCacheFresh(ctx, p.TTL)
	if err != nil {
		return fmt.Errorf("failed to check cache: %w", err)
	}
	if fresh {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another request may have refreshed while we waited.
	if fresh, err := p.Store.IsCacheFresh(ctx, p.TTL); err == nil && fresh {
		return nil
	}

	_, refreshErr := p.refreshLocked(ctx, TriggerOnDemand, "")
	if refreshErr == nil {
		return nil
	}
	if errors.Is(refreshErr, context.Canceled) {
		return refreshErr
	}

	count, err := p.Store.CountTenders(ctx)
	if err != nil || count == 0 {
		return refreshErr
	}
	telemetry.StaleServed.Inc()
	log.Printf("[Refresh] Serving %d cached tenders after failed refresh", count)
	return nil
}

// Summaries returns the IT-relevant cached tenders matching q, enriched,
// deduplicated and with award history attached.
func (p *Pipeline) Summaries(ctx context.Context, q db.TenderQuery) ([]models.TenderSummary, error) {
	if err := p.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	raws, err := p.Store.ListTenders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenders: %w", err)
	}

	relevant := raws[:0:0]
	for _, raw := range raws {
		if enrich.IsITRelevant(raw) {
			relevant = append(relevant, raw)
		}
	}

	summaries, err := p.summarize(ctx, relevant)
	if err != nil {
		return nil, err
	}
	return Deduplicate(summaries), nil
}

// Summary enriches a single cached tender. Ids missing from the cache are
// read live from the source; db.ErrNotFound is returned when that fails too.
func (p *Pipeline) Summary(ctx context.Context, id string) (models.TenderSummary, error) {
	raw, err := p.Store.GetTender(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		raw, err = p.fetchLive(ctx, id)
	}
	if err != nil {
		return models.TenderSummary{}, err
	}
	out, err := p.summarize(ctx, []models.RawTender{raw})
	if err != nil {
		return models.TenderSummary{}, err
	}
	return out[0], nil
}

func (p *Pipeline) fetchLive(ctx context.Context, id string) (models.RawTender, error) {
	src, ok := p.Source.(DetailSource)
	if !ok {
		return models.RawTender{}, db.ErrNotFound
	}
	raw, err := src.FetchPublication(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawTender{}, ctx.Err()
		}
		log.Printf("[Pipeline] Live lookup of %s failed: %v", id, err)
		return models.RawTender{}, db.ErrNotFound
	}
	return raw, nil
}

// SummariesByID enriches the cached tenders with the given ids, skipping ids no longer cached.
func (p *Pipeline) SummariesByID(ctx context.Context, ids []string) ([]models.TenderSummary, error) {
	if len(ids) == 0 {
		return []models.TenderSummary{}, nil
	}
	raws, err := p.Store.ListTenders(ctx, db.TenderQuery{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to list tenders: %w", err)
	}
	return p.summarize(ctx, raws)
}

// CacheStats reports the cache state with the pipeline's TTL.
func (p *Pipeline) CacheStats(ctx context.Context) (models.CacheStats, error) {
	return p.Store.CacheStats(ctx, p.TTL)
}

func (p *Pipeline) summarize(ctx context.Context, raws []models.RawTender) ([]models.TenderSummary, error) {
	enriched, err := enrich.EnrichBatch(ctx, raws, enrichWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to enrich tenders: %w", err)
	}

	awards := p.awardsByClient(ctx, raws)

	out := make([]models.TenderSummary, len(raws))
	for i, raw := range raws {
		out[i] = NewSummary(raw, enriched[i])
		if h, ok := awards[clientKey(raw.ClientName)]; ok {
			out[i].History = h
		}
		telemetry.TendersEnriched.WithLabelValues(string(enriched[i].MSPFit.Tier)).Inc()
	}
	return out, nil
}

// awardsByClient looks up each distinct client once. Lookup failures leave the client without history.
func (p *Pipeline) awardsByClient(ctx context.Context, raws []models.RawTender) map[string][]models.Award {
	out := make(map[string][]models.Award)
	if p.History == nil {
		return out
	}

	clients := make(map[string]string)
	for _, raw := range raws {
		if key := clientKey(raw.ClientName); key != "" {
			clients[key] = raw.ClientName
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyWorkers)
	for key, name := range clients {
		g.Go(func() error {
			awards, err := p.History.AwardsForClient(gctx, name, historyPerTender)
			if err != nil {
				log.Printf("[History] Lookup failed for %q: %v", name, err)
				return nil
			}
			mu.Lock()
			out[key] = awards
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func clientKey(name string) string {
	return strings.ToLower(normalizeSpace(name))
}

// NewSummary combines a raw record with its enrichment.
func NewSummary(raw models.RawTender, e models.Enrichment) models.TenderSummary {
	return models.TenderSummary{
		ID:              raw.PublicationID,
		Title:           raw.Title,
		Client:          raw.ClientName,
		PublishedAt:     raw.PublishedAt,
		PublicationType: raw.PublicationType,
		ContractType:    raw.ContractType,
		ContractCode:    raw.ContractTypeCode,
		Procedure:       raw.Procedure,
		ClosingAt:       raw.ClosingAt,
		DaysToClose:     raw.DaysToClose,
		European:        raw.European,
		Digital:         raw.Digital,
		Description:     raw.Description,
		TenderNedURL:    raw.DetailURL,
		TSenderURL:      raw.TSenderURL,
		History:         []models.Award{},
		Enrichment:      e,
	}
}

// Deduplicate keeps one summary per (title, client), the one with the highest
// relevance score. Ties keep the first. Order of the kept summaries is preserved.
func Deduplicate(summaries []models.TenderSummary) []models.TenderSummary {
	best := make(map[string]int, len(summaries))
	var order []string
	for i, s := range summaries {
		key := dedupKey(s.Title, s.Client)
		j, ok := best[key]
		if !ok {
			best[key] = i
			order = append(order, key)
			continue
		}
		if s.Relevance.Score > summaries[j].Relevance.Score {
			best[key] = i
		}
	}

	out := make([]models.TenderSummary, 0, len(order))
	for _, key := range order {
		out = append(out, summaries[best[key]])
	}
	return out
}
