package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	tenders map[string]models.RawTender
	order   []string
	last    *time.Time
	runs    []models.RefreshRun
	now     time.Time
}

func newMemStore(now time.Time) *memStore {
	return &memStore{tenders: make(map[string]models.RawTender), now: now}
}

func (s *memStore) UpsertTenders(ctx context.Context, raws []models.RawTender, fetchedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range raws {
		if _, ok := s.tenders[raw.PublicationID]; !ok {
			s.order = append(s.order, raw.PublicationID)
		}
		s.tenders[raw.PublicationID] = raw
	}
	return len(raws), nil
}

func (s *memStore) ListTenders(ctx context.Context, q db.TenderQuery) ([]models.RawTender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool)
	for _, id := range q.IDs {
		want[id] = true
	}
	var out []models.RawTender
	for _, id := range s.order {
		if len(want) > 0 && !want[id] {
			continue
		}
		out = append(out, s.tenders[id])
	}
	return out, nil
}

func (s *memStore) GetTender(ctx context.Context, id string) (models.RawTender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.tenders[id]
	if !ok {
		return models.RawTender{}, db.ErrNotFound
	}
	return raw, nil
}

func (s *memStore) CountTenders(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tenders), nil
}

func (s *memStore) IsCacheFresh(ctx context.Context, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return db.IsFresh(s.last, ttl, s.now), nil
}

func (s *memStore) SetLastRefresh(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &t
	return nil
}

func (s *memStore) CacheStats(ctx context.Context, ttl time.Duration) (models.CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CacheStats{
		TotalTenders: len(s.tenders),
		LastRefresh:  s.last,
		IsFresh:      db.IsFresh(s.last, ttl, s.now),
		TTLMinutes:   int(ttl / time.Minute),
	}, nil
}

func (s *memStore) CreateRefreshRun(ctx context.Context, jobID, trigger string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, models.RefreshRun{JobID: jobID, Trigger: trigger, Status: RunRunning})
	return int64(len(s.runs)), nil
}

func (s *memStore) FinishRefreshRun(ctx context.Context, run models.RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID-1] = run
	return nil
}

type stubSource struct {
	raws  []models.RawTender
	err   error
	calls atomic.Int32
}

func (s *stubSource) FetchPublications(ctx context.Context) ([]models.RawTender, FetchStats, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, FetchStats{}, s.err
	}
	return s.raws, FetchStats{DetailsRead: len(s.raws)}, nil
}

type liveSource struct {
	stubSource
	live map[string]models.RawTender
}

func (s *liveSource) FetchPublication(ctx context.Context, id string) (models.RawTender, error) {
	raw, ok := s.live[id]
	if !ok {
		return models.RawTender{}, errors.New("not published")
	}
	return raw, nil
}

type stubHistory struct {
	awards map[string][]models.Award
	calls  atomic.Int32
}

func (h *stubHistory) AwardsForClient(ctx context.Context, client string, limit int) ([]models.Award, error) {
	h.calls.Add(1)
	for name, awards := range h.awards {
		if strings.EqualFold(name, client) {
			if len(awards) > limit {
				awards = awards[:limit]
			}
			return awards, nil
		}
	}
	return []models.Award{}, nil
}

var pipelineNow = time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)

func cloudTender(id, client string, withDetail bool) models.RawTender {
	raw := models.RawTender{
		PublicationID:    id,
		Title:            "SaaS Cloud Platform voor Gemeente",
		ClientName:       client,
		ContractTypeCode: models.ContractServices,
		European:         true,
	}
	if withDetail {
		raw.Description = "Levering van een SaaS cloud hosting platform voor IT-beheer"
		raw.CpvCodes = []models.CpvEntry{{Code: "72000000-5"}}
	}
	return raw
}

func sampleRaws() []models.RawTender {
	return []models.RawTender{
		cloudTender("2", "gemeente amsterdam", false),
		cloudTender("1", "Gemeente Amsterdam", true),
		{PublicationID: "3", Title: "Kantoormeubelen", Description: "Levering van meubilair"},
		{PublicationID: "4", Title: "Werkplekbeheer", ClientName: "Waterschap Rivierenland", ContractTypeCode: models.ContractServices},
	}
}

func newTestPipeline(src *stubSource, hist *stubHistory) (*Pipeline, *memStore) {
	store := newMemStore(pipelineNow)
	p := NewPipeline(store, src, hist, 30*time.Minute)
	p.now = func() time.Time { return pipelineNow }
	return p, store
}

func TestPipeline_RefreshRecordsRun(t *testing.T) {
	src := &stubSource{raws: sampleRaws()}
	p, store := newTestPipeline(src, nil)

	run, err := p.Refresh(context.Background(), TriggerManual, "job-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if run.Status != RunCompleted || run.Fetched != 4 || run.Upserted != 4 || run.DetailsRead != 4 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(store.runs) != 1 || store.runs[0].JobID != "job-1" || store.runs[0].FinishedAt == nil {
		t.Fatalf("expected one finished run record, got %+v", store.runs)
	}
	if store.last == nil || !store.last.Equal(pipelineNow) {
		t.Fatalf("expected last refresh at %v, got %v", pipelineNow, store.last)
	}
}

func TestPipeline_RefreshFailure(t *testing.T) {
	src := &stubSource{err: errors.New("tenderned down")}
	p, store := newTestPipeline(src, nil)

	run, err := p.Refresh(context.Background(), TriggerScheduled, "")
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if run.Status != RunFailed || !strings.Contains(run.Error, "tenderned down") {
		t.Fatalf("unexpected run %+v", run)
	}
	if store.runs[0].Status != RunFailed {
		t.Fatalf("expected failed run record, got %s", store.runs[0].Status)
	}
}

func TestPipeline_EnsureFresh(t *testing.T) {
	src := &stubSource{raws: sampleRaws()}
	p, _ := newTestPipeline(src, nil)
	ctx := context.Background()

	if err := p.EnsureFresh(ctx); err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if err := p.EnsureFresh(ctx); err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected one fetch for a fresh cache, got %d", got)
	}
}

func TestPipeline_EnsureFreshServesStaleCache(t *testing.T) {
	src := &stubSource{raws: sampleRaws()}
	p, store := newTestPipeline(src, nil)
	ctx := context.Background()

	if _, err := p.Refresh(ctx, TriggerManual, ""); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	store.now = pipelineNow.Add(2 * time.Hour)
	src.err = errors.New("timeout")

	if err := p.EnsureFresh(ctx); err != nil {
		t.Fatalf("expected stale cache to be served, got %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected a refresh attempt, got %d fetches", got)
	}
}

func TestPipeline_EnsureFreshEmptyCacheFails(t *testing.T) {
	p, _ := newTestPipeline(&stubSource{err: errors.New("timeout")}, nil)
	if err := p.EnsureFresh(context.Background()); err == nil {
		t.Fatal("expected error with nothing cached")
	}
}

func TestPipeline_Summaries(t *testing.T) {
	hist := &stubHistory{awards: map[string][]models.Award{
		"Gemeente Amsterdam": {
			{PublicationID: "900", Winner: "Acme ICT"},
			{PublicationID: "901", Winner: "Beta Hosting"},
		},
	}}
	p, _ := newTestPipeline(&stubSource{raws: sampleRaws()}, hist)

	got, err := p.Summaries(context.Background(), db.TenderQuery{})
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries after gate and dedup, got %d", len(got))
	}

	if got[0].ID != "1" {
		t.Fatalf("expected the higher scoring duplicate to be kept, got %s", got[0].ID)
	}
	if got[0].ClientType != models.ClientMunicipality || len(got[0].History) != 2 {
		t.Fatalf("unexpected first summary: client %s, %d awards", got[0].ClientType, len(got[0].History))
	}
	if got[1].ID != "4" || got[1].ClientType != models.ClientWaterAuthority {
		t.Fatalf("unexpected second summary %s/%s", got[1].ID, got[1].ClientType)
	}
	if got[1].History == nil {
		t.Fatal("expected empty award history, not nil")
	}
	if n := hist.calls.Load(); n != 2 {
		t.Fatalf("expected one history lookup per distinct client, got %d", n)
	}
}

func TestPipeline_SummaryAndByID(t *testing.T) {
	p, _ := newTestPipeline(&stubSource{raws: sampleRaws()}, nil)
	ctx := context.Background()
	if _, err := p.Refresh(ctx, TriggerManual, ""); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	s, err := p.Summary(ctx, "3")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Title != "Kantoormeubelen" || s.Relevance.Score != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}

	if _, err := p.Summary(ctx, "missing"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := p.SummariesByID(ctx, []string{"4", "1", "gone"})
	if err != nil {
		t.Fatalf("SummariesByID: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 cached tenders, got %d", len(list))
	}
}

func TestPipeline_SummaryFallsBackToSource(t *testing.T) {
	src := &liveSource{
		stubSource: stubSource{raws: sampleRaws()},
		live:       map[string]models.RawTender{"77": cloudTender("77", "Gemeente Leiden", true)},
	}
	store := newMemStore(pipelineNow)
	p := NewPipeline(store, src, nil, 30*time.Minute)
	p.now = func() time.Time { return pipelineNow }
	ctx := context.Background()
	if _, err := p.Refresh(ctx, TriggerManual, ""); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	s, err := p.Summary(ctx, "77")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.ID != "77" || s.Relevance.Score == 0 {
		t.Fatalf("expected an enriched live tender, got %+v", s)
	}
	if _, err := store.GetTender(ctx, "77"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("live lookups should not be written to the cache, got %v", err)
	}

	if _, err := p.Summary(ctx, "78"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when the source has no such publication, got %v", err)
	}
}

func TestDeduplicate(t *testing.T) {
	mk := func(id, title, client string, score int) models.TenderSummary {
		s := models.TenderSummary{ID: id, Title: title, Client: client}
		s.Relevance.Score = score
		return s
	}
	in := []models.TenderSummary{
		mk("a", "Hosting", "Gemeente Ede", 30),
		mk("b", "Servicedesk", "Gemeente Ede", 40),
		mk("c", "hosting ", "gemeente  ede", 60),
		mk("d", "Hosting", "Gemeente Ede", 60),
	}

	got := Deduplicate(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("expected [c b], got [%s %s]", got[0].ID, got[1].ID)
	}
}
