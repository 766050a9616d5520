package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/david/tender-finder/internal/auth"
	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/history"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/david/tender-finder/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	testAdminSecret = "test-admin-secret"
	testJWTSecret   = "test-jwt-secret"
)

func TestMain(m *testing.M) {
	os.Setenv("ADMIN_SECRET", testAdminSecret)
	os.Setenv("JWT_SECRET", testJWTSecret)
	os.Exit(m.Run())
}

type fakeStore struct {
	mu      sync.Mutex
	tenders map[string]models.RawTender
	order   []string
	last    *time.Time
	runs    []models.RefreshRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{tenders: make(map[string]models.RawTender)}
}

func (s *fakeStore) UpsertTenders(ctx context.Context, raws []models.RawTender, fetchedAt time.Time) (int, error) {
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

func (s *fakeStore) ListTenders(ctx context.Context, q db.TenderQuery) ([]models.RawTender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool)
	for _, id := range q.IDs {
		want[id] = true
	}
	var out []models.RawTender
	for _, id := range s.order {
		raw := s.tenders[id]
		if len(q.IDs) > 0 && !want[id] {
			continue
		}
		if q.ContractType != "" && !strings.EqualFold(raw.ContractTypeCode, q.ContractType) {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func (s *fakeStore) GetTender(ctx context.Context, id string) (models.RawTender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.tenders[id]
	if !ok {
		return models.RawTender{}, db.ErrNotFound
	}
	return raw, nil
}

func (s *fakeStore) CountTenders(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tenders), nil
}

func (s *fakeStore) IsCacheFresh(ctx context.Context, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return db.IsFresh(s.last, ttl, time.Now()), nil
}

func (s *fakeStore) SetLastRefresh(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &t
	return nil
}

func (s *fakeStore) CacheStats(ctx context.Context, ttl time.Duration) (models.CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CacheStats{TotalTenders: len(s.tenders), LastRefresh: s.last, IsFresh: db.IsFresh(s.last, ttl, time.Now())}, nil
}

func (s *fakeStore) CreateRefreshRun(ctx context.Context, jobID, trigger string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, models.RefreshRun{JobID: jobID, Trigger: trigger, Status: ingest.RunRunning})
	return int64(len(s.runs)), nil
}

func (s *fakeStore) FinishRefreshRun(ctx context.Context, run models.RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID-1] = run
	return nil
}

func (s *fakeStore) GetRefreshRunByJob(ctx context.Context, jobID string) (models.RefreshRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if jobID != "" && s.runs[i].JobID == jobID {
			return s.runs[i], nil
		}
	}
	return models.RefreshRun{}, db.ErrNotFound
}

func (s *fakeStore) ListRefreshRuns(ctx context.Context, limit int) ([]models.RefreshRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.RefreshRun{}, s.runs...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// gatedSource blocks each fetch until release is closed, when set.
type gatedSource struct {
	raws    []models.RawTender
	live    map[string]models.RawTender
	release chan struct{}
}

func (g *gatedSource) FetchPublication(ctx context.Context, id string) (models.RawTender, error) {
	raw, ok := g.live[id]
	if !ok {
		return models.RawTender{}, fmt.Errorf("publication %s not published", id)
	}
	return raw, nil
}

func (g *gatedSource) FetchPublications(ctx context.Context) ([]models.RawTender, ingest.FetchStats, error) {
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ingest.FetchStats{}, ctx.Err()
		}
	}
	return g.raws, ingest.FetchStats{}, nil
}

type fakeHistory struct{}

func (fakeHistory) Loaded() bool { return true }

func (fakeHistory) AwardsForClient(ctx context.Context, client string, limit int) ([]models.Award, error) {
	if strings.Contains(strings.ToLower(client), "utrecht") {
		return []models.Award{{PublicationID: "77", Client: "Gemeente Utrecht", Winner: "Acme ICT"}}, nil
	}
	return []models.Award{}, nil
}

func (fakeHistory) RetenderCandidates(ctx context.Context, limit int) ([]models.RetenderCandidate, error) {
	return []models.RetenderCandidate{{Award: models.Award{PublicationID: "55"}, ExpectedWindow: "2025-2027"}}, nil
}

func (fakeHistory) PreAnnouncements(ctx context.Context, limit int) ([]models.PreAnnouncement, error) {
	return []models.PreAnnouncement{}, nil
}

func (fakeHistory) Counts(ctx context.Context) (history.Counts, error) {
	return history.Counts{Notices: 1}, nil
}

type fakeAccounts struct {
	mu    sync.Mutex
	saved map[uuid.UUID][]auth.SavedTender
}

func (a *fakeAccounts) Signup(ctx context.Context, req auth.SignupRequest) (*auth.AuthResponse, error) {
	if req.Email == "bestaat@msp.nl" {
		return nil, auth.ErrUserExists
	}
	return &auth.AuthResponse{Token: "t", User: auth.User{ID: uuid.New(), Email: req.Email}}, nil
}

func (a *fakeAccounts) Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error) {
	return nil, auth.ErrInvalidCreds
}

func (a *fakeAccounts) SaveTender(ctx context.Context, userID uuid.UUID, publicationID, note string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved[userID] = append([]auth.SavedTender{{PublicationID: publicationID, Note: note, SavedAt: time.Now()}}, a.saved[userID]...)
	return nil
}

func (a *fakeAccounts) UnsaveTender(ctx context.Context, userID uuid.UUID, publicationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var kept []auth.SavedTender
	for _, st := range a.saved[userID] {
		if st.PublicationID != publicationID {
			kept = append(kept, st)
		}
	}
	a.saved[userID] = kept
	return nil
}

func (a *fakeAccounts) SavedTenders(ctx context.Context, userID uuid.UUID) ([]auth.SavedTender, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auth.SavedTender{}, a.saved[userID]...), nil
}

func fixtureRaws() []models.RawTender {
	return []models.RawTender{
		{
			PublicationID:    "1",
			Title:            "Werkplekbeheer en hosting",
			ClientName:       "Gemeente Utrecht",
			ContractTypeCode: models.ContractServices,
			CpvCodes:         []models.CpvEntry{{Code: "72500000-0"}},
		},
		{PublicationID: "2", Title: "Kantoormeubelen", ClientName: "Gemeente Ede"},
		{PublicationID: "3", Title: "Firewall vervanging", ClientName: "Provincie Gelderland", ContractTypeCode: models.ContractSupplies},
	}
}

type testEnv struct {
	srv      *Server
	store    *fakeStore
	source   *gatedSource
	accounts *fakeAccounts
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	source := &gatedSource{raws: fixtureRaws()}
	accounts := &fakeAccounts{saved: make(map[uuid.UUID][]auth.SavedTender)}
	pipeline := ingest.NewPipeline(store, source, fakeHistory{}, 30*time.Minute)
	return &testEnv{
		srv:      NewServer(pipeline, store, fakeHistory{}, accounts),
		store:    store,
		source:   source,
		accounts: accounts,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv()
	if rec := env.do(t, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tenderfinder_") {
		t.Fatalf("metrics: expected tenderfinder metrics, got %d", rec.Code)
	}
}

func TestListTenders(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/tenders", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res ingest.ListResult
	decode(t, rec, &res)
	if res.Total != 2 || len(res.Tenders) != 2 {
		t.Fatalf("expected the 2 IT tenders, got %d", res.Total)
	}
	for _, sum := range res.Tenders {
		if sum.ID == "2" {
			t.Fatal("expected furniture tender to be gated out")
		}
		if sum.ID == "1" && len(sum.History) != 1 {
			t.Fatalf("expected award history for tender 1, got %d awards", len(sum.History))
		}
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tenders?contract_type=L", "", nil)
	decode(t, rec, &res)
	if res.Total != 1 || res.Tenders[0].ID != "3" {
		t.Fatalf("expected only tender 3 for supplies, got %+v", res)
	}
}

func TestListTenders_BadParams(t *testing.T) {
	env := newTestEnv()
	for _, q := range []string{"sort=cheapest", "limit=abc", "msp_tier=maybe", "contract_type=X"} {
		rec := env.do(t, http.MethodGet, "/api/v1/tenders?"+q, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestGetTender(t *testing.T) {
	env := newTestEnv()
	env.do(t, http.MethodGet, "/api/v1/tenders", "", nil)

	rec := env.do(t, http.MethodGet, "/api/v1/tenders/1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sum models.TenderSummary
	decode(t, rec, &sum)
	if sum.ID != "1" || sum.ClientType != models.ClientMunicipality {
		t.Fatalf("unexpected summary %s/%s", sum.ID, sum.ClientType)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/tenders/999", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetTender_LiveFallback(t *testing.T) {
	env := newTestEnv()
	env.source.live = map[string]models.RawTender{
		"555": {PublicationID: "555", Title: "Cloud migratie", ClientName: "Gemeente Zwolle", ContractTypeCode: models.ContractServices},
	}
	env.do(t, http.MethodGet, "/api/v1/tenders", "", nil)

	rec := env.do(t, http.MethodGet, "/api/v1/tenders/555", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a tender published after the last refresh, got %d", rec.Code)
	}
	var sum models.TenderSummary
	decode(t, rec, &sum)
	if sum.ID != "555" || sum.ClientType != models.ClientMunicipality {
		t.Fatalf("unexpected summary %s/%s", sum.ID, sum.ClientType)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/tenders/556", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when the live lookup fails too, got %d", rec.Code)
	}
}

func TestStatsDiscoverAndCPV(t *testing.T) {
	env := newTestEnv()

	var st ingest.Stats
	rec := env.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	decode(t, rec, &st)
	if st.Total != 2 || st.Cache.TotalTenders != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}

	var disc map[string]interface{}
	decode(t, env.do(t, http.MethodGet, "/api/v1/discover", "", nil), &disc)
	if disc["service"] != serviceName || disc["history_loaded"] != true {
		t.Fatalf("unexpected discover payload %v", disc)
	}

	var codes []models.CpvEntry
	decode(t, env.do(t, http.MethodGet, "/api/v1/cpv-codes", "", nil), &codes)
	if len(codes) == 0 {
		t.Fatal("expected reference CPV codes")
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1].Code > codes[i].Code {
			t.Fatalf("expected codes sorted, %s before %s", codes[i-1].Code, codes[i].Code)
		}
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv()

	var awards struct {
		Awards []models.Award `json:"awards"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/history/awards/Gemeente%20Utrecht", "", nil), &awards)
	if len(awards.Awards) != 1 || awards.Awards[0].Winner != "Acme ICT" {
		t.Fatalf("unexpected awards %+v", awards)
	}

	var ret struct {
		Count      int                        `json:"count"`
		Candidates []models.RetenderCandidate `json:"candidates"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/history/retenders?limit=5", "", nil), &ret)
	if ret.Count != 1 || ret.Candidates[0].ExpectedWindow != "2025-2027" {
		t.Fatalf("unexpected candidates %+v", ret)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/history/pre-announcements", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"notices":[]`) {
		t.Fatalf("expected empty notices list, got %s", rec.Body.String())
	}
}

func TestRefreshJob(t *testing.T) {
	env := newTestEnv()
	env.source.release = make(chan struct{})
	admin := map[string]string{"X-Admin-Secret": testAdminSecret}

	if rec := env.do(t, http.MethodPost, "/api/v1/refresh", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/refresh", "", admin)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var started struct {
		JobID string `json:"job_id"`
		Poll  string `json:"poll"`
	}
	decode(t, rec, &started)
	if started.Poll != "/api/v1/admin/job/"+started.JobID {
		t.Fatalf("unexpected poll url %s", started.Poll)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/refresh", "", admin); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", rec.Code)
	}

	close(env.source.release)

	var job map[string]interface{}
	deadline := time.Now().Add(5 * time.Second)
	for {
		decode(t, env.do(t, http.MethodGet, started.Poll, "", admin), &job)
		if job["status"] != "running" || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job["status"] != "completed" {
		t.Fatalf("expected completed job, got %v", job)
	}

	var runs []models.RefreshRun
	decode(t, env.do(t, http.MethodGet, "/api/v1/admin/runs", "", admin), &runs)
	if len(runs) != 1 || runs[0].JobID != started.JobID || runs[0].Upserted != 3 {
		t.Fatalf("unexpected runs %+v", runs)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/admin/job/nope", "", admin); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func bearer(t *testing.T, userID uuid.UUID) map[string]string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestSavedTenders(t *testing.T) {
	env := newTestEnv()
	env.do(t, http.MethodGet, "/api/v1/tenders", "", nil)
	user := bearer(t, uuid.New())

	if rec := env.do(t, http.MethodGet, "/api/v1/saved", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/saved/1", `{"note":"bellen met inkoper"}`, user); rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/saved/999", "", user); rec.Code != http.StatusNotFound {
		t.Fatalf("save unknown: expected 404, got %d", rec.Code)
	}

	var saved []savedTenderResponse
	decode(t, env.do(t, http.MethodGet, "/api/v1/saved", "", user), &saved)
	if len(saved) != 1 || saved[0].Tender.ID != "1" || saved[0].Note != "bellen met inkoper" {
		t.Fatalf("unexpected watchlist %+v", saved)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/saved/1", "", user); rec.Code != http.StatusNoContent {
		t.Fatalf("unsave: expected 204, got %d", rec.Code)
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/saved", "", user), &saved)
	if len(saved) != 0 {
		t.Fatalf("expected empty watchlist, got %d", len(saved))
	}
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv()
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"signup", "/api/v1/auth/signup", `{"email":"nieuw@msp.nl","password":"lang-genoeg"}`, http.StatusCreated},
		{"signup invalid", "/api/v1/auth/signup", `{"email":"nieuw","password":"kort"}`, http.StatusBadRequest},
		{"signup exists", "/api/v1/auth/signup", `{"email":"bestaat@msp.nl","password":"lang-genoeg"}`, http.StatusConflict},
		{"login rejected", "/api/v1/auth/login", `{"email":"nieuw@msp.nl","password":"fout"}`, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, tc.path, tc.body, nil); rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
