package ingest

import (
	"testing"
	"time"

	"github.com/david/tender-finder/internal/models"
)

var listingNow = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

type summaryOpt func(*models.TenderSummary)

func summary(id string, msp, relevance int, opts ...summaryOpt) models.TenderSummary {
	s := models.TenderSummary{ID: id, Title: "Tender " + id, Client: "Gemeente " + id, History: []models.Award{}}
	s.MSPFit = models.MSPFit{Score: msp, Tier: models.MSPPossiblyRelevant}
	s.Relevance.Score = relevance
	s.Segments = []string{}
	s.Signals = []models.Signal{}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func withTier(tier models.MSPTier) summaryOpt {
	return func(s *models.TenderSummary) { s.MSPFit.Tier = tier }
}

func withSegments(segs ...string) summaryOpt {
	return func(s *models.TenderSummary) { s.Segments = segs }
}

func withSignals(n int) summaryOpt {
	return func(s *models.TenderSummary) {
		for i := 0; i < n; i++ {
			s.Signals = append(s.Signals, models.Signal{Kind: models.SignalNotable, Label: "x"})
		}
	}
}

func withValueMin(v int64) summaryOpt {
	return func(s *models.TenderSummary) { s.Value.Min = &v }
}

func withClosing(d time.Duration) summaryOpt {
	return func(s *models.TenderSummary) {
		t := listingNow.Add(d)
		s.ClosingAt = &t
	}
}

func withDays(d int) summaryOpt {
	return func(s *models.TenderSummary) { s.DaysToClose = &d }
}

func ids(list []models.TenderSummary) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func listingFixture() []models.TenderSummary {
	return []models.TenderSummary{
		summary("a", 10, 80, withSegments("Cloud & Hosting"), withValueMin(100_000), withClosing(48*time.Hour)),
		summary("b", 40, 20, withTier(models.MSPRelevant), withSegments("Cybersecurity"), withSignals(2), withValueMin(500_000), withClosing(-time.Hour)),
		summary("c", 40, 60, withTier(models.MSPRelevant), withSignals(1), withClosing(10*24*time.Hour)),
		summary("d", -5, 30, withTier(models.MSPNot), withDays(3)),
	}
}

func TestFilterSummaries_Sorting(t *testing.T) {
	tests := []struct {
		sort string
		want []string
	}{
		{"", []string{"c", "b", "a", "d"}},
		{SortRelevance, []string{"a", "c", "d", "b"}},
		{SortValue, []string{"b", "a", "c", "d"}},
		{SortSignals, []string{"b", "c", "a", "d"}},
		{SortClosing, []string{"b", "a", "c", "d"}},
	}
	for _, tc := range tests {
		t.Run("sort="+tc.sort, func(t *testing.T) {
			res := FilterSummaries(listingFixture(), ListOptions{Sort: tc.sort}, listingNow)
			if got := ids(res.Tenders); !equalIDs(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFilterSummaries_Filters(t *testing.T) {
	minFit := 0
	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"min score", ListOptions{MinScore: 50}, []string{"c", "a"}},
		{"min msp fit", ListOptions{MinMSPFit: &minFit}, []string{"c", "b", "a"}},
		{"msp tier", ListOptions{MSPTier: "relevant"}, []string{"c", "b"}},
		{"segment substring", ListOptions{Segment: "cloud"}, []string{"a"}},
		{"open only", ListOptions{OpenOnly: true}, []string{"c", "a", "d"}},
		{"signals only", ListOptions{SignalsOnly: true}, []string{"c", "b"}},
		{"query", ListOptions{Query: "tender d"}, []string{"d"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := FilterSummaries(listingFixture(), tc.opts, listingNow)
			if got := ids(res.Tenders); !equalIDs(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if res.Total != len(tc.want) {
				t.Fatalf("expected total %d, got %d", len(tc.want), res.Total)
			}
		})
	}
}

func TestFilterSummaries_Pagination(t *testing.T) {
	res := FilterSummaries(listingFixture(), ListOptions{Limit: 2, Offset: 1}, listingNow)
	if got := ids(res.Tenders); !equalIDs(got, []string{"b", "a"}) {
		t.Fatalf("expected [b a], got %v", got)
	}
	if res.Total != 4 {
		t.Fatalf("expected total 4, got %d", res.Total)
	}

	res = FilterSummaries(listingFixture(), ListOptions{Limit: 10_000, Offset: 10}, listingNow)
	if res.Limit != MaxListLimit || len(res.Tenders) != 0 || res.Tenders == nil {
		t.Fatalf("expected empty page with capped limit, got limit %d, %v", res.Limit, res.Tenders)
	}

	res = FilterSummaries(listingFixture(), ListOptions{}, listingNow)
	if res.Limit != DefaultListLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultListLimit, res.Limit)
	}
}

func TestComputeStats(t *testing.T) {
	list := listingFixture()
	list[0].European = true
	list[0].DaysToClose = intPtr(2)
	list[2].DaysToClose = intPtr(10)
	list[2].Client = list[0].Client

	st := ComputeStats(list, models.CacheStats{TotalTenders: 7, IsFresh: true})

	if st.Total != 4 || st.European != 1 || st.National != 3 {
		t.Fatalf("unexpected totals %+v", st)
	}
	if st.ByMSPTier[models.MSPRelevant] != 2 || st.ByMSPTier[models.MSPNot] != 1 || st.ByMSPTier[models.MSPPossiblyRelevant] != 1 {
		t.Fatalf("unexpected tier counts %v", st.ByMSPTier)
	}
	if st.AvgDaysToClose == nil || *st.AvgDaysToClose != 5 {
		t.Fatalf("expected average 5.0 days, got %v", st.AvgDaysToClose)
	}
	if len(st.TopClients) != 3 || st.TopClients[0].Client != "Gemeente a" || st.TopClients[0].Count != 2 {
		t.Fatalf("unexpected top clients %+v", st.TopClients)
	}
	if st.Segments["Cybersecurity"] != 1 || st.WithSignals != 2 {
		t.Fatalf("unexpected segment/signal counts %v/%d", st.Segments, st.WithSignals)
	}
	if st.Cache.TotalTenders != 7 {
		t.Fatalf("expected cache stats passed through, got %+v", st.Cache)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	st := ComputeStats(nil, models.CacheStats{})
	if st.AvgDaysToClose != nil || st.TopClients == nil || st.Total != 0 {
		t.Fatalf("unexpected empty stats %+v", st)
	}
}

func intPtr(v int) *int { return &v }
