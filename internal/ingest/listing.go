package ingest

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/david/tender-finder/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	topClientCount   = 10
)

// Sort orders for ListOptions.Sort.
const (
	SortMSPFit    = "msp_fit"
	SortRelevance = "relevance"
	SortValue     = "value"
	SortSignals   = "signals"
	SortClosing   = "closing"
)

// ListOptions are the listing filters applied after enrichment.
type ListOptions struct {
	MinScore     int
	MinMSPFit    *int
	MSPTier      string `validate:"omitempty,oneof=relevant possibly_relevant not_msp"`
	Segment      string
	Type         string
	ContractType string `validate:"omitempty,oneof=D L W d l w"`
	Query        string
	OpenOnly     bool
	SignalsOnly  bool
	Sort         string `validate:"omitempty,oneof=msp_fit relevance value signals closing"`
	Limit        int    `validate:"gte=0"`
	Offset       int    `validate:"gte=0"`
}

// Validate rejects unknown enum values and negative paging.
func (o ListOptions) Validate() error {
	return validate.Struct(o)
}

// ListResult is one page of a filtered listing.
type ListResult struct {
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	Tenders []models.TenderSummary `json:"tenders"`
}

// FilterSummaries applies opts to summaries, sorts and paginates.
func FilterSummaries(summaries []models.TenderSummary, opts ListOptions, now time.Time) ListResult {
	var kept []models.TenderSummary
	for _, s := range summaries {
		if matchesOptions(s, opts, now) {
			kept = append(kept, s)
		}
	}
	sortSummaries(kept, opts.Sort)

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	page := []models.TenderSummary{}
	if offset < len(kept) {
		end := offset + limit
		if end > len(kept) {
			end = len(kept)
		}
		page = kept[offset:end]
	}
	return ListResult{Total: len(kept), Limit: limit, Offset: offset, Tenders: page}
}

func matchesOptions(s models.TenderSummary, opts ListOptions, now time.Time) bool {
	if s.Relevance.Score < opts.MinScore {
		return false
	}
	if opts.MinMSPFit != nil && s.MSPFit.Score < *opts.MinMSPFit {
		return false
	}
	if opts.MSPTier != "" && string(s.MSPFit.Tier) != opts.MSPTier {
		return false
	}
	if opts.Segment != "" && !anySegmentContains(s.Segments, opts.Segment) {
		return false
	}
	if opts.Type != "" && !containsFold(s.PublicationType, opts.Type) {
		return false
	}
	if opts.ContractType != "" && !strings.EqualFold(s.ContractCode, opts.ContractType) {
		return false
	}
	if opts.Query != "" && !containsFold(s.Title, opts.Query) && !containsFold(s.Description, opts.Query) {
		return false
	}
	if opts.OpenOnly && !isOpen(s, now) {
		return false
	}
	if opts.SignalsOnly && len(s.Signals) == 0 {
		return false
	}
	return true
}

func anySegmentContains(segments []string, needle string) bool {
	for _, seg := range segments {
		if containsFold(seg, needle) {
			return true
		}
	}
	return false
}

// isOpen uses the closing timestamp when known, else the registry's day count.
func isOpen(s models.TenderSummary, now time.Time) bool {
	if s.ClosingAt != nil {
		return s.ClosingAt.After(now)
	}
	return s.DaysToClose != nil && *s.DaysToClose > 0
}

func sortSummaries(list []models.TenderSummary, order string) {
	var less func(a, b models.TenderSummary) bool
	switch order {
	case SortRelevance:
		less = func(a, b models.TenderSummary) bool {
			return a.Relevance.Score > b.Relevance.Score
		}
	case SortValue:
		less = func(a, b models.TenderSummary) bool {
			return valueMin(a) > valueMin(b)
		}
	case SortSignals:
		less = func(a, b models.TenderSummary) bool {
			if len(a.Signals) != len(b.Signals) {
				return len(a.Signals) > len(b.Signals)
			}
			return a.MSPFit.Score > b.MSPFit.Score
		}
	case SortClosing:
		less = func(a, b models.TenderSummary) bool {
			if a.ClosingAt == nil || b.ClosingAt == nil {
				return a.ClosingAt != nil
			}
			return a.ClosingAt.Before(*b.ClosingAt)
		}
	default:
		less = func(a, b models.TenderSummary) bool {
			if a.MSPFit.Score != b.MSPFit.Score {
				return a.MSPFit.Score > b.MSPFit.Score
			}
			return a.Relevance.Score > b.Relevance.Score
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
}

func valueMin(s models.TenderSummary) int64 {
	if s.Value.Min == nil {
		return -1
	}
	return *s.Value.Min
}

type ClientCount struct {
	Client string `json:"client"`
	Count  int    `json:"count"`
}

// Stats summarizes a listing for the dashboard counters.
type Stats struct {
	Total          int                    `json:"total"`
	ByMSPTier      map[models.MSPTier]int `json:"by_msp_tier"`
	European       int                    `json:"european"`
	National       int                    `json:"national"`
	AvgDaysToClose *float64               `json:"avg_days_to_close"`
	TopClients     []ClientCount          `json:"top_clients"`
	Segments       map[string]int         `json:"segments"`
	WithSignals    int                    `json:"with_signals"`
	Cache          models.CacheStats      `json:"cache"`
}

// ComputeStats counts over summaries; the average closing window covers open tenders only.
func ComputeStats(summaries []models.TenderSummary, cache models.CacheStats) Stats {
	st := Stats{
		Total: len(summaries),
		ByMSPTier: map[models.MSPTier]int{
			models.MSPRelevant:         0,
			models.MSPPossiblyRelevant: 0,
			models.MSPNot:              0,
		},
		TopClients: []ClientCount{},
		Segments:   make(map[string]int),
		Cache:      cache,
	}

	clients := make(map[string]int)
	var daysSum, daysN int
	for _, s := range summaries {
		st.ByMSPTier[s.MSPFit.Tier]++
		if s.European {
			st.European++
		} else {
			st.National++
		}
		if s.DaysToClose != nil && *s.DaysToClose > 0 {
			daysSum += *s.DaysToClose
			daysN++
		}
		if s.Client != "" {
			clients[s.Client]++
		}
		for _, seg := range s.Segments {
			st.Segments[seg]++
		}
		if len(s.Signals) > 0 {
			st.WithSignals++
		}
	}

	if daysN > 0 {
		avg := math.Round(float64(daysSum)/float64(daysN)*10) / 10
		st.AvgDaysToClose = &avg
	}

	for name, n := range clients {
		st.TopClients = append(st.TopClients, ClientCount{Client: name, Count: n})
	}
	sort.Slice(st.TopClients, func(i, j int) bool {
		if st.TopClients[i].Count != st.TopClients[j].Count {
			return st.TopClients[i].Count > st.TopClients[j].Count
		}
		return st.TopClients[i].Client < st.TopClients[j].Client
	})
	if len(st.TopClients) > topClientCount {
		st.TopClients = st.TopClients[:topClientCount]
	}
	return st
}
