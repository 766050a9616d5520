package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/enrich"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/labstack/echo/v4"
)

func parseListOptions(c echo.Context) (ingest.ListOptions, error) {
	opts := ingest.ListOptions{
		MSPTier:      strings.TrimSpace(c.QueryParam("msp_tier")),
		Segment:      strings.TrimSpace(c.QueryParam("segment")),
		Type:         strings.TrimSpace(c.QueryParam("type")),
		ContractType: strings.TrimSpace(c.QueryParam("contract_type")),
		Query:        strings.TrimSpace(c.QueryParam("q")),
		OpenOnly:     c.QueryParam("open_only") == "true",
		SignalsOnly:  c.QueryParam("signals_only") == "true",
		Sort:         strings.TrimSpace(c.QueryParam("sort")),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"min_score", &opts.MinScore},
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	}
	for _, p := range ints {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return opts, errors.New("invalid " + p.name)
		}
		*p.dst = v
	}
	if raw := c.QueryParam("min_msp_fit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return opts, errors.New("invalid min_msp_fit")
		}
		opts.MinMSPFit = &v
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) handleListTenders(c echo.Context) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	summaries, err := s.Pipeline.Summaries(c.Request().Context(), db.TenderQuery{
		Query:        opts.Query,
		ContractType: opts.ContractType,
	})
	if err != nil {
		c.Logger().Errorf("Failed to list tenders: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Tenders are temporarily unavailable"})
	}

	return c.JSON(http.StatusOK, ingest.FilterSummaries(summaries, opts, s.now()))
}

func (s *Server) handleGetTender(c echo.Context) error {
	summary, err := s.Pipeline.Summary(c.Request().Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Tender not found"})
	}
	if err != nil {
		c.Logger().Errorf("Failed to load tender %s: %v", c.Param("id"), err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleGetStats(c echo.Context) error {
	ctx := c.Request().Context()
	summaries, err := s.Pipeline.Summaries(ctx, db.TenderQuery{})
	if err != nil {
		c.Logger().Errorf("Failed to compute stats: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Tenders are temporarily unavailable"})
	}
	cache, err := s.Pipeline.CacheStats(ctx)
	if err != nil {
		c.Logger().Errorf("Failed to read cache stats: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, ingest.ComputeStats(summaries, cache))
}

func (s *Server) handleDiscover(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"tenders":           "GET /api/v1/tenders",
			"tender":            "GET /api/v1/tenders/:id",
			"stats":             "GET /api/v1/stats",
			"cpv_codes":         "GET /api/v1/cpv-codes",
			"client_awards":     "GET /api/v1/history/awards/:client",
			"retenders":         "GET /api/v1/history/retenders",
			"pre_announcements": "GET /api/v1/history/pre-announcements",
			"refresh":           "POST /api/v1/refresh",
			"saved":             "GET /api/v1/saved",
			"metrics":           "GET /metrics",
		},
		"cpv_codes_monitored": len(enrich.CPVCatalogue()),
		"segments":            len(enrich.SegmentLabels()),
		"history_loaded":      s.History != nil && s.History.Loaded(),
	})
}

func (s *Server) handleCPVCodes(c echo.Context) error {
	return c.JSON(http.StatusOK, enrich.CPVCatalogue())
}
