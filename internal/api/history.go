package api

import (
	"net/http"
	"strings"

	"github.com/david/tender-finder/internal/history"
	"github.com/labstack/echo/v4"
)

const maxHistoryLimit = 500

func (s *Server) handleClientAwards(c echo.Context) error {
	client := strings.TrimSpace(c.Param("client"))
	if client == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "client is required"})
	}
	limit := queryInt(c, "limit", history.DefaultAwardLimit, maxHistoryLimit)

	awards, err := s.History.AwardsForClient(c.Request().Context(), client, limit)
	if err != nil {
		c.Logger().Errorf("Failed to read awards for %q: %v", client, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"client":         client,
		"history_loaded": s.History.Loaded(),
		"awards":         awards,
	})
}

func (s *Server) handleRetenders(c echo.Context) error {
	limit := queryInt(c, "limit", history.DefaultRetenderLimit, maxHistoryLimit)

	candidates, err := s.History.RetenderCandidates(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Errorf("Failed to read retender candidates: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"history_loaded": s.History.Loaded(),
		"count":          len(candidates),
		"candidates":     candidates,
	})
}

func (s *Server) handlePreAnnouncements(c echo.Context) error {
	limit := queryInt(c, "limit", history.DefaultPreAnnouncementLimit, maxHistoryLimit)

	notices, err := s.History.PreAnnouncements(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Errorf("Failed to read pre-announcements: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"history_loaded": s.History.Loaded(),
		"count":          len(notices),
		"notices":        notices,
	})
}
