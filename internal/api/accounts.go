package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/david/tender-finder/internal/auth"
	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/models"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := auth.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "A valid email and a password of at least 8 characters are required"})
	}

	resp, err := s.Accounts.Signup(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		c.Logger().Errorf("Signup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := auth.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email and password are required"})
	}

	resp, err := s.Accounts.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		c.Logger().Errorf("Login failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, resp)
}

type saveRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleSaveTender(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	id := strings.TrimSpace(c.Param("id"))
	if _, err := s.Pipeline.Store.GetTender(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Tender not found"})
		}
		c.Logger().Errorf("Failed to load tender %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	var req saveRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		}
	}

	if err := s.Accounts.SaveTender(ctx, userID, id, strings.TrimSpace(req.Note)); err != nil {
		c.Logger().Errorf("Failed to save tender %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save tender"})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleUnsaveTender(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	if err := s.Accounts.UnsaveTender(c.Request().Context(), userID, c.Param("id")); err != nil {
		c.Logger().Errorf("Failed to remove saved tender: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to remove saved tender"})
	}
	return c.NoContent(http.StatusNoContent)
}

type savedTenderResponse struct {
	auth.SavedTender
	Tender models.TenderSummary `json:"tender"`
}

// handleGetSavedTenders returns the watchlist entries still present in the cache.
func (s *Server) handleGetSavedTenders(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	saved, err := s.Accounts.SavedTenders(ctx, userID)
	if err != nil {
		c.Logger().Errorf("Failed to fetch saved tenders: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch saved tenders"})
	}

	ids := make([]string, 0, len(saved))
	for _, st := range saved {
		ids = append(ids, st.PublicationID)
	}
	summaries, err := s.Pipeline.SummariesByID(ctx, ids)
	if err != nil {
		c.Logger().Errorf("Failed to enrich saved tenders: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch saved tenders"})
	}
	byID := make(map[string]models.TenderSummary, len(summaries))
	for _, sum := range summaries {
		byID[sum.ID] = sum
	}

	out := []savedTenderResponse{}
	for _, st := range saved {
		if sum, ok := byID[st.PublicationID]; ok {
			out = append(out, savedTenderResponse{SavedTender: st, Tender: sum})
		}
	}
	return c.JSON(http.StatusOK, out)
}
