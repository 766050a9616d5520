package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/david/tender-finder/internal/auth"
	"github.com/david/tender-finder/internal/history"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/telemetry"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	serviceName    = "TenderAgent MSP"
	serviceVersion = "2.5.0"
	refreshTimeout = 15 * time.Minute
)

// RunStore reads persisted refresh runs.
type RunStore interface {
	GetRefreshRunByJob(ctx context.Context, jobID string) (models.RefreshRun, error)
	ListRefreshRuns(ctx context.Context, limit int) ([]models.RefreshRun, error)
}

// HistoryReader is the historical award dataset.
type HistoryReader interface {
	Loaded() bool
	AwardsForClient(ctx context.Context, client string, limit int) ([]models.Award, error)
	RetenderCandidates(ctx context.Context, limit int) ([]models.RetenderCandidate, error)
	PreAnnouncements(ctx context.Context, limit int) ([]models.PreAnnouncement, error)
	Counts(ctx context.Context) (history.Counts, error)
}

// Accounts is the user and watchlist service.
type Accounts interface {
	Signup(ctx context.Context, req auth.SignupRequest) (*auth.AuthResponse, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error)
	SaveTender(ctx context.Context, userID uuid.UUID, publicationID, note string) error
	UnsaveTender(ctx context.Context, userID uuid.UUID, publicationID string) error
	SavedTenders(ctx context.Context, userID uuid.UUID) ([]auth.SavedTender, error)
}

type Server struct {
	Pipeline *ingest.Pipeline
	Runs     RunStore
	History  HistoryReader
	Accounts Accounts
	Echo     *echo.Echo

	now func() time.Time

	// Background refresh tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pipeline *ingest.Pipeline, runs RunStore, hist HistoryReader, accounts Accounts) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Pipeline: pipeline,
		Runs:     runs,
		History:  hist,
		Accounts: accounts,
		Echo:     e,
		now:      time.Now,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(telemetry.Handler()))

	api := s.Echo.Group("/api/v1")
	api.GET("/tenders", s.handleListTenders)
	api.GET("/tenders/:id", s.handleGetTender)
	api.GET("/stats", s.handleGetStats)
	api.GET("/discover", s.handleDiscover)
	api.GET("/cpv-codes", s.handleCPVCodes)

	api.GET("/history/awards/:client", s.handleClientAwards)
	api.GET("/history/retenders", s.handleRetenders)
	api.GET("/history/pre-announcements", s.handlePreAnnouncements)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/refresh", s.handleRefresh)
	admin.GET("/admin/job/:id", s.handleJobStatus)
	admin.GET("/admin/runs", s.handleListRuns)

	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	saved := api.Group("/saved")
	saved.Use(auth.Middleware)
	saved.POST("/:id", s.handleSaveTender)
	saved.DELETE("/:id", s.handleUnsaveTender)
	saved.GET("", s.handleGetSavedTenders)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown stops accepting requests and cancels a running refresh job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

// queryInt reads a positive integer parameter, falling back to def when absent
// or out of (0, max].
func queryInt(c echo.Context, name string, def, max int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		return def
	}
	return v
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}
	return adminSecretRuntime, nil
}
