package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const maxRunsLimit = 200

func (s *Server) handleRefresh(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A refresh job is already running",
			"job_id": job.ID,
		})
	}

	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), refreshTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: s.now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()

		run, err := s.Pipeline.Refresh(jobCtx, ingest.TriggerManual, jobID)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = s.now()
		job.Result = map[string]interface{}{
			"fetched":      run.Fetched,
			"details_read": run.DetailsRead,
			"upserted":     run.Upserted,
		}
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[refresh-job %s] failed: %v", jobID, err)
			return
		}
		job.Status = "completed"
		log.Printf("[refresh-job %s] completed: %d tenders", jobID, run.Upserted)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Refresh job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

// handleJobStatus answers from the in-memory job, falling back to the
// persisted run for jobs of an earlier process.
func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	job := s.runningJob
	if job != nil && job.ID == queried {
		resp := map[string]interface{}{
			"id":         job.ID,
			"status":     job.Status,
			"started_at": job.StartedAt,
		}
		if !job.EndedAt.IsZero() {
			resp["ended_at"] = job.EndedAt
			resp["duration"] = job.EndedAt.Sub(job.StartedAt).Round(time.Millisecond).String()
		}
		if job.Result != nil {
			resp["result"] = job.Result
		}
		if job.Error != "" {
			resp["error"] = job.Error
		}
		s.jobMu.Unlock()
		return c.JSON(http.StatusOK, resp)
	}
	s.jobMu.Unlock()

	if s.Runs == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	run, err := s.Runs.GetRefreshRunByJob(c.Request().Context(), queried)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	if err != nil {
		c.Logger().Errorf("Failed to load refresh run %s: %v", queried, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := queryInt(c, "limit", 20, maxRunsLimit)
	runs, err := s.Runs.ListRefreshRuns(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Errorf("Failed to list refresh runs: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, runs)
}
