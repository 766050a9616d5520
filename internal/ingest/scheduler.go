package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const scheduledRefreshTimeout = 10 * time.Minute

// Scheduler runs the cache refresh on the source's cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
	spec     string
}

// NewScheduler parses spec (standard five-field cron, Europe/Amsterdam time).
func NewScheduler(p *Pipeline, spec string) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(amsterdam)),
		pipeline: p,
		spec:     spec,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.run))
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), scheduledRefreshTimeout)
	defer cancel()

	if _, err := s.pipeline.Refresh(ctx, TriggerScheduled, ""); err != nil {
		log.Printf("[Scheduler] Refresh failed: %v", err)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if next := s.Next(); !next.IsZero() {
		log.Printf("[Scheduler] Refresh scheduled %q, next run %s", s.spec, next.Format("2006-01-02 15:04"))
	}
}

// Stop waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
