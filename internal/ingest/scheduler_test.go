package ingest

import (
	"testing"
	"time"
)

func TestNewScheduler_InvalidSpec(t *testing.T) {
	if _, err := NewScheduler(nil, "elk half uur"); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestScheduler_Next(t *testing.T) {
	p, _ := newTestPipeline(&stubSource{}, nil)
	s, err := NewScheduler(p, "0 7 * * 1-5")
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start()
	defer s.Stop()

	next := s.Next().In(amsterdam)
	if next.IsZero() || !next.After(time.Now()) {
		t.Fatalf("expected a future run, got %v", next)
	}
	if next.Hour() != 7 || next.Minute() != 0 {
		t.Fatalf("expected 07:00 Amsterdam time, got %s", next.Format("15:04"))
	}
	if wd := next.Weekday(); wd == time.Saturday || wd == time.Sunday {
		t.Fatalf("expected a weekday, got %s", wd)
	}
}
