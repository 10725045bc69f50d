package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tablyhq/tably-backend/pkg/logger"
)

type fakeSettlementAggregator struct {
	dates []string
	err   error
}

func (f *fakeSettlementAggregator) AggregateAll(ctx context.Context, date string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.dates = append(f.dates, date)
	return 2, nil
}

func newSettlementJob(t *testing.T, aggregator *fakeSettlementAggregator) *settlementJob {
	t.Helper()
	jobIface, err := NewSettlementJob(SettlementJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Payments: aggregator,
	})
	if err != nil {
		t.Fatalf("NewSettlementJob: %v", err)
	}
	job, ok := jobIface.(*settlementJob)
	if !ok {
		t.Fatalf("expected settlementJob, got %T", jobIface)
	}
	return job
}

func TestSettlementJobAggregatesYesterday(t *testing.T) {
	aggregator := &fakeSettlementAggregator{}
	job := newSettlementJob(t, aggregator)
	job.now = func() time.Time { return time.Date(2026, 4, 2, 1, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(aggregator.dates) != 1 || aggregator.dates[0] != "2026-04-01" {
		t.Fatalf("expected aggregation for 2026-04-01, got %v", aggregator.dates)
	}
}

func TestSettlementJobRunsOncePerDate(t *testing.T) {
	aggregator := &fakeSettlementAggregator{}
	job := newSettlementJob(t, aggregator)
	current := time.Date(2026, 4, 2, 1, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if len(aggregator.dates) != 1 {
		t.Fatalf("expected single aggregation, got %v", aggregator.dates)
	}

	// The day rolls over and the job fires again.
	current = current.AddDate(0, 0, 1)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(aggregator.dates) != 2 || aggregator.dates[1] != "2026-04-02" {
		t.Fatalf("expected follow-up aggregation for 2026-04-02, got %v", aggregator.dates)
	}
}

func TestSettlementJobRetriesFailedDate(t *testing.T) {
	aggregator := &fakeSettlementAggregator{err: errors.New("db down")}
	job := newSettlementJob(t, aggregator)
	job.now = func() time.Time { return time.Date(2026, 4, 2, 1, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	aggregator.err = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run after recovery: %v", err)
	}
	if len(aggregator.dates) != 1 || aggregator.dates[0] != "2026-04-01" {
		t.Fatalf("expected retried aggregation for 2026-04-01, got %v", aggregator.dates)
	}
}
