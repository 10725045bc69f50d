package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tablyhq/tably-backend/pkg/logger"
)

type idempotencySweeper interface {
	SweepIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencySweepJobParams configure the dedup ledger sweep.
type IdempotencySweepJobParams struct {
	Logger *logger.Logger
	Orders idempotencySweeper
}

// NewIdempotencySweepJob builds the job that expires stale order idempotency
// records. The ledger is a bounded dedup cache, not a system of record, so
// sweeping it only trades the occasional duplicate detection miss for space.
func NewIdempotencySweepJob(params IdempotencySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &idempotencySweepJob{
		logg:   params.Logger,
		orders: params.Orders,
		now:    time.Now,
	}, nil
}

type idempotencySweepJob struct {
	logg   *logger.Logger
	orders idempotencySweeper
	now    func() time.Time
}

func (j *idempotencySweepJob) Name() string { return "idempotency-sweep" }

func (j *idempotencySweepJob) Run(ctx context.Context) error {
	deleted, err := j.orders.SweepIdempotencyRecords(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("idempotency sweep: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "rows_deleted", deleted)
	j.logg.Info(logCtx, "idempotency ledger sweep complete")
	return nil
}
