package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tablyhq/tably-backend/pkg/logger"
)

const settlementDateLayout = "2006-01-02"

type settlementAggregator interface {
	AggregateAll(ctx context.Context, date string) (int, error)
}

// SettlementJobParams configure the daily settlement aggregation.
type SettlementJobParams struct {
	Logger   *logger.Logger
	Payments settlementAggregator
}

// NewSettlementJob builds the job that recomputes yesterday's settlements for
// every restaurant with payment activity. The worker cycle may be much
// shorter than a day; the job tracks the last aggregated date and only runs
// once per day, while a missed day is picked up on the next cycle because the
// aggregation is a whole-day recompute.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &settlementJob{
		logg:     params.Logger,
		payments: params.Payments,
		now:      time.Now,
	}, nil
}

type settlementJob struct {
	logg     *logger.Logger
	payments settlementAggregator
	now      func() time.Time

	lastDate string
}

func (j *settlementJob) Name() string { return "settlement-aggregation" }

func (j *settlementJob) Run(ctx context.Context) error {
	date := j.now().UTC().AddDate(0, 0, -1).Format(settlementDateLayout)
	if date == j.lastDate {
		return nil
	}

	count, err := j.payments.AggregateAll(ctx, date)
	if err != nil {
		return fmt.Errorf("settlement aggregation for %s: %w", date, err)
	}
	j.lastDate = date

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"date":        date,
		"restaurants": count,
	})
	j.logg.Info(logCtx, "daily settlement aggregation complete")
	return nil
}
