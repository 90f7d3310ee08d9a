package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	"github.com/medimartlabs/medimart-backend/pkg/logger"
)

type orderExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type pendingOrderReader interface {
	FindPendingOrdersExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// OrderExpiryJobParams configure the stale-order sweeper job.
type OrderExpiryJobParams struct {
	Logger        *logger.Logger
	PendingReader pendingOrderReader
	Orders        orderExpirer
	Now           func() time.Time
}

// NewOrderExpiryJob builds the job that force-expires pending orders whose
// response deadline has passed.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PendingReader == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &orderExpiryJob{
		logg:          params.Logger,
		pendingReader: params.PendingReader,
		orders:        params.Orders,
		now:           now,
	}, nil
}

type orderExpiryJob struct {
	logg          *logger.Logger
	pendingReader pendingOrderReader
	orders        orderExpirer
	now           func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run expires each stale pending order independently; one bad record cannot
// halt the sweep.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	stale, err := j.pendingReader.FindPendingOrdersExpiredBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		if _, err := j.orders.Expire(ctx, order.ID); err != nil {
			logCtx := j.logg.WithOrderID(ctx, order.ID.String())
			j.logg.Error(logCtx, "failed to expire order", err)
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"stale": len(stale), "expired": expired})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return multierr.Combine(errs...)
}
