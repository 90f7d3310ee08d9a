package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimartlabs/medimart-backend/pkg/db/models"
)

type stubPendingReader struct {
	orders []models.Order
	cutoff time.Time
	err    error
}

func (r *stubPendingReader) FindPendingOrdersExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	r.cutoff = cutoff
	return r.orders, r.err
}

type stubExpirer struct {
	expired []uuid.UUID
	failOn  uuid.UUID
}

func (e *stubExpirer) Expire(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == e.failOn {
		return nil, fmt.Errorf("db unavailable")
	}
	e.expired = append(e.expired, orderID)
	return &models.Order{ID: orderID}, nil
}

func TestOrderExpiryJobExpiresStaleOrders(t *testing.T) {
	stale := []models.Order{
		{ID: uuid.New()},
		{ID: uuid.New()},
	}
	reader := &stubPendingReader{orders: stale}
	expirer := &stubExpirer{}
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:        testLogger(),
		PendingReader: reader,
		Orders:        expirer,
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)
	assert.Equal(t, "order-expiry", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now, reader.cutoff)
	assert.Equal(t, []uuid.UUID{stale[0].ID, stale[1].ID}, expirer.expired)
}

func TestOrderExpiryJobContinuesPastFailures(t *testing.T) {
	bad := uuid.New()
	good := uuid.New()
	reader := &stubPendingReader{orders: []models.Order{{ID: bad}, {ID: good}}}
	expirer := &stubExpirer{failOn: bad}

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:        testLogger(),
		PendingReader: reader,
		Orders:        expirer,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.String())

	// the failure on the first order never blocks the second
	assert.Equal(t, []uuid.UUID{good}, expirer.expired)
}

func TestOrderExpiryJobPropagatesQueryErrors(t *testing.T) {
	reader := &stubPendingReader{err: fmt.Errorf("connection reset")}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:        testLogger(),
		PendingReader: reader,
		Orders:        &stubExpirer{},
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale pending orders")
}
