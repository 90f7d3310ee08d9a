package notifications

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medimartlabs/medimart-backend/internal/users"
	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	"github.com/medimartlabs/medimart-backend/pkg/enums"
	"github.com/medimartlabs/medimart-backend/pkg/logger"
)

func newTestEmitter(t *testing.T, db *gorm.DB) *Emitter {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
	emitter, err := NewEmitter(NewRepository(db), users.NewRepository(db), logg)
	require.NoError(t, err)
	return emitter
}

func sampleOrder() *models.Order {
	minutes := 20
	return &models.Order{
		ID:                    uuid.New(),
		SellerTenantID:        uuid.New(),
		CustomerTenantID:      uuid.New(),
		CustomerID:            uuid.New(),
		CustomerName:          "Asha Mehta",
		StoreName:             "GreenLeaf Pharmacy",
		TotalAmount:           decimal.NewFromInt(105),
		PaymentMethod:         enums.PaymentMethodUPI,
		EstimatedReadyMinutes: &minutes,
	}
}

func emittedRows(t *testing.T, db *gorm.DB, orderID uuid.UUID) []models.Notification {
	t.Helper()

	var rows []models.Notification
	require.NoError(t, db.Where("order_id = ?", orderID).Find(&rows).Error)
	return rows
}

func TestEmitForTransitionAddressesCustomer(t *testing.T) {
	db := setupNotificationsTestDB(t)
	emitter := newTestEmitter(t, db)
	order := sampleOrder()

	require.NoError(t, emitter.EmitForTransition(context.Background(), db, order, enums.OrderEventAccepted))

	rows := emittedRows(t, db, order.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, order.CustomerTenantID, rows[0].TenantID)
	assert.Equal(t, order.CustomerID, rows[0].UserID)
	assert.Equal(t, enums.NotificationTypeOrder, rows[0].Type)
	assert.Contains(t, rows[0].Message, "GreenLeaf Pharmacy")
	assert.Contains(t, rows[0].Message, "20 minutes")
}

func TestEmitForTransitionCompletedUsesPaymentType(t *testing.T) {
	db := setupNotificationsTestDB(t)
	emitter := newTestEmitter(t, db)
	order := sampleOrder()

	require.NoError(t, emitter.EmitForTransition(context.Background(), db, order, enums.OrderEventCompleted))

	rows := emittedRows(t, db, order.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypePayment, rows[0].Type)
	assert.Contains(t, rows[0].Message, "105.00")
}

func TestEmitForTransitionAddressesRetailer(t *testing.T) {
	db := setupNotificationsTestDB(t)
	emitter := newTestEmitter(t, db)
	order := sampleOrder()

	retailer := &models.User{ID: uuid.New(), TenantID: order.SellerTenantID, Name: "Pharmacy Owner", Role: enums.UserRoleRetailer}
	require.NoError(t, db.Create(retailer).Error)
	// a customer account in the same tenant must never be picked
	customer := &models.User{ID: uuid.New(), TenantID: order.SellerTenantID, Name: "Walk-in", Role: enums.UserRoleCustomer}
	require.NoError(t, db.Create(customer).Error)

	require.NoError(t, emitter.EmitForTransition(context.Background(), db, order, enums.OrderEventCancelled))

	rows := emittedRows(t, db, order.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, order.SellerTenantID, rows[0].TenantID)
	assert.Equal(t, retailer.ID, rows[0].UserID)
	assert.Contains(t, rows[0].Message, "Asha Mehta")
}

func TestEmitForTransitionSkipsWhenRetailerMissing(t *testing.T) {
	db := setupNotificationsTestDB(t)
	emitter := newTestEmitter(t, db)
	order := sampleOrder()

	require.NoError(t, emitter.EmitForTransition(context.Background(), db, order, enums.OrderEventPlaced))
	assert.Empty(t, emittedRows(t, db, order.ID))
}

func TestEmitForTransitionIgnoresUntemplatedEvents(t *testing.T) {
	db := setupNotificationsTestDB(t)
	emitter := newTestEmitter(t, db)
	order := sampleOrder()

	require.NoError(t, emitter.EmitForTransition(context.Background(), db, order, enums.OrderEventPreparing))
	assert.Empty(t, emittedRows(t, db, order.ID))
}
