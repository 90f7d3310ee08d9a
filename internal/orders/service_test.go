package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medimartlabs/medimart-backend/internal/inventory"
	"github.com/medimartlabs/medimart-backend/internal/ledger"
	"github.com/medimartlabs/medimart-backend/internal/notifications"
	"github.com/medimartlabs/medimart-backend/internal/users"
	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	"github.com/medimartlabs/medimart-backend/pkg/enums"
	pkgerrors "github.com/medimartlabs/medimart-backend/pkg/errors"
	"github.com/medimartlabs/medimart-backend/pkg/logger"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newOrderService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	inventoryService, err := inventory.NewService(db)
	require.NoError(t, err)

	eventService, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	emitter, err := notifications.NewEmitter(notifications.NewRepository(db), users.NewRepository(db), logg)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(db),
		Tx:        testTxRunner{db: db},
		Inventory: inventoryService,
		Events:    eventService,
		Notifier:  emitter,
	})
	require.NoError(t, err)
	return svc
}

func seedStockedProduct(t *testing.T, db *gorm.DB, tenantID uuid.UUID, name string) (*models.Product, *models.StockBatch, *models.StockBatch) {
	t.Helper()

	product := &models.Product{ID: uuid.New(), TenantID: tenantID, Name: name, TotalQuantity: 13}
	require.NoError(t, db.Create(product).Error)
	b1 := &models.StockBatch{
		ID: uuid.New(), ProductID: product.ID, TenantID: tenantID,
		BatchNumber: "B1", Quantity: 3, ExpiryDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	b2 := &models.StockBatch{
		ID: uuid.New(), ProductID: product.ID, TenantID: tenantID,
		BatchNumber: "B2", Quantity: 10, ExpiryDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(b1).Error)
	require.NoError(t, db.Create(b2).Error)
	return product, b1, b2
}

func seedRetailer(t *testing.T, db *gorm.DB, tenantID uuid.UUID) *models.User {
	t.Helper()

	user := &models.User{ID: uuid.New(), TenantID: tenantID, Name: "Pharmacy Owner", Role: enums.UserRoleRetailer}
	require.NoError(t, db.Create(user).Error)
	return user
}

func loadEvents(t *testing.T, db *gorm.DB, orderID uuid.UUID) []models.OrderEvent {
	t.Helper()

	var events []models.OrderEvent
	require.NoError(t, db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&events).Error)
	return events
}

func loadNotifications(t *testing.T, db *gorm.DB, orderID uuid.UUID) []models.Notification {
	t.Helper()

	var rows []models.Notification
	require.NoError(t, db.Where("order_id = ?", orderID).Find(&rows).Error)
	return rows
}

func reload(t *testing.T, db *gorm.DB, orderID uuid.UUID) *models.Order {
	t.Helper()

	var order models.Order
	require.NoError(t, db.Preload("Lines").First(&order, "id = ?", orderID).Error)
	return &order
}

func futureDeadline() *time.Time {
	deadline := time.Now().UTC().Add(30 * time.Minute)
	return &deadline
}

func errorCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()

	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	return typed.Code()
}

func TestAcceptConfirmsOrderAndDeductsStock(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	product, b1, b2 := seedStockedProduct(t, db, tenantID, "Paracetamol 500mg")
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		expiresAt:      futureDeadline(),
		lines: []models.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 5, UnitPrice: decimal.NewFromInt(30)},
		},
	})

	updated, err := svc.Accept(ctx, AcceptInput{
		OrderID:               order.ID,
		ActorID:               uuid.New(),
		ActorRole:             enums.UserRoleRetailer.String(),
		EstimatedReadyMinutes: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, updated.Status)
	require.NotNil(t, updated.EstimatedReadyMinutes)
	assert.Equal(t, 15, *updated.EstimatedReadyMinutes)

	var dbProduct models.Product
	require.NoError(t, db.First(&dbProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 8, dbProduct.TotalQuantity)

	var dbB1, dbB2 models.StockBatch
	require.NoError(t, db.First(&dbB1, "id = ?", b1.ID).Error)
	require.NoError(t, db.First(&dbB2, "id = ?", b2.ID).Error)
	assert.Equal(t, 0, dbB1.Quantity)
	assert.Equal(t, 8, dbB2.Quantity)

	events := loadEvents(t, db, order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, enums.OrderEventAccepted, events[0].EventType)

	rows := loadNotifications(t, db, order.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, order.CustomerTenantID, rows[0].TenantID)
	assert.Equal(t, order.CustomerID, rows[0].UserID)
}

func TestAcceptInsufficientStockLeavesNoSideEffects(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	product, _, _ := seedStockedProduct(t, db, tenantID, "Paracetamol 500mg")
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		expiresAt:      futureDeadline(),
		lines: []models.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 20, UnitPrice: decimal.NewFromInt(30)},
		},
	})

	_, err := svc.Accept(ctx, AcceptInput{OrderID: order.ID, ActorID: uuid.New(), EstimatedReadyMinutes: 15})
	assert.Equal(t, pkgerrors.CodeInsufficientStock, errorCode(t, err))
	assert.Contains(t, pkgerrors.As(err).Details(), "Paracetamol 500mg")

	assert.Equal(t, enums.OrderStatusPending, reload(t, db, order.ID).Status)
	assert.Empty(t, loadEvents(t, db, order.ID))
	assert.Empty(t, loadNotifications(t, db, order.ID))

	var dbProduct models.Product
	require.NoError(t, db.First(&dbProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 13, dbProduct.TotalQuantity)
}

func TestAcceptAfterDeadlineExpiresOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	product, _, _ := seedStockedProduct(t, db, tenantID, "Paracetamol 500mg")
	past := time.Now().UTC().Add(-time.Minute)
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		expiresAt:      &past,
		lines: []models.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 5, UnitPrice: decimal.NewFromInt(30)},
		},
	})

	_, err := svc.Accept(ctx, AcceptInput{OrderID: order.ID, ActorID: uuid.New(), EstimatedReadyMinutes: 15})
	assert.Equal(t, pkgerrors.CodeOrderExpired, errorCode(t, err))

	found := reload(t, db, order.ID)
	assert.Equal(t, enums.OrderStatusExpired, found.Status)
	require.NotNil(t, found.RejectionReason)
	assert.Equal(t, expiredRejectionReason, *found.RejectionReason)

	events := loadEvents(t, db, order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, enums.OrderEventExpired, events[0].EventType)

	// pending orders never took stock, so there is nothing to return
	var dbProduct models.Product
	require.NoError(t, db.First(&dbProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 13, dbProduct.TotalQuantity)
}

func TestSecondAcceptObservesStateConflict(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	product, _, _ := seedStockedProduct(t, db, tenantID, "Paracetamol 500mg")
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		expiresAt:      futureDeadline(),
		lines: []models.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 5, UnitPrice: decimal.NewFromInt(30)},
		},
	})

	input := AcceptInput{OrderID: order.ID, ActorID: uuid.New(), EstimatedReadyMinutes: 15}
	_, err := svc.Accept(ctx, input)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, input)
	assert.Equal(t, pkgerrors.CodeStateConflict, errorCode(t, err))

	// deducted exactly once
	var dbProduct models.Product
	require.NoError(t, db.First(&dbProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 8, dbProduct.TotalQuantity)
}

func TestRejectConfirmedRestoresStock(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	product, b1, b2 := seedStockedProduct(t, db, tenantID, "Paracetamol 500mg")
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		expiresAt:      futureDeadline(),
		lines: []models.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 5, UnitPrice: decimal.NewFromInt(30)},
		},
	})

	_, err := svc.Accept(ctx, AcceptInput{OrderID: order.ID, ActorID: uuid.New(), EstimatedReadyMinutes: 15})
	require.NoError(t, err)

	updated, err := svc.Reject(ctx, RejectInput{OrderID: order.ID, ActorID: uuid.New(), Reason: "out of delivery range"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRejected, updated.Status)
	require.NotNil(t, updated.RejectionReason)
	assert.Equal(t, "out of delivery range", *updated.RejectionReason)

	var dbProduct models.Product
	require.NoError(t, db.First(&dbProduct, "id = ?", product.ID).Error)
	assert.Equal(t, 13, dbProduct.TotalQuantity)

	var dbB1, dbB2 models.StockBatch
	require.NoError(t, db.First(&dbB1, "id = ?", b1.ID).Error)
	require.NoError(t, db.First(&dbB2, "id = ?", b2.ID).Error)
	assert.Equal(t, 3, dbB1.Quantity)
	assert.Equal(t, 10, dbB2.Quantity)

	events := loadEvents(t, db, order.ID)
	require.Len(t, events, 2)
	types := []enums.OrderEventType{events[0].EventType, events[1].EventType}
	assert.ElementsMatch(t, []enums.OrderEventType{enums.OrderEventAccepted, enums.OrderEventRejected}, types)
}

func TestRejectRequiresReason(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	order := seedOrder(t, db, orderFixture{expiresAt: futureDeadline()})

	_, err := svc.Reject(ctx, RejectInput{OrderID: order.ID, ActorID: uuid.New(), Reason: "   "})
	assert.Equal(t, pkgerrors.CodeValidation, errorCode(t, err))

	assert.Equal(t, enums.OrderStatusPending, reload(t, db, order.ID).Status)
	assert.Empty(t, loadEvents(t, db, order.ID))
}

func TestLifecycleHappyPath(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	product, _, _ := seedStockedProduct(t, db, tenantID, "Paracetamol 500mg")
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		expiresAt:      futureDeadline(),
		lines: []models.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 5, UnitPrice: decimal.NewFromInt(30)},
		},
	})
	actor := TransitionInput{OrderID: order.ID, ActorID: uuid.New(), ActorRole: enums.UserRoleRetailer.String()}

	_, err := svc.Accept(ctx, AcceptInput{OrderID: order.ID, ActorID: actor.ActorID, EstimatedReadyMinutes: 15})
	require.NoError(t, err)

	updated, err := svc.MarkPreparing(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPreparing, updated.Status)

	updated, err = svc.MarkReady(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReady, updated.Status)

	updated, err = svc.Complete(ctx, CompleteInput{
		OrderID:       order.ID,
		ActorID:       actor.ActorID,
		PaymentMethod: enums.PaymentMethodUPI,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, updated.Status)
	assert.Equal(t, enums.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, enums.PaymentMethodUPI, updated.PaymentMethod)
	require.NotNil(t, updated.PickupTime)

	events := loadEvents(t, db, order.ID)
	require.Len(t, events, 4)
	types := make([]enums.OrderEventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.EventType)
	}
	assert.ElementsMatch(t, []enums.OrderEventType{
		enums.OrderEventAccepted,
		enums.OrderEventPreparing,
		enums.OrderEventReady,
		enums.OrderEventCompleted,
	}, types)

	found := reload(t, db, order.ID)
	previous := found.CreatedAt
	for _, event := range events {
		assert.False(t, event.CreatedAt.Before(previous))
		previous = event.CreatedAt
	}

	// markPreparing emits no notification; the other three transitions do
	assert.Len(t, loadNotifications(t, db, order.ID), 3)
}

func TestCompleteRejectsInvalidPaymentMethod(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	product, _, _ := seedStockedProduct(t, db, tenantID, "Paracetamol 500mg")
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		expiresAt:      futureDeadline(),
		lines: []models.OrderLine{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 2, UnitPrice: decimal.NewFromInt(30)},
		},
	})
	actor := TransitionInput{OrderID: order.ID, ActorID: uuid.New()}

	_, err := svc.Accept(ctx, AcceptInput{OrderID: order.ID, ActorID: actor.ActorID, EstimatedReadyMinutes: 10})
	require.NoError(t, err)
	_, err = svc.MarkPreparing(ctx, actor)
	require.NoError(t, err)
	_, err = svc.MarkReady(ctx, actor)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, CompleteInput{
		OrderID:       order.ID,
		ActorID:       actor.ActorID,
		PaymentMethod: enums.PaymentMethod("crypto"),
	})
	assert.Equal(t, pkgerrors.CodeValidation, errorCode(t, err))

	found := reload(t, db, order.ID)
	assert.Equal(t, enums.OrderStatusReady, found.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, found.PaymentStatus)
}

func TestCancelRequiresOwnership(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	order := seedOrder(t, db, orderFixture{expiresAt: futureDeadline()})

	_, err := svc.Cancel(ctx, CancelInput{OrderID: order.ID, CustomerID: uuid.New()})
	assert.Equal(t, pkgerrors.CodeForbidden, errorCode(t, err))
	assert.Equal(t, enums.OrderStatusPending, reload(t, db, order.ID).Status)
}

func TestCancelPendingNotifiesPharmacy(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	retailer := seedRetailer(t, db, tenantID)
	customerID := uuid.New()
	order := seedOrder(t, db, orderFixture{
		sellerTenantID: tenantID,
		customerID:     customerID,
		expiresAt:      futureDeadline(),
	})

	updated, err := svc.Cancel(ctx, CancelInput{OrderID: order.ID, CustomerID: customerID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, updated.Status)

	events := loadEvents(t, db, order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, enums.OrderEventCancelled, events[0].EventType)

	rows := loadNotifications(t, db, order.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, tenantID, rows[0].TenantID)
	assert.Equal(t, retailer.ID, rows[0].UserID)
}

func TestCancelConfirmedIsStateConflict(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	customerID := uuid.New()
	order := seedOrder(t, db, orderFixture{
		customerID: customerID,
		status:     enums.OrderStatusConfirmed,
	})

	_, err := svc.Cancel(ctx, CancelInput{OrderID: order.ID, CustomerID: customerID})
	assert.Equal(t, pkgerrors.CodeStateConflict, errorCode(t, err))
	assert.Empty(t, loadEvents(t, db, order.ID))
}

func TestExpireIsIdempotent(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	order := seedOrder(t, db, orderFixture{expiresAt: &past})

	updated, err := svc.Expire(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusExpired, updated.Status)
	require.NotNil(t, updated.RejectionReason)
	assert.Equal(t, expiredRejectionReason, *updated.RejectionReason)
	require.Len(t, loadEvents(t, db, order.ID), 1)

	// a second expire is a no-op success, not a new event
	updated, err = svc.Expire(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusExpired, updated.Status)
	assert.Len(t, loadEvents(t, db, order.ID), 1)

	confirmed := seedOrder(t, db, orderFixture{status: enums.OrderStatusConfirmed, expiresAt: &past})
	updated, err = svc.Expire(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, updated.Status)
	assert.Empty(t, loadEvents(t, db, confirmed.ID))
}

func TestExpireRefusesOrdersStillInsideDeadline(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	early := seedOrder(t, db, orderFixture{expiresAt: futureDeadline()})
	_, err := svc.Expire(ctx, early.ID)
	assert.Equal(t, pkgerrors.CodeValidation, errorCode(t, err))
	assert.Equal(t, enums.OrderStatusPending, reload(t, db, early.ID).Status)
	assert.Empty(t, loadEvents(t, db, early.ID))

	// no deadline means the order can never be force-expired
	open := seedOrder(t, db, orderFixture{})
	_, err = svc.Expire(ctx, open.ID)
	assert.Equal(t, pkgerrors.CodeValidation, errorCode(t, err))
	assert.Equal(t, enums.OrderStatusPending, reload(t, db, open.ID).Status)
}

func TestPlaceValidatesAndRecordsOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrderService(t, db)
	ctx := context.Background()

	tenantID := uuid.New()
	retailer := seedRetailer(t, db, tenantID)

	input := NewOrderInput{
		SellerTenantID:   tenantID,
		CustomerTenantID: uuid.New(),
		CustomerID:       uuid.New(),
		CustomerName:     "Asha Mehta",
		StoreName:        "GreenLeaf Pharmacy",
		Lines: []OrderLineInput{
			{ProductID: uuid.New(), ProductName: "Paracetamol 500mg", Quantity: 2, UnitPrice: decimal.NewFromInt(30)},
			{ProductID: uuid.New(), ProductName: "Cetirizine 10mg", Quantity: 1, UnitPrice: decimal.NewFromInt(45)},
		},
		TotalAmount: decimal.NewFromInt(105),
		ExpiresAt:   futureDeadline(),
	}

	created, err := svc.Place(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, created.Status)

	found := reload(t, db, created.ID)
	assert.Len(t, found.Lines, 2)

	events := loadEvents(t, db, created.ID)
	require.Len(t, events, 1)
	assert.Equal(t, enums.OrderEventPlaced, events[0].EventType)

	rows := loadNotifications(t, db, created.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, retailer.ID, rows[0].UserID)

	// a total that disagrees with the lines never reaches the store
	input.TotalAmount = decimal.NewFromInt(100)
	_, err = svc.Place(ctx, input)
	assert.Equal(t, pkgerrors.CodeValidation, errorCode(t, err))
}
