package orders

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	"github.com/medimartlabs/medimart-backend/pkg/enums"
	pkgerrors "github.com/medimartlabs/medimart-backend/pkg/errors"
)

var validate = validator.New()

// OrderLineInput is the schema gate for externally supplied lines. Malformed
// lines are rejected here, before the state machine ever sees them.
type OrderLineInput struct {
	ProductID   uuid.UUID       `validate:"required"`
	ProductName string          `validate:"required"`
	Quantity    int             `validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `validate:"required"`
}

// NewOrderInput carries an externally created order into the store.
type NewOrderInput struct {
	SellerTenantID   uuid.UUID        `validate:"required"`
	CustomerTenantID uuid.UUID        `validate:"required"`
	CustomerID       uuid.UUID        `validate:"required"`
	CustomerName     string           `validate:"required"`
	CustomerPhone    string
	StoreName        string
	StoreAddress     string
	Lines            []OrderLineInput `validate:"required,min=1,dive"`
	TotalAmount      decimal.Decimal  `validate:"required"`
	ExpiresAt        *time.Time
}

// Validate enforces the schema tags plus the line-total invariant.
func (in NewOrderInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order input")
	}

	sum := decimal.Zero
	for _, line := range in.Lines {
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if !sum.Equal(in.TotalAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "order total does not match the sum of its lines")
	}
	return nil
}

// ToModel converts the validated input into a pending order. IDs are
// assigned here so the lines can reference their order before the insert.
func (in NewOrderInput) ToModel() *models.Order {
	orderID := uuid.New()
	lines := make([]models.OrderLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		lines = append(lines, models.OrderLine{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}
	return &models.Order{
		ID:               orderID,
		SellerTenantID:   in.SellerTenantID,
		CustomerTenantID: in.CustomerTenantID,
		CustomerID:       in.CustomerID,
		CustomerName:     in.CustomerName,
		CustomerPhone:    in.CustomerPhone,
		StoreName:        in.StoreName,
		StoreAddress:     in.StoreAddress,
		TotalAmount:      in.TotalAmount,
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusUnpaid,
		PaymentMethod:    enums.PaymentMethodCash,
		ExpiresAt:        in.ExpiresAt,
		Lines:            lines,
	}
}

// AcceptInput carries the pharmacy's acceptance of a pending order.
type AcceptInput struct {
	OrderID               uuid.UUID
	ActorID               uuid.UUID
	ActorRole             string
	EstimatedReadyMinutes int
}

// RejectInput carries the pharmacy's rejection with a mandatory reason.
type RejectInput struct {
	OrderID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole string
	Reason    string
}

// TransitionInput covers the plain status edges (markPreparing, markReady).
type TransitionInput struct {
	OrderID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole string
}

// CompleteInput finalizes a ready order at pickup.
type CompleteInput struct {
	OrderID       uuid.UUID
	ActorID       uuid.UUID
	ActorRole     string
	PaymentMethod enums.PaymentMethod
}

// CancelInput is the customer-initiated cancellation of a pending order.
type CancelInput struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
}
