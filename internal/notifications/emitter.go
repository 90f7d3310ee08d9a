package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	"github.com/medimartlabs/medimart-backend/pkg/enums"
	pkgerrors "github.com/medimartlabs/medimart-backend/pkg/errors"
	"github.com/medimartlabs/medimart-backend/pkg/logger"
)

// retailerFinder resolves the pharmacy-side recipient for a tenant.
type retailerFinder interface {
	FindRetailerByTenant(ctx context.Context, tenantID uuid.UUID) (*models.User, error)
}

type recipient int

const (
	recipientCustomer recipient = iota
	recipientRetailer
)

type transitionTemplate struct {
	title string
	body  func(order *models.Order) string
	to    recipient
}

// transitionTemplates keys the fixed notification copy by lifecycle event.
// Events without an entry (e.g. preparing) emit nothing.
var transitionTemplates = map[enums.OrderEventType]transitionTemplate{
	enums.OrderEventPlaced: {
		title: "New order received",
		body: func(order *models.Order) string {
			return fmt.Sprintf("%s placed an order for %s.", order.CustomerName, order.TotalAmount.StringFixed(2))
		},
		to: recipientRetailer,
	},
	enums.OrderEventAccepted: {
		title: "Order confirmed",
		body: func(order *models.Order) string {
			if order.EstimatedReadyMinutes != nil {
				return fmt.Sprintf("%s confirmed your order. Estimated ready in %d minutes.", order.StoreName, *order.EstimatedReadyMinutes)
			}
			return fmt.Sprintf("%s confirmed your order.", order.StoreName)
		},
		to: recipientCustomer,
	},
	enums.OrderEventRejected: {
		title: "Order rejected",
		body: func(order *models.Order) string {
			if order.RejectionReason != nil && *order.RejectionReason != "" {
				return fmt.Sprintf("%s rejected your order: %s", order.StoreName, *order.RejectionReason)
			}
			return fmt.Sprintf("%s rejected your order.", order.StoreName)
		},
		to: recipientCustomer,
	},
	enums.OrderEventReady: {
		title: "Order ready for pickup",
		body: func(order *models.Order) string {
			return fmt.Sprintf("Your order at %s is ready for pickup.", order.StoreName)
		},
		to: recipientCustomer,
	},
	enums.OrderEventCompleted: {
		title: "Order completed",
		body: func(order *models.Order) string {
			return fmt.Sprintf("Payment of %s received via %s. Thank you!", order.TotalAmount.StringFixed(2), order.PaymentMethod)
		},
		to: recipientCustomer,
	},
	enums.OrderEventCancelled: {
		title: "Order cancelled",
		body: func(order *models.Order) string {
			return fmt.Sprintf("%s cancelled their order.", order.CustomerName)
		},
		to: recipientRetailer,
	},
	enums.OrderEventExpired: {
		title: "Order expired",
		body: func(order *models.Order) string {
			return fmt.Sprintf("Your order at %s expired before the pharmacy could respond.", order.StoreName)
		},
		to: recipientCustomer,
	},
}

// Emitter inserts addressed notification rows as a transition side effect.
// Delivery is an external collaborator that polls the notifications table.
type Emitter struct {
	repo  Repository
	users retailerFinder
	logg  *logger.Logger
}

// NewEmitter wires the notification emitter.
func NewEmitter(repo Repository, users retailerFinder, logg *logger.Logger) (*Emitter, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Emitter{repo: repo, users: users, logg: logg}, nil
}

// EmitForTransition creates the notification for the given lifecycle event
// inside the caller's transaction. Event types without a template are a no-op.
func (e *Emitter) EmitForTransition(ctx context.Context, tx *gorm.DB, order *models.Order, eventType enums.OrderEventType) error {
	tmpl, ok := transitionTemplates[eventType]
	if !ok {
		return nil
	}

	orderID := order.ID
	notification := &models.Notification{
		Type:    enums.NotificationTypeOrder,
		Title:   tmpl.title,
		Message: tmpl.body(order),
		OrderID: &orderID,
	}
	if eventType == enums.OrderEventCompleted {
		notification.Type = enums.NotificationTypePayment
	}

	switch tmpl.to {
	case recipientRetailer:
		retailer, err := e.users.FindRetailerByTenant(ctx, order.SellerTenantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logCtx := e.logg.WithTenantID(ctx, order.SellerTenantID.String())
				e.logg.Warn(logCtx, "no retailer user for tenant; notification skipped")
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve retailer recipient")
		}
		notification.TenantID = order.SellerTenantID
		notification.UserID = retailer.ID
	default:
		notification.TenantID = order.CustomerTenantID
		notification.UserID = order.CustomerID
	}

	if err := e.repo.WithTx(tx).Create(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return nil
}
