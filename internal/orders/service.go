package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medimartlabs/medimart-backend/internal/ledger"
	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	"github.com/medimartlabs/medimart-backend/pkg/enums"
	pkgerrors "github.com/medimartlabs/medimart-backend/pkg/errors"
)

// expiredRejectionReason is stamped on orders the pharmacy never answered.
const expiredRejectionReason = "Order expired: no response from pharmacy"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// inventoryLedger is the slice of the inventory service the state machine
// needs: deduction on accept, restoration when confirmed stock comes back.
type inventoryLedger interface {
	Deduct(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error
	Restore(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error
}

type eventRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordEventInput) (*models.OrderEvent, error)
}

type notificationEmitter interface {
	EmitForTransition(ctx context.Context, tx *gorm.DB, order *models.Order, eventType enums.OrderEventType) error
}

// Service exposes the order lifecycle state machine. Every operation runs its
// guard, status change, inventory call, event append and notification inside
// one transaction; a guard failure leaves no side effects at all.
type Service interface {
	Place(ctx context.Context, input NewOrderInput) (*models.Order, error)
	Accept(ctx context.Context, input AcceptInput) (*models.Order, error)
	Reject(ctx context.Context, input RejectInput) (*models.Order, error)
	MarkPreparing(ctx context.Context, input TransitionInput) (*models.Order, error)
	MarkReady(ctx context.Context, input TransitionInput) (*models.Order, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	Expire(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventoryLedger
	events    eventRecorder
	notifier  notificationEmitter
	now       func() time.Time
}

// ServiceParams configure the order service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Inventory inventoryLedger
	Events    eventRecorder
	Notifier  notificationEmitter
	Now       func() time.Time
}

// NewService builds the order state machine with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event recorder required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notification emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		inventory: params.Inventory,
		events:    params.Events,
		notifier:  params.Notifier,
		now:       now,
	}, nil
}

func (s *service) Place(ctx context.Context, input NewOrderInput) (*models.Order, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.CreateOrder(ctx, input.ToModel())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.appendEvent(ctx, tx, order.ID, enums.OrderEventPlaced, &input.CustomerID, enums.UserRoleCustomer.String()); err != nil {
			return err
		}
		if err := s.notifier.EmitForTransition(ctx, tx, order, enums.OrderEventPlaced); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Accept(ctx context.Context, input AcceptInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.EstimatedReadyMinutes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "estimated ready minutes must be positive")
	}

	var updated *models.Order
	var expiredNow bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if order.Status == enums.OrderStatusPending && order.ExpiresAt != nil && now.After(*order.ExpiresAt) {
			// the deadline has passed; commit the expiry instead of accepting
			if _, err := s.expireWithinTx(ctx, tx, order); err != nil {
				return err
			}
			expiredNow = true
			return nil
		}

		rows, err := repo.UpdateOrder(ctx, order.ID, enums.OrderStatusPending, map[string]any{
			"status":                  enums.OrderStatusConfirmed,
			"estimated_ready_minutes": input.EstimatedReadyMinutes,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be accepted").
				WithDetails(order.Status)
		}

		if err := s.inventory.Deduct(ctx, tx, order.SellerTenantID, order.ID, order.Lines); err != nil {
			return err
		}

		if err := s.appendEvent(ctx, tx, order.ID, enums.OrderEventAccepted, &input.ActorID, input.ActorRole); err != nil {
			return err
		}

		order.Status = enums.OrderStatusConfirmed
		minutes := input.EstimatedReadyMinutes
		order.EstimatedReadyMinutes = &minutes
		if err := s.notifier.EmitForTransition(ctx, tx, order, enums.OrderEventAccepted); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expiredNow {
		return nil, pkgerrors.New(pkgerrors.CodeOrderExpired, "order response window has closed")
	}
	return updated, nil
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if isBlank(input.Reason) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be rejected").
				WithDetails(order.Status)
		}

		rows, err := repo.UpdateOrder(ctx, order.ID, order.Status, map[string]any{
			"status":           enums.OrderStatusRejected,
			"rejection_reason": input.Reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed underneath rejection")
		}

		// confirmed orders already took stock
		if order.Status == enums.OrderStatusConfirmed {
			if err := s.inventory.Restore(ctx, tx, order.SellerTenantID, order.ID, order.Lines); err != nil {
				return err
			}
		}

		if err := s.appendEvent(ctx, tx, order.ID, enums.OrderEventRejected, &input.ActorID, input.ActorRole); err != nil {
			return err
		}

		order.Status = enums.OrderStatusRejected
		reason := input.Reason
		order.RejectionReason = &reason
		if err := s.notifier.EmitForTransition(ctx, tx, order, enums.OrderEventRejected); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) MarkPreparing(ctx context.Context, input TransitionInput) (*models.Order, error) {
	return s.plainTransition(ctx, input, enums.OrderStatusConfirmed, enums.OrderStatusPreparing, enums.OrderEventPreparing)
}

func (s *service) MarkReady(ctx context.Context, input TransitionInput) (*models.Order, error) {
	return s.plainTransition(ctx, input, enums.OrderStatusPreparing, enums.OrderStatusReady, enums.OrderEventReady)
}

// plainTransition covers the edges with no inventory involvement. The
// notification emitter decides per event type whether anyone is told.
func (s *service) plainTransition(ctx context.Context, input TransitionInput, from, to enums.OrderStatus, eventType enums.OrderEventType) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		rows, err := repo.UpdateOrderStatus(ctx, order.ID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is not %s", from)).
				WithDetails(order.Status)
		}

		if err := s.appendEvent(ctx, tx, order.ID, eventType, &input.ActorID, input.ActorRole); err != nil {
			return err
		}

		order.Status = to
		if err := s.notifier.EmitForTransition(ctx, tx, order, eventType); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		pickupTime := s.now().UTC()
		rows, err := repo.UpdateOrder(ctx, order.ID, enums.OrderStatusReady, map[string]any{
			"status":         enums.OrderStatusCompleted,
			"payment_status": enums.PaymentStatusPaid,
			"payment_method": input.PaymentMethod,
			"pickup_time":    pickupTime,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not ready for pickup").
				WithDetails(order.Status)
		}

		if err := s.appendEvent(ctx, tx, order.ID, enums.OrderEventCompleted, &input.ActorID, input.ActorRole); err != nil {
			return err
		}

		order.Status = enums.OrderStatusCompleted
		order.PaymentStatus = enums.PaymentStatusPaid
		order.PaymentMethod = input.PaymentMethod
		order.PickupTime = &pickupTime
		if err := s.notifier.EmitForTransition(ctx, tx, order, enums.OrderEventCompleted); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.CustomerID != input.CustomerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}

		rows, err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled").
				WithDetails(order.Status)
		}

		if err := s.appendEvent(ctx, tx, order.ID, enums.OrderEventCancelled, &input.CustomerID, enums.UserRoleCustomer.String()); err != nil {
			return err
		}

		order.Status = enums.OrderStatusCancelled
		if err := s.notifier.EmitForTransition(ctx, tx, order, enums.OrderEventCancelled); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Expire(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		// idempotent: anything past pending is left untouched
		if order.Status != enums.OrderStatusPending {
			updated = order
			return nil
		}
		if order.ExpiresAt == nil || s.now().UTC().Before(*order.ExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeValidation, "order response deadline has not passed")
		}

		changed, err := s.expireWithinTx(ctx, tx, order)
		if err != nil {
			return err
		}
		if changed {
			order.Status = enums.OrderStatusExpired
			reason := expiredRejectionReason
			order.RejectionReason = &reason
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// expireWithinTx applies the expire transition's effects inside the caller's
// transaction. Returns false when another transition won the race, which the
// caller treats as a no-op.
func (s *service) expireWithinTx(ctx context.Context, tx *gorm.DB, order *models.Order) (bool, error) {
	repo := s.repo.WithTx(tx)
	rows, err := repo.UpdateOrder(ctx, order.ID, enums.OrderStatusPending, map[string]any{
		"status":           enums.OrderStatusExpired,
		"rejection_reason": expiredRejectionReason,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if rows == 0 {
		return false, nil
	}

	if err := s.appendEvent(ctx, tx, order.ID, enums.OrderEventExpired, nil, ""); err != nil {
		return false, err
	}

	expired := *order
	expired.Status = enums.OrderStatusExpired
	reason := expiredRejectionReason
	expired.RejectionReason = &reason
	if err := s.notifier.EmitForTransition(ctx, tx, &expired, enums.OrderEventExpired); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) appendEvent(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, eventType enums.OrderEventType, actorID *uuid.UUID, actorRole string) error {
	input := ledger.RecordEventInput{
		OrderID:   orderID,
		EventType: eventType,
		ActorID:   actorID,
	}
	if actorRole != "" {
		input.ActorRole = &actorRole
	}
	if _, err := s.events.Record(ctx, tx, input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order event")
	}
	return nil
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
