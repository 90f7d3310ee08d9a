package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medimartlabs/medimart-backend/pkg/db/models"
	"github.com/medimartlabs/medimart-backend/pkg/enums"
)

// Service records lifecycle events for audit purposes. The event log is
// append-only and never consulted by the state machine to decide behavior.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordEventInput) (*models.OrderEvent, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
}

type service struct {
	repo Repository
}

// RecordEventInput captures the immutable data an order event requires.
type RecordEventInput struct {
	OrderID   uuid.UUID            `json:"order_id"`
	EventType enums.OrderEventType `json:"event_type"`
	ActorID   *uuid.UUID           `json:"actor_id"`
	ActorRole *string              `json:"actor_role"`
	Metadata  json.RawMessage      `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordEventInput) (*models.OrderEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.EventType.IsValid() {
		return nil, fmt.Errorf("invalid order event type %q", input.EventType)
	}

	event := &models.OrderEvent{
		OrderID:   input.OrderID,
		EventType: input.EventType,
		ActorID:   input.ActorID,
		ActorRole: input.ActorRole,
		Metadata:  input.Metadata,
	}

	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}
