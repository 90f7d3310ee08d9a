package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/medimartlabs/medimart-backend/pkg/enums"
)

// OrderEvent records an immutable lifecycle transition for audit purposes.
// Rows are append-only; nothing in the state machine reads them back to
// decide behavior.
type OrderEvent struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	EventType enums.OrderEventType `gorm:"column:event_type;type:order_event_type;not null"`
	ActorID   *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	ActorRole *string              `gorm:"column:actor_role;type:text"`
	Metadata  json.RawMessage      `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}
