package models

import (
	"time"

	"github.com/google/uuid"
)

// StockMovementDirection distinguishes deductions from restorations.
type StockMovementDirection string

const (
	StockMovementDeduct  StockMovementDirection = "deduct"
	StockMovementRestore StockMovementDirection = "restore"
)

// StockMovement is the per-order deduction ledger: one row per batch touched
// when stock is taken for (or returned to) an order. Restore replays the
// deduct rows so batches end up exactly where they started.
type StockMovement struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	BatchID   uuid.UUID              `gorm:"column:batch_id;type:uuid;not null"`
	Quantity  int                    `gorm:"column:quantity;not null"`
	Direction StockMovementDirection `gorm:"column:direction;type:text;not null"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
