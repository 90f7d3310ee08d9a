package models

import (
	"time"

	"github.com/google/uuid"
)

// StockBatch is a dated lot of a product. Batches are never deleted; a fully
// consumed batch stays at zero quantity.
type StockBatch struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	TenantID    uuid.UUID `gorm:"column:tenant_id;type:uuid;not null"`
	BatchNumber string    `gorm:"column:batch_number;type:text;not null"`
	Quantity    int       `gorm:"column:quantity;not null;default:0"`
	ExpiryDate  time.Time `gorm:"column:expiry_date;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
