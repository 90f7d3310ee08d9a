package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a per-tenant catalog entry. TotalQuantity is the aggregate
// across the product's stock batches; it is mutated only by the inventory
// ledger inside a transaction.
type Product struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID      uuid.UUID `gorm:"column:tenant_id;type:uuid;not null"`
	Name          string    `gorm:"column:name;type:text;not null"`
	TotalQuantity int       `gorm:"column:total_quantity;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
