package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medimartlabs/medimart-backend/pkg/enums"
)

// Order represents a customer's request against one pharmacy tenant.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerTenantID        uuid.UUID           `gorm:"column:seller_tenant_id;type:uuid;not null"`
	CustomerTenantID      uuid.UUID           `gorm:"column:customer_tenant_id;type:uuid;not null"`
	CustomerID            uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	CustomerName          string              `gorm:"column:customer_name;type:text;not null"`
	CustomerPhone         string              `gorm:"column:customer_phone;type:text"`
	StoreName             string              `gorm:"column:store_name;type:text"`
	StoreAddress          string              `gorm:"column:store_address;type:text"`
	TotalAmount           decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status                enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus         enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'unpaid'"`
	PaymentMethod         enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null;default:'cash'"`
	EstimatedReadyMinutes *int                `gorm:"column:estimated_ready_minutes"`
	RejectionReason       *string             `gorm:"column:rejection_reason;type:text"`
	ExpiresAt             *time.Time          `gorm:"column:expires_at"`
	PickupTime            *time.Time          `gorm:"column:pickup_time"`
	Lines                 []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
