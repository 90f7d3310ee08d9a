package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimartlabs/medimart-backend/pkg/enums"
)

// User is an account scoped to a tenant. The order core only consumes users
// to address pharmacy-side notifications at the tenant's retailer account.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null"`
	Name      string         `gorm:"column:name;type:text;not null"`
	Phone     string         `gorm:"column:phone;type:text"`
	Role      enums.UserRole `gorm:"column:role;type:user_role;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
