package enums

// UserRole identifies what a user account can do within a tenant.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleRetailer UserRole = "retailer"
	UserRoleAdmin    UserRole = "admin"
)

// String implements fmt.Stringer.
func (u UserRole) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UserRole.
func (u UserRole) IsValid() bool {
	switch u {
	case UserRoleCustomer, UserRoleRetailer, UserRoleAdmin:
		return true
	default:
		return false
	}
}
