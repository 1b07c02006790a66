package domain

import "time"

// TenantRole is the privilege level scoped to a single tenant membership.
type TenantRole string

const (
	TenantRoleAdmin   TenantRole = "ADMIN"
	TenantRoleManager TenantRole = "MANAGER"
	TenantRoleStaff   TenantRole = "STAFF"
)

// Level orders tenant roles. ADMIN > MANAGER > STAFF.
func (r TenantRole) Level() int {
	switch r {
	case TenantRoleAdmin:
		return 3
	case TenantRoleManager:
		return 2
	case TenantRoleStaff:
		return 1
	default:
		return 0
	}
}

// TenantMembership binds one account to one tenant with a tenant-scoped role.
// A given (account, tenant) pair is unique; an account may hold memberships
// in multiple tenants, each with an independent role.
type TenantMembership struct {
	ID        int64
	AccountID int64
	TenantID  int64
	Role      TenantRole
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
