// Package authz decides whether a verified session may perform an
// operation. Denial is a value carried back to the transport layer, never
// a panic, so handlers can keep their 401/403 distinction.
package authz

import (
	"fmt"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/token"
)

// Scope is the access requirement for an operation. The concrete types
// below are the only implementations; Authorize pattern-matches on them.
type Scope interface {
	scope()
}

// PlatformSuperAdmin requires the SUPER_ADMIN platform role.
type PlatformSuperAdmin struct{}

// PlatformAdminOrAbove requires the ADMIN or SUPER_ADMIN platform role.
type PlatformAdminOrAbove struct{}

// TenantRole requires at least MinRole within the given tenant.
type TenantRole struct {
	TenantID int64
	MinRole  domain.TenantRole
}

func (PlatformSuperAdmin) scope()   {}
func (PlatformAdminOrAbove) scope() {}
func (TenantRole) scope()           {}

// Denial reasons surfaced alongside a false decision.
const (
	ReasonInsufficientRole   = "insufficient_role"
	ReasonMustChangePassword = "must_change_password"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func denied(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Authorize checks the claims against the required scope.
//
// A pending forced password change denies every scope; the only operation
// such a session may perform is the password change itself, which needs a
// verified token but no authorize pass. A platform SUPER_ADMIN satisfies
// any tenant-scoped check.
func Authorize(claims token.Claims, scope Scope) Decision {
	if claims.MustChangePassword {
		return denied(ReasonMustChangePassword)
	}

	switch s := scope.(type) {
	case PlatformSuperAdmin:
		if claims.PlatformRole == domain.PlatformRoleSuperAdmin {
			return allowed()
		}
		return denied(ReasonInsufficientRole)
	case PlatformAdminOrAbove:
		if claims.PlatformRole.Level() >= domain.PlatformRoleAdmin.Level() {
			return allowed()
		}
		return denied(ReasonInsufficientRole)
	case TenantRole:
		return authorizeTenant(claims, s)
	default:
		panic(fmt.Sprintf("authz: unknown scope type %T", scope))
	}
}

func authorizeTenant(claims token.Claims, scope TenantRole) Decision {
	if claims.PlatformRole == domain.PlatformRoleSuperAdmin {
		return allowed()
	}

	role, ok := tenantRoleFor(claims, scope.TenantID)
	if !ok {
		return denied(ReasonInsufficientRole)
	}
	if role.Level() >= scope.MinRole.Level() {
		return allowed()
	}
	return denied(ReasonInsufficientRole)
}

// tenantRoleFor resolves the caller's role for the requested tenant, from
// the tenant-scoped claim pair or from the membership list.
func tenantRoleFor(claims token.Claims, tenantID int64) (domain.TenantRole, bool) {
	if claims.TenantScoped() {
		if *claims.TenantID != tenantID || claims.TenantRole == "" {
			return "", false
		}
		return claims.TenantRole, true
	}
	for _, m := range claims.Memberships {
		if m.TenantID == tenantID {
			return m.Role, true
		}
	}
	return "", false
}
