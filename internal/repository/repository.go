package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
)

// ErrStaleUpdate signals a compare-and-set that matched no row because a
// concurrent writer got there first. Callers decide whether to retry or
// surface a conflict.
var ErrStaleUpdate = errors.New("stale update")

// AccountRepository persists platform accounts. Login-attempt bookkeeping
// is expressed as atomic read-modify-write operations so concurrent
// failures against the same account never under-count.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByID(ctx context.Context, id int64) (domain.Account, error)
	Create(ctx context.Context, account domain.Account) (domain.Account, error)

	// RecordFailedAttempt atomically increments the failure counter and,
	// when the counter reaches threshold, arms the lockout window ending
	// at lockedUntil. It returns the post-update account state.
	RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockedUntil time.Time) (domain.Account, error)

	// ResetLoginState zeroes the failure counter, clears any lockout and
	// stamps the last successful login.
	ResetLoginState(ctx context.Context, id int64, lastLogin time.Time) error

	// ClearLockout zeroes the counter and lockout after the window has
	// elapsed, without touching last-login.
	ClearLockout(ctx context.Context, id int64) error

	// UpdatePassword swaps the hash and clears the must-change flag, but
	// only if currentHash still matches; otherwise ErrStaleUpdate.
	UpdatePassword(ctx context.Context, id int64, currentHash, newHash string) error

	// ForcePasswordReset re-arms the must-change flag, optionally
	// replacing the hash with a fresh temporary one.
	ForcePasswordReset(ctx context.Context, id int64, newHash *string) error

	SetActive(ctx context.Context, id int64, active bool) error
}

// MembershipRepository persists account-tenant bindings.
type MembershipRepository interface {
	ListByAccount(ctx context.Context, accountID int64) ([]domain.TenantMembership, error)
	GetByAccountAndTenant(ctx context.Context, accountID, tenantID int64) (domain.TenantMembership, error)
	Create(ctx context.Context, membership domain.TenantMembership) (domain.TenantMembership, error)
	Deactivate(ctx context.Context, accountID, tenantID int64) error
}

// TenantRepository reads tenant records owned by the CRUD layer.
type TenantRepository interface {
	GetBySlug(ctx context.Context, slug string) (domain.Tenant, error)
	GetByID(ctx context.Context, id int64) (domain.Tenant, error)
}
