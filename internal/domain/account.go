package domain

import "time"

// PlatformRole is the account-wide privilege level, independent of any tenant.
type PlatformRole string

const (
	PlatformRoleSuperAdmin PlatformRole = "SUPER_ADMIN"
	PlatformRoleAdmin      PlatformRole = "ADMIN"
	PlatformRoleNone       PlatformRole = "USER"
)

// Level orders platform roles so privilege checks can compare them.
// SUPER_ADMIN > ADMIN > USER.
func (r PlatformRole) Level() int {
	switch r {
	case PlatformRoleSuperAdmin:
		return 2
	case PlatformRoleAdmin:
		return 1
	default:
		return 0
	}
}

// Account represents a platform identity that can authenticate.
type Account struct {
	ID                 int64
	Email              string
	PasswordHash       string
	PlatformRole       PlatformRole
	Active             bool
	MustChangePassword bool
	FailedAttempts     int
	LockedUntil        *time.Time
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LockedAt reports whether the account is inside an active lockout window.
func (a Account) LockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
