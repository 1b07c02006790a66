package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/config"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/credential"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/repository"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/service"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/tenant"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/token"
)

type memoryAccountRepo struct {
	nextID   int64
	accounts map[int64]domain.Account

	// When set, the next UpdatePassword call fails as if a concurrent
	// writer swapped the hash first.
	staleNextUpdate bool

	// Runs at the top of Create, letting tests interleave a competing
	// writer between an existence check and the insert.
	beforeCreate func()
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{nextID: 1, accounts: make(map[int64]domain.Account)}
}

func (r *memoryAccountRepo) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (r *memoryAccountRepo) GetByID(_ context.Context, id int64) (domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (r *memoryAccountRepo) Create(_ context.Context, account domain.Account) (domain.Account, error) {
	if r.beforeCreate != nil {
		hook := r.beforeCreate
		r.beforeCreate = nil
		hook()
	}
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return domain.Account{}, &pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"}
		}
	}
	account.ID = r.nextID
	r.nextID++
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryAccountRepo) RecordFailedAttempt(_ context.Context, id int64, threshold int, lockedUntil time.Time) (domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	a.FailedAttempts++
	if a.FailedAttempts >= threshold {
		a.LockedUntil = &lockedUntil
	}
	r.accounts[id] = a
	return a, nil
}

func (r *memoryAccountRepo) ResetLoginState(_ context.Context, id int64, lastLogin time.Time) error {
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.LastLoginAt = &lastLogin
	r.accounts[id] = a
	return nil
}

func (r *memoryAccountRepo) ClearLockout(_ context.Context, id int64) error {
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	r.accounts[id] = a
	return nil
}

func (r *memoryAccountRepo) UpdatePassword(_ context.Context, id int64, currentHash, newHash string) error {
	if r.staleNextUpdate {
		r.staleNextUpdate = false
		return repository.ErrStaleUpdate
	}
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if a.PasswordHash != currentHash {
		return repository.ErrStaleUpdate
	}
	a.PasswordHash = newHash
	a.MustChangePassword = false
	r.accounts[id] = a
	return nil
}

func (r *memoryAccountRepo) ForcePasswordReset(_ context.Context, id int64, newHash *string) error {
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.MustChangePassword = true
	if newHash != nil {
		a.PasswordHash = *newHash
	}
	r.accounts[id] = a
	return nil
}

func (r *memoryAccountRepo) SetActive(_ context.Context, id int64, active bool) error {
	a, ok := r.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Active = active
	r.accounts[id] = a
	return nil
}

type memoryMembershipRepo struct {
	nextID      int64
	memberships map[int64]domain.TenantMembership
}

func newMemoryMembershipRepo() *memoryMembershipRepo {
	return &memoryMembershipRepo{nextID: 1, memberships: make(map[int64]domain.TenantMembership)}
}

func (r *memoryMembershipRepo) ListByAccount(_ context.Context, accountID int64) ([]domain.TenantMembership, error) {
	var out []domain.TenantMembership
	for _, m := range r.memberships {
		if m.AccountID == accountID && m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryMembershipRepo) GetByAccountAndTenant(_ context.Context, accountID, tenantID int64) (domain.TenantMembership, error) {
	for _, m := range r.memberships {
		if m.AccountID == accountID && m.TenantID == tenantID {
			return m, nil
		}
	}
	return domain.TenantMembership{}, pgx.ErrNoRows
}

func (r *memoryMembershipRepo) Create(_ context.Context, membership domain.TenantMembership) (domain.TenantMembership, error) {
	membership.ID = r.nextID
	r.nextID++
	r.memberships[membership.ID] = membership
	return membership, nil
}

func (r *memoryMembershipRepo) Deactivate(_ context.Context, accountID, tenantID int64) error {
	for id, m := range r.memberships {
		if m.AccountID == accountID && m.TenantID == tenantID {
			m.Active = false
			r.memberships[id] = m
			return nil
		}
	}
	return pgx.ErrNoRows
}

type memoryTenantRepo struct {
	tenants map[int64]domain.Tenant
}

func newMemoryTenantRepo(tenants ...domain.Tenant) *memoryTenantRepo {
	r := &memoryTenantRepo{tenants: make(map[int64]domain.Tenant)}
	for _, tn := range tenants {
		r.tenants[tn.ID] = tn
	}
	return r
}

func (r *memoryTenantRepo) GetBySlug(_ context.Context, slug string) (domain.Tenant, error) {
	for _, tn := range r.tenants {
		if tn.Slug == slug {
			return tn, nil
		}
	}
	return domain.Tenant{}, pgx.ErrNoRows
}

func (r *memoryTenantRepo) GetByID(_ context.Context, id int64) (domain.Tenant, error) {
	tn, ok := r.tenants[id]
	if !ok {
		return domain.Tenant{}, pgx.ErrNoRows
	}
	return tn, nil
}

type fixture struct {
	svc         *service.AuthService
	accounts    *memoryAccountRepo
	memberships *memoryMembershipRepo
	tenants     *memoryTenantRepo
	credentials *credential.Manager
	tokens      *token.Service
	cfg         config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Config{
		ServiceName:          "qr-menu-auth-test",
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      24 * time.Hour,
		BcryptCost:           bcrypt.MinCost,
		FailedLoginThreshold: 5,
		LockoutDuration:      15 * time.Minute,
	}

	accounts := newMemoryAccountRepo()
	memberships := newMemoryMembershipRepo()
	tenants := newMemoryTenantRepo(
		domain.Tenant{ID: 7, Name: "Bistro Uno", Slug: "bistro-uno", Status: domain.TenantStatusActive},
		domain.Tenant{ID: 8, Name: "Closed Cafe", Slug: "closed-cafe", Status: "SUSPENDED"},
	)

	credentials := credential.NewManager(cfg.BcryptCost)
	tokens := token.NewService(token.NewStaticKeyProvider("test-signing-secret-test-signing"), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	svc := service.NewAuthService(
		accounts,
		memberships,
		tenant.NewResolver(tenants),
		credentials,
		tokens,
		cfg,
		zap.NewNop(),
	)

	return &fixture{
		svc:         svc,
		accounts:    accounts,
		memberships: memberships,
		tenants:     tenants,
		credentials: credentials,
		tokens:      tokens,
		cfg:         cfg,
	}
}

func (f *fixture) seedAccount(t *testing.T, email, password string, mutate ...func(*domain.Account)) domain.Account {
	t.Helper()
	hash, err := f.credentials.Hash(password)
	require.NoError(t, err)

	account := domain.Account{
		Email:        email,
		PasswordHash: hash,
		PlatformRole: domain.PlatformRoleNone,
		Active:       true,
	}
	for _, m := range mutate {
		m(&account)
	}
	created, err := f.accounts.Create(context.Background(), account)
	require.NoError(t, err)
	return created
}

func requireAuthError(t *testing.T, err error, code service.ErrorCode) *service.AuthError {
	t.Helper()
	var ae *service.AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, code, ae.Code)
	return ae
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")
	_, err := f.memberships.Create(context.Background(), domain.TenantMembership{
		AccountID: account.ID, TenantID: 7, Role: domain.TenantRoleAdmin, Active: true,
	})
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), "Owner@Bistro.example", "Sup3r$ecret", "")
	require.NoError(t, err)
	require.Equal(t, "Bearer", result.TokenType)
	require.Equal(t, int64(3600), result.ExpiresIn)
	require.False(t, result.MustChangePassword)

	claims, err := f.tokens.Verify(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, account.ID, claims.Subject)
	require.Equal(t, "owner@bistro.example", claims.Email)
	require.Equal(t, token.TypeAccess, claims.TokenType)
	require.False(t, claims.TenantScoped())
	require.Equal(t, []token.MembershipClaim{{TenantID: 7, Role: domain.TenantRoleAdmin}}, claims.Memberships)

	refreshClaims, err := f.tokens.Verify(result.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, token.TypeRefresh, refreshClaims.TokenType)

	stored, err := f.accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Zero(t, stored.FailedAttempts)
}

func TestLoginRejectsUnknownEmailAndBadPassword(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")

	_, err := f.svc.Login(context.Background(), "nobody@bistro.example", "Sup3r$ecret", "")
	unknown := requireAuthError(t, err, service.CodeInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "owner@bistro.example", "wrong-password", "")
	badPassword := requireAuthError(t, err, service.CodeInvalidCredentials)

	// The two failures must be indistinguishable to the caller.
	require.Equal(t, unknown.Description, badPassword.Description)
	require.Equal(t, unknown.Status, badPassword.Status)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "gone@bistro.example", "Sup3r$ecret", func(a *domain.Account) {
		a.Active = false
	})

	_, err := f.svc.Login(context.Background(), "gone@bistro.example", "Sup3r$ecret", "")
	requireAuthError(t, err, service.CodeAccountInactive)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")

	for i := 0; i < f.cfg.FailedLoginThreshold; i++ {
		_, err := f.svc.Login(context.Background(), "owner@bistro.example", "wrong-password", "")
		requireAuthError(t, err, service.CodeInvalidCredentials)
	}

	stored, err := f.accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, f.cfg.FailedLoginThreshold, stored.FailedAttempts)
	require.NotNil(t, stored.LockedUntil)

	// Even the correct password is refused while the window is active, and
	// the response carries the lockout deadline.
	_, err = f.svc.Login(context.Background(), "owner@bistro.example", "Sup3r$ecret", "")
	locked := requireAuthError(t, err, service.CodeAccountLocked)
	require.NotNil(t, locked.LockedUntil)
	require.Equal(t, *stored.LockedUntil, *locked.LockedUntil)
}

func TestLockoutBelowThresholdDoesNotLock(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")

	for i := 0; i < f.cfg.FailedLoginThreshold-1; i++ {
		_, err := f.svc.Login(context.Background(), "owner@bistro.example", "wrong-password", "")
		requireAuthError(t, err, service.CodeInvalidCredentials)
	}

	stored, err := f.accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Nil(t, stored.LockedUntil)

	_, err = f.svc.Login(context.Background(), "owner@bistro.example", "Sup3r$ecret", "")
	require.NoError(t, err)
}

func TestLockoutWindowElapses(t *testing.T) {
	f := newFixture(t)
	expired := time.Now().Add(-time.Minute)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret", func(a *domain.Account) {
		a.FailedAttempts = 5
		a.LockedUntil = &expired
	})

	result, err := f.svc.Login(context.Background(), "owner@bistro.example", "Sup3r$ecret", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)

	stored, err := f.accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestLockoutCounterRestartsAfterWindow(t *testing.T) {
	f := newFixture(t)
	expired := time.Now().Add(-time.Minute)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret", func(a *domain.Account) {
		a.FailedAttempts = 5
		a.LockedUntil = &expired
	})

	// First failure after the window counts as one, not six.
	_, err := f.svc.Login(context.Background(), "owner@bistro.example", "wrong-password", "")
	requireAuthError(t, err, service.CodeInvalidCredentials)

	stored, err := f.accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.FailedAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestTenantScopedLogin(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "manager@bistro.example", "Sup3r$ecret")
	_, err := f.memberships.Create(context.Background(), domain.TenantMembership{
		AccountID: account.ID, TenantID: 7, Role: domain.TenantRoleManager, Active: true,
	})
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), "manager@bistro.example", "Sup3r$ecret", "Bistro-Uno")
	require.NoError(t, err)

	claims, err := f.tokens.Verify(result.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.TenantScoped())
	require.Equal(t, int64(7), *claims.TenantID)
	require.Equal(t, domain.TenantRoleManager, claims.TenantRole)
	require.Empty(t, claims.Memberships)
}

func TestTenantScopedLoginRequiresMembership(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "outsider@bistro.example", "Sup3r$ecret")

	_, err := f.svc.Login(context.Background(), "outsider@bistro.example", "Sup3r$ecret", "bistro-uno")
	requireAuthError(t, err, service.CodeInvalidCredentials)
}

func TestTenantScopedLoginRejectsUnknownOrInactiveTenant(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "manager@bistro.example", "Sup3r$ecret")
	_, err := f.memberships.Create(context.Background(), domain.TenantMembership{
		AccountID: account.ID, TenantID: 8, Role: domain.TenantRoleManager, Active: true,
	})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), "manager@bistro.example", "Sup3r$ecret", "no-such-tenant")
	requireAuthError(t, err, service.CodeInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "manager@bistro.example", "Sup3r$ecret", "closed-cafe")
	requireAuthError(t, err, service.CodeInvalidCredentials)
}

func TestSuperAdminTenantLoginWithoutMembership(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "root@platform.example", "Sup3r$ecret", func(a *domain.Account) {
		a.PlatformRole = domain.PlatformRoleSuperAdmin
	})

	result, err := f.svc.Login(context.Background(), "root@platform.example", "Sup3r$ecret", "bistro-uno")
	require.NoError(t, err)

	claims, err := f.tokens.Verify(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(7), *claims.TenantID)
	require.Equal(t, domain.TenantRoleAdmin, claims.TenantRole)
}

func TestVerifyRequest(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")

	result, err := f.svc.Login(context.Background(), "owner@bistro.example", "Sup3r$ecret", "")
	require.NoError(t, err)

	claims, err := f.svc.VerifyRequest(context.Background(), result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "owner@bistro.example", claims.Email)

	// A refresh token is not an access token.
	_, err = f.svc.VerifyRequest(context.Background(), result.RefreshToken)
	requireAuthError(t, err, service.CodeTokenInvalid)

	_, err = f.svc.VerifyRequest(context.Background(), "garbage")
	requireAuthError(t, err, service.CodeTokenInvalid)
}

func TestVerifyRequestDistinguishesExpiry(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")

	stale := token.NewService(token.NewStaticKeyProvider("test-signing-secret-test-signing"), -time.Minute, -time.Minute)
	expiredToken, err := stale.IssueAccessToken(account, nil, nil)
	require.NoError(t, err)

	_, err = f.svc.VerifyRequest(context.Background(), expiredToken)
	requireAuthError(t, err, service.CodeTokenExpired)
}

func TestRefreshReDerivesClaimsFromStore(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")
	membership, err := f.memberships.Create(context.Background(), domain.TenantMembership{
		AccountID: account.ID, TenantID: 7, Role: domain.TenantRoleStaff, Active: true,
	})
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), "owner@bistro.example", "Sup3r$ecret", "")
	require.NoError(t, err)

	// Promote after login; the next refresh must observe the new role.
	membership.Role = domain.TenantRoleAdmin
	f.memberships.memberships[membership.ID] = membership

	refreshed, err := f.svc.RefreshSession(context.Background(), result.RefreshToken)
	require.NoError(t, err)

	claims, err := f.tokens.Verify(refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, []token.MembershipClaim{{TenantID: 7, Role: domain.TenantRoleAdmin}}, claims.Memberships)
}

func TestRefreshRejectsAccessTokenAndDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")

	result, err := f.svc.Login(context.Background(), "owner@bistro.example", "Sup3r$ecret", "")
	require.NoError(t, err)

	_, err = f.svc.RefreshSession(context.Background(), result.AccessToken)
	requireAuthError(t, err, service.CodeTokenInvalid)

	require.NoError(t, f.accounts.SetActive(context.Background(), account.ID, false))
	_, err = f.svc.RefreshSession(context.Background(), result.RefreshToken)
	requireAuthError(t, err, service.CodeAccountInactive)
}

func TestRefreshTenantSessionAfterMembershipRevoked(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "manager@bistro.example", "Sup3r$ecret")
	_, err := f.memberships.Create(context.Background(), domain.TenantMembership{
		AccountID: account.ID, TenantID: 7, Role: domain.TenantRoleManager, Active: true,
	})
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), "manager@bistro.example", "Sup3r$ecret", "bistro-uno")
	require.NoError(t, err)

	require.NoError(t, f.memberships.Deactivate(context.Background(), account.ID, 7))

	_, err = f.svc.RefreshSession(context.Background(), result.RefreshToken)
	requireAuthError(t, err, service.CodeInsufficientRole)
}

func TestRefreshTenantSessionAfterTenantSuspended(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "manager@bistro.example", "Sup3r$ecret")
	_, err := f.memberships.Create(context.Background(), domain.TenantMembership{
		AccountID: account.ID, TenantID: 7, Role: domain.TenantRoleManager, Active: true,
	})
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), "manager@bistro.example", "Sup3r$ecret", "bistro-uno")
	require.NoError(t, err)

	suspended := f.tenants.tenants[7]
	suspended.Status = "SUSPENDED"
	f.tenants.tenants[7] = suspended

	_, err = f.svc.RefreshSession(context.Background(), result.RefreshToken)
	requireAuthError(t, err, service.CodeInsufficientRole)
}

func TestChangePasswordLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	provisioned, err := f.svc.ProvisionAccount(ctx, service.ProvisionInput{Email: "new@bistro.example"})
	require.NoError(t, err)
	require.NotEmpty(t, provisioned.TemporaryPassword)
	require.True(t, provisioned.Account.MustChangePassword)

	// Temporary credentials authenticate, but the session is restricted.
	result, err := f.svc.Login(ctx, "new@bistro.example", provisioned.TemporaryPassword, "")
	require.NoError(t, err)
	require.True(t, result.MustChangePassword)

	err = f.svc.ChangePassword(ctx, provisioned.Account.ID, "not-the-temp-password", "N3w-Sup3r$ecret")
	requireAuthError(t, err, service.CodeInvalidCurrentPassword)

	err = f.svc.ChangePassword(ctx, provisioned.Account.ID, provisioned.TemporaryPassword, "weak")
	weak := requireAuthError(t, err, service.CodeWeakPassword)
	require.NotEmpty(t, weak.Violations)

	err = f.svc.ChangePassword(ctx, provisioned.Account.ID, provisioned.TemporaryPassword, provisioned.TemporaryPassword)
	requireAuthError(t, err, service.CodePasswordUnchanged)

	require.NoError(t, f.svc.ChangePassword(ctx, provisioned.Account.ID, provisioned.TemporaryPassword, "N3w-Sup3r$ecret"))

	// Old password is dead, new one works, restriction is lifted.
	_, err = f.svc.Login(ctx, "new@bistro.example", provisioned.TemporaryPassword, "")
	requireAuthError(t, err, service.CodeInvalidCredentials)

	result, err = f.svc.Login(ctx, "new@bistro.example", "N3w-Sup3r$ecret", "")
	require.NoError(t, err)
	require.False(t, result.MustChangePassword)
}

func TestChangePasswordConflict(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret")

	f.accounts.staleNextUpdate = true
	err := f.svc.ChangePassword(context.Background(), account.ID, "Sup3r$ecret", "N3w-Sup3r$ecret")
	requireAuthError(t, err, service.CodeConcurrentUpdate)
}

func TestProvisionAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenantID := int64(7)

	result, err := f.svc.ProvisionAccount(ctx, service.ProvisionInput{
		Email:      "Staff@Bistro.example",
		TenantID:   &tenantID,
		TenantRole: domain.TenantRoleStaff,
	})
	require.NoError(t, err)
	require.Equal(t, "staff@bistro.example", result.Account.Email)
	require.Equal(t, domain.PlatformRoleNone, result.Account.PlatformRole)
	require.Empty(t, f.credentials.ValidateStrength(result.TemporaryPassword))

	membership, err := f.memberships.GetByAccountAndTenant(ctx, result.Account.ID, tenantID)
	require.NoError(t, err)
	require.Equal(t, domain.TenantRoleStaff, membership.Role)
	require.True(t, membership.Active)

	_, err = f.svc.ProvisionAccount(ctx, service.ProvisionInput{Email: "staff@bistro.example"})
	requireAuthError(t, err, service.CodeEmailTaken)

	_, err = f.svc.ProvisionAccount(ctx, service.ProvisionInput{Email: "other@bistro.example", TenantID: &tenantID})
	requireAuthError(t, err, service.CodeInvalidRequest)
}

func TestProvisionAccountLosesInsertRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A competing provision lands between the existence check and the
	// insert; the unique constraint must surface as email_taken, not a
	// wrapped storage error.
	f.accounts.beforeCreate = func() {
		f.seedAccount(t, "racer@bistro.example", "Sup3r$ecret")
	}

	_, err := f.svc.ProvisionAccount(ctx, service.ProvisionInput{Email: "racer@bistro.example"})
	requireAuthError(t, err, service.CodeEmailTaken)
}

func TestProvisionAlreadyVerifiedSkipsForcedChange(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ProvisionAccount(context.Background(), service.ProvisionInput{
		Email:           "trusted@bistro.example",
		PlatformRole:    domain.PlatformRoleAdmin,
		AlreadyVerified: true,
	})
	require.NoError(t, err)
	require.False(t, result.Account.MustChangePassword)
	require.Equal(t, domain.PlatformRoleAdmin, result.Account.PlatformRole)
}

func TestForcePasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret", func(a *domain.Account) {
		a.MustChangePassword = false
	})

	temporary, err := f.svc.ForcePasswordReset(ctx, account.ID, true)
	require.NoError(t, err)
	require.Empty(t, f.credentials.ValidateStrength(temporary))

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, stored.MustChangePassword)
	require.False(t, f.credentials.Verify("Sup3r$ecret", stored.PasswordHash))
	require.True(t, f.credentials.Verify(temporary, stored.PasswordHash))
}

func TestForcePasswordResetWithoutTemporary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.seedAccount(t, "owner@bistro.example", "Sup3r$ecret", func(a *domain.Account) {
		a.MustChangePassword = false
	})

	temporary, err := f.svc.ForcePasswordReset(ctx, account.ID, false)
	require.NoError(t, err)
	require.Empty(t, temporary)

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, stored.MustChangePassword)
	require.True(t, f.credentials.Verify("Sup3r$ecret", stored.PasswordHash))
}

func TestForcePasswordResetUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ForcePasswordReset(context.Background(), 9999, true)
	requireAuthError(t, err, service.CodeInvalidRequest)
}
