package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/authz"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/config"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/credential"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/repository"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/tenant"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/token"
)

// AuthService orchestrates credential verification, lockout bookkeeping,
// token issuance and the forced-password-change lifecycle.
type AuthService struct {
	accounts    repository.AccountRepository
	memberships repository.MembershipRepository
	tenants     *tenant.Resolver
	credentials *credential.Manager
	tokens      *token.Service
	cfg         config.Config
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService wires the auth core.
func NewAuthService(
	accounts repository.AccountRepository,
	memberships repository.MembershipRepository,
	tenants *tenant.Resolver,
	credentials *credential.Manager,
	tokens *token.Service,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		accounts:    accounts,
		memberships: memberships,
		tenants:     tenants,
		credentials: credentials,
		tokens:      tokens,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// LoginResult is returned on successful authentication. MustChangePassword
// marks a restricted session: the tokens are valid but every authorized
// operation other than the password change is denied until the change
// completes.
type LoginResult struct {
	AccessToken        string `json:"access_token"`
	RefreshToken       string `json:"refresh_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int64  `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// RefreshResult carries the replacement access token.
type RefreshResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login verifies credentials, applies lockout bookkeeping and issues a
// token pair. A non-empty tenantSlug produces a tenant-scoped session
// (tenant-portal login); otherwise the session carries the full membership
// set.
func (s *AuthService) Login(ctx context.Context, email, password, tenantSlug string) (LoginResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	normalized := normalizeIdentifier(email)
	if normalized == "" || password == "" {
		return LoginResult{}, errInvalidCredentials()
	}

	account, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.audit("login.unknown_email", "email", normalized)
			return LoginResult{}, errInvalidCredentials()
		}
		span.RecordError(err)
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}

	if !account.Active {
		s.audit("login.inactive", "account_id", account.ID)
		return LoginResult{}, errAccountInactive()
	}

	now := s.now()
	if account.LockedAt(now) {
		s.audit("login.locked", "account_id", account.ID, "locked_until", account.LockedUntil)
		return LoginResult{}, errAccountLocked(*account.LockedUntil)
	}
	if account.LockedUntil != nil {
		// Window elapsed; counter resets before the attempt is evaluated.
		if err := s.accounts.ClearLockout(ctx, account.ID); err != nil {
			span.RecordError(err)
			return LoginResult{}, fmt.Errorf("clear lockout: %w", err)
		}
		account.FailedAttempts = 0
		account.LockedUntil = nil
	}

	if !s.credentials.Verify(password, account.PasswordHash) {
		updated, err := s.accounts.RecordFailedAttempt(ctx, account.ID, s.cfg.FailedLoginThreshold, now.Add(s.cfg.LockoutDuration))
		if err != nil {
			span.RecordError(err)
			return LoginResult{}, fmt.Errorf("record failed attempt: %w", err)
		}
		s.audit("login.bad_password", "account_id", account.ID, "failed_attempts", updated.FailedAttempts)
		return LoginResult{}, errInvalidCredentials()
	}

	scope, memberships, err := s.resolveScope(ctx, account, tenantSlug)
	if err != nil {
		span.RecordError(err)
		return LoginResult{}, err
	}

	if err := s.accounts.ResetLoginState(ctx, account.ID, now); err != nil {
		span.RecordError(err)
		return LoginResult{}, fmt.Errorf("reset login state: %w", err)
	}

	accessToken, err := s.tokens.IssueAccessToken(account, scope, memberships)
	if err != nil {
		span.RecordError(err)
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(account, scope)
	if err != nil {
		span.RecordError(err)
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	s.audit("login.success", "account_id", account.ID, "tenant_scoped", scope != nil, "must_change_password", account.MustChangePassword)
	return LoginResult{
		AccessToken:        accessToken,
		RefreshToken:       refreshToken,
		TokenType:          "Bearer",
		ExpiresIn:          int64(s.cfg.AccessTokenTTL.Seconds()),
		MustChangePassword: account.MustChangePassword,
	}, nil
}

// VerifyRequest validates a bearer access token and returns its claims.
func (s *AuthService) VerifyRequest(ctx context.Context, rawToken string) (token.Claims, error) {
	_, span := s.startSpan(ctx, "AuthService.VerifyRequest")
	defer span.End()

	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return token.Claims{}, mapTokenError(err)
	}
	if claims.TokenType != token.TypeAccess {
		return token.Claims{}, errTokenInvalid()
	}
	return claims, nil
}

// Authorize checks the verified claims against the required scope.
func (s *AuthService) Authorize(claims token.Claims, scope authz.Scope) authz.Decision {
	return authz.Authorize(claims, scope)
}

// RefreshSession mints a replacement access token from a valid refresh
// token. Role, email and membership claims are re-derived from the current
// account state, never copied from the presented token, so a role
// downgrade or deactivation takes effect at the next refresh.
func (s *AuthService) RefreshSession(ctx context.Context, rawToken string) (RefreshResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.RefreshSession")
	defer span.End()

	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return RefreshResult{}, mapTokenError(err)
	}
	if claims.TokenType != token.TypeRefresh {
		return RefreshResult{}, errTokenInvalid()
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshResult{}, errTokenInvalid()
		}
		span.RecordError(err)
		return RefreshResult{}, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		s.audit("refresh.inactive", "account_id", account.ID)
		return RefreshResult{}, errAccountInactive()
	}

	var (
		scope       *token.TenantScope
		memberships []token.MembershipClaim
	)
	if claims.TenantID != nil {
		// A tenant suspended after login must stop minting scoped tokens.
		if _, err := s.tenants.ResolveID(ctx, *claims.TenantID); err != nil {
			s.audit("refresh.tenant_unavailable", "account_id", account.ID, "tenant_id", *claims.TenantID)
			return RefreshResult{}, errInsufficientRole()
		}

		scope, err = s.tenantScopeFor(ctx, account, *claims.TenantID)
		if err != nil {
			// A membership revoked since login reads as a privilege
			// failure here, not a credential one.
			var ae *AuthError
			if errors.As(err, &ae) && ae.Code == CodeInvalidCredentials {
				s.audit("refresh.membership_revoked", "account_id", account.ID, "tenant_id", *claims.TenantID)
				return RefreshResult{}, errInsufficientRole()
			}
			span.RecordError(err)
			return RefreshResult{}, err
		}
	} else {
		memberships, err = s.membershipClaims(ctx, account.ID)
		if err != nil {
			span.RecordError(err)
			return RefreshResult{}, err
		}
	}

	accessToken, err := s.tokens.IssueAccessToken(account, scope, memberships)
	if err != nil {
		span.RecordError(err)
		return RefreshResult{}, fmt.Errorf("issue access token: %w", err)
	}

	s.audit("refresh.success", "account_id", account.ID)
	return RefreshResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// ChangePassword verifies the current password, validates the replacement
// and swaps the hash atomically, clearing the must-change flag. A
// concurrent change surfaces as a conflict rather than a silent overwrite.
func (s *AuthService) ChangePassword(ctx context.Context, accountID int64, currentPassword, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ChangePassword")
	defer span.End()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errTokenInvalid()
		}
		span.RecordError(err)
		return fmt.Errorf("load account: %w", err)
	}

	if !s.credentials.Verify(currentPassword, account.PasswordHash) {
		s.audit("password_change.bad_current", "account_id", account.ID)
		return errInvalidCurrentPassword()
	}
	if violations := s.credentials.ValidateStrength(newPassword); len(violations) > 0 {
		return errWeakPassword(violations)
	}
	if newPassword == currentPassword {
		return errPasswordUnchanged()
	}

	newHash, err := s.credentials.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, account.PasswordHash, newHash); err != nil {
		if errors.Is(err, repository.ErrStaleUpdate) {
			s.audit("password_change.conflict", "account_id", account.ID)
			return errConcurrentUpdate()
		}
		span.RecordError(err)
		return fmt.Errorf("update password: %w", err)
	}

	s.audit("password_change.success", "account_id", account.ID)
	return nil
}

// ProvisionInput describes an admin-created account.
type ProvisionInput struct {
	Email           string
	PlatformRole    domain.PlatformRole
	TenantID        *int64
	TenantRole      domain.TenantRole
	AlreadyVerified bool
}

// ProvisionResult returns the created account and its temporary password,
// shown exactly once to the provisioning administrator.
type ProvisionResult struct {
	Account           domain.Account
	TemporaryPassword string
}

// ProvisionAccount creates an account with a generated temporary password
// and, when a tenant is given, an initial membership. Unless explicitly
// created as already verified, the account must change its password on
// first login.
func (s *AuthService) ProvisionAccount(ctx context.Context, in ProvisionInput) (ProvisionResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ProvisionAccount")
	defer span.End()

	normalized := normalizeIdentifier(in.Email)
	if normalized == "" {
		return ProvisionResult{}, newAuthError(CodeInvalidRequest, "Email is required.", http.StatusBadRequest)
	}
	if in.TenantID != nil && in.TenantRole.Level() == 0 {
		return ProvisionResult{}, newAuthError(CodeInvalidRequest, "Tenant role is required for tenant users.", http.StatusBadRequest)
	}

	if _, err := s.accounts.GetByEmail(ctx, normalized); err == nil {
		return ProvisionResult{}, errEmailTaken()
	} else if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		return ProvisionResult{}, fmt.Errorf("check existing account: %w", err)
	}

	temporary, err := s.credentials.GenerateTemporary()
	if err != nil {
		span.RecordError(err)
		return ProvisionResult{}, fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := s.credentials.Hash(temporary)
	if err != nil {
		span.RecordError(err)
		return ProvisionResult{}, fmt.Errorf("hash password: %w", err)
	}

	platformRole := in.PlatformRole
	if platformRole == "" {
		platformRole = domain.PlatformRoleNone
	}

	created, err := s.accounts.Create(ctx, domain.Account{
		Email:              normalized,
		PasswordHash:       hash,
		PlatformRole:       platformRole,
		Active:             true,
		MustChangePassword: !in.AlreadyVerified,
	})
	if err != nil {
		// A concurrent provision can slip past the existence check above;
		// the unique constraint is the authoritative arbiter.
		if isUniqueViolation(err) {
			return ProvisionResult{}, errEmailTaken()
		}
		span.RecordError(err)
		return ProvisionResult{}, fmt.Errorf("create account: %w", err)
	}

	if in.TenantID != nil {
		if _, err := s.memberships.Create(ctx, domain.TenantMembership{
			AccountID: created.ID,
			TenantID:  *in.TenantID,
			Role:      in.TenantRole,
			Active:    true,
		}); err != nil {
			span.RecordError(err)
			return ProvisionResult{}, fmt.Errorf("create membership: %w", err)
		}
	}

	s.audit("provision.success", "account_id", created.ID, "platform_role", string(platformRole))
	return ProvisionResult{Account: created, TemporaryPassword: temporary}, nil
}

// ForcePasswordReset re-arms the must-change flag and, when requested,
// replaces the password with a fresh temporary one. The returned string is
// empty unless a temporary password was issued.
func (s *AuthService) ForcePasswordReset(ctx context.Context, accountID int64, issueTemporary bool) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ForcePasswordReset")
	defer span.End()

	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", newAuthError(CodeInvalidRequest, "Unknown account.", http.StatusNotFound)
		}
		span.RecordError(err)
		return "", fmt.Errorf("load account: %w", err)
	}

	var (
		temporary string
		newHash   *string
	)
	if issueTemporary {
		generated, err := s.credentials.GenerateTemporary()
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("generate temporary password: %w", err)
		}
		hash, err := s.credentials.Hash(generated)
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("hash password: %w", err)
		}
		temporary = generated
		newHash = &hash
	}

	if err := s.accounts.ForcePasswordReset(ctx, accountID, newHash); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("force password reset: %w", err)
	}

	s.audit("password_reset.forced", "account_id", accountID, "temporary_issued", issueTemporary)
	return temporary, nil
}

func (s *AuthService) resolveScope(ctx context.Context, account domain.Account, tenantSlug string) (*token.TenantScope, []token.MembershipClaim, error) {
	if strings.TrimSpace(tenantSlug) == "" {
		memberships, err := s.membershipClaims(ctx, account.ID)
		if err != nil {
			return nil, nil, err
		}
		return nil, memberships, nil
	}

	tenantRow, err := s.tenants.ResolveSlug(ctx, tenantSlug)
	if err != nil {
		// Unknown tenant reads the same as bad credentials to the caller.
		s.audit("login.unknown_tenant", "account_id", account.ID, "tenant_slug", tenantSlug)
		return nil, nil, errInvalidCredentials()
	}

	scope, err := s.tenantScopeFor(ctx, account, tenantRow.ID)
	if err != nil {
		return nil, nil, err
	}
	return scope, nil, nil
}

// tenantScopeFor derives the tenant-scoped session claims from the current
// membership state. A platform SUPER_ADMIN without a membership still gets
// a tenant-admin scope (super-admin override).
func (s *AuthService) tenantScopeFor(ctx context.Context, account domain.Account, tenantID int64) (*token.TenantScope, error) {
	membership, err := s.memberships.GetByAccountAndTenant(ctx, account.ID, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if account.PlatformRole == domain.PlatformRoleSuperAdmin {
				return &token.TenantScope{TenantID: tenantID, Role: domain.TenantRoleAdmin}, nil
			}
			s.audit("login.no_membership", "account_id", account.ID, "tenant_id", tenantID)
			return nil, errInvalidCredentials()
		}
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if !membership.Active {
		if account.PlatformRole == domain.PlatformRoleSuperAdmin {
			return &token.TenantScope{TenantID: tenantID, Role: domain.TenantRoleAdmin}, nil
		}
		s.audit("login.membership_revoked", "account_id", account.ID, "tenant_id", tenantID)
		return nil, errInvalidCredentials()
	}
	return &token.TenantScope{TenantID: tenantID, Role: membership.Role}, nil
}

func (s *AuthService) membershipClaims(ctx context.Context, accountID int64) ([]token.MembershipClaim, error) {
	memberships, err := s.memberships.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	claims := make([]token.MembershipClaim, 0, len(memberships))
	for _, m := range memberships {
		claims = append(claims, token.MembershipClaim{TenantID: m.TenantID, Role: m.Role})
	}
	return claims, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(s.cfg.ServiceName).Start(ctx, name)
}

func (s *AuthService) audit(event string, kv ...any) {
	s.log().Sugar().Infow("audit: "+event, kv...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapTokenError(err error) *AuthError {
	if errors.Is(err, token.ErrExpired) {
		return errTokenExpired()
	}
	return errTokenInvalid()
}

func normalizeIdentifier(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
