package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
)

// Token types baked into the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Typed verification failures. ErrExpired means the token was well formed
// and correctly signed but past its expiry, so a client may attempt a
// refresh; ErrInvalid covers malformed tokens and signature mismatches.
var (
	ErrInvalid = errors.New("token invalid")
	ErrExpired = errors.New("token expired")
)

// MembershipClaim is one tenant membership embedded in an access token.
type MembershipClaim struct {
	TenantID int64             `json:"tenantId"`
	Role     domain.TenantRole `json:"role"`
}

// TenantScope restricts a session to a single tenant, as used by
// tenant-portal logins.
type TenantScope struct {
	TenantID int64
	Role     domain.TenantRole
}

// Claims is the verified content of a session token. Tenant scoping is one
// of two shapes: TenantID and TenantRole set for a tenant-portal session,
// or Memberships carrying the full set for a platform session. Refresh
// tokens carry only subject, type and optional tenant scope.
type Claims struct {
	Subject            int64
	Email              string
	PlatformRole       domain.PlatformRole
	TenantID           *int64
	TenantRole         domain.TenantRole
	Memberships        []MembershipClaim
	MustChangePassword bool
	TokenType          string
	IssuedAt           time.Time
	Expiry             time.Time
}

// TenantScoped reports whether the session is restricted to a single tenant.
func (c Claims) TenantScoped() bool {
	return c.TenantID != nil
}

type customClaims struct {
	Email              string            `json:"email,omitempty"`
	Role               string            `json:"role,omitempty"`
	TenantID           *int64            `json:"tenantId,omitempty"`
	TenantRole         string            `json:"tenantRole,omitempty"`
	TenantMemberships  []MembershipClaim `json:"tenantMemberships,omitempty"`
	MustChangePassword bool              `json:"mustChangePassword,omitempty"`
	TokenType          string            `json:"type"`
}

// Service signs and verifies session tokens.
type Service struct {
	keys       KeyProvider
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService creates a token service with the given key provider and
// lifetimes.
func NewService(keys KeyProvider, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		keys:       keys,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssueAccessToken signs a token carrying identity, platform role and
// tenant scope. When scope is non-nil the session is tenant-scoped and
// memberships are omitted; otherwise the full membership set is embedded.
func (s *Service) IssueAccessToken(account domain.Account, scope *TenantScope, memberships []MembershipClaim) (string, error) {
	custom := customClaims{
		Email:              account.Email,
		Role:               string(account.PlatformRole),
		MustChangePassword: account.MustChangePassword,
		TokenType:          TypeAccess,
	}
	if scope != nil {
		custom.TenantID = &scope.TenantID
		custom.TenantRole = string(scope.Role)
	} else {
		custom.TenantMemberships = memberships
	}
	return s.sign(account.ID, custom, s.accessTTL)
}

// IssueRefreshToken signs a longer-lived token carrying only subject, type
// and optional tenant scope. Role and email are deliberately absent so a
// leaked refresh token reveals as little as possible; the refresh path
// re-derives them from the store.
func (s *Service) IssueRefreshToken(account domain.Account, scope *TenantScope) (string, error) {
	custom := customClaims{TokenType: TypeRefresh}
	if scope != nil {
		custom.TenantID = &scope.TenantID
	}
	return s.sign(account.ID, custom, s.refreshTTL)
}

func (s *Service) sign(accountID int64, custom customClaims, ttl time.Duration) (string, error) {
	key := s.keys.SigningKey()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key.Secret},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}

	now := s.now()
	std := jwt.Claims{
		Subject:  strconv.FormatInt(accountID, 10),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}

	raw, err := jwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return raw, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// Failures are ErrExpired for well-signed tokens past expiry and ErrInvalid
// for everything else.
func (s *Service) Verify(raw string) (Claims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, ErrInvalid
	}

	var (
		std    jwt.Claims
		custom customClaims
		valid  bool
	)
	for _, key := range s.keys.VerificationKeys() {
		if err := parsed.Claims(key.Secret, &std, &custom); err == nil {
			valid = true
			break
		}
	}
	if !valid {
		return Claims{}, ErrInvalid
	}

	subject, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return Claims{}, ErrInvalid
	}

	// Zero leeway keeps the expiry boundary exact.
	if err := std.ValidateWithLeeway(jwt.Expected{Time: s.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}

	claims := Claims{
		Subject:            subject,
		Email:              custom.Email,
		PlatformRole:       domain.PlatformRole(custom.Role),
		TenantID:           custom.TenantID,
		TenantRole:         domain.TenantRole(custom.TenantRole),
		Memberships:        custom.TenantMemberships,
		MustChangePassword: custom.MustChangePassword,
		TokenType:          custom.TokenType,
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.Expiry = std.Expiry.Time()
	}
	return claims, nil
}
