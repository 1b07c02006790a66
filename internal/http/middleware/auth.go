package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/authz"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/service"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/token"
)

const accessClaimsKey = "accessClaims"

// Auth validates Authorization headers and attaches verified claims.
type Auth struct {
	AuthService *service.AuthService
}

// ValidateJWT ensures the request carries a valid bearer access token.
// An expired token is reported distinctly so clients know to refresh.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Bearer token required."})
		return
	}

	claims, err := m.AuthService.VerifyRequest(c.Request.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		var ae *service.AuthError
		if errors.As(err, &ae) {
			c.AbortWithStatusJSON(ae.Status, gin.H{"error": string(ae.Code), "error_description": ae.Description})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Invalid access token."})
		return
	}

	c.Set(accessClaimsKey, claims)
	c.Next()
}

// RequireScope gates a route on an authorization decision. Run after
// ValidateJWT.
func (m *Auth) RequireScope(scope authz.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Authentication required."})
			return
		}
		decision := m.AuthService.Authorize(claims, scope)
		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": decision.Reason, "error_description": "Operation not permitted."})
			return
		}
		c.Next()
	}
}

// GetClaims exposes the verified access token claims to handlers.
func GetClaims(c *gin.Context) (token.Claims, bool) {
	value, ok := c.Get(accessClaimsKey)
	if !ok {
		return token.Claims{}, false
	}
	claims, ok := value.(token.Claims)
	return claims, ok
}
