package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/domain"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/http/middleware"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/service"
)

// AuthHandler exposes the auth core over HTTP.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// Login authenticates email/password credentials. A tenant slug restricts
// the session to that tenant (tenant-portal login).
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email      string `json:"email" binding:"required"`
		Password   string `json:"password" binding:"required"`
		TenantSlug string `json:"tenant_slug"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email and password are required."})
		return
	}

	result, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password, req.TenantSlug)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "refresh_token is required."})
		return
	}

	result, err := h.Auth.RefreshSession(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ChangePassword completes the password-change flow for the authenticated
// account. This is the only operation a must-change session may perform.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Authentication required."})
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "current_password and new_password are required."})
		return
	}

	if err := h.Auth.ChangePassword(c.Request.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		h.respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
}

// Me returns the verified session claims.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Authentication required."})
		return
	}

	resp := gin.H{
		"account_id":           claims.Subject,
		"email":                claims.Email,
		"platform_role":        claims.PlatformRole,
		"must_change_password": claims.MustChangePassword,
	}
	if claims.TenantScoped() {
		resp["tenant_id"] = *claims.TenantID
		resp["tenant_role"] = claims.TenantRole
	} else {
		resp["tenant_memberships"] = claims.Memberships
	}
	c.JSON(http.StatusOK, resp)
}

// ProvisionAccount creates an account with a one-time temporary password.
func (h *AuthHandler) ProvisionAccount(c *gin.Context) {
	var req struct {
		Email           string `json:"email" binding:"required"`
		PlatformRole    string `json:"platform_role"`
		TenantID        *int64 `json:"tenant_id"`
		TenantRole      string `json:"tenant_role"`
		AlreadyVerified bool   `json:"already_verified"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email is required."})
		return
	}

	result, err := h.Auth.ProvisionAccount(c.Request.Context(), service.ProvisionInput{
		Email:           req.Email,
		PlatformRole:    domain.PlatformRole(req.PlatformRole),
		TenantID:        req.TenantID,
		TenantRole:      domain.TenantRole(req.TenantRole),
		AlreadyVerified: req.AlreadyVerified,
	})
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account_id":           result.Account.ID,
		"email":                result.Account.Email,
		"platform_role":        result.Account.PlatformRole,
		"must_change_password": result.Account.MustChangePassword,
		"temporary_password":   result.TemporaryPassword,
	})
}

// ForcePasswordReset re-arms the forced-change flag for an account and
// optionally issues a fresh temporary password.
func (h *AuthHandler) ForcePasswordReset(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "invalid account id."})
		return
	}

	var req struct {
		IssueTemporary bool `json:"issue_temporary"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "invalid request body."})
		return
	}

	temporary, err := h.Auth.ForcePasswordReset(c.Request.Context(), accountID, req.IssueTemporary)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	resp := gin.H{"status": "reset_forced"}
	if temporary != "" {
		resp["temporary_password"] = temporary
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	var ae *service.AuthError
	if errors.As(err, &ae) {
		body := gin.H{"error": string(ae.Code), "error_description": ae.Description}
		if ae.LockedUntil != nil {
			body["locked_until"] = ae.LockedUntil
		}
		if len(ae.Violations) > 0 {
			body["violations"] = ae.Violations
		}
		c.JSON(ae.Status, body)
		return
	}
	zap.L().Error("unhandled auth error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
}
