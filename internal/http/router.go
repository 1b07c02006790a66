package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/authz"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/config"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/http/handler"
	httpmiddleware "github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/http/middleware"
	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)

		// Password change needs a verified token but no authorize pass:
		// it is the one operation a must-change session may perform.
		authGroup.POST("/password/change", authMiddleware.ValidateJWT, authHandler.ChangePassword)
		authGroup.GET("/me", authMiddleware.ValidateJWT, authHandler.Me)
	}

	admin := r.Group("/admin", authMiddleware.ValidateJWT, authMiddleware.RequireScope(authz.PlatformAdminOrAbove{}))
	{
		admin.POST("/accounts", authHandler.ProvisionAccount)
		admin.POST("/accounts/:id/password-reset", authHandler.ForcePasswordReset)
	}

	return r
}
