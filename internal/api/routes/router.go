package routes

import (
	"github.com/gin-gonic/gin"

	"dev365-portal/internal/auth"
	"dev365-portal/internal/middleware"
)

// NewRouter 创建gin引擎并注册中间件和所有路由
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	ginRouter := gin.New()
	ginRouter.Use(middleware.RequestIDMiddleware(), middleware.GlobalErrorHandler())
	if deps.Monitor != nil {
		ginRouter.Use(middleware.MetricsMiddleware(deps.Monitor))
	}
	addSecurityHeaders(ginRouter, cfg.Server.SecureCookies)
	addCorsMiddleware(ginRouter, cfg.Server.AllowedOrigins)

	if deps.IPLimiter != nil {
		var geo middleware.CountryResolver
		if deps.GeoIP != nil {
			geo = deps.GeoIP
		}
		var recorder middleware.RateLimitRecorder
		if deps.Monitor != nil {
			recorder = deps.Monitor
		}
		ginRouter.Use(middleware.RateLimitMiddleware(deps.IPLimiter, geo, recorder))
	}
	ginRouter.Use(middleware.SanitizeInputMiddleware())

	authMiddleware := auth.SessionMiddleware(auth.MiddlewareConfig{
		JWT:        deps.JWTManager,
		Store:      deps.Sessions,
		Provider:   deps.Provider,
		Verifier:   deps.Verifier,
		CookieName: cfg.Auth.CookieName,
	})

	RegisterAllRoutes(ginRouter, SetupControllers(deps), authMiddleware)
	return ginRouter
}
