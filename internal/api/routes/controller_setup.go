package routes

import (
	"dev365-portal/internal/api/controllers"
	"dev365-portal/internal/auth"
	"dev365-portal/internal/config"
	"dev365-portal/internal/middleware"
	"dev365-portal/internal/monitoring"
	"dev365-portal/internal/preview"
	"dev365-portal/internal/query"
	"dev365-portal/internal/redis"
	"dev365-portal/internal/services"
)

// Dependencies 路由和控制器依赖的服务，Provider、Verifier、Redis、Monitor、Preview、GeoIP、IPLimiter可为nil
type Dependencies struct {
	Config     *config.Config
	Service    *query.Service
	JWTManager *auth.JWTManager
	Sessions   auth.SessionStore
	Provider   auth.Provider
	Verifier   auth.BearerVerifier
	Redis      *redis.Client
	Monitor    *monitoring.Monitor
	Preview    *preview.Service
	GeoIP      *services.GeoIPService
	IPLimiter  *middleware.IPRateLimiter
}

// Controllers 包含所有API控制器实例
type Controllers struct {
	AuthController     *controllers.AuthController
	RequestsController *controllers.RequestsController
	WebsitesController *controllers.WebsitesController
	SupportController  *controllers.SupportController
	OverviewController *controllers.OverviewController
	PublicController   *controllers.PublicController
	SystemController   *controllers.SystemController
}

// SetupControllers 创建并配置所有控制器实例
func SetupControllers(deps Dependencies) *Controllers {
	cfg := deps.Config

	var geo controllers.CountryResolver
	if deps.GeoIP != nil {
		geo = deps.GeoIP
	}
	var recorder controllers.RateLimitRecorder
	if deps.Monitor != nil {
		recorder = deps.Monitor
	}

	return &Controllers{
		AuthController: controllers.NewAuthController(deps.Provider, deps.JWTManager, deps.Sessions, controllers.CookieConfig{
			Name:       cfg.Auth.CookieName,
			Secure:     cfg.Server.SecureCookies,
			SessionTTL: cfg.Auth.SessionTTL,
		}, geo),
		RequestsController: controllers.NewRequestsController(deps.Service, recorder, geo),
		WebsitesController: controllers.NewWebsitesController(deps.Service, deps.Preview),
		SupportController:  controllers.NewSupportController(deps.Service, geo),
		OverviewController: controllers.NewOverviewController(deps.Service),
		PublicController:   controllers.NewPublicController(cfg.Server.PublicURL),
		SystemController:   controllers.NewSystemController(deps.Redis, deps.Monitor),
	}
}
