package routes

import (
	"github.com/gin-gonic/gin"
)

// RegisterAllRoutes 注册所有API路由
func RegisterAllRoutes(ginRouter *gin.Engine, controllers *Controllers, authMiddleware gin.HandlerFunc) {
	// 身份提供方回调
	ginRouter.GET("/sso-callback", controllers.AuthController.Callback)
	ginRouter.GET("/robots.txt", controllers.PublicController.Robots)

	apiGroup := ginRouter.Group("/api/v1")
	{
		// 系统相关API - 不需要登录
		apiGroup.GET("/health", controllers.SystemController.Health)
		apiGroup.GET("/version", controllers.SystemController.GetVersion)

		// 公开API
		publicGroup := apiGroup.Group("/public")
		{
			publicGroup.GET("/pricing", controllers.PublicController.GetPricing)
		}

		// 认证相关API
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.GET("/login", controllers.AuthController.Login)
			authGroup.POST("/logout", authMiddleware, controllers.AuthController.Logout)
			authGroup.GET("/me", authMiddleware, controllers.AuthController.Me)
		}

		// 需要登录的API组
		dashboard := apiGroup.Group("/dashboard")
		dashboard.Use(authMiddleware)
		{
			dashboard.GET("/overview", controllers.OverviewController.GetOverview)

			// 网站需求API
			requestsGroup := dashboard.Group("/requests")
			{
				requestsGroup.GET("", controllers.RequestsController.ListRequests)
				requestsGroup.GET("/check-limit", controllers.RequestsController.CheckLimit)
				requestsGroup.GET("/:id", controllers.RequestsController.GetRequest)
				requestsGroup.POST("", controllers.RequestsController.CreateRequest)
				requestsGroup.PATCH("/:id", controllers.RequestsController.UpdateRequest)
			}

			// 网站API
			websitesGroup := dashboard.Group("/websites")
			{
				websitesGroup.GET("", controllers.WebsitesController.ListWebsites)
				websitesGroup.GET("/:id", controllers.WebsitesController.GetWebsite)
				websitesGroup.GET("/:id/preview", controllers.WebsitesController.GetPreview)
				websitesGroup.GET("/:id/support", controllers.SupportController.ListWebsiteSupport)
			}

			dashboard.GET("/billing", controllers.WebsitesController.GetBilling)

			// 支持工单API
			supportGroup := dashboard.Group("/support")
			{
				supportGroup.GET("", controllers.SupportController.ListSupportRequests)
				supportGroup.GET("/:id", controllers.SupportController.GetSupportRequest)
				supportGroup.POST("", controllers.SupportController.CreateSupportRequest)
			}
		}
	}
}
