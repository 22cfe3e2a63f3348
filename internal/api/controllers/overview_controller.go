package controllers

import (
	"github.com/gin-gonic/gin"

	"dev365-portal/internal/models"
	"dev365-portal/internal/query"
)

// OverviewController 概览控制器
type OverviewController struct {
	service *query.Service
}

// NewOverviewController 创建概览控制器实例
func NewOverviewController(service *query.Service) *OverviewController {
	return &OverviewController{service: service}
}

// GetOverview 获取概览信息：需求和网站统计、最近的需求
func (c *OverviewController) GetOverview(ctx *gin.Context) {
	q := userQueries(c.service, ctx)

	requests, err := q.Requests(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	websites, err := q.Websites(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, nil)
		return
	}

	now := c.service.Clock().Now()
	recent := requests
	if len(recent) > 5 {
		recent = recent[:5]
	}
	recentViews := make([]requestView, 0, len(recent))
	for _, r := range recent {
		recentViews = append(recentViews, newRequestView(r, now))
	}

	respondSuccess(ctx, gin.H{
		"requestStats":   models.ComputeRequestStats(requests, now),
		"websiteStats":   models.ComputeWebsiteStats(websites),
		"recentRequests": recentViews,
	})
}
