package controllers

import (
	"github.com/gin-gonic/gin"

	"dev365-portal/internal/models"
	"dev365-portal/internal/query"
)

// SupportController 支持工单控制器
type SupportController struct {
	service *query.Service
	geo     CountryResolver
}

// NewSupportController 创建支持工单控制器实例
func NewSupportController(service *query.Service, geo CountryResolver) *SupportController {
	return &SupportController{service: service, geo: geo}
}

// ListSupportRequests 获取工单列表，支持status、websiteId、category过滤
func (c *SupportController) ListSupportRequests(ctx *gin.Context) {
	var filter models.SupportFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(ctx, "Invalid filter", nil)
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondBadRequest(ctx, "Unknown status", nil)
		return
	}
	if filter.Category != "" && !filter.Category.Valid() {
		respondBadRequest(ctx, "Unknown category", nil)
		return
	}

	tickets, err := userQueries(c.service, ctx).SupportRequests(ctx.Request.Context(), filter)
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	respondSuccess(ctx, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// GetSupportRequest 获取单个工单
func (c *SupportController) GetSupportRequest(ctx *gin.Context) {
	ticket, err := userQueries(c.service, ctx).SupportRequest(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	respondSuccess(ctx, ticket)
}

// ListWebsiteSupport 获取某个网站的工单
func (c *SupportController) ListWebsiteSupport(ctx *gin.Context) {
	tickets, err := userQueries(c.service, ctx).SupportByWebsite(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	respondSuccess(ctx, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// CreateSupportRequest 创建工单
func (c *SupportController) CreateSupportRequest(ctx *gin.Context) {
	var form SupportForm
	if err := ctx.ShouldBindJSON(&form); err != nil {
		respondBadRequest(ctx, "Invalid request", nil)
		return
	}
	if err := form.Validate(); err != nil {
		respondBadRequest(ctx, err.Error(), form)
		return
	}

	ticket, err := userQueries(c.service, ctx).CreateSupportRequest(ctx.Request.Context(), form.DTO())
	audit(ctx, c.geo, "create_support_request", "support", map[string]interface{}{
		"website_id": form.WebsiteID,
		"category":   string(form.Category),
	}, err)
	if err != nil {
		respondError(ctx, err, form)
		return
	}
	respondCreated(ctx, "Support request submitted", ticket)
}
