package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dev365-portal/internal/models"
	"dev365-portal/internal/preview"
	"dev365-portal/internal/query"
)

// WebsitesController 网站控制器
type WebsitesController struct {
	service *query.Service
	preview *preview.Service
}

// NewWebsitesController 创建网站控制器实例，preview可为nil
func NewWebsitesController(service *query.Service, previewService *preview.Service) *WebsitesController {
	return &WebsitesController{service: service, preview: previewService}
}

// websiteView 附带生命周期阶段和账单展示信息的网站
type websiteView struct {
	models.Website
	Phase         string            `json:"phase"`
	Progress      float64           `json:"progress"`
	NextMilestone *models.Milestone `json:"nextMilestone,omitempty"`
	BillingView   *billingView      `json:"billingView,omitempty"`
}

// billingView 已部署网站的账单展示
type billingView struct {
	Status         models.BillingStatus `json:"status"`
	Plan           string               `json:"plan,omitempty"`
	Price          *float64             `json:"price,omitempty"`
	BillingCycle   models.BillingCycle  `json:"billingCycle,omitempty"`
	DueAt          *time.Time           `json:"dueAt,omitempty"`
	GraceEndsAt    *time.Time           `json:"graceEndsAt,omitempty"`
	GraceRemaining string               `json:"graceRemaining,omitempty"`
	TotalPaid      float64              `json:"totalPaid"`
	Payments       []models.Payment     `json:"payments"`
	Warning        string               `json:"warning,omitempty"`
}

func newWebsiteView(w models.Website, now time.Time) websiteView {
	view := websiteView{
		Website:  w,
		Phase:    w.Phase().String(),
		Progress: w.Progress(),
	}
	if m, ok := w.NextMilestone(); ok {
		view.NextMilestone = &m
	}
	if b, ok := w.DeployedBilling(); ok {
		bv := &billingView{
			Status:       b.Status,
			Plan:         b.Plan,
			Price:        b.Price,
			BillingCycle: b.BillingCycle,
			DueAt:        b.DueAt,
			GraceEndsAt:  b.GraceEndsAt,
			TotalPaid:    b.TotalPaid(),
			Payments:     b.PaymentHistory,
		}
		if bv.Payments == nil {
			bv.Payments = []models.Payment{}
		}
		if remaining, ok := b.GraceRemaining(now); ok {
			bv.GraceRemaining = remaining.Round(time.Minute).String()
		}
		if err := b.Validate(now); err != nil {
			bv.Warning = err.Error()
		}
		view.BillingView = bv
	}
	return view
}

func newWebsiteViews(websites []models.Website, now time.Time) []websiteView {
	views := make([]websiteView, 0, len(websites))
	for _, w := range websites {
		views = append(views, newWebsiteView(w, now))
	}
	return views
}

// ListWebsites 获取当前用户的网站列表
func (c *WebsitesController) ListWebsites(ctx *gin.Context) {
	websites, err := userQueries(c.service, ctx).Websites(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	respondSuccess(ctx, gin.H{
		"websites": newWebsiteViews(websites, c.service.Clock().Now()),
		"count":    len(websites),
	})
}

// GetWebsite 获取单个网站
func (c *WebsitesController) GetWebsite(ctx *gin.Context) {
	w, err := userQueries(c.service, ctx).Website(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	respondSuccess(ctx, newWebsiteView(*w, c.service.Clock().Now()))
}

// GetBilling 按套餐获取网站及账单信息
func (c *WebsitesController) GetBilling(ctx *gin.Context) {
	plan := ctx.Query("plan")
	if plan != "" && !models.BillingPlan(plan).Valid() {
		respondBadRequest(ctx, "Unknown plan", nil)
		return
	}

	q := userQueries(c.service, ctx)
	var (
		websites []models.Website
		err      error
	)
	if plan == "" {
		websites, err = q.Websites(ctx.Request.Context())
	} else {
		websites, err = q.WebsitesByPlan(ctx.Request.Context(), plan)
	}
	if err != nil {
		respondError(ctx, err, nil)
		return
	}

	now := c.service.Clock().Now()
	deployed := make([]websiteView, 0, len(websites))
	for _, w := range websites {
		view := newWebsiteView(w, now)
		if view.BillingView != nil {
			deployed = append(deployed, view)
		}
	}
	respondSuccess(ctx, gin.H{
		"plan":     plan,
		"websites": deployed,
		"count":    len(deployed),
	})
}

// GetPreview 返回已部署网站的PNG截图
func (c *WebsitesController) GetPreview(ctx *gin.Context) {
	if c.preview == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "Preview is not available"})
		return
	}

	w, err := userQueries(c.service, ctx).Website(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	if w.Phase() != models.PhaseDeployed {
		ctx.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "Website is not deployed yet"})
		return
	}

	shot, err := c.preview.Capture(ctx.Request.Context(), w)
	switch {
	case errors.Is(err, preview.ErrNotDeployed), errors.Is(err, preview.ErrInvalidURL):
		ctx.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": err.Error()})
		return
	case errors.Is(err, preview.ErrDisabled):
		ctx.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "Preview is not available"})
		return
	case err != nil:
		ctx.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": "Failed to render preview"})
		return
	}

	ctx.Header("Cache-Control", "private, max-age=300")
	ctx.Header("Last-Modified", shot.CapturedAt.UTC().Format(http.TimeFormat))
	ctx.Data(http.StatusOK, "image/png", shot.PNG)
}
