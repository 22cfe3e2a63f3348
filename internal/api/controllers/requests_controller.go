package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dev365-portal/internal/logging"
	"dev365-portal/internal/models"
	"dev365-portal/internal/query"
	"dev365-portal/internal/ratelimit"
)

// RateLimitRecorder 记录被限流的提交
type RateLimitRecorder interface {
	RecordRateLimited(reason string)
}

// RequestsController 网站需求控制器
type RequestsController struct {
	service  *query.Service
	recorder RateLimitRecorder
	geo      CountryResolver
}

// NewRequestsController 创建网站需求控制器实例
func NewRequestsController(service *query.Service, recorder RateLimitRecorder, geo CountryResolver) *RequestsController {
	return &RequestsController{service: service, recorder: recorder, geo: geo}
}

// requestView 附带编辑窗口信息的需求
type requestView struct {
	models.WebsiteRequest
	Editable      bool   `json:"editable"`
	RemainingEdit string `json:"remainingEdit"`
}

func newRequestView(r models.WebsiteRequest, now time.Time) requestView {
	return requestView{
		WebsiteRequest: r,
		Editable:       r.EditableAt(now),
		RemainingEdit:  r.RemainingEdit(now),
	}
}

// ListRequests 获取当前用户的需求列表
func (c *RequestsController) ListRequests(ctx *gin.Context) {
	requests, err := userQueries(c.service, ctx).Requests(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, nil)
		return
	}

	now := c.service.Clock().Now()
	views := make([]requestView, 0, len(requests))
	for _, r := range requests {
		views = append(views, newRequestView(r, now))
	}
	respondSuccess(ctx, gin.H{
		"requests": views,
		"count":    len(views),
		"stats":    models.ComputeRequestStats(requests, now),
	})
}

// GetRequest 获取单个需求
func (c *RequestsController) GetRequest(ctx *gin.Context) {
	r, err := userQueries(c.service, ctx).Request(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	respondSuccess(ctx, newRequestView(*r, c.service.Clock().Now()))
}

// CheckLimit 查询当前是否可以提交新需求
func (c *RequestsController) CheckLimit(ctx *gin.Context) {
	decision, err := ratelimit.NewGate(userQueries(c.service, ctx), c.service.Clock()).Attempt(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, nil)
		return
	}
	respondSuccess(ctx, decisionView(decision))
}

// CreateRequest 提交新需求，先检查提交频率限制
func (c *RequestsController) CreateRequest(ctx *gin.Context) {
	var form RequestForm
	if err := ctx.ShouldBindJSON(&form); err != nil {
		respondBadRequest(ctx, "Invalid request", nil)
		return
	}
	if err := form.Validate(); err != nil {
		respondBadRequest(ctx, err.Error(), form)
		return
	}

	q := userQueries(c.service, ctx)
	decision, err := ratelimit.NewGate(q, c.service.Clock()).Attempt(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, form)
		return
	}
	if !decision.Allowed {
		logging.DefaultLogger.LogRateLimited(currentUser(ctx), ctx.ClientIP(), "submission_cooldown", map[string]interface{}{
			"hours_left": decision.HoursLeft,
			"recheck":    decision.Recheck,
		})
		if c.recorder != nil {
			c.recorder.RecordRateLimited("submission")
		}
		ctx.JSON(http.StatusTooManyRequests, gin.H{
			"code":    http.StatusTooManyRequests,
			"message": decision.Message,
			"data": gin.H{
				"limit": decisionView(decision),
				"form":  form,
			},
		})
		return
	}

	created, err := q.CreateRequest(ctx.Request.Context(), form.DTO())
	audit(ctx, c.geo, "create_request", "requests", map[string]interface{}{"project": form.ProjectName}, err)
	if err != nil {
		// 回传提交内容，用户无需重新填写
		respondError(ctx, err, form)
		return
	}
	respondCreated(ctx, "Request submitted successfully", newRequestView(*created, c.service.Clock().Now()))
}

// UpdateRequest 编辑需求，仅在编辑窗口内允许
func (c *RequestsController) UpdateRequest(ctx *gin.Context) {
	var form RequestForm
	if err := ctx.ShouldBindJSON(&form); err != nil {
		respondBadRequest(ctx, "Invalid request", nil)
		return
	}
	if err := form.Validate(); err != nil {
		respondBadRequest(ctx, err.Error(), form)
		return
	}

	id := ctx.Param("id")
	updated, err := userQueries(c.service, ctx).UpdateRequest(ctx.Request.Context(), id, form.PatchDTO())
	audit(ctx, c.geo, "update_request", "requests/"+id, nil, err)
	if err != nil {
		respondError(ctx, err, form)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "Request updated successfully",
		"data":    newRequestView(*updated, c.service.Clock().Now()),
	})
}

func decisionView(d ratelimit.Decision) gin.H {
	view := gin.H{
		"canSubmit": d.Allowed,
		"hoursLeft": d.HoursLeft,
		"message":   d.Message,
		"recheck":   d.Recheck,
	}
	if d.NextAllowedTime != nil {
		view["nextAllowedTime"] = d.NextAllowedTime
	}
	return view
}
