package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dev365-portal/internal/apiclient"
	"dev365-portal/internal/auth"
	"dev365-portal/internal/logging"
	"dev365-portal/internal/middleware"
	"dev365-portal/internal/query"
)

// CountryResolver 解析IP所属国家
type CountryResolver interface {
	Country(ip string) string
}

// userQueries 返回当前用户的查询入口，缓存按用户ID隔离
func userQueries(svc *query.Service, ctx *gin.Context) *query.Queries {
	scope := ""
	if id, ok := auth.CurrentIdentity(ctx); ok {
		scope = id.Subject
	}
	var tokens query.TokenSource
	if ts := auth.CurrentTokenSource(ctx); ts != nil {
		tokens = ts
	}
	return svc.For(scope, tokens)
}

func currentUser(ctx *gin.Context) string {
	if id, ok := auth.CurrentIdentity(ctx); ok {
		return id.Subject
	}
	return ""
}

func respondSuccess(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "success",
		"data":    data,
	})
}

func respondCreated(ctx *gin.Context, message string, data interface{}) {
	ctx.JSON(http.StatusCreated, gin.H{
		"code":    201,
		"message": message,
		"data":    data,
	})
}

func respondBadRequest(ctx *gin.Context, message string, data interface{}) {
	body := gin.H{
		"code":    http.StatusBadRequest,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	ctx.JSON(http.StatusBadRequest, body)
}

// statusForError 把查询层和后端错误映射为HTTP状态码与提示信息
func statusForError(err error) (int, string) {
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return status, apiErr.Message
	case errors.Is(err, query.ErrNotAuthenticated):
		return http.StatusUnauthorized, query.ErrNotAuthenticated.Error()
	case errors.Is(err, query.ErrEditWindowClosed):
		return http.StatusConflict, "This request can no longer be edited"
	case errors.Is(err, query.ErrDisabled), errors.Is(err, query.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, query.ErrNoData):
		return http.StatusBadGateway, "Backend returned no data"
	}
	return http.StatusBadGateway, "Backend unavailable"
}

// respondError 输出错误响应，body为失败时回传给客户端的原始提交
func respondError(ctx *gin.Context, err error, body interface{}) {
	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.DefaultLogger.Error("[%s] %s %s failed: %v", middleware.RequestID(ctx), ctx.Request.Method, ctx.FullPath(), err)
	}
	resp := gin.H{
		"code":    status,
		"message": message,
	}
	if body != nil {
		resp["data"] = body
	}
	ctx.JSON(status, resp)
}

// audit 记录用户写操作
func audit(ctx *gin.Context, geo CountryResolver, action, resource string, details map[string]interface{}, err error) {
	result, message := "success", ""
	if err != nil {
		result, message = "failure", err.Error()
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["request_id"] = middleware.RequestID(ctx)
	if geo != nil {
		details["country"] = geo.Country(ctx.ClientIP())
	}
	logging.DefaultLogger.LogUserAction(currentUser(ctx), ctx.ClientIP(), action, resource, details, result, message)
}
