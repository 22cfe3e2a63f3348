package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dev365-portal/internal/monitoring"
	"dev365-portal/internal/redis"
)

// Version 构建版本，由ldflags覆盖
var Version = "dev"

// SystemController 系统控制器
type SystemController struct {
	redisClient *redis.Client
	monitor     *monitoring.Monitor
}

// NewSystemController 创建系统控制器实例，redisClient和monitor可为nil
func NewSystemController(redisClient *redis.Client, monitor *monitoring.Monitor) *SystemController {
	return &SystemController{
		redisClient: redisClient,
		monitor:     monitor,
	}
}

// Health 健康检查接口
func (c *SystemController) Health(ctx *gin.Context) {
	status := "running"
	redisStatus := "not_configured"

	if c.redisClient != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := c.redisClient.Ping(pingCtx); err != nil {
			redisStatus = "disconnected"
			status = "degraded"
		} else {
			redisStatus = "connected"
		}
	}

	data := gin.H{
		"status":       status,
		"service":      "dev365-portal",
		"redis_status": redisStatus,
		"timestamp":    time.Now().Unix(),
	}
	if c.monitor != nil {
		if stats, err := c.monitor.CollectSystemStats(ctx.Request.Context()); err == nil {
			data["system"] = stats
		}
	}

	code := http.StatusOK
	if status != "running" {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, gin.H{
		"code":    code,
		"message": status,
		"data":    data,
	})
}

// GetVersion 版本信息接口
func (c *SystemController) GetVersion(ctx *gin.Context) {
	respondSuccess(ctx, gin.H{
		"version": Version,
		"name":    "dev365-portal",
	})
}
