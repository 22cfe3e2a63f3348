package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestRecorder 记录HTTP请求
type RequestRecorder interface {
	RecordRequest(method, path string, status int, duration time.Duration)
}

// MetricsMiddleware 以路由模板为标签记录请求，未匹配路由记为unmatched
func MetricsMiddleware(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recorder.RecordRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
