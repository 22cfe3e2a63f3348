package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"dev365-portal/internal/logging"
)

// CountryResolver 解析IP所属国家
type CountryResolver interface {
	Country(ip string) string
}

// RateLimitRecorder 记录被限流的请求
type RateLimitRecorder interface {
	RecordRateLimited(reason string)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 按客户端IP的令牌桶限流器
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	ttl      time.Duration
}

// NewIPRateLimiter 创建限流器，requestsPerMinute为每分钟允许的请求数
func NewIPRateLimiter(requestsPerMinute, burst int, ttl time.Duration) *IPRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	if burst <= 0 {
		burst = requestsPerMinute / 2
		if burst == 0 {
			burst = 1
		}
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    burst,
		ttl:      ttl,
	}
}

// Allow 判断该IP当前是否允许请求
func (l *IPRateLimiter) Allow(ip string, now time.Time) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// Cleanup 删除长时间未访问的IP，返回删除数量
func (l *IPRateLimiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// RateLimitMiddleware 按IP限流中间件，geo和recorder可为nil
func RateLimitMiddleware(limiter *IPRateLimiter, geo CountryResolver, recorder RateLimitRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if limiter.Allow(ip, time.Now()) {
			c.Next()
			return
		}

		country := ""
		if geo != nil {
			country = geo.Country(ip)
		}
		logging.DefaultLogger.LogSecurityEvent("rate_limit", ip, country, map[string]interface{}{
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"request_id": RequestID(c),
		}, "blocked", "Too many requests from client")
		if recorder != nil {
			recorder.RecordRateLimited("ip")
		}

		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":    http.StatusTooManyRequests,
			"message": "Too many requests. Please slow down.",
		})
	}
}
