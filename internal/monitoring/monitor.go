package monitoring

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Monitor 监控管理器，每个实例使用独立的Registry
type Monitor struct {
	config   Config
	registry *prometheus.Registry
	server   *http.Server

	requestsTotal   *prometheus.CounterVec
	responseTime    *prometheus.HistogramVec
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	cacheEvents     *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	renderTime      prometheus.Histogram
	cpuPercent      prometheus.Gauge
	memoryPercent   prometheus.Gauge

	mu        sync.Mutex
	isRunning bool
}

// Config 监控配置
type Config struct {
	Enabled           bool
	PrometheusAddress string
}

// NewMonitor 创建新的监控管理器
func NewMonitor(config Config) *Monitor {
	m := &Monitor{
		config:   config,
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dev365_http_requests_total",
			Help: "Total number of portal HTTP requests",
		}, []string{"method", "path", "status"}),
		responseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dev365_http_response_time_seconds",
			Help:    "Portal response time in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dev365_backend_calls_total",
			Help: "Calls made to the dev365 backend API",
		}, []string{"op", "status"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dev365_backend_call_seconds",
			Help:    "Backend API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dev365_cache_events_total",
			Help: "Query cache hits, misses and invalidations",
		}, []string{"namespace", "event"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dev365_rate_limited_total",
			Help: "Requests refused by a rate limit",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dev365_active_sessions",
			Help: "Number of stored portal sessions",
		}),
		renderTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dev365_preview_render_seconds",
			Help:    "Website preview render time in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dev365_system_cpu_percent",
			Help: "Host CPU utilisation",
		}),
		memoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dev365_system_memory_used_percent",
			Help: "Host memory utilisation",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.responseTime,
		m.backendCalls,
		m.backendDuration,
		m.cacheEvents,
		m.rateLimited,
		m.activeSessions,
		m.renderTime,
		m.cpuPercent,
		m.memoryPercent,
	)
	return m
}

// Registry 返回指标注册表
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回/metrics处理器
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Start 启动监控服务
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning || !m.config.Enabled {
		return nil
	}

	addr := m.config.PrometheusAddress
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	// 启动Prometheus服务器
	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.mu.Lock()
			m.isRunning = false
			m.mu.Unlock()
		}
	}(m.server)

	m.isRunning = true
	return nil
}

// Stop 停止监控服务
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return nil
	}
	m.isRunning = false
	return m.server.Shutdown(ctx)
}

// isStaticResource 检查路径是否为静态资源
func isStaticResource(path string) bool {
	staticExtensions := []string{
		".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg",
		".css", ".js", ".map",
		".woff", ".woff2", ".ttf", ".eot",
		".ico",
	}
	for _, ext := range staticExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// RecordRequest 记录请求，排除静态资源。path应为路由模板而不是原始URL
func (m *Monitor) RecordRequest(method, path string, status int, duration time.Duration) {
	if isStaticResource(path) {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.responseTime.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveCall 记录后端API调用，status为0表示网络错误
func (m *Monitor) ObserveCall(op string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.backendCalls.WithLabelValues(op, label).Inc()
	m.backendDuration.WithLabelValues(op).Observe(d.Seconds())
}

// CacheHit 记录缓存命中
func (m *Monitor) CacheHit(namespace string) {
	m.cacheEvents.WithLabelValues(namespace, "hit").Inc()
}

// CacheMiss 记录缓存未命中
func (m *Monitor) CacheMiss(namespace string) {
	m.cacheEvents.WithLabelValues(namespace, "miss").Inc()
}

// CacheInvalidated 记录缓存失效
func (m *Monitor) CacheInvalidated(namespace string) {
	m.cacheEvents.WithLabelValues(namespace, "invalidated").Inc()
}

// RecordRateLimited 记录被限流的请求，reason为submission或ip
func (m *Monitor) RecordRateLimited(reason string) {
	m.rateLimited.WithLabelValues(reason).Inc()
}

// SetActiveSessions 设置会话数量
func (m *Monitor) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordRenderTime 记录预览渲染时间
func (m *Monitor) RecordRenderTime(duration time.Duration) {
	m.renderTime.Observe(duration.Seconds())
}

// SystemStats 主机资源使用情况
type SystemStats struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryUsed    uint64  `json:"memoryUsed"`
}

// CollectSystemStats 采集主机CPU和内存并更新指标
func (m *Monitor) CollectSystemStats(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	stats.MemoryPercent = vm.UsedPercent
	stats.MemoryTotal = vm.Total
	stats.MemoryUsed = vm.Used

	m.cpuPercent.Set(stats.CPUPercent)
	m.memoryPercent.Set(stats.MemoryPercent)
	return stats, nil
}
