package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigChangeHandler 配置变化处理函数
type ConfigChangeHandler func(*Config)

// ConfigManager 配置管理器，用于管理配置和热重载
type ConfigManager struct {
	mutex          sync.RWMutex
	config         *Config
	configPath     string
	handlers       []ConfigChangeHandler
	lastModified   time.Time
	watcherRunning bool
	closeChan      chan struct{}
}

var (
	instance *ConfigManager
	once     sync.Once
)

// Config 应用全局配置
type Config struct {
	// 服务器配置
	Server ServerConfig `yaml:"server"`
	// 后端API配置
	API APIConfig `yaml:"api"`
	// 查询缓存配置
	Cache CacheConfig `yaml:"cache"`
	// 认证配置
	Auth AuthConfig `yaml:"auth"`
	// 日志配置
	Logging LoggingConfig `yaml:"logging"`
	// 监控配置
	Monitoring MonitoringConfig `yaml:"monitoring"`
	// 网站预览截图配置
	Preview PreviewConfig `yaml:"preview"`
	// 地理位置配置
	GeoIP GeoIPConfig `yaml:"geoip"`
	// 入口限流配置
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// 定时任务配置
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	PublicURL      string        `yaml:"public_url"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	Mode           string        `yaml:"mode"` // gin运行模式: debug, release, test
}

// APIConfig 后端API配置
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig 查询缓存配置
type CacheConfig struct {
	Type           string        `yaml:"type"` // memory 或 redis
	RedisURL       string        `yaml:"redis_url"`
	StaleTime      time.Duration `yaml:"stale_time"`       // 读取结果保持新鲜的时间
	LimitStaleTime time.Duration `yaml:"limit_stale_time"` // 提交限额检查结果的复用时间
	CacheTime      time.Duration `yaml:"cache_time"`       // 无人读取的条目保留时间
}

// OIDCConfig 身份提供方配置
type OIDCConfig struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	TokenKey     string        `yaml:"token_key"` // 会话中加密保存身份令牌所用的密钥，至少32字节
	CookieName   string        `yaml:"cookie_name"`
	SessionStore string        `yaml:"session_store"` // memory 或 redis，redis时复用cache.redis_url
	OIDC         OIDCConfig    `yaml:"oidc"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Output       string `yaml:"output"`
	AuditEnabled bool   `yaml:"audit_enabled"`
	AuditOutput  string `yaml:"audit_output"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Enabled           bool   `yaml:"enabled"`
	PrometheusAddress string `yaml:"prometheus_address"`
}

// PreviewConfig 网站预览截图配置
type PreviewConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	BrowserBin string        `yaml:"browser_bin"`
}

// GeoIPConfig 地理位置配置
type GeoIPConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// RateLimitConfig 入口限流配置（按客户端IP）
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// SchedulerConfig 定时任务配置，使用带秒的cron表达式
type SchedulerConfig struct {
	CacheGC      string `yaml:"cache_gc"`
	SessionSweep string `yaml:"session_sweep"`
	SystemStats  string `yaml:"system_stats"`
	Maintenance  string `yaml:"maintenance"` // 清理过期的预览截图和限流访客记录
}

// ConfigManagerInterface 配置管理器接口
type ConfigManagerInterface interface {
	GetConfig() *Config
	AddConfigChangeHandler(handler ConfigChangeHandler)
	StartWatching() error
	StopWatching()
}

// GetInstance 获取配置管理器实例
func GetInstance() *ConfigManager {
	once.Do(func() {
		instance = &ConfigManager{
			config:    defaultConfig(),
			closeChan: make(chan struct{}),
		}
	})
	return instance
}

// LoadDotEnv 加载.env文件中的环境变量，已存在的环境变量不会被覆盖，文件不存在时忽略
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// LoadConfig 从YAML配置文件和环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	manager := GetInstance()
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	cfg, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		// 保存配置文件路径和修改时间
		manager.configPath = configPath
		if info, err := os.Stat(configPath); err == nil {
			manager.lastModified = info.ModTime()
		}
	}

	if err := manager.validate(cfg); err != nil {
		return nil, err
	}

	manager.config = cfg
	return cfg, nil
}

// readConfig 读取默认值、配置文件和环境变量
func readConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// 从环境变量加载配置，覆盖文件配置
	loadFromEnv(cfg)
	return cfg, nil
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.config
}

// AddConfigChangeHandler 添加配置变化处理函数
func (cm *ConfigManager) AddConfigChangeHandler(handler ConfigChangeHandler) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.handlers = append(cm.handlers, handler)
}

// ValidateConfig 检查配置是否可用
func (cm *ConfigManager) ValidateConfig(cfg *Config) error {
	return cm.validate(cfg)
}

func (cm *ConfigManager) validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var problems []string
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.API.BaseURL == "" {
		problems = append(problems, "api.base_url is required")
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("api.base_url %q is not an absolute URL", cfg.API.BaseURL))
	}

	switch cfg.Cache.Type {
	case "memory":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			problems = append(problems, "cache.redis_url is required for redis cache")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown cache.type %q", cfg.Cache.Type))
	}
	if cfg.Cache.StaleTime < 0 || cfg.Cache.LimitStaleTime < 0 {
		problems = append(problems, "cache stale times must not be negative")
	}

	if len(cfg.Auth.JWTSecret) < 32 {
		problems = append(problems, "auth.jwt_secret must be at least 32 bytes")
	}
	if len(cfg.Auth.TokenKey) < 32 {
		problems = append(problems, "auth.token_key must be at least 32 bytes")
	}
	if cfg.Auth.SessionTTL <= 0 {
		problems = append(problems, "auth.session_ttl must be positive")
	}
	switch cfg.Auth.SessionStore {
	case "memory":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			problems = append(problems, "cache.redis_url is required for redis session store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown auth.session_store %q", cfg.Auth.SessionStore))
	}

	if cfg.GeoIP.Enabled && cfg.GeoIP.DBPath == "" {
		problems = append(problems, "geoip.db_path is required when geoip is enabled")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMinute <= 0 {
		problems = append(problems, "rate_limit.requests_per_minute must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// StartWatching 开始监控配置文件变化
func (cm *ConfigManager) StartWatching() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.configPath == "" {
		return nil // 没有配置文件，无需监控
	}
	if cm.watcherRunning {
		return nil // 已经在监控
	}

	cm.watcherRunning = true
	go cm.watchConfig(cm.closeChan)
	return nil
}

// StopWatching 停止监控配置文件变化
func (cm *ConfigManager) StopWatching() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if !cm.watcherRunning {
		return
	}

	cm.watcherRunning = false
	close(cm.closeChan)
	cm.closeChan = make(chan struct{}) // 重置通道
}

// watchConfig 监控配置文件变化
func (cm *ConfigManager) watchConfig(closeChan chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.checkAndReload()
		case <-closeChan:
			return
		}
	}
}

// checkAndReload 检查配置文件是否变化，如果变化则重新加载
func (cm *ConfigManager) checkAndReload() {
	cm.mutex.RLock()
	configPath := cm.configPath
	lastModified := cm.lastModified
	cm.mutex.RUnlock()

	if configPath == "" {
		return
	}

	info, err := os.Stat(configPath)
	if err != nil {
		return
	}
	if !info.ModTime().After(lastModified) {
		return
	}

	cm.reloadConfig()
}

// reloadConfig 重新加载配置，无效的新配置会被忽略
func (cm *ConfigManager) reloadConfig() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cfg, err := readConfig(cm.configPath)
	if err != nil {
		return
	}

	// 无论是否生效都记录修改时间，避免反复解析同一个坏文件
	if info, _ := os.Stat(cm.configPath); info != nil {
		cm.lastModified = info.ModTime()
	}
	if err := cm.validate(cfg); err != nil {
		return
	}

	cm.config = cfg

	// 通知所有配置变化处理函数
	for _, handler := range cm.handlers {
		go handler(cfg) // 异步调用，避免阻塞
	}
}

// defaultConfig 创建默认配置
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "0.0.0.0",
			Port:           8080,
			PublicURL:      "http://localhost:8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			SecureCookies:  false,
			Mode:           "release",
		},
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			Type:           "memory",
			RedisURL:       "localhost:6379",
			StaleTime:      30 * time.Second,
			LimitStaleTime: 15 * time.Second,
			CacheTime:      5 * time.Minute,
		},
		Auth: AuthConfig{
			SessionTTL:   24 * time.Hour,
			CookieName:   "dev365_session",
			SessionStore: "memory",
			OIDC: OIDCConfig{
				RedirectURL: "http://localhost:8080/sso-callback",
				Scopes:      []string{"openid", "profile", "email"},
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			Output:       "stdout",
			AuditEnabled: true,
			AuditOutput:  "stdout",
		},
		Monitoring: MonitoringConfig{
			Enabled:           true,
			PrometheusAddress: ":9090",
		},
		Preview: PreviewConfig{
			Enabled:   false,
			Timeout:   20 * time.Second,
			CacheSize: 100,
			CacheTTL:  time.Hour,
			Width:     1280,
			Height:    800,
		},
		GeoIP: GeoIPConfig{
			Enabled: false,
			DBPath:  "./data/GeoLite2-Country.mmdb",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			Burst:             30,
		},
		Scheduler: SchedulerConfig{
			CacheGC:      "0 */5 * * * *",
			SessionSweep: "0 0 * * * *",
			SystemStats:  "*/30 * * * * *",
			Maintenance:  "0 */10 * * * *",
		},
	}
}

// loadFromEnv 从环境变量加载配置，覆盖现有配置
func loadFromEnv(cfg *Config) {
	// 服务器配置
	cfg.Server.Address = getEnv("SERVER_ADDRESS", cfg.Server.Address)
	cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.PublicURL = getEnv("SERVER_PUBLIC_URL", cfg.Server.PublicURL)
	cfg.Server.AllowedOrigins = getEnvAsList("SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.SecureCookies = getEnvAsBool("SERVER_SECURE_COOKIES", cfg.Server.SecureCookies)
	cfg.Server.Mode = getEnv("SERVER_MODE", cfg.Server.Mode)

	// 后端API配置
	cfg.API.BaseURL = getEnv("API_BASE_URL", cfg.API.BaseURL)
	cfg.API.Timeout = getEnvAsDuration("API_TIMEOUT", cfg.API.Timeout)

	// 缓存配置
	cfg.Cache.Type = getEnv("CACHE_TYPE", cfg.Cache.Type)
	cfg.Cache.RedisURL = getEnv("CACHE_REDIS_URL", cfg.Cache.RedisURL)
	cfg.Cache.StaleTime = getEnvAsDuration("CACHE_STALE_TIME", cfg.Cache.StaleTime)
	cfg.Cache.LimitStaleTime = getEnvAsDuration("CACHE_LIMIT_STALE_TIME", cfg.Cache.LimitStaleTime)
	cfg.Cache.CacheTime = getEnvAsDuration("CACHE_CACHE_TIME", cfg.Cache.CacheTime)

	// 认证配置
	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.SessionTTL = getEnvAsDuration("AUTH_SESSION_TTL", cfg.Auth.SessionTTL)
	cfg.Auth.TokenKey = getEnv("AUTH_TOKEN_KEY", cfg.Auth.TokenKey)
	cfg.Auth.CookieName = getEnv("AUTH_COOKIE_NAME", cfg.Auth.CookieName)
	cfg.Auth.SessionStore = getEnv("AUTH_SESSION_STORE", cfg.Auth.SessionStore)
	cfg.Auth.OIDC.IssuerURL = getEnv("AUTH_OIDC_ISSUER_URL", cfg.Auth.OIDC.IssuerURL)
	cfg.Auth.OIDC.ClientID = getEnv("AUTH_OIDC_CLIENT_ID", cfg.Auth.OIDC.ClientID)
	cfg.Auth.OIDC.ClientSecret = getEnv("AUTH_OIDC_CLIENT_SECRET", cfg.Auth.OIDC.ClientSecret)
	cfg.Auth.OIDC.RedirectURL = getEnv("AUTH_OIDC_REDIRECT_URL", cfg.Auth.OIDC.RedirectURL)
	cfg.Auth.OIDC.Scopes = getEnvAsList("AUTH_OIDC_SCOPES", cfg.Auth.OIDC.Scopes)

	// 日志配置
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnv("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.AuditEnabled = getEnvAsBool("LOG_AUDIT_ENABLED", cfg.Logging.AuditEnabled)
	cfg.Logging.AuditOutput = getEnv("LOG_AUDIT_OUTPUT", cfg.Logging.AuditOutput)

	// 监控配置
	cfg.Monitoring.Enabled = getEnvAsBool("MONITORING_ENABLED", cfg.Monitoring.Enabled)
	cfg.Monitoring.PrometheusAddress = getEnv("MONITORING_PROMETHEUS_ADDRESS", cfg.Monitoring.PrometheusAddress)

	// 预览配置
	cfg.Preview.Enabled = getEnvAsBool("PREVIEW_ENABLED", cfg.Preview.Enabled)
	cfg.Preview.Timeout = getEnvAsDuration("PREVIEW_TIMEOUT", cfg.Preview.Timeout)
	cfg.Preview.CacheSize = getEnvAsInt("PREVIEW_CACHE_SIZE", cfg.Preview.CacheSize)
	cfg.Preview.BrowserBin = getEnv("PREVIEW_BROWSER_BIN", cfg.Preview.BrowserBin)

	// 地理位置配置
	cfg.GeoIP.Enabled = getEnvAsBool("GEOIP_ENABLED", cfg.GeoIP.Enabled)
	cfg.GeoIP.DBPath = getEnv("GEOIP_DB_PATH", cfg.GeoIP.DBPath)

	// 限流配置
	cfg.RateLimit.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	// 定时任务配置，设为空字符串可禁用对应任务
	cfg.Scheduler.CacheGC = getEnv("SCHEDULER_CACHE_GC", cfg.Scheduler.CacheGC)
	cfg.Scheduler.SessionSweep = getEnv("SCHEDULER_SESSION_SWEEP", cfg.Scheduler.SessionSweep)
	cfg.Scheduler.SystemStats = getEnv("SCHEDULER_SYSTEM_STATS", cfg.Scheduler.SystemStats)
	cfg.Scheduler.Maintenance = getEnv("SCHEDULER_MAINTENANCE", cfg.Scheduler.Maintenance)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt 获取环境变量并转换为整数，如果不存在或转换失败则返回默认值
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool 获取环境变量并转换为布尔值，如果不存在或转换失败则返回默认值
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration 获取环境变量并解析为时间间隔（如 30s、5m），如果不存在或解析失败则返回默认值
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList 获取逗号分隔的环境变量，忽略空项
func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
