package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dev365-portal/internal/api/routes"
	"dev365-portal/internal/apiclient"
	"dev365-portal/internal/auth"
	"dev365-portal/internal/config"
	"dev365-portal/internal/logging"
	"dev365-portal/internal/middleware"
	"dev365-portal/internal/monitoring"
	"dev365-portal/internal/preview"
	"dev365-portal/internal/query"
	"dev365-portal/internal/redis"
	"dev365-portal/internal/scheduler"
	"dev365-portal/internal/services"
)

// visitorTTL 限流访客记录的保留时间
const visitorTTL = 10 * time.Minute

func main() {
	// 解析命令行参数
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Configure(loggingConfig(cfg))

	// 获取配置管理器实例并启动配置文件监控
	configManager := config.GetInstance()
	if err := configManager.StartWatching(); err != nil {
		logging.DefaultLogger.Warn("Failed to start config watching: %v", err)
	}
	configManager.AddConfigChangeHandler(func(newConfig *config.Config) {
		// 只有日志配置支持热更新，其余配置需要重启
		logging.Configure(loggingConfig(newConfig))
		logging.DefaultLogger.LogUserAction("system", "localhost", "config_update", "global_config",
			map[string]interface{}{"source": "config_file"}, "success", "Logging configuration reloaded")
	})

	// 监控
	monitor := monitoring.NewMonitor(monitoring.Config{
		Enabled:           cfg.Monitoring.Enabled,
		PrometheusAddress: cfg.Monitoring.PrometheusAddress,
	})
	if err := monitor.Start(); err != nil {
		log.Fatalf("Failed to start monitoring: %v", err)
	}

	// Redis，缓存或会话使用redis时才连接
	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" || cfg.Auth.SessionStore == "redis" {
		redisClient, err = redis.NewClient(cfg.Cache.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		logging.DefaultLogger.Info("Connected to redis at %s", cfg.Cache.RedisURL)
	}

	// 查询缓存
	cacheOpts := []query.CacheOption{
		query.WithStaleTime(cfg.Cache.StaleTime),
		query.WithObserver(monitor),
	}
	if cfg.Cache.Type == "redis" {
		cacheOpts = append(cacheOpts, query.WithStore(query.NewRedisStore(redisClient, cfg.Cache.CacheTime)))
	}
	cache := query.NewCache(cacheOpts...)
	if cfg.Cache.Type == "redis" {
		bus := query.NewBus(redisClient, cache, func(err error) {
			logging.DefaultLogger.Warn("Cache invalidation bus error: %v", err)
		})
		if err := bus.Start(); err != nil {
			log.Fatalf("Failed to subscribe to cache invalidations: %v", err)
		}
		defer bus.Stop()
	}

	api := apiclient.New(cfg.API.BaseURL,
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithObserver(monitor),
	)
	service := query.NewService(api, cache, query.WithLimitStaleTime(cfg.Cache.LimitStaleTime))

	// 认证
	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		SecretKey:  cfg.Auth.JWTSecret,
		ExpireTime: cfg.Auth.SessionTTL,
	})
	sessions, err := newSessionStore(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}

	deps := routes.Dependencies{
		Config:     cfg,
		Service:    service,
		JWTManager: jwtManager,
		Sessions:   sessions,
		Redis:      redisClient,
		Monitor:    monitor,
	}

	if cfg.Auth.OIDC.IssuerURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		provider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.Auth.OIDC.IssuerURL,
			ClientID:     cfg.Auth.OIDC.ClientID,
			ClientSecret: cfg.Auth.OIDC.ClientSecret,
			RedirectURL:  cfg.Auth.OIDC.RedirectURL,
			Scopes:       cfg.Auth.OIDC.Scopes,
		})
		cancel()
		if err != nil {
			log.Fatalf("Failed to discover identity provider: %v", err)
		}
		deps.Provider = provider
		deps.Verifier = provider
		logging.DefaultLogger.Info("Identity provider %s configured", cfg.Auth.OIDC.IssuerURL)
	} else {
		logging.DefaultLogger.Warn("No identity provider configured, sign-in is disabled")
	}

	// 地理位置
	var geoPath string
	if cfg.GeoIP.Enabled {
		geoPath = cfg.GeoIP.DBPath
	}
	deps.GeoIP = services.NewGeoIPServiceOrFallback(geoPath)
	defer deps.GeoIP.Close()

	// 预览截图
	if cfg.Preview.Enabled {
		renderer := preview.NewRodRenderer(cfg.Preview.BrowserBin)
		defer renderer.Close()
		deps.Preview = preview.NewService(preview.Config{
			Enabled:   true,
			Timeout:   cfg.Preview.Timeout,
			CacheSize: cfg.Preview.CacheSize,
			CacheTTL:  cfg.Preview.CacheTTL,
			Width:     cfg.Preview.Width,
			Height:    cfg.Preview.Height,
		}, renderer, monitor)
	}

	// 入口限流
	if cfg.RateLimit.Enabled {
		deps.IPLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, visitorTTL)
	}

	// 定时任务
	sched := scheduler.NewScheduler(time.Minute)
	if err := registerJobs(sched, cfg, cache, sessions, monitor, deps); err != nil {
		log.Fatalf("Failed to register scheduled jobs: %v", err)
	}
	sched.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      routes.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logging.DefaultLogger.Info("Portal server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start portal server: %v", err)
		}
	}()

	// 等待退出信号后优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.DefaultLogger.Info("Shutting down portal server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.DefaultLogger.Error("Portal server forced to shutdown: %v", err)
	}
	sched.Stop()
	configManager.StopWatching()
	if err := monitor.Stop(ctx); err != nil {
		logging.DefaultLogger.Error("Failed to stop monitoring: %v", err)
	}
	logging.DefaultLogger.Info("Portal server stopped")
}

func loggingConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		Level:        cfg.Logging.Level,
		Output:       cfg.Logging.Output,
		AuditEnabled: cfg.Logging.AuditEnabled,
		AuditOutput:  cfg.Logging.AuditOutput,
	}
}

// newSessionStore 按配置创建会话存储，redis存储中的身份令牌使用token_key加密
func newSessionStore(cfg *config.Config, client *redis.Client) (auth.SessionStore, error) {
	if cfg.Auth.SessionStore != "redis" {
		return auth.NewMemorySessionStore(), nil
	}
	sealer, err := auth.NewSealer(cfg.Auth.TokenKey)
	if err != nil {
		return nil, err
	}
	return auth.NewRedisSessionStore(client, sealer), nil
}

// registerJobs 注册缓存回收、会话清理、主机指标采集和维护任务
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, cache *query.Cache, sessions auth.SessionStore, monitor *monitoring.Monitor, deps routes.Dependencies) error {
	if err := sched.AddJob("cache-gc", cfg.Scheduler.CacheGC, scheduler.CacheGCJob(cache, cfg.Cache.CacheTime)); err != nil {
		return err
	}
	if err := sched.AddJob("session-sweep", cfg.Scheduler.SessionSweep, scheduler.SessionSweepJob(sessions, monitor)); err != nil {
		return err
	}
	if err := sched.AddJob("system-stats", cfg.Scheduler.SystemStats, scheduler.SystemStatsJob(monitor)); err != nil {
		return err
	}

	var tasks []scheduler.JobFunc
	if deps.Preview != nil {
		tasks = append(tasks, deps.Preview.ClearExpired)
	}
	if limiter := deps.IPLimiter; limiter != nil {
		tasks = append(tasks, func(context.Context) error {
			if removed := limiter.Cleanup(time.Now()); removed > 0 {
				logging.DefaultLogger.Debug("Rate limiter dropped %d idle visitors", removed)
			}
			return nil
		})
	}
	if len(tasks) == 0 {
		return nil
	}
	return sched.AddJob("maintenance", cfg.Scheduler.Maintenance, scheduler.MaintenanceJob(tasks...))
}
