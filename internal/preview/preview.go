package preview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"dev365-portal/internal/models"
)

var (
	// ErrNotDeployed 网站尚未部署，没有可截图的地址
	ErrNotDeployed = errors.New("website has no deployment url")
	// ErrInvalidURL 部署地址不是http或https
	ErrInvalidURL = errors.New("deployment url must be http or https")
	// ErrDisabled 预览功能未启用
	ErrDisabled = errors.New("preview is disabled")
)

// Shot 一张网站截图
type Shot struct {
	WebsiteID  string
	URL        string
	PNG        []byte
	CapturedAt time.Time
}

// Config 预览配置
type Config struct {
	Enabled   bool
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	Width     int
	Height    int
}

// RenderObserver 接收渲染耗时
type RenderObserver interface {
	RecordRenderTime(d time.Duration)
}

// Service 已部署网站的预览截图服务
type Service struct {
	config   Config
	renderer Renderer
	cache    *lruCache
	group    singleflight.Group
	observer RenderObserver
	now      func() time.Time
}

// NewService 创建预览服务，observer可为nil
func NewService(config Config, renderer Renderer, observer RenderObserver) *Service {
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 800
	}
	return &Service{
		config:   config,
		renderer: renderer,
		cache:    newLRUCache(config.CacheSize),
		observer: observer,
		now:      time.Now,
	}
}

// DeploymentURL 校验并返回网站的部署地址
func DeploymentURL(w *models.Website) (string, error) {
	if w == nil || w.DeploymentURL == "" {
		return "", ErrNotDeployed
	}
	u, err := url.Parse(w.DeploymentURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

// Capture 返回网站截图，缓存命中时不重新渲染，同一地址的并发请求只渲染一次
func (s *Service) Capture(ctx context.Context, w *models.Website) (*Shot, error) {
	if !s.config.Enabled {
		return nil, ErrDisabled
	}
	target, err := DeploymentURL(w)
	if err != nil {
		return nil, err
	}

	if shot, ok := s.cache.get(target, s.config.CacheTTL, s.now()); ok {
		return &Shot{WebsiteID: w.ID, URL: shot.URL, PNG: shot.PNG, CapturedAt: shot.CapturedAt}, nil
	}

	v, err, _ := s.group.Do(target, func() (interface{}, error) {
		renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Timeout)
		defer cancel()

		start := time.Now()
		png, err := s.renderer.Screenshot(renderCtx, target, s.config.Width, s.config.Height)
		if s.observer != nil {
			s.observer.RecordRenderTime(time.Since(start))
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", target, err)
		}
		shot := &Shot{URL: target, PNG: png, CapturedAt: s.now()}
		s.cache.put(target, shot)
		return shot, nil
	})
	if err != nil {
		return nil, err
	}
	shot := v.(*Shot)
	return &Shot{WebsiteID: w.ID, URL: shot.URL, PNG: shot.PNG, CapturedAt: shot.CapturedAt}, nil
}

// Forget 丢弃网站的缓存截图
func (s *Service) Forget(w *models.Website) {
	if target, err := DeploymentURL(w); err == nil {
		s.cache.remove(target)
	}
}

// ClearExpired 清理过期截图，供定时任务调用
func (s *Service) ClearExpired(context.Context) error {
	if s.config.CacheTTL > 0 {
		s.cache.clearExpired(s.config.CacheTTL, s.now())
	}
	return nil
}
