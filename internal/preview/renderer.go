package preview

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer 把页面渲染为PNG截图
type Renderer interface {
	Screenshot(ctx context.Context, url string, width, height int) ([]byte, error)
}

// RodRenderer 使用无头Chrome渲染截图，浏览器在第一次使用时启动
type RodRenderer struct {
	bin string

	mu      sync.Mutex
	browser *rod.Browser
	launch  *launcher.Launcher
}

// NewRodRenderer 创建渲染器，bin为空时由rod自动查找或下载浏览器
func NewRodRenderer(bin string) *RodRenderer {
	return &RodRenderer{bin: bin}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect browser: %w", err)
	}
	r.browser = browser
	r.launch = l
	return browser, nil
}

// Screenshot 打开页面，等待加载完成后截取视口
func (r *RodRenderer) Screenshot(ctx context.Context, url string, width, height int) ([]byte, error) {
	browser, err := r.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, err
	}
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page did not load: %w", err)
	}

	return page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close 关闭浏览器
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launch.Kill()
	r.browser = nil
	r.launch = nil
	return err
}
