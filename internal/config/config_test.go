package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	// 写入测试配置
	path := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 8088
api:
  base_url: https://api.dev365.test/api
  timeout: 5s
cache:
  type: memory
  stale_time: 45s
auth:
  jwt_secret: `+testSecret+`
  token_key: `+testSecret+`
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "https://api.dev365.test/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Cache.StaleTime)

	// 未在文件中出现的字段保持默认值
	assert.Equal(t, 15*time.Second, cfg.Cache.LimitStaleTime)
	assert.Equal(t, "dev365_session", cfg.Auth.CookieName)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Auth.OIDC.Scopes)

	assert.Same(t, cfg, GetInstance().GetConfig())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://api.dev365.test/api
auth:
  jwt_secret: `+testSecret+`
  token_key: `+testSecret+`
`)
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("CACHE_STALE_TIME", "2m")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://dev365.in, ,https://www.dev365.in")
	t.Setenv("LOG_AUDIT_ENABLED", "false")
	t.Setenv("API_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Cache.StaleTime)
	assert.Equal(t, []string{"https://dev365.in", "https://www.dev365.in"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Logging.AuditEnabled)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: not a url
cache:
  type: memcached
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url")
	assert.Contains(t, err.Error(), "cache.type")
	assert.Contains(t, err.Error(), "auth.jwt_secret")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetInstance(t *testing.T) {
	// 测试单例模式
	instance1 := GetInstance()
	instance2 := GetInstance()
	assert.Equal(t, instance1, instance2)
}

func TestValidateConfig(t *testing.T) {
	manager := GetInstance()

	cfg := defaultConfig()
	cfg.API.BaseURL = "https://api.dev365.test"
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.TokenKey = testSecret
	assert.NoError(t, manager.ValidateConfig(cfg))

	cfg.Cache.Type = "redis"
	cfg.Cache.RedisURL = ""
	assert.Error(t, manager.ValidateConfig(cfg))

	cfg = defaultConfig()
	cfg.API.BaseURL = "https://api.dev365.test"
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.TokenKey = "short"
	assert.Error(t, manager.ValidateConfig(cfg))

	cfg.Auth.TokenKey = testSecret
	cfg.GeoIP.Enabled = true
	cfg.GeoIP.DBPath = ""
	assert.Error(t, manager.ValidateConfig(cfg))

	assert.Error(t, manager.ValidateConfig(nil))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEV365_TEST_ONLY=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("DEV365_TEST_ONLY") })

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from-dotenv", os.Getenv("DEV365_TEST_ONLY"))

	// 文件不存在时忽略
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}

func TestReloadIgnoresInvalidFile(t *testing.T) {
	manager := &ConfigManager{closeChan: make(chan struct{})}
	path := writeConfig(t, `
api:
  base_url: https://api.dev365.test
auth:
  jwt_secret: `+testSecret+`
  token_key: `+testSecret+`
`)
	manager.configPath = path
	manager.reloadConfig()
	require.NotNil(t, manager.GetConfig())
	good := manager.GetConfig()

	changed := make(chan *Config, 1)
	manager.AddConfigChangeHandler(func(c *Config) { changed <- c })

	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: \"\"\n"), 0644))
	manager.reloadConfig()
	assert.Same(t, good, manager.GetConfig())

	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
api:
  base_url: https://api.dev365.test
auth:
  jwt_secret: `+testSecret+`
  token_key: `+testSecret+`
`), 0644))
	manager.reloadConfig()
	select {
	case c := <-changed:
		assert.Equal(t, 9100, c.Server.Port)
	case <-time.After(time.Second):
		t.Fatal("change handler not called")
	}
}
