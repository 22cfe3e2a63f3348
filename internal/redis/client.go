package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// 键前缀
const (
	cacheKeyPrefix   = "dev365:cache:"
	sessionKeyPrefix = "dev365:session:"
)

// ErrCacheConflict 读改写期间条目被其他连接修改，本次写入已放弃
var ErrCacheConflict = errors.New("cache entry changed concurrently")

// Client Redis客户端结构体
// 封装了Redis客户端的核心功能，提供查询缓存、会话存储和失效广播所需的操作
//
// 字段:
//   client: 底层的Redis客户端实例
//   ctx: 后台任务使用的上下文
type Client struct {
	client *redis.Client
	ctx    context.Context
}

// NewClient 创建新的Redis客户端
// 支持两种格式的Redis URL:
// 1. 简单格式: localhost:6379
// 2. URL格式: redis://[:password@]host:port/db
//
// 示例:
//
//	client, err := redis.NewClient("localhost:6379")
//	client, err := redis.NewClient("redis://:password@localhost:6379/0")
func NewClient(redisURL string) (*Client, error) {
	opt, err := parseOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &Client{
		client: client,
		ctx:    ctx,
	}, nil
}

// NewClientFromRaw 用已有的go-redis客户端创建Client，不做连通性检查
func NewClientFromRaw(raw *redis.Client) *Client {
	return &Client{client: raw, ctx: context.Background()}
}

// parseOptions 把Redis URL解析为连接选项
func parseOptions(redisURL string) (*redis.Options, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis URL is empty")
	}
	opt := &redis.Options{}

	// 纯主机名或IP地址，缺省端口6379
	if !strings.Contains(redisURL, "://") {
		opt.Addr = redisURL
		if !strings.Contains(opt.Addr, ":") {
			opt.Addr = fmt.Sprintf("%s:6379", opt.Addr)
		}
		return opt, nil
	}

	parsed, err := url.Parse(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %v", err)
	}
	if parsed.Scheme != "redis" && parsed.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported redis URL scheme %q", parsed.Scheme)
	}

	opt.Addr = parsed.Host
	if !strings.Contains(opt.Addr, ":") {
		opt.Addr = fmt.Sprintf("%s:6379", opt.Addr)
	}

	// 解析用户名和密码
	if parsed.User != nil {
		if pw, ok := parsed.User.Password(); ok {
			opt.Password = pw
			opt.Username = parsed.User.Username()
		} else {
			opt.Password = parsed.User.Username()
		}
	}

	// 解析数据库编号
	if parsed.Path != "" && parsed.Path != "/" {
		var db int
		if _, err := fmt.Sscanf(parsed.Path[1:], "%d", &db); err != nil {
			return nil, fmt.Errorf("invalid redis database %q", parsed.Path[1:])
		}
		opt.DB = db
	}
	return opt, nil
}

// Context 获取上下文
func (c *Client) Context() context.Context {
	return c.ctx
}

// GetRawClient 获取原始Redis客户端实例
func (c *Client) GetRawClient() *redis.Client {
	return c.client
}

// Ping 检查连接是否可用
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (c *Client) Close() error {
	return c.client.Close()
}

// === 查询缓存 ===

// CacheGet 读取缓存条目，不存在时返回 found=false
func (c *Client) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry %s: %v", key, err)
	}
	return val, true, nil
}

// CacheSet 写入缓存条目，ttl为0表示不过期
func (c *Client) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, cacheKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry %s: %v", key, err)
	}
	return nil
}

// CacheUpdate 以WATCH/MULTI读改写缓存条目，条目不存在时不写入。
// 读取与写入之间条目被修改时返回 ErrCacheConflict，不会覆盖对方的写入
func (c *Client) CacheUpdate(ctx context.Context, key string, ttl time.Duration, update func([]byte) ([]byte, error)) error {
	full := cacheKeyPrefix + key
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, full).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		next, err := update(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, next, ttl)
			return nil
		})
		return err
	}, full)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrCacheConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update cache entry %s: %w", key, err)
	}
	return nil
}

// CacheDelete 删除缓存条目
func (c *Client) CacheDelete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = cacheKeyPrefix + k
	}
	return c.client.Del(ctx, full...).Err()
}

// CacheKeys 使用SCAN列出以prefix开头的缓存键（返回值不含内部前缀）
func (c *Client) CacheKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), cacheKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %v", err)
	}
	return keys, nil
}

// CacheClear 清除所有缓存条目，返回删除数量
func (c *Client) CacheClear(ctx context.Context) (int64, error) {
	keys, err := c.CacheKeys(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.CacheDelete(ctx, keys...); err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// escapeGlob 转义SCAN匹配模式中的特殊字符
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

// === 会话管理 ===

// SaveSession 保存会话字段并设置过期时间
func (c *Client) SaveSession(ctx context.Context, sessionID string, fields map[string]interface{}, expiration time.Duration) error {
	key := sessionKeyPrefix + sessionID
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session %s: %v", sessionID, err)
	}
	return nil
}

// GetSession 获取会话信息，会话不存在时返回空map
func (c *Client) GetSession(ctx context.Context, sessionID string) (map[string]string, error) {
	return c.client.HGetAll(ctx, sessionKeyPrefix+sessionID).Result()
}

// UpdateSessionFields 更新会话的部分字段，不改变过期时间
func (c *Client) UpdateSessionFields(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	key := sessionKeyPrefix + sessionID
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return c.client.HSet(ctx, key, fields).Err()
}

// DeleteSession 删除会话
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

// CheckSessionExists 检查会话是否存在
func (c *Client) CheckSessionExists(ctx context.Context, sessionID string) (bool, error) {
	val, err := c.client.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return val > 0, nil
}

// CountSessions 统计现存会话数量
func (c *Client) CountSessions(ctx context.Context) (int, error) {
	count := 0
	iter := c.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// Publish 发布消息到指定频道
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.client.Publish(ctx, channel, message).Err()
}
