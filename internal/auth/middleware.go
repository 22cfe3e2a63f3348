package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrSessionExpired 会话已过期或已被注销
var ErrSessionExpired = errors.New("session expired")

const (
	ctxIdentityKey    = "auth_identity"
	ctxSessionIDKey   = "auth_session_id"
	ctxTokenSourceKey = "auth_token_source"
)

// TokenSource 提供转发给后端的access token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MiddlewareConfig 会话中间件配置
type MiddlewareConfig struct {
	JWT        *JWTManager
	Store      SessionStore
	Provider   Provider
	Verifier   BearerVerifier
	CookieName string
}

// SessionMiddleware 会话认证中间件
// 优先读取会话Cookie，其次读取Authorization头。门户会话JWT无法验证时，
// 若配置了Verifier则把Bearer视为身份提供方令牌直接校验并透传给后端。
func SessionMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := extractToken(c, cfg.CookieName)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		// 门户会话
		if claims, jwtErr := cfg.JWT.ValidateToken(raw); jwtErr == nil {
			sess, err := cfg.Store.Get(c.Request.Context(), claims.SessionID)
			if err != nil || sess.Expired(time.Now()) {
				abortUnauthorized(c, ErrSessionExpired)
				return
			}
			c.Set(ctxIdentityKey, &Identity{Subject: sess.UserID, Email: sess.Email, Name: sess.Name})
			c.Set(ctxSessionIDKey, sess.ID)
			c.Set(ctxTokenSourceKey, TokenSource(NewSessionTokenSource(cfg.Store, cfg.Provider, sess.ID)))
			c.Next()
			return
		} else if errors.Is(jwtErr, ErrExpiredToken) {
			abortUnauthorized(c, ErrExpiredToken)
			return
		}

		// 身份提供方令牌
		if cfg.Verifier == nil {
			abortUnauthorized(c, ErrInvalidToken)
			return
		}
		identity, err := cfg.Verifier.VerifyBearer(c.Request.Context(), raw)
		if err != nil {
			abortUnauthorized(c, ErrInvalidToken)
			return
		}
		c.Set(ctxIdentityKey, identity)
		c.Set(ctxTokenSourceKey, TokenSource(StaticTokenSource(raw)))
		c.Next()
	}
}

func extractToken(c *gin.Context, cookieName string) (string, error) {
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			return v, nil
		}
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthHeader
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrInvalidAuthFormat
	}
	return parts[1], nil
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": err.Error(),
	})
}

// CurrentIdentity 获取当前用户
func CurrentIdentity(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(ctxIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}

// CurrentSessionID 获取当前会话ID，直接使用身份提供方令牌时为空
func CurrentSessionID(c *gin.Context) string {
	return c.GetString(ctxSessionIDKey)
}

// CurrentTokenSource 获取当前请求的令牌源
func CurrentTokenSource(c *gin.Context) TokenSource {
	if v, ok := c.Get(ctxTokenSourceKey); ok {
		if ts, ok := v.(TokenSource); ok {
			return ts
		}
	}
	return nil
}
