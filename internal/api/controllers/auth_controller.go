package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dev365-portal/internal/auth"
	"dev365-portal/internal/logging"
)

const signInCookie = "dev365_signin"

// CookieConfig 会话Cookie配置
type CookieConfig struct {
	Name       string
	Secure     bool
	SessionTTL time.Duration
}

// AuthController 认证控制器
type AuthController struct {
	provider   auth.Provider
	jwtManager *auth.JWTManager
	sessions   auth.SessionStore
	cookie     CookieConfig
	geo        CountryResolver
}

// NewAuthController 创建认证控制器实例，provider为nil时登录不可用
func NewAuthController(provider auth.Provider, jwtManager *auth.JWTManager, sessions auth.SessionStore, cookie CookieConfig, geo CountryResolver) *AuthController {
	return &AuthController{
		provider:   provider,
		jwtManager: jwtManager,
		sessions:   sessions,
		cookie:     cookie,
		geo:        geo,
	}
}

// Login 跳转到身份提供方登录
func (c *AuthController) Login(ctx *gin.Context) {
	if c.provider == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    http.StatusServiceUnavailable,
			"message": "Sign-in is not configured",
		})
		return
	}

	state, err := auth.RandomString()
	if err != nil {
		respondInternal(ctx, "Failed to start sign-in")
		return
	}
	nonce, err := auth.RandomString()
	if err != nil {
		respondInternal(ctx, "Failed to start sign-in")
		return
	}
	signed, err := c.jwtManager.GenerateState(state, nonce, safeReturnTo(ctx.Query("returnTo")))
	if err != nil {
		respondInternal(ctx, "Failed to start sign-in")
		return
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(signInCookie, signed, int((10 * time.Minute).Seconds()), "/", "", c.cookie.Secure, true)
	ctx.Redirect(http.StatusFound, c.provider.AuthCodeURL(state, nonce))
}

// Callback 身份提供方回调，创建会话并跳回原页面
func (c *AuthController) Callback(ctx *gin.Context) {
	if c.provider == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    http.StatusServiceUnavailable,
			"message": "Sign-in is not configured",
		})
		return
	}

	ip := ctx.ClientIP()
	country := c.country(ip)
	fail := func(reason string, err error) {
		logging.DefaultLogger.LogSecurityEvent("sign_in", ip, country, map[string]interface{}{"reason": reason}, "failure", err.Error())
		ctx.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "Sign-in failed",
		})
	}

	if errParam := ctx.Query("error"); errParam != "" {
		fail("provider_error", auth.ErrInvalidState)
		return
	}

	stateCookie, err := ctx.Cookie(signInCookie)
	if err != nil {
		fail("missing_state", auth.ErrInvalidState)
		return
	}
	ctx.SetCookie(signInCookie, "", -1, "/", "", c.cookie.Secure, true)

	state, err := c.jwtManager.ValidateState(stateCookie, ctx.Query("state"))
	if err != nil {
		fail("state_mismatch", err)
		return
	}

	identity, tok, err := c.provider.Exchange(ctx.Request.Context(), ctx.Query("code"), state.Nonce)
	if err != nil {
		fail("exchange", err)
		return
	}

	sess := auth.NewSession(*identity, tok, c.cookie.SessionTTL)
	if err := c.sessions.Save(ctx.Request.Context(), sess); err != nil {
		logging.DefaultLogger.Error("Failed to save session for %s: %v", identity.Subject, err)
		respondInternal(ctx, "Failed to create session")
		return
	}
	signed, err := c.jwtManager.GenerateToken(sess)
	if err != nil {
		respondInternal(ctx, "Failed to create session")
		return
	}

	logging.DefaultLogger.LogSecurityEvent("sign_in", ip, country, map[string]interface{}{
		"user_id":    identity.Subject,
		"session_id": sess.ID,
	}, "success", "User signed in")

	c.setSessionCookie(ctx, signed, int(c.cookie.SessionTTL.Seconds()))
	ctx.Redirect(http.StatusFound, state.ReturnTo)
}

// Logout 注销会话
func (c *AuthController) Logout(ctx *gin.Context) {
	if sid := auth.CurrentSessionID(ctx); sid != "" {
		if err := c.sessions.Delete(ctx.Request.Context(), sid); err != nil {
			logging.DefaultLogger.Warn("Failed to delete session %s: %v", sid, err)
		}
	}
	c.setSessionCookie(ctx, "", -1)

	ip := ctx.ClientIP()
	logging.DefaultLogger.LogSecurityEvent("sign_out", ip, c.country(ip), map[string]interface{}{
		"user_id": currentUser(ctx),
	}, "success", "User signed out")

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "Logout successful",
	})
}

// Me 当前登录用户
func (c *AuthController) Me(ctx *gin.Context) {
	id, ok := auth.CurrentIdentity(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "Not authenticated"})
		return
	}
	respondSuccess(ctx, id)
}

func (c *AuthController) setSessionCookie(ctx *gin.Context, value string, maxAge int) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(c.cookie.Name, value, maxAge, "/", "", c.cookie.Secure, true)
}

func (c *AuthController) country(ip string) string {
	if c.geo == nil {
		return ""
	}
	return c.geo.Country(ip)
}

// safeReturnTo 只允许站内相对路径，防止开放重定向
func safeReturnTo(returnTo string) string {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.Contains(returnTo, `\`) {
		return "/dashboard"
	}
	return returnTo
}

func respondInternal(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"code":    http.StatusInternalServerError,
		"message": message,
	})
}
