package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	// ErrMissingIDToken 令牌响应中没有id_token
	ErrMissingIDToken = errors.New("missing id_token")
	// ErrNonceMismatch id_token中的nonce与登录时不一致
	ErrNonceMismatch = errors.New("id_token nonce mismatch")
)

// Provider 身份提供方
type Provider interface {
	// AuthCodeURL 登录跳转地址
	AuthCodeURL(state, nonce string) string
	// Exchange 用授权码换取令牌并校验id_token
	Exchange(ctx context.Context, code, nonce string) (*Identity, *oauth2.Token, error)
	// TokenSource 返回会自动刷新的令牌源
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// BearerVerifier 校验客户端直接携带的身份提供方令牌
type BearerVerifier interface {
	VerifyBearer(ctx context.Context, raw string) (*Identity, error)
}

// OIDCConfig OIDC客户端配置
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCProvider 基于OpenID Connect的身份提供方
type OIDCProvider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider 通过发现文档初始化身份提供方
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &OIDCProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL 登录跳转地址
func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	return p.oauth.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.AccessTypeOffline)
}

// Exchange 用授权码换取令牌并校验id_token
func (p *OIDCProvider) Exchange(ctx context.Context, code, nonce string) (*Identity, *oauth2.Token, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, nil, ErrMissingIDToken
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid id_token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, nil, ErrNonceMismatch
	}

	identity, err := identityFromToken(idToken)
	if err != nil {
		return nil, nil, err
	}
	return identity, tok, nil
}

// TokenSource 返回会自动刷新的令牌源
func (p *OIDCProvider) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return p.oauth.TokenSource(ctx, tok)
}

// VerifyBearer 校验id_token格式的Bearer令牌
func (p *OIDCProvider) VerifyBearer(ctx context.Context, raw string) (*Identity, error) {
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return identityFromToken(idToken)
}

func identityFromToken(idToken *oidc.IDToken) (*Identity, error) {
	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}
	if idToken.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	return &Identity{Subject: idToken.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// RandomString 生成URL安全的随机字符串，用于state和nonce
func RandomString() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
