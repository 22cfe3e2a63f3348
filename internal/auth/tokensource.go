package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SessionTokenSource 从会话中取出身份提供方的access token，过期时自动刷新并写回会话
type SessionTokenSource struct {
	store     SessionStore
	provider  Provider
	sessionID string

	mu sync.Mutex
}

// NewSessionTokenSource 创建会话令牌源，provider为nil时不刷新
func NewSessionTokenSource(store SessionStore, provider Provider, sessionID string) *SessionTokenSource {
	return &SessionTokenSource{store: store, provider: provider, sessionID: sessionID}
}

// Token 返回当前可用的access token，会话不存在时返回空字符串
func (s *SessionTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.Get(ctx, s.sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if sess.Token == nil || sess.Token.AccessToken == "" {
		return "", nil
	}
	if sess.Token.Valid() {
		return sess.Token.AccessToken, nil
	}
	if s.provider == nil || sess.Token.RefreshToken == "" {
		return "", nil
	}

	fresh, err := s.provider.TokenSource(ctx, sess.Token).Token()
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if fresh.AccessToken != sess.Token.AccessToken {
		sess.Token = fresh
		if err := s.store.Save(ctx, sess); err != nil {
			return "", err
		}
	}
	return fresh.AccessToken, nil
}

// StaticTokenSource 直接使用客户端携带的令牌
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}
