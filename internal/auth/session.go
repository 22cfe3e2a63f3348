package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/oauth2"

	"dev365-portal/internal/redis"
)

var (
	// ErrSessionNotFound 会话不存在或已过期
	ErrSessionNotFound = errors.New("session not found")
	// ErrSealedTokenCorrupt 无法解密会话中保存的令牌
	ErrSealedTokenCorrupt = errors.New("sealed token cannot be opened")
)

// Identity 身份提供方确认的用户
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Session 门户会话，保存身份提供方签发的令牌
type Session struct {
	ID        string
	UserID    string
	Email     string
	Name      string
	Token     *oauth2.Token
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession 为已登录用户创建会话
func NewSession(id Identity, tok *oauth2.Token, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		UserID:    id.Subject,
		Email:     id.Email,
		Name:      id.Name,
		Token:     tok,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired 会话是否已过期
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore 会话存储
type SessionStore interface {
	Save(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// Sweep 删除过期会话，返回删除数量
	Sweep(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// MemorySessionStore 进程内会话存储
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore 创建进程内会话存储
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (s *MemorySessionStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = *sess
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemorySessionStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// Sealer 使用secretbox加密保存身份提供方令牌
type Sealer struct {
	key [32]byte
}

// NewSealer 从配置的密钥派生加密密钥
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token key must be at least 32 bytes")
	}
	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("dev365-portal session token"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// Seal 加密明文，返回base64编码的nonce+密文
func (s *Sealer) Seal(plain []byte) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open 解密Seal的输出
func (s *Sealer) Open(sealed string) ([]byte, error) {
	box, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(box) < 24+secretbox.Overhead {
		return nil, ErrSealedTokenCorrupt
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealedTokenCorrupt
	}
	return plain, nil
}

// RedisSessionStore 基于Redis的会话存储，令牌加密保存，过期由Redis TTL处理
type RedisSessionStore struct {
	client *redis.Client
	sealer *Sealer
}

// NewRedisSessionStore 创建Redis会话存储
func NewRedisSessionStore(client *redis.Client, sealer *Sealer) *RedisSessionStore {
	return &RedisSessionStore{client: client, sealer: sealer}
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *Session) error {
	fields, err := encodeSession(sess, s.sealer)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return s.client.DeleteSession(ctx, sess.ID)
	}
	return s.client.SaveSession(ctx, sess.ID, fields, ttl)
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.client.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	sess, err := decodeSession(id, fields, s.sealer)
	if err != nil {
		return nil, err
	}
	if sess.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.DeleteSession(ctx, id)
}

// Sweep Redis按TTL自动清理，这里不需要做任何事
func (s *RedisSessionStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisSessionStore) Count(ctx context.Context) (int, error) {
	return s.client.CountSessions(ctx)
}

// encodeSession 把会话转换为Redis hash字段
func encodeSession(sess *Session, sealer *Sealer) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"user_id":    sess.UserID,
		"email":      sess.Email,
		"name":       sess.Name,
		"created_at": sess.CreatedAt.Unix(),
		"expires_at": sess.ExpiresAt.Unix(),
	}
	if sess.Token != nil {
		raw, err := json.Marshal(sess.Token)
		if err != nil {
			return nil, err
		}
		sealed, err := sealer.Seal(raw)
		if err != nil {
			return nil, err
		}
		fields["token"] = sealed
	}
	return fields, nil
}

// decodeSession 从Redis hash字段还原会话
func decodeSession(id string, fields map[string]string, sealer *Sealer) (*Session, error) {
	sess := &Session{
		ID:     id,
		UserID: fields["user_id"],
		Email:  fields["email"],
		Name:   fields["name"],
	}
	if sess.UserID == "" {
		return nil, ErrSessionNotFound
	}
	if v, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		sess.CreatedAt = time.Unix(v, 0)
	}
	v, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	sess.ExpiresAt = time.Unix(v, 0)

	if sealed := fields["token"]; sealed != "" {
		raw, err := sealer.Open(sealed)
		if err != nil {
			return nil, err
		}
		var tok oauth2.Token
		if err := json.Unmarshal(raw, &tok); err != nil {
			return nil, ErrSealedTokenCorrupt
		}
		sess.Token = &tok
	}
	return sess, nil
}
