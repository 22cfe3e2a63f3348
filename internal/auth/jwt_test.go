package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestJWT() *JWTManager {
	return NewJWTManager(&JWTConfig{SecretKey: testSecret, ExpireTime: time.Hour})
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestJWT()
	sess := &Session{ID: "s-1", UserID: "user_1", Email: "a@example.com", Name: "Asha"}

	token, err := m.GenerateToken(sess)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.SessionID)
	assert.Equal(t, "user_1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestValidateToken_Rejects(t *testing.T) {
	m := newTestJWT()

	// 签名密钥不同
	other := NewJWTManager(&JWTConfig{SecretKey: "ffffffffffffffffffffffffffffffff", ExpireTime: time.Hour})
	token, err := other.GenerateToken(&Session{ID: "s", UserID: "u"})
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 已过期
	expired := NewJWTManager(&JWTConfig{SecretKey: testSecret, ExpireTime: -time.Minute})
	token, err = expired.GenerateToken(&Session{ID: "s", UserID: "u"})
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	// 缺少会话ID
	token, err = m.GenerateToken(&Session{UserID: "u"})
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 其他签名算法
	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{SessionID: "s", UserID: "u"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ValidateToken(raw)
	assert.Error(t, err)

	_, err = m.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestStateToken(t *testing.T) {
	m := newTestJWT()

	token, err := m.GenerateState("st", "nc", "/dashboard/requests")
	require.NoError(t, err)

	claims, err := m.ValidateState(token, "st")
	require.NoError(t, err)
	assert.Equal(t, "nc", claims.Nonce)
	assert.Equal(t, "/dashboard/requests", claims.ReturnTo)

	_, err = m.ValidateState(token, "other")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = m.ValidateState(token, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateTokenIsNotASession(t *testing.T) {
	m := newTestJWT()

	state, err := m.GenerateState("st", "nc", "")
	require.NoError(t, err)
	_, err = m.ValidateToken(state)
	assert.Error(t, err)

	session, err := m.GenerateToken(&Session{ID: "s", UserID: "u"})
	require.NoError(t, err)
	_, err = m.ValidateState(session, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}
