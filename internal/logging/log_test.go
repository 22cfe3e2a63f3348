package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var out bytes.Buffer
	logger := NewLoggerWithWriters(Config{Level: "warn"}, &out, nil)

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)
	logger.Error("error %d", 4)

	text := out.String()
	assert.NotContains(t, text, "debug 1")
	assert.NotContains(t, text, "info 2")
	assert.Contains(t, text, "[WARN]  ")
	assert.Contains(t, text, "warn 3")
	assert.Contains(t, text, "[ERROR] ")
	assert.Contains(t, text, "error 4")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestAuditDisabled(t *testing.T) {
	var out bytes.Buffer
	logger := NewLoggerWithWriters(Config{Level: "info", AuditEnabled: true}, &out, nil)
	logger.LogUserAction("u1", "1.2.3.4", "create", "request", nil, "success", "ok")
	assert.Empty(t, out.String())
}

func TestUserActionAudit(t *testing.T) {
	var out, audit bytes.Buffer
	logger := NewLoggerWithWriters(Config{Level: "info", AuditEnabled: true}, &out, &audit)

	logger.LogUserAction("user-1", "10.0.0.1", "create_request", "requests", map[string]interface{}{"projectName": "Shop"}, "success", "request created")

	var entry AuditLogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(audit.String())), &entry))
	assert.Equal(t, "USER", entry.Level)
	assert.Equal(t, "user_action", entry.EventType)
	assert.Equal(t, "user-1", entry.User)
	assert.Equal(t, "create_request", entry.Action)
	assert.Equal(t, "Shop", entry.Details["projectName"])
	assert.False(t, entry.Timestamp.IsZero())
}

func TestSecurityEventCarriesCountry(t *testing.T) {
	var out, audit bytes.Buffer
	logger := NewLoggerWithWriters(Config{Level: "info", AuditEnabled: true}, &out, &audit)

	logger.LogSecurityEvent("sign_in", "81.2.69.160", "GB", nil, "success", "signed in")

	var entry AuditLogEntry
	require.NoError(t, json.Unmarshal(audit.Bytes(), &entry))
	assert.Equal(t, "SECURITY", entry.Level)
	assert.Equal(t, "GB", entry.Country)
}

func TestRateLimitedWritesBoth(t *testing.T) {
	var out, audit bytes.Buffer
	logger := NewLoggerWithWriters(Config{Level: "info", AuditEnabled: true}, &out, &audit)

	logger.LogRateLimited("user-1", "10.0.0.1", "daily request limit", nil)
	assert.Contains(t, out.String(), "Rate limited: user=user-1")
	assert.Contains(t, audit.String(), `"event_type":"rate_limited"`)
}
