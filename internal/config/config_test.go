package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewFromMap_Defaults(t *testing.T) {
	c, err := config.NewFromMap(map[string]string{})
	require.NoError(t, err)

	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "http://localhost:8000/api", c.GetAPIBaseURL())
	require.Equal(t, "/token/", c.GetLoginPath())
	require.Equal(t, "/token/refresh/", c.GetRefreshPath())
	require.Equal(t, "/auth/mfa/verify/", c.GetMfaVerifyPath())
	require.Equal(t, "/auth/permissions/", c.GetPermissionsPath())
	require.Equal(t, 15*time.Second, c.GetHTTPTimeout())
	require.Equal(t, 5, c.GetMaxMfaFailures())
	require.Zero(t, c.GetMfaChallengeTTL())
	require.Equal(t, 2*time.Second, c.GetKioskResetDelay())
	require.Equal(t, 3, c.GetKioskMaxMfaFailures())
	require.Equal(t, "sqlite", c.GetStoreBackend())
	require.Equal(t, 720*time.Hour, c.GetRedisTTL())
}

func TestNewFromMap_Overrides(t *testing.T) {
	c, err := config.NewFromMap(map[string]string{
		"ENV":                  "prod",
		"SESSION_API_BASE_URL": "https://exchange.example.com/api/",
		"SESSION_STORE":        " Redis ",
		"SESSION_REDIS_ADDR":   "localhost:6379",
		"KIOSK_RESET_DELAY":    "500ms",
		"SESSION_HTTP_TIMEOUT": "0s",
	})
	require.NoError(t, err)

	require.Equal(t, "PROD", c.GetEnv())
	require.Equal(t, "https://exchange.example.com/api", c.GetAPIBaseURL())
	require.Equal(t, "redis", c.GetStoreBackend())
	require.Equal(t, "localhost:6379", c.GetRedisAddr())
	require.Equal(t, 500*time.Millisecond, c.GetKioskResetDelay())
	require.Equal(t, 15*time.Second, c.GetHTTPTimeout())
}

func TestNewFromMap_InvalidDuration(t *testing.T) {
	_, err := config.NewFromMap(map[string]string{"KIOSK_RESET_DELAY": "soon"})
	require.Error(t, err)
}
