package authapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-client/authapi"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
)

func newClient(t *testing.T, handler http.HandlerFunc) *authapi.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := authapi.New(srv.URL+"/api/", authapi.DefaultEndpoints())
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := authapi.New("  ", authapi.DefaultEndpoints())
	require.Error(t, err)
}

func TestClient_URL(t *testing.T) {
	c, err := authapi.New("https://backoffice.example/api/", authapi.DefaultEndpoints())
	require.NoError(t, err)
	require.Equal(t, "https://backoffice.example/api/token/refresh/", c.URL("/token/refresh/"))
	require.Equal(t, "https://backoffice.example/api/auth/permissions/", c.URL(c.Endpoints().Permissions))
}

func TestClient_Login(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/token/", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var creds authapi.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Username == "alice" {
			_, _ = w.Write([]byte(`{"mfa_required": true, "temp_token": "tmp"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access": "a", "refresh": "r"}`))
	})

	tr, err := c.Login(context.Background(), authapi.Credentials{Username: "bob", Password: "x"})
	require.NoError(t, err)
	require.True(t, tr.HasTokenPair())
	require.Equal(t, "a", *tr.Access)

	tr, err = c.Login(context.Background(), authapi.Credentials{Username: "alice", Password: "x"})
	require.NoError(t, err)
	require.False(t, tr.HasTokenPair())
	require.True(t, tr.MfaRequired)
	require.Equal(t, "tmp", *tr.TempToken)
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantAuth   bool
		wantReason string
	}{
		{name: "detail", status: http.StatusUnauthorized, body: `{"detail": "No active account"}`, wantAuth: true, wantReason: "No active account"},
		{name: "error field", status: http.StatusBadRequest, body: `{"error": "Invalid code"}`, wantAuth: true, wantReason: "Invalid code"},
		{name: "message field", status: http.StatusForbidden, body: `{"message": "Locked"}`, wantAuth: true, wantReason: "Locked"},
		{name: "no body", status: http.StatusUnauthorized, body: ``, wantAuth: true},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"detail": "slow down"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Refresh(context.Background(), "r")
			require.Error(t, err)

			var authErr *apperrors.AuthError
			if !tt.wantAuth {
				require.False(t, errors.As(err, &authErr))
				require.ErrorIs(t, err, apperrors.ErrTransport)
				return
			}
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, tt.status, authErr.Status)
			require.Equal(t, tt.wantReason, authErr.Reason)
			require.NotErrorIs(t, err, apperrors.ErrTransport)
		})
	}
}

func TestClient_MalformedSuccessBodyIsTransport(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := c.VerifyMfa(context.Background(), "tmp", "123456")
	require.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := authapi.New(url, authapi.DefaultEndpoints())
	require.NoError(t, err)

	_, err = c.Login(context.Background(), authapi.Credentials{Username: "bob", Password: "x"})
	var transportErr *apperrors.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "login", transportErr.Op)
	require.Zero(t, transportErr.Status)
}
