package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-client/internal/config"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/logging"
)

const maxBodyBytes = 1 << 20

// Endpoints are the paths, relative to the API base URL, the session core depends on.
type Endpoints struct {
	Login       string
	Refresh     string
	MfaVerify   string
	Permissions string
}

// DefaultEndpoints returns the back-office defaults.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:       "/token/",
		Refresh:     "/token/refresh/",
		MfaVerify:   "/auth/mfa/verify/",
		Permissions: "/auth/permissions/",
	}
}

// EndpointsFromConfig reads the endpoint paths from configuration.
func EndpointsFromConfig(cfg config.SessionConfig) Endpoints {
	return Endpoints{
		Login:       cfg.GetLoginPath(),
		Refresh:     cfg.GetRefreshPath(),
		MfaVerify:   cfg.GetMfaVerifyPath(),
		Permissions: cfg.GetPermissionsPath(),
	}
}

// Client talks to the credential endpoints. It uses a plain HTTP client: credential
// exchanges must never go through the refreshing interceptor.
type Client struct {
	baseURL    string
	endpoints  Endpoints
	httpClient *http.Client
	log        zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for credential exchanges.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, endpoints Endpoints, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[authapi.New] base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoints:  endpoints,
		httpClient: http.DefaultClient,
		log:        logging.Component("authapi"),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// URL resolves an endpoint path against the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Endpoints returns the configured endpoint paths.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// Login exchanges credentials for a token pair or an MFA step-up.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	var tr TokenResponse
	if err := c.post(ctx, "login", c.endpoints.Login, creds, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// VerifyMfa exchanges a temp token and a one time code for a token pair.
func (c *Client) VerifyMfa(ctx context.Context, tempToken, code string) (*TokenResponse, error) {
	var tr TokenResponse
	if err := c.post(ctx, "verify_mfa", c.endpoints.MfaVerify, MfaVerifyRequest{TempToken: tempToken, Code: code}, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// Refresh exchanges a refresh token for a new access token (and usually a rotated refresh token).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var tr TokenResponse
	if err := c.post(ctx, "refresh", c.endpoints.Refresh, RefreshRequest{Refresh: refreshToken}, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &apperrors.TransportError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return &apperrors.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Str("op", op).Err(err).Msg("request failed")
		return &apperrors.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	return DecodeResponse(op, resp, out)
}

// DecodeResponse maps a response onto out, an *AuthError or a *TransportError.
// 400, 401 and 403 are credential rejections; anything else outside 2xx is a transport failure.
func DecodeResponse(op string, resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &apperrors.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &apperrors.TransportError{Op: op, Status: resp.StatusCode, Err: err}
		}
		return nil
	}

	var errResp ErrorResponse
	_ = json.Unmarshal(raw, &errResp)
	reason := errResp.Reason()

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return &apperrors.AuthError{Status: resp.StatusCode, Reason: reason}
	}
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return &apperrors.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(reason)}
}
