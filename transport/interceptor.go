package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/jrsteele09/go-session-client/metrics"
)

// RequestIDHeader carries a per-request id; a retried request keeps its original id.
const RequestIDHeader = "X-Request-ID"

const (
	refreshKey            = "refresh"
	defaultRefreshTimeout = 30 * time.Second
	maxDrainBytes         = 64 << 10
)

// Renewer is the part of the session manager the interceptor calls back into.
// Renew refreshes on behalf of a request rejected while it carried stale. An error that
// Is ErrSessionSuperseded means a transition already replaced that session; it must be
// left alone.
type Renewer interface {
	Renew(ctx context.Context, stale string) (string, error)
	Logout(ctx context.Context) error
}

// Interceptor is an http.RoundTripper that authenticates outbound requests and makes
// access token expiry transparent: a 401 triggers one shared refresh and a single retry.
type Interceptor struct {
	base           http.RoundTripper
	bearer         *Bearer
	renewer        Renewer
	refreshTimeout time.Duration

	// gate is held for writing while a refresh runs, so no request leaves with a
	// header that is about to be replaced.
	gate  sync.RWMutex
	group singleflight.Group

	variant string
	metrics *metrics.Collectors
	log     zerolog.Logger
}

// Option defines a function type to modify the Interceptor instance.
type Option func(*Interceptor)

// WithBase sets the underlying transport (defaults to http.DefaultTransport).
func WithBase(rt http.RoundTripper) Option {
	return func(i *Interceptor) {
		i.base = rt
	}
}

// WithMetrics records retries under the given variant label.
func WithMetrics(m *metrics.Collectors, variant string) Option {
	return func(i *Interceptor) {
		i.metrics = m
		i.variant = variant
	}
}

// WithLogger sets the interceptor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(i *Interceptor) {
		i.log = l
	}
}

// WithRefreshTimeout bounds the shared refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(i *Interceptor) {
		i.refreshTimeout = d
	}
}

// NewInterceptor creates an interceptor reading the header from bearer and renewing through renewer.
func NewInterceptor(bearer *Bearer, renewer Renewer, options ...Option) *Interceptor {
	i := &Interceptor{
		base:           http.DefaultTransport,
		bearer:         bearer,
		renewer:        renewer,
		refreshTimeout: defaultRefreshTimeout,
		log:            logging.Component("interceptor"),
	}
	for _, opt := range options {
		opt(i)
	}
	return i
}

// Client returns an HTTP client using this interceptor.
func (i *Interceptor) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: i, Timeout: timeout}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	access := i.currentAccess()
	resp, err := i.send(req, req.Body, access, requestID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || access == "" {
		return resp, nil
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		i.log.Warn().Str("request_id", requestID).Str("path", req.URL.Path).Msg("401 on a request with a non replayable body, not retrying")
		return resp, nil
	}
	drain(resp)

	fresh, err := i.renew(req.Context(), access)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if req.GetBody != nil {
		if body, err = req.GetBody(); err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
	}

	i.metrics.Retry(i.variant)
	i.log.Debug().Str("request_id", requestID).Str("path", req.URL.Path).Msg("retrying with refreshed token")

	// The retry goes straight to the base transport: a second 401 is returned as is.
	return i.send(req, body, fresh, requestID)
}

func (i *Interceptor) currentAccess() string {
	i.gate.RLock()
	defer i.gate.RUnlock()
	return i.bearer.Access()
}

func (i *Interceptor) send(req *http.Request, body io.ReadCloser, access, requestID string) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Body = body
	if access != "" {
		(&oauth2.Token{AccessToken: access, TokenType: "Bearer"}).SetAuthHeader(r)
	}
	r.Header.Set(RequestIDHeader, requestID)
	return i.base.RoundTrip(r)
}

// renew runs at most one refresh at a time for every request that failed with stale.
func (i *Interceptor) renew(ctx context.Context, stale string) (string, error) {
	v, err, shared := i.group.Do(refreshKey, func() (any, error) {
		i.gate.Lock()
		defer i.gate.Unlock()

		// A refresh that completed after this request was sent already replaced the token.
		if cur := i.bearer.Access(); cur != stale {
			if cur == "" {
				return "", apperrors.ErrSessionNotRenewable
			}
			return cur, nil
		}

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.refreshTimeout)
		defer cancel()

		access, err := i.renewer.Renew(refreshCtx, stale)
		if err == nil {
			return access, nil
		}
		if errors.Is(err, apperrors.ErrSessionSuperseded) {
			i.log.Debug().Err(err).Msg("session replaced while the request was in flight")
			if !errors.Is(err, apperrors.ErrSessionNotRenewable) {
				err = fmt.Errorf("%w: %w", apperrors.ErrSessionNotRenewable, err)
			}
			return "", err
		}
		if errors.Is(err, apperrors.ErrTransport) {
			i.log.Warn().Err(err).Msg("refresh failed on transport, session kept")
			return "", err
		}

		if logoutErr := i.renewer.Logout(context.WithoutCancel(ctx)); logoutErr != nil {
			i.log.Err(logoutErr).Msg("logout after failed refresh")
		}
		if !errors.Is(err, apperrors.ErrSessionNotRenewable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrSessionNotRenewable, err)
		}
		return "", err
	})
	if err != nil {
		return "", err
	}
	i.log.Trace().Bool("shared", shared).Msg("refresh settled")
	return v.(string), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}
