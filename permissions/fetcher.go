package permissions

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-client/authapi"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
)

// HTTPFetcher reads {"perms": [...]} from the permissions endpoint. Client must be the
// session's authenticated client so an expired token is refreshed transparently.
type HTTPFetcher struct {
	Client *http.Client
	URL    string
}

// NewHTTPFetcher builds a fetcher for m's session against api's permissions endpoint.
func NewHTTPFetcher(m *session.Manager, api *authapi.Client) *HTTPFetcher {
	return &HTTPFetcher{
		Client: m.HTTPClient(),
		URL:    api.URL(api.Endpoints().Permissions),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPFetcher.Fetch] build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotRenewable) || apperrors.Is(err, apperrors.ErrTransport) {
			return nil, err
		}
		return nil, &apperrors.TransportError{Op: "permissions", Err: err}
	}
	defer resp.Body.Close()

	var out authapi.PermissionsResponse
	if err := authapi.DecodeResponse("permissions", resp, &out); err != nil {
		return nil, err
	}
	return out.Perms, nil
}

// Bind keeps c in step with m: loaded when the session becomes Authenticated, dropped
// when it leaves it. The returned function unbinds.
func Bind(m *session.Manager, c *Cache) func() {
	unsubscribe := m.Subscribe(func(s session.State) {
		if s == session.Authenticated {
			c.Invalidate()
			c.Load(context.Background())
			return
		}
		c.Invalidate()
	})
	if m.IsLoggedIn() {
		c.Load(context.Background())
	}
	return unsubscribe
}
