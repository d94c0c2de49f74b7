package transport

import (
	"sync"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/tokenstore"
	"golang.org/x/oauth2"
)

var (
	_ oauth2.TokenSource    = (*Bearer)(nil)
	_ tokenstore.HeaderSink = (*Bearer)(nil)
)

// Bearer is the Authorization header owned by one session variant. The token store
// writes it; the interceptor reads it for every outbound request.
type Bearer struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewBearer creates an empty bearer holder.
func NewBearer() *Bearer {
	return &Bearer{}
}

// SetBearer implements tokenstore.HeaderSink.
func (b *Bearer) SetBearer(access string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if access == "" {
		b.token = nil
		return
	}
	b.token = &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
}

// ClearBearer implements tokenstore.HeaderSink.
func (b *Bearer) ClearBearer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = nil
}

// Access returns the current access token or "".
func (b *Bearer) Access() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token == nil {
		return ""
	}
	return b.token.AccessToken
}

// Token implements oauth2.TokenSource.
func (b *Bearer) Token() (*oauth2.Token, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token == nil {
		return nil, apperrors.ErrNoToken
	}
	t := *b.token
	return &t, nil
}
