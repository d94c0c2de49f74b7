package session

import (
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/tokenstore"
)

// NewPrimary creates the back-office session over a persistent backend (SQLite or Redis).
func NewPrimary(api *authapi.Client, backend tokenstore.Backend, cfg config.SessionConfig, options ...Option) (*Manager, error) {
	opts := append([]Option{WithHTTPTimeout(cfg.GetHTTPTimeout())}, options...)
	return New(api, backend, PrimaryPolicy(cfg), opts...)
}

// NewKiosk creates an unattended terminal session. Its credentials live under the kiosk
// namespace of backend, so it can share a backend with the primary session without
// either seeing the other's keys. Pass tokenstore.NewMemory() for a terminal-local store.
func NewKiosk(api *authapi.Client, backend tokenstore.Backend, cfg config.KioskConfig, options ...Option) (*Manager, error) {
	return New(api, backend, KioskPolicy(cfg), options...)
}
