package tokenstore

import (
	"fmt"
	"io"

	"github.com/jrsteele09/go-session-client/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenBackend builds the durable backend selected by configuration.
// The returned closer releases the underlying connection.
func OpenBackend(cfg config.StoreConfig) (Backend, io.Closer, error) {
	switch cfg.GetStoreBackend() {
	case "sqlite", "":
		s, err := OpenSQLite(cfg.GetSQLitePath())
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "redis":
		client, err := DialRedis(cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB())
		if err != nil {
			return nil, nil, err
		}
		return NewRedis(client, cfg.GetRedisTTL()), client, nil
	case "memory":
		return NewMemory(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.GetStoreBackend())
}
