package config

import (
	"strings"
	"time"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisTTL() time.Duration
}

// Store selects the durable backend used by the primary session.
// Kiosk sessions always use the in-memory backend.
type Store struct {
	Backend       string        `env:"SESSION_STORE" envDefault:"sqlite"` // sqlite | redis | memory
	SQLitePath    string        `env:"SESSION_SQLITE_PATH" envDefault:"./data/session.db"`
	RedisAddr     string        `env:"SESSION_REDIS_ADDR"`
	RedisPassword string        `env:"SESSION_REDIS_PASSWORD"`
	RedisDB       int           `env:"SESSION_REDIS_DB" envDefault:"0"`
	RedisTTL      time.Duration `env:"SESSION_REDIS_TTL" envDefault:"720h"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() string {
	return strings.ToLower(strings.TrimSpace(s.Backend))
}

func (s Store) GetSQLitePath() string {
	return s.SQLitePath
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

func (s Store) GetRedisTTL() time.Duration {
	return s.RedisTTL
}
