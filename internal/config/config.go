package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	SessionConfig
	KioskConfig
	StoreConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
}

type mainConfig struct {
	EnvVars
	Session
	Kiosk
	Store
}

// New reads the configuration from the process environment.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// NewFromMap reads the configuration from the given variables instead of the process environment.
func NewFromMap(vars map[string]string) (Config, error) {
	var c mainConfig
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}
