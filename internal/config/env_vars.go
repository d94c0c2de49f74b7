package config

import (
	"os"
	"strings"
)

type EnvVars struct {
	AppName    string `env:"APP_NAME" envDefault:"Session Check"`
	Env        string `env:"ENV" envDefault:"DEV"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	APIBaseURL string `env:"SESSION_API_BASE_URL" envDefault:"http://localhost:8000/api"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetAPIBaseURL returns the back-office API root (e.g., "https://exchange.example.com/api")
// without a trailing slash. Endpoint paths are appended to it.
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(e.APIBaseURL, "/")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
