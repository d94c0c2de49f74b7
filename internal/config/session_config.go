package config

import "time"

type SessionConfig interface {
	GetLoginPath() string
	GetRefreshPath() string
	GetMfaVerifyPath() string
	GetPermissionsPath() string
	GetHTTPTimeout() time.Duration
	GetMaxMfaFailures() int
	GetMfaChallengeTTL() time.Duration
}

type KioskConfig interface {
	GetKioskResetDelay() time.Duration
	GetKioskMaxMfaFailures() int
	GetKioskMfaChallengeTTL() time.Duration
}

type Session struct {
	LoginPath       string        `env:"SESSION_LOGIN_PATH" envDefault:"/token/"`
	RefreshPath     string        `env:"SESSION_REFRESH_PATH" envDefault:"/token/refresh/"`
	MfaVerifyPath   string        `env:"SESSION_MFA_VERIFY_PATH" envDefault:"/auth/mfa/verify/"`
	PermissionsPath string        `env:"SESSION_PERMISSIONS_PATH" envDefault:"/auth/permissions/"`
	HTTPTimeout     time.Duration `env:"SESSION_HTTP_TIMEOUT" envDefault:"15s"`
	MaxMfaFailures  int           `env:"SESSION_MFA_MAX_FAILURES" envDefault:"5"`
	MfaChallengeTTL time.Duration `env:"SESSION_MFA_CHALLENGE_TTL" envDefault:"0s"` // 0 disables the client side timer
}

var _ SessionConfig = Session{}

func (s Session) GetLoginPath() string {
	return s.LoginPath
}

func (s Session) GetRefreshPath() string {
	return s.RefreshPath
}

func (s Session) GetMfaVerifyPath() string {
	return s.MfaVerifyPath
}

func (s Session) GetPermissionsPath() string {
	return s.PermissionsPath
}

func (s Session) GetHTTPTimeout() time.Duration {
	if s.HTTPTimeout <= 0 {
		return 15 * time.Second
	}
	return s.HTTPTimeout
}

func (s Session) GetMaxMfaFailures() int {
	return s.MaxMfaFailures
}

func (s Session) GetMfaChallengeTTL() time.Duration {
	return s.MfaChallengeTTL
}

type Kiosk struct {
	ResetDelay      time.Duration `env:"KIOSK_RESET_DELAY" envDefault:"2s"`
	MaxMfaFailures  int           `env:"KIOSK_MFA_MAX_FAILURES" envDefault:"3"`
	MfaChallengeTTL time.Duration `env:"KIOSK_MFA_CHALLENGE_TTL" envDefault:"0s"`
}

var _ KioskConfig = Kiosk{}

func (k Kiosk) GetKioskResetDelay() time.Duration {
	return k.ResetDelay
}

func (k Kiosk) GetKioskMaxMfaFailures() int {
	return k.MaxMfaFailures
}

func (k Kiosk) GetKioskMfaChallengeTTL() time.Duration {
	return k.MfaChallengeTTL
}
