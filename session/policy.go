package session

import (
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/tokenstore"
)

// StoragePolicy is everything that differs between session variants.
type StoragePolicy struct {
	// Name labels logs and metrics ("primary", "kiosk").
	Name        string
	Persistence tokenstore.Policy
	KeyPrefix   string

	// ForceResetOnExpiry delays the reset after a dead MFA challenge by ResetDelay
	// instead of resetting immediately, so a terminal can show the failure first.
	ForceResetOnExpiry bool
	ResetDelay         time.Duration

	// MaxMfaFailures is the number of consecutive wrong codes tolerated; 0 means unlimited.
	MaxMfaFailures int
	// MfaChallengeTTL expires a challenge client side; 0 leaves expiry to the server.
	MfaChallengeTTL time.Duration
}

// PrimaryPolicy is the persistent, shared policy of the back-office session.
func PrimaryPolicy(cfg config.SessionConfig) StoragePolicy {
	return StoragePolicy{
		Name:            "primary",
		Persistence:     tokenstore.Persistent,
		KeyPrefix:       tokenstore.PrimaryPrefix,
		MaxMfaFailures:  cfg.GetMaxMfaFailures(),
		MfaChallengeTTL: cfg.GetMfaChallengeTTL(),
	}
}

// KioskPolicy is the ephemeral, self-resetting policy of an unattended terminal.
func KioskPolicy(cfg config.KioskConfig) StoragePolicy {
	return StoragePolicy{
		Name:               "kiosk",
		Persistence:        tokenstore.Ephemeral,
		KeyPrefix:          tokenstore.KioskPrefix,
		ForceResetOnExpiry: true,
		ResetDelay:         cfg.GetKioskResetDelay(),
		MaxMfaFailures:     cfg.GetKioskMaxMfaFailures(),
		MfaChallengeTTL:    cfg.GetKioskMfaChallengeTTL(),
	}
}
