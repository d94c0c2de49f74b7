package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const defaultRotationRetention = 24 * time.Hour

// RotatedTokens remembers refresh tokens this process already exchanged. Presenting one
// again means the rotation chain forked, which is treated as a compromised session.
// Only digests are kept.
type RotatedTokens struct {
	rotated   map[string]time.Time
	retention time.Duration
	mu        sync.RWMutex
}

// NewRotatedTokens remembers rotated tokens for retention; zero means 24h.
func NewRotatedTokens(retention time.Duration) *RotatedTokens {
	if retention <= 0 {
		retention = defaultRotationRetention
	}
	return &RotatedTokens{
		rotated:   make(map[string]time.Time),
		retention: retention,
	}
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Add records a refresh token that was rotated away at now.
func (r *RotatedTokens) Add(token string, now time.Time) {
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotated[digest(token)] = now.Add(r.retention)
}

// Contains reports whether token was already rotated away.
func (r *RotatedTokens) Contains(token string) bool {
	if token == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.rotated[digest(token)]
	return exists
}

// Cleanup drops entries older than the retention window.
func (r *RotatedTokens) Cleanup(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for d, exp := range r.rotated {
		if now.After(exp) {
			delete(r.rotated, d)
		}
	}
}

// Len returns how many rotated tokens are remembered.
func (r *RotatedTokens) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rotated)
}
