// Package permissions memoizes the capability set of the logged-in user.
//
// The cache fails closed: until a fetch resolves every predicate is false and Ready is
// false, which callers must read as "unknown" rather than "denied". A failed fetch
// resolves to the empty set; the failure is logged and counted, never returned.
package permissions

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/jrsteele09/go-session-client/metrics"
)

const defaultFetchTimeout = 15 * time.Second

// Fetcher retrieves the capability strings of the current session.
type Fetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]string, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Cache holds one capability set per session generation.
type Cache struct {
	fetcher Fetcher
	timeout time.Duration
	metrics *metrics.Collectors
	log     zerolog.Logger

	mu         sync.RWMutex
	perms      map[string]struct{}
	ready      bool
	loading    bool
	generation uint64
	done       chan struct{}
	cancel     context.CancelFunc
}

// Option defines a function type to modify the Cache instance.
type Option func(*Cache)

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.timeout = d
	}
}

// WithMetrics counts fetch outcomes.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithLogger sets the cache logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

// NewCache creates an empty, not ready cache.
func NewCache(fetcher Fetcher, options ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		timeout: defaultFetchTimeout,
		log:     logging.Component("permissions"),
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Load starts fetching the capability set in the background. It is a no-op while a fetch
// is in flight or once the set is resolved; Invalidate allows the next Load.
func (c *Cache) Load(ctx context.Context) {
	c.mu.Lock()
	if c.loading || c.ready {
		c.mu.Unlock()
		return
	}
	c.loading = true
	gen := c.generation
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		perms, err := c.fetcher.Fetch(fetchCtx)
		c.resolve(gen, perms, err)
	}()
}

func (c *Cache) resolve(gen uint64, perms []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		// Invalidated while in flight; the result belongs to a session that is gone.
		return
	}

	c.perms = make(map[string]struct{}, len(perms))
	if err != nil {
		c.log.Warn().Err(err).Msg("permission fetch failed, denying all")
		c.metrics.PermissionFetch(fetchOutcome(err))
	} else {
		for _, p := range perms {
			c.perms[p] = struct{}{}
		}
		c.metrics.PermissionFetch(metrics.OutcomeSuccess)
		c.log.Debug().Int("count", len(perms)).Msg("permissions loaded")
	}
	c.ready = true
	c.loading = false
	c.cancel = nil
	close(c.done)
}

// Invalidate drops the set and cancels an in-flight fetch. Goroutines blocked in Wait return.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if !c.ready {
		close(c.done)
	}
	c.done = make(chan struct{})
	c.perms = nil
	c.ready = false
	c.loading = false
}

// Wait blocks until the current fetch resolves, the cache is invalidated or ctx is done.
func (c *Cache) Wait(ctx context.Context) error {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether a fetch has resolved, successfully or not.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Has reports whether capability is granted.
func (c *Cache) Has(capability string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.perms[capability]
	return c.ready && ok
}

// Any reports whether at least one capability is granted.
func (c *Cache) Any(capabilities ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return false
	}
	for _, p := range capabilities {
		if _, ok := c.perms[p]; ok {
			return true
		}
	}
	return false
}

// All reports whether every capability is granted. With no arguments it is true once ready.
func (c *Cache) All(capabilities ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return false
	}
	for _, p := range capabilities {
		if _, ok := c.perms[p]; !ok {
			return false
		}
	}
	return true
}

// List returns the granted capabilities, sorted.
func (c *Cache) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.perms))
}

func fetchOutcome(err error) string {
	switch {
	case apperrors.IsAuth(err), apperrors.Is(err, apperrors.ErrSessionNotRenewable):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeTransport
	}
}
