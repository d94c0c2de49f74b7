// Package session implements the login, MFA step-up, refresh and logout state machine.
//
// One Manager owns one session variant: its token store namespace, its Authorization
// header and the HTTP client that carries it. The primary back-office session and the
// kiosk terminal are the same Manager built with different StoragePolicy values.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/identity"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/metrics"
	"github.com/jrsteele09/go-session-client/tokenstore"
	"github.com/jrsteele09/go-session-client/transport"
)

const (
	defaultHTTPTimeout = 15 * time.Second

	// A record another process is still writing is re-read this many times before giving up.
	adoptAttempts = 3
	adoptBackoff  = 20 * time.Millisecond
)

type mfaChallenge struct {
	tempToken string
	issuedAt  time.Time
	failures  int
	// dead challenges wait for a scheduled reset and refuse further codes.
	dead bool
}

type subscription struct {
	id int
	fn func(State)
}

// Manager owns a single session.
type Manager struct {
	api     *authapi.Client
	store   *tokenstore.Store
	policy  StoragePolicy
	decoder *identity.Decoder
	bearer  *transport.Bearer
	client  *http.Client
	rotated *RotatedTokens
	metrics *metrics.Collectors
	log     zerolog.Logger
	nowTime func() time.Time
	base    http.RoundTripper
	timeout time.Duration

	// mu serializes transitions, network exchanges included.
	mu         sync.Mutex
	challenge  *mfaChallenge
	generation uint64
	resetTimer *time.Timer

	// stateMu guards the readable snapshot so readers never wait on the network.
	stateMu sync.RWMutex
	state   State
	access  string
	refresh string
	ident   *identity.Identity
	ready   bool
	epoch   ulid.ULID
	pending []State

	emitMu      sync.Mutex
	listenersMu sync.RWMutex
	listeners   []subscription
	nextID      int
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithNowTime overrides the clock.
func WithNowTime(nowTime func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowTime
	}
}

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithMetrics records logins, verifications, refreshes, retries and transitions.
func WithMetrics(c *metrics.Collectors) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithBaseTransport sets the transport under the authenticating interceptor.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(m *Manager) {
		m.base = rt
	}
}

// WithDecoder replaces the identity decoder.
func WithDecoder(d *identity.Decoder) Option {
	return func(m *Manager) {
		m.decoder = d
	}
}

// WithHTTPTimeout sets the timeout of the client returned by HTTPClient.
func WithHTTPTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// New creates a Manager in the Anonymous state. Call Hydrate before trusting IsLoggedIn.
func New(api *authapi.Client, backend tokenstore.Backend, policy StoragePolicy, options ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[session.New] API client is required")
	}
	if backend == nil {
		return nil, errors.New("[session.New] token store backend is required")
	}
	if policy.Name == "" {
		policy.Name = policy.Persistence.String()
	}

	m := &Manager{
		api:     api,
		policy:  policy,
		decoder: identity.NewDecoder(),
		bearer:  transport.NewBearer(),
		rotated: NewRotatedTokens(0),
		log:     logging.Component("session"),
		nowTime: time.Now,
		base:    http.DefaultTransport,
		timeout: defaultHTTPTimeout,
	}
	for _, opt := range options {
		opt(m)
	}
	m.log = m.log.With().Str("variant", policy.Name).Logger()

	store, err := tokenstore.New(backend, policy.KeyPrefix, policy.Persistence,
		tokenstore.WithHeaderSink(m.bearer),
		tokenstore.WithLogger(m.log),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[session.New] token store")
	}
	m.store = store

	ic := transport.NewInterceptor(m.bearer, m,
		transport.WithBase(m.base),
		transport.WithMetrics(m.metrics, policy.Name),
		transport.WithLogger(m.log),
	)
	m.client = ic.Client(m.timeout)
	m.epoch = m.newEpoch()
	return m, nil
}

// Login exchanges credentials. A step-up requirement is reported as OutcomeStepUpRequired, not an error.
// Every error comes with OutcomeNone.
// A rejected login returns an *AuthError and leaves any existing session untouched.
func (m *Manager) Login(ctx context.Context, username, password string) (Outcome, error) {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardChallenge()

	resp, err := m.api.Login(ctx, authapi.Credentials{Username: username, Password: password})
	if err != nil {
		m.metrics.Login(m.policy.Name, outcomeFor(err))
		return OutcomeNone, errors.Wrap(err, "[Manager.Login] credential exchange")
	}

	if resp.MfaRequired {
		if !utils.NonEmpty(resp.TempToken) {
			m.metrics.Login(m.policy.Name, metrics.OutcomeTransport)
			return OutcomeNone, &apperrors.TransportError{Op: "login", Err: errors.New("step-up response without temp_token")}
		}
		if m.State() == Authenticated {
			// The previous session ends once another login is under way.
			if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
				m.log.Err(err).Msg("clear previous credentials")
			}
		}
		m.bump()
		m.challenge = &mfaChallenge{tempToken: utils.Value(resp.TempToken), issuedAt: m.nowTime()}
		m.setMfaPending()
		m.metrics.Login(m.policy.Name, metrics.OutcomeStepUp)
		return OutcomeStepUpRequired, nil
	}

	if !resp.HasTokenPair() {
		m.metrics.Login(m.policy.Name, metrics.OutcomeTransport)
		return OutcomeNone, &apperrors.TransportError{Op: "login", Err: errors.New("response carries neither a token pair nor a step-up")}
	}
	if err := m.establish(ctx, utils.Value(resp.Access), utils.Value(resp.Refresh)); err != nil {
		m.metrics.Login(m.policy.Name, outcomeFor(err))
		return OutcomeNone, errors.Wrap(err, "[Manager.Login] establish session")
	}
	m.metrics.Login(m.policy.Name, metrics.OutcomeSuccess)
	return OutcomeAuthenticated, nil
}

// VerifyMfa answers the pending step-up challenge. It fails with ErrInvalidState, without
// any network call, unless the session is MfaPending.
func (m *Manager) VerifyMfa(ctx context.Context, code string) error {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.challenge
	if ch == nil || m.State() != MfaPending {
		return errors.Wrapf(ErrInvalidState, "[Manager.VerifyMfa] session is %s", m.State())
	}
	if ch.dead {
		return errors.Wrap(ErrMfaChallengeExpired, "[Manager.VerifyMfa] challenge awaiting reset")
	}
	if ttl := m.policy.MfaChallengeTTL; ttl > 0 && m.nowTime().Sub(ch.issuedAt) >= ttl {
		m.metrics.MfaVerification(m.policy.Name, metrics.OutcomeRejected)
		m.abandonChallenge(ctx, "challenge ttl elapsed")
		return errors.Wrap(ErrMfaChallengeExpired, "[Manager.VerifyMfa] challenge ttl elapsed")
	}

	resp, err := m.api.VerifyMfa(ctx, ch.tempToken, code)
	if err != nil {
		m.metrics.MfaVerification(m.policy.Name, outcomeFor(err))
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			return errors.Wrap(err, "[Manager.VerifyMfa] code exchange")
		}
		if challengeExpired(authErr) {
			m.abandonChallenge(ctx, "challenge expired")
			return fmt.Errorf("%w: %w", ErrMfaChallengeExpired, err)
		}
		ch.failures++
		if m.policy.MaxMfaFailures > 0 && ch.failures >= m.policy.MaxMfaFailures {
			m.abandonChallenge(ctx, "too many wrong codes")
			return fmt.Errorf("%w: %w", ErrMfaAttemptsExceeded, err)
		}
		return errors.Wrap(err, "[Manager.VerifyMfa] code rejected")
	}

	if !resp.HasTokenPair() {
		m.metrics.MfaVerification(m.policy.Name, metrics.OutcomeTransport)
		return &apperrors.TransportError{Op: "verify_mfa", Err: errors.New("response missing token pair")}
	}
	if err := m.establish(ctx, utils.Value(resp.Access), utils.Value(resp.Refresh)); err != nil {
		m.metrics.MfaVerification(m.policy.Name, outcomeFor(err))
		return errors.Wrap(err, "[Manager.VerifyMfa] establish session")
	}
	m.metrics.MfaVerification(m.policy.Name, metrics.OutcomeSuccess)
	return nil
}

// CancelMfa abandons a pending challenge, e.g. when the user navigates away from the code prompt.
func (m *Manager) CancelMfa(ctx context.Context) error {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.challenge == nil {
		return nil
	}
	if err := m.resetLocked(ctx, "mfa cancelled"); err != nil {
		return errors.Wrap(err, "[Manager.CancelMfa] clear credentials")
	}
	return nil
}

// Refresh exchanges the refresh token for a new access token and returns it.
// Rejections are terminal: credentials are cleared and ErrSessionNotRenewable returned.
// Transport failures leave the session as it was.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()

	access, err := m.refreshLocked(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Refresh]")
	}
	return access, nil
}

// Renew refreshes for a request that was rejected while it carried stale. When a transition
// has replaced that token since, nothing is exchanged: the current token is returned, or
// ErrSessionSuperseded when no authenticated session is left to renew.
func (m *Manager) Renew(ctx context.Context, stale string) (string, error) {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateMu.RLock()
	state, current := m.state, m.access
	m.stateMu.RUnlock()

	if current != stale {
		if state == Authenticated && current != "" {
			return current, nil
		}
		return "", errors.Wrapf(ErrSessionSuperseded, "[Manager.Renew] session is %s", state)
	}

	access, err := m.refreshLocked(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Renew]")
	}
	return access, nil
}

func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	now := m.nowTime()
	m.rotated.Cleanup(now)

	m.stateMu.RLock()
	state, current := m.state, m.refresh
	m.stateMu.RUnlock()

	if state != Authenticated || current == "" {
		return "", m.terminate(ctx, errors.New("no refresh token"))
	}

	if m.policy.Persistence == tokenstore.Persistent {
		access, adopted, err := m.adoptStored(ctx, current, now)
		if err != nil || adopted {
			return access, err
		}
	}

	if m.rotated.Contains(current) {
		return "", m.terminate(ctx, errors.New("refresh token reused after rotation"))
	}

	resp, err := m.api.Refresh(ctx, current)
	if err != nil {
		if apperrors.IsAuth(err) {
			return "", m.terminate(ctx, err)
		}
		m.metrics.Refresh(m.policy.Name, metrics.OutcomeTransport)
		m.log.Warn().Err(err).Msg("refresh failed on transport, session kept")
		return "", err
	}
	if !utils.NonEmpty(resp.Access) {
		m.metrics.Refresh(m.policy.Name, metrics.OutcomeTransport)
		return "", &apperrors.TransportError{Op: "refresh", Err: errors.New("response missing access token")}
	}

	next := current
	if utils.NonEmpty(resp.Refresh) && *resp.Refresh != current {
		next = utils.Value(resp.Refresh)
		m.rotated.Add(current, now)
	}
	if err := m.establish(ctx, utils.Value(resp.Access), next); err != nil {
		m.metrics.Refresh(m.policy.Name, outcomeFor(err))
		return "", fmt.Errorf("%w: %w", ErrSessionNotRenewable, err)
	}
	m.metrics.Refresh(m.policy.Name, metrics.OutcomeSuccess)
	m.log.Debug().Msg("access token refreshed")
	return utils.Value(resp.Access), nil
}

// adoptStored picks up credentials another process sharing the persistent store rotated,
// or ends this session when that process logged out.
func (m *Manager) adoptStored(ctx context.Context, current string, now time.Time) (string, bool, error) {
	m.stateMu.RLock()
	currentAccess := m.access
	m.stateMu.RUnlock()

	var rec tokenstore.Record
	var id *identity.Identity
	for attempt := 1; ; attempt++ {
		var err error
		if rec, err = m.store.Load(ctx); err != nil {
			m.metrics.Refresh(m.policy.Name, metrics.OutcomeTransport)
			return "", false, &apperrors.TransportError{Op: "refresh", Err: err}
		}
		switch {
		case rec.Refresh == "":
			return "", false, m.terminate(ctx, errors.New("session ended by another client"))
		case rec.Refresh == current || rec.Access == "":
			return "", false, nil
		case m.rotated.Contains(rec.Refresh):
			return "", false, m.terminate(ctx, errors.New("stored refresh token was already rotated"))
		}

		if id, err = m.decoder.Decode(rec.Access); err != nil {
			return "", false, m.terminate(ctx, err)
		}
		if rec.Access != currentAccess && storedRecordMatches(rec.User, id) {
			break
		}
		if attempt == adoptAttempts {
			m.metrics.Refresh(m.policy.Name, metrics.OutcomeTransport)
			return "", false, &apperrors.TransportError{Op: "refresh", Err: errors.New("stored credentials are mid-update")}
		}
		select {
		case <-ctx.Done():
			return "", false, &apperrors.TransportError{Op: "refresh", Err: ctx.Err()}
		case <-time.After(adoptBackoff):
		}
	}

	m.rotated.Add(current, now)
	m.bearer.SetBearer(rec.Access)
	m.setAuthenticated(rec.Access, rec.Refresh, id)
	m.metrics.Refresh(m.policy.Name, metrics.OutcomeAdopted)
	m.log.Debug().Msg("adopted credentials rotated by another client")
	return rec.Access, true, nil
}

// Logout clears the session from any state. Calling it repeatedly is safe.
func (m *Manager) Logout(ctx context.Context) error {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.resetLocked(ctx, "logout"); err != nil {
		return errors.Wrap(err, "[Manager.Logout] clear credentials")
	}
	return nil
}

// Hydrate restores a session from the token store. Ready is true afterwards whatever the result.
// Undecodable credentials are cleared and reported as a *DecodeError.
func (m *Manager) Hydrate(ctx context.Context) error {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.markReady()

	rec, err := m.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "[Manager.Hydrate] load credentials")
	}
	if rec.Access == "" || rec.Refresh == "" {
		m.log.Debug().Msg("no stored session")
		return nil
	}

	decoded, err := m.decoder.Decode(rec.Access)
	if err != nil {
		_ = m.resetLocked(ctx, "stored access token undecodable")
		return errors.Wrap(err, "[Manager.Hydrate] decode stored access token")
	}
	id := storedIdentity(rec.User, decoded)

	m.bump()
	m.bearer.SetBearer(rec.Access)
	m.setAuthenticated(rec.Access, rec.Refresh, id)
	m.log.Info().Str("user", id.DisplayName()).Msg("session restored")
	return nil
}

// storedRecordMatches reports whether the stored user record belongs to the stored access token.
func storedRecordMatches(raw string, decoded *identity.Identity) bool {
	if raw == "" {
		return true
	}
	stored, err := identity.Unmarshal(raw)
	return err == nil && stored.SameToken(decoded)
}

// storedIdentity prefers the persisted user record when it was written for the same token.
func storedIdentity(raw string, decoded *identity.Identity) *identity.Identity {
	if raw == "" {
		return decoded
	}
	id, err := identity.Unmarshal(raw)
	if err != nil || !id.SameToken(decoded) {
		return decoded
	}
	return id
}

// State returns the current state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// IsLoggedIn is true iff the session is Authenticated with both an access token and an identity.
func (m *Manager) IsLoggedIn() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state == Authenticated && m.access != "" && m.ident != nil
}

// Ready reports whether Hydrate has completed. Auth-gated UI must wait for it.
func (m *Manager) Ready() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.ready
}

// Identity returns a copy of the decoded identity, or nil. Display only.
func (m *Manager) Identity() *identity.Identity {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.ident == nil {
		return nil
	}
	id := *m.ident
	return &id
}

// CustomerID identifies the current customer epoch. It changes every time an ephemeral session resets.
func (m *Manager) CustomerID() string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.epoch.String()
}

// Policy returns the storage policy the manager was built with.
func (m *Manager) Policy() StoragePolicy {
	return m.policy
}

// HTTPClient returns the client authenticated as this session. Expired access tokens are
// refreshed and the failed request retried once.
func (m *Manager) HTTPClient() *http.Client {
	return m.client
}

// TokenSource exposes the current access token.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return m.bearer
}

// Subscribe registers fn for state changes and returns a function removing it.
// Listeners run outside the manager's locks, in transition order.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, subscription{id: id, fn: fn})
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, s := range m.listeners {
			if s.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// establish decodes and persists a freshly issued token pair, then marks the session Authenticated.
// A pair that cannot be decoded or stored ends the session.
func (m *Manager) establish(ctx context.Context, access, refresh string) error {
	id, err := m.decoder.Decode(access)
	if err != nil {
		_ = m.resetLocked(ctx, "issued access token undecodable")
		return err
	}
	user, err := id.Marshal()
	if err != nil {
		_ = m.resetLocked(ctx, "identity not serializable")
		return err
	}
	if err := m.store.Save(context.WithoutCancel(ctx), tokenstore.Record{Access: access, Refresh: refresh, User: user}); err != nil {
		_ = m.resetLocked(ctx, "persist credentials failed")
		return err
	}

	m.bump()
	m.challenge = nil
	m.setAuthenticated(access, refresh, id)
	return nil
}

// terminate ends a session that can no longer be renewed.
func (m *Manager) terminate(ctx context.Context, cause error) error {
	m.metrics.Refresh(m.policy.Name, metrics.OutcomeNotRenewable)
	m.log.Warn().Err(cause).Msg("session not renewable")
	_ = m.resetLocked(ctx, "refresh failed")
	return fmt.Errorf("%w: %w", ErrSessionNotRenewable, cause)
}

// resetLocked clears storage and memory. The in-memory session is gone even when the store fails.
func (m *Manager) resetLocked(ctx context.Context, reason string) error {
	m.bump()
	m.challenge = nil
	err := m.store.Clear(context.WithoutCancel(ctx))
	if err != nil {
		m.log.Err(err).Str("reason", reason).Msg("clear credentials")
	}
	m.setAnonymous(reason)
	return err
}

// discardChallenge drops a pending challenge ahead of a new login.
func (m *Manager) discardChallenge() {
	if m.challenge == nil {
		return
	}
	m.bump()
	m.challenge = nil
	if m.State() == MfaPending {
		m.setAnonymous("challenge superseded by a new login")
	}
}

// abandonChallenge ends a challenge that can no longer succeed, now or after the policy's reset delay.
func (m *Manager) abandonChallenge(ctx context.Context, reason string) {
	if !m.policy.ForceResetOnExpiry || m.policy.ResetDelay <= 0 {
		_ = m.resetLocked(ctx, reason)
		return
	}
	m.challenge.dead = true
	gen := m.generation
	m.resetTimer = time.AfterFunc(m.policy.ResetDelay, func() {
		m.scheduledReset(gen, reason)
	})
	m.log.Info().Str("reason", reason).Dur("delay", m.policy.ResetDelay).Msg("reset scheduled")
}

func (m *Manager) scheduledReset(gen uint64, reason string) {
	defer m.flush()
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return
	}
	_ = m.resetLocked(context.Background(), reason)
}

// bump invalidates any pending scheduled reset.
func (m *Manager) bump() {
	m.generation++
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

func (m *Manager) setAuthenticated(access, refresh string, id *identity.Identity) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	from := m.state
	// Another account logging in over a live session is announced like a fresh login.
	switched := m.ident != nil && m.ident.UserID != id.UserID
	m.state, m.access, m.refresh, m.ident = Authenticated, access, refresh, id
	m.recordLocked(from, switched, "")
}

func (m *Manager) setMfaPending() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	from := m.state
	m.state, m.access, m.refresh, m.ident = MfaPending, "", "", nil
	m.recordLocked(from, false, "")
}

func (m *Manager) setAnonymous(reason string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	from := m.state
	m.state, m.access, m.refresh, m.ident = Anonymous, "", "", nil
	m.recordLocked(from, false, reason)
	if from != Anonymous && m.policy.Persistence == tokenstore.Ephemeral {
		m.epoch = m.newEpoch()
		m.log.Info().Str("customer", m.epoch.String()).Msg("new customer")
	}
}

func (m *Manager) markReady() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.ready = true
}

// recordLocked queues a notification for a state change; stateMu must be held.
func (m *Manager) recordLocked(from State, force bool, reason string) {
	if from == m.state && !force {
		return
	}
	m.pending = append(m.pending, m.state)
	m.metrics.Transition(m.policy.Name, m.state.String())

	ev := m.log.Info().Stringer("from", from).Stringer("to", m.state).Str("customer", m.epoch.String())
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("session state changed")
}

// flush delivers queued state changes to listeners. A listener that triggers another
// transition has its notification delivered by the flush already in progress.
func (m *Manager) flush() {
	for {
		if !m.emitMu.TryLock() {
			return
		}
		pending := m.takePending()
		if len(pending) == 0 {
			m.emitMu.Unlock()
			if m.hasPending() {
				continue
			}
			return
		}

		m.listenersMu.RLock()
		subs := make([]subscription, len(m.listeners))
		copy(subs, m.listeners)
		m.listenersMu.RUnlock()

		for _, s := range pending {
			for _, sub := range subs {
				sub.fn(s)
			}
		}
		m.emitMu.Unlock()
	}
}

func (m *Manager) takePending() []State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	p := m.pending
	m.pending = nil
	return p
}

func (m *Manager) hasPending() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return len(m.pending) > 0
}

func (m *Manager) newEpoch() ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(m.nowTime()), ulid.DefaultEntropy())
}

// challengeExpired reports whether a verify rejection means the temp token itself is dead.
func challengeExpired(err *AuthError) bool {
	if err.Status == http.StatusUnauthorized {
		return true
	}
	reason := strings.ToLower(err.Reason)
	return strings.Contains(reason, "expire") || strings.Contains(reason, "token")
}

func outcomeFor(err error) string {
	var decodeErr *DecodeError
	switch {
	case apperrors.IsAuth(err):
		return metrics.OutcomeRejected
	case errors.As(err, &decodeErr):
		return metrics.OutcomeDecodeFailure
	default:
		return metrics.OutcomeTransport
	}
}
