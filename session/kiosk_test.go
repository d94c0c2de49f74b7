package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/tokenstore"
)

func (h *harness) kiosk(t *testing.T, resetDelay string) *session.Manager {
	t.Helper()
	cfg, err := config.NewFromMap(map[string]string{"KIOSK_RESET_DELAY": resetDelay})
	require.NoError(t, err)
	m, err := session.NewKiosk(h.api, h.backend, cfg)
	require.NoError(t, err)
	return m
}

func TestKioskPolicy(t *testing.T) {
	cfg, err := config.NewFromMap(nil)
	require.NoError(t, err)

	p := session.KioskPolicy(cfg)
	require.Equal(t, tokenstore.Ephemeral, p.Persistence)
	require.Equal(t, "kiosk_", p.KeyPrefix)
	require.True(t, p.ForceResetOnExpiry)
	require.Equal(t, 2*time.Second, p.ResetDelay)
	require.Equal(t, 3, p.MaxMfaFailures)

	primary := session.PrimaryPolicy(cfg)
	require.Equal(t, tokenstore.Persistent, primary.Persistence)
	require.Empty(t, primary.KeyPrefix)
	require.False(t, primary.ForceResetOnExpiry)
}

func TestKiosk_AutoResetsAfterExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	k := h.kiosk(t, "50ms")
	customer := k.CustomerID()

	_, err := k.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	h.fake.ExpireTempTokens()

	require.ErrorIs(t, k.VerifyMfa(ctx, "123456"), session.ErrMfaChallengeExpired)
	require.Equal(t, session.MfaPending, k.State(), "reset is delayed so the terminal can show the failure")

	// The dead challenge is not retried against the server.
	calls := h.fake.VerifyCalls()
	require.ErrorIs(t, k.VerifyMfa(ctx, "123456"), session.ErrMfaChallengeExpired)
	require.Equal(t, calls, h.fake.VerifyCalls())

	require.Eventually(t, func() bool {
		return k.State() == session.Anonymous
	}, time.Second, 10*time.Millisecond)
	require.NotEqual(t, customer, k.CustomerID())
}

func TestKiosk_UnauthorizedVerifyResets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	k := h.kiosk(t, "20ms")

	_, err := k.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	h.fake.ExpireTempTokens() // the fake answers 401 for unknown temp tokens

	err = k.VerifyMfa(ctx, "000000")
	require.ErrorIs(t, err, session.ErrMfaChallengeExpired)
	require.True(t, session.IsAuthError(err))

	require.Eventually(t, func() bool {
		return k.State() == session.Anonymous
	}, time.Second, 10*time.Millisecond)
}

func TestKiosk_NewLoginCancelsPendingReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	k := h.kiosk(t, "150ms")

	_, err := k.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	h.fake.ExpireTempTokens()
	require.ErrorIs(t, k.VerifyMfa(ctx, "123456"), session.ErrMfaChallengeExpired)

	loginBob(t, k)
	time.Sleep(300 * time.Millisecond)

	require.True(t, k.IsLoggedIn())
	require.Equal(t, "bob", k.Identity().Username)
}

func TestKiosk_AttemptsExhaustedResets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	k := h.kiosk(t, "20ms")

	_, err := k.Login(ctx, "alice", "correct")
	require.NoError(t, err)

	require.Error(t, k.VerifyMfa(ctx, "000000"))
	require.Error(t, k.VerifyMfa(ctx, "000001"))
	require.ErrorIs(t, k.VerifyMfa(ctx, "000002"), session.ErrMfaAttemptsExceeded)

	require.Eventually(t, func() bool {
		return k.State() == session.Anonymous
	}, time.Second, 10*time.Millisecond)
}

func TestKiosk_IsolatedFromPrimary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	primary := h.manager(t, primaryPolicy())
	k := h.kiosk(t, "2s")

	loginBob(t, primary)
	primaryAccess, _ := h.stored(t, "token")

	loginBob(t, k)
	kioskAccess, ok := h.stored(t, "kiosk_token")
	require.True(t, ok)
	require.NotEqual(t, primaryAccess, kioskAccess)

	stillPrimary, _ := h.stored(t, "token")
	require.Equal(t, primaryAccess, stillPrimary, "kiosk writes must not touch primary keys")

	require.NoError(t, k.Logout(ctx))
	h.requireStoreEmpty(t, "kiosk_")

	require.True(t, primary.IsLoggedIn())
	tok, err := primary.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, primaryAccess, tok.AccessToken)

	require.NoError(t, primary.Logout(ctx))
	loginBob(t, k)
	_, ok = h.stored(t, "kiosk_token")
	require.True(t, ok, "primary logout must not touch kiosk keys")
}

func TestKiosk_CustomerChangesOnLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	k := h.kiosk(t, "2s")

	first := k.CustomerID()
	require.NoError(t, k.Logout(ctx))
	require.Equal(t, first, k.CustomerID(), "nothing to reset")

	loginBob(t, k)
	require.NoError(t, k.Logout(ctx))
	require.NotEqual(t, first, k.CustomerID())
}
