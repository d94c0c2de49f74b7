package tokenstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/tokenstore"
)

// recordingSink captures the bearer updates a store pushes.
type recordingSink struct {
	mu     sync.Mutex
	bearer string
	sets   int
	clears int
}

func (r *recordingSink) SetBearer(access string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bearer = access
	r.sets++
}

func (r *recordingSink) ClearBearer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bearer = ""
	r.clears++
}

func newStore(t *testing.T, backend tokenstore.Backend, prefix string, policy tokenstore.Policy, sink tokenstore.HeaderSink) *tokenstore.Store {
	t.Helper()
	s, err := tokenstore.New(backend, prefix, policy, tokenstore.WithHeaderSink(sink))
	require.NoError(t, err)
	return s
}

func TestStore_SetUpdatesHeaderSink(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	s := newStore(t, tokenstore.NewMemory(), tokenstore.PrimaryPrefix, tokenstore.Persistent, sink)

	require.NoError(t, s.Set(ctx, tokenstore.KeyRefresh, "r1"))
	require.Equal(t, 0, sink.sets, "only the access key drives the header")

	require.NoError(t, s.Set(ctx, tokenstore.KeyAccess, "a1"))
	require.Equal(t, "a1", sink.bearer)

	require.NoError(t, s.Clear(ctx))
	require.Equal(t, "", sink.bearer)
	require.Equal(t, 1, sink.clears)

	rec, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, rec.Empty())
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	backend := tokenstore.NewMemory()
	s := newStore(t, backend, tokenstore.PrimaryPrefix, tokenstore.Persistent, sink)

	require.NoError(t, s.Save(ctx, tokenstore.Record{Access: "a", Refresh: "r", User: `{"user_id":"1"}`}))
	require.Equal(t, "a", sink.bearer)

	rec, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, tokenstore.Record{Access: "a", Refresh: "r", User: `{"user_id":"1"}`}, rec)

	v, ok, err := backend.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", v)

	// Saving without an identity drops the stale one.
	require.NoError(t, s.Save(ctx, tokenstore.Record{Access: "a2", Refresh: "r2"}))
	_, err = s.Get(ctx, tokenstore.KeyUser)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	v, err = s.Get(ctx, tokenstore.KeyRefresh)
	require.NoError(t, err)
	require.Equal(t, "r2", v)
}

func TestStore_KioskIsolation(t *testing.T) {
	ctx := context.Background()
	shared := tokenstore.NewMemory()
	primarySink, kioskSink := &recordingSink{}, &recordingSink{}
	primary := newStore(t, shared, tokenstore.PrimaryPrefix, tokenstore.Persistent, primarySink)
	kiosk := newStore(t, shared, tokenstore.KioskPrefix, tokenstore.Ephemeral, kioskSink)

	require.NoError(t, primary.Save(ctx, tokenstore.Record{Access: "admin-access", Refresh: "admin-refresh", User: "{}"}))
	require.NoError(t, kiosk.Save(ctx, tokenstore.Record{Access: "kiosk-access", Refresh: "kiosk-refresh", User: "{}"}))

	p, err := primary.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "admin-access", p.Access)
	k, err := kiosk.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "kiosk-access", k.Access)

	require.NoError(t, kiosk.Clear(ctx))
	p, err = primary.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "admin-refresh", p.Refresh, "kiosk reset must not touch the admin session")
	require.Equal(t, "admin-access", primarySink.bearer)
	require.Equal(t, "", kioskSink.bearer)

	require.NoError(t, kiosk.Save(ctx, tokenstore.Record{Access: "k2", Refresh: "kr2"}))
	require.NoError(t, primary.Clear(ctx))
	k, err = kiosk.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "k2", k.Access)
}

func TestStore_EphemeralClearPurgesNamespace(t *testing.T) {
	ctx := context.Background()
	backend := tokenstore.NewMemory()
	kiosk := newStore(t, backend, tokenstore.KioskPrefix, tokenstore.Ephemeral, nil)

	require.NoError(t, kiosk.Save(ctx, tokenstore.Record{Access: "a", Refresh: "r"}))
	require.NoError(t, backend.Set(ctx, "kiosk_last_customer", "c-1"))
	require.NoError(t, backend.Set(ctx, "theme", "dark"))

	require.NoError(t, kiosk.Clear(ctx))
	require.Equal(t, 1, backend.Len())
	v, ok, err := backend.Get(ctx, "theme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dark", v)
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := tokenstore.New(nil, "", tokenstore.Persistent)
	require.Error(t, err)
}

func TestPolicy_String(t *testing.T) {
	require.Equal(t, "persistent", tokenstore.Persistent.String())
	require.Equal(t, "ephemeral", tokenstore.Ephemeral.String())
}
