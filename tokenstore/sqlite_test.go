package tokenstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-session-client/tokenstore"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, path string) *tokenstore.SQLite {
	t.Helper()
	s, err := tokenstore.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	first := openSQLite(t, path)
	store, err := tokenstore.New(first, tokenstore.PrimaryPrefix, tokenstore.Persistent)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tokenstore.Record{Access: "a1", Refresh: "r1", User: `{"user_id":"1"}`}))
	require.NoError(t, first.Close())

	second := openSQLite(t, path)
	reopened, err := tokenstore.New(second, tokenstore.PrimaryPrefix, tokenstore.Persistent)
	require.NoError(t, err)
	rec, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, tokenstore.Record{Access: "a1", Refresh: "r1", User: `{"user_id":"1"}`}, rec)
}

func TestSQLite_UpsertDeleteAndPrefix(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "session.db"))

	_, ok, err := s.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "token", "one"))
	require.NoError(t, s.Set(ctx, "token", "two"))
	v, ok, err := s.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", v)

	require.NoError(t, s.Set(ctx, "kiosk_token", "k"))
	require.NoError(t, s.Set(ctx, "kiosk_refresh", "kr"))
	require.NoError(t, s.DeletePrefix(ctx, "kiosk_"))
	_, ok, err = s.Get(ctx, "kiosk_token")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete(ctx, "token", "missing"))
	_, ok, err = s.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, s.Set(ctx, "", "x"))
	require.Error(t, s.DeletePrefix(ctx, ""))
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := tokenstore.OpenSQLite("  ")
	require.Error(t, err)
}
