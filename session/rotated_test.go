package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-client/session"
)

func TestRotatedTokens(t *testing.T) {
	now := time.Now()
	r := session.NewRotatedTokens(time.Hour)

	r.Add("r1", now)
	r.Add("", now)
	require.True(t, r.Contains("r1"))
	require.False(t, r.Contains("r2"))
	require.False(t, r.Contains(""))
	require.Equal(t, 1, r.Len())

	r.Cleanup(now.Add(30 * time.Minute))
	require.True(t, r.Contains("r1"))

	r.Cleanup(now.Add(2 * time.Hour))
	require.False(t, r.Contains("r1"))
	require.Equal(t, 0, r.Len())
}
