package transport_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/transport"
)

type fakeRenewer struct {
	bearer   *transport.Bearer
	valid    *atomic.Value
	delay    time.Duration
	err      error
	refresh  atomic.Int32
	logouts  atomic.Int32
	sequence atomic.Int32
}

func (f *fakeRenewer) Renew(ctx context.Context, stale string) (string, error) {
	f.refresh.Add(1)
	time.Sleep(f.delay)
	if f.err != nil {
		return "", f.err
	}
	next := fmt.Sprintf("access-%d", f.sequence.Add(1))
	f.valid.Store(next)
	f.bearer.SetBearer(next)
	return next, nil
}

func (f *fakeRenewer) Logout(ctx context.Context) error {
	f.logouts.Add(1)
	f.bearer.ClearBearer()
	return nil
}

type fixture struct {
	server  *httptest.Server
	bearer  *transport.Bearer
	renewer *fakeRenewer
	client  *http.Client
	valid   *atomic.Value
	seen    chan string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	valid := &atomic.Value{}
	valid.Store("access-0")
	seen := make(chan string, 64)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(transport.RequestIDHeader)
		if r.Header.Get("Authorization") != "Bearer "+valid.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte("ok:"), body...))
	}))
	t.Cleanup(srv.Close)

	bearer := transport.NewBearer()
	bearer.SetBearer("access-0")
	renewer := &fakeRenewer{bearer: bearer, valid: valid}
	ic := transport.NewInterceptor(bearer, renewer)

	return &fixture{server: srv, bearer: bearer, renewer: renewer, client: ic.Client(5 * time.Second), valid: valid, seen: seen}
}

func (f *fixture) expireAccess() {
	f.valid.Store("server-rotated")
}

func TestInterceptor_PassesThroughWhenValid(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client.Get(f.server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, f.renewer.refresh.Load())
}

func TestInterceptor_RetriesOnceAfterRefresh(t *testing.T) {
	f := newFixture(t)
	f.expireAccess()

	resp, err := f.client.Post(f.server.URL, "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok:payload", string(body))
	require.EqualValues(t, 1, f.renewer.refresh.Load())
	require.Equal(t, "access-1", f.bearer.Access())

	first, second := <-f.seen, <-f.seen
	require.NotEmpty(t, first)
	require.Equal(t, first, second)
}

func TestInterceptor_ConcurrentFailuresShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	f.renewer.delay = 100 * time.Millisecond
	f.expireAccess()

	const n = 10
	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.client.Get(f.server.URL)
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.StatusCode
			_ = resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, statuses[i])
	}
	require.EqualValues(t, 1, f.renewer.refresh.Load())
}

func TestInterceptor_SecondUnauthorizedIsReturned(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	resp, err := f.client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 1, f.renewer.refresh.Load())
}

func TestInterceptor_TransportFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.renewer.err = &apperrors.TransportError{Op: "refresh", Err: io.ErrUnexpectedEOF}
	f.expireAccess()

	_, err := f.client.Get(f.server.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrTransport)
	require.EqualValues(t, 0, f.renewer.logouts.Load())
	require.Equal(t, "access-0", f.bearer.Access())
}

func TestInterceptor_RejectedRefreshLogsOut(t *testing.T) {
	f := newFixture(t)
	f.renewer.err = &apperrors.AuthError{Status: http.StatusUnauthorized, Reason: "token_not_valid"}
	f.expireAccess()

	_, err := f.client.Get(f.server.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrSessionNotRenewable)
	require.EqualValues(t, 1, f.renewer.logouts.Load())
	require.Empty(t, f.bearer.Access())
}

func TestInterceptor_SupersededSessionIsNotLoggedOut(t *testing.T) {
	f := newFixture(t)
	f.renewer.err = fmt.Errorf("renew: %w", apperrors.ErrSessionSuperseded)
	f.expireAccess()

	_, err := f.client.Get(f.server.URL)
	require.ErrorIs(t, err, apperrors.ErrSessionNotRenewable)
	require.ErrorIs(t, err, apperrors.ErrSessionSuperseded)
	require.EqualValues(t, 0, f.renewer.logouts.Load())
}

func TestInterceptor_AnonymousRequestIsNotRenewed(t *testing.T) {
	f := newFixture(t)
	f.bearer.ClearBearer()

	resp, err := f.client.Get(f.server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, f.renewer.refresh.Load())
}

func TestInterceptor_NonReplayableBodyIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.expireAccess()

	req, err := http.NewRequest(http.MethodPost, f.server.URL, io.NopCloser(strings.NewReader("once")))
	require.NoError(t, err)
	req.GetBody = nil

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 0, f.renewer.refresh.Load())
}

func TestBearer_TokenSource(t *testing.T) {
	b := transport.NewBearer()
	_, err := b.Token()
	require.ErrorIs(t, err, apperrors.ErrNoToken)

	b.SetBearer("abc")
	tok, err := b.Token()
	require.NoError(t, err)
	require.Equal(t, "abc", tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())

	b.ClearBearer()
	require.Empty(t, b.Access())
}
