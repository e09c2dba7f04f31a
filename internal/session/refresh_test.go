package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// refreshConcurrently starts n callers, holds the renewal open until all have joined, then releases it.
func refreshConcurrently(t *testing.T, m *Manager, r *fakeRenewer, n int) ([]string, []error) {
	t.Helper()
	tokens := make([]string, n)
	errs := make([]error, n)

	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	for i := range n {
		go func() {
			defer done.Done()
			started.Done()
			tokens[i], errs[i] = m.RefreshAccessToken(context.Background())
		}()
	}

	started.Wait()
	select {
	case <-r.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("renewal never started")
	}
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	done.Wait()
	return tokens, errs
}

func TestRefreshAccessToken(t *testing.T) {
	t.Run("single flight success", func(t *testing.T) {
		r := &fakeRenewer{
			release: make(chan struct{}),
			seen:    make(chan string, 16),
			token:   &oauth2.Token{AccessToken: "new-access", RefreshToken: "new-refresh"},
		}
		f := newFixture(t, r)
		require.NoError(t, f.manager.SetTokens("old-access", "old-refresh"))

		tokens, errs := refreshConcurrently(t, f.manager, r, 10)

		assert.EqualValues(t, 1, r.calls.Load())
		for i := range tokens {
			require.NoError(t, errs[i])
			assert.Equal(t, "new-access", tokens[i])
		}
		assert.Equal(t, "new-access", f.manager.AccessToken())
		assert.Equal(t, "new-refresh", f.manager.RefreshToken())
		assert.Equal(t, "new-access", f.jar.Get(AccessTokenKey))
		assert.Zero(t, f.notifier.Redirects())
	})

	t.Run("single flight failure", func(t *testing.T) {
		r := &fakeRenewer{
			release: make(chan struct{}),
			seen:    make(chan string, 16),
			err:     errors.New("connection reset"),
		}
		f := newFixture(t, r)
		require.NoError(t, f.manager.SetTokens("old-access", "old-refresh"))

		_, errs := refreshConcurrently(t, f.manager, r, 5)

		assert.EqualValues(t, 1, r.calls.Load())
		for _, err := range errs {
			assert.ErrorIs(t, err, shared.ErrRefreshFailed)
			assert.Equal(t, errs[0], err)
		}
		assert.False(t, f.manager.HasValidTokens())
		assert.Equal(t, 1, f.notifier.Redirects())
	})

	t.Run("sends the refresh token", func(t *testing.T) {
		r := &fakeRenewer{seen: make(chan string, 1), token: &oauth2.Token{AccessToken: "a2"}}
		f := newFixture(t, r)
		require.NoError(t, f.manager.SetTokens("a1", `"r1"`))

		tok, err := f.manager.RefreshAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a2", tok)
		assert.Equal(t, "r1", <-r.seen)
		assert.Equal(t, "r1", f.manager.RefreshToken(), "refresh token kept when not rotated")
	})

	t.Run("no refresh token", func(t *testing.T) {
		r := &fakeRenewer{}
		f := newFixture(t, r)
		require.NoError(t, f.store.Set(AccessTokenKey, "abc"))

		_, err := f.manager.RefreshAccessToken(context.Background())
		assert.ErrorIs(t, err, shared.ErrNoRefreshToken)
		assert.Zero(t, r.calls.Load())
		assert.Empty(t, f.manager.AccessToken())
		assert.Equal(t, 1, f.notifier.Redirects())
	})

	t.Run("empty access token in response", func(t *testing.T) {
		r := &fakeRenewer{token: &oauth2.Token{AccessToken: " "}}
		f := newFixture(t, r)
		require.NoError(t, f.manager.SetTokens("abc", "xyz"))

		_, err := f.manager.RefreshAccessToken(context.Background())
		assert.ErrorIs(t, err, shared.ErrRefreshFailed)
		assert.False(t, f.manager.HasValidTokens())
	})

	t.Run("nil renewer", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.manager.SetTokens("abc", "xyz"))

		_, err := f.manager.RefreshAccessToken(context.Background())
		assert.ErrorIs(t, err, shared.ErrRefreshFailed)
	})

	t.Run("caller cancellation does not cancel the flight", func(t *testing.T) {
		r := &fakeRenewer{
			release: make(chan struct{}),
			seen:    make(chan string, 2),
			token:   &oauth2.Token{AccessToken: "new-access"},
		}
		f := newFixture(t, r)
		require.NoError(t, f.manager.SetTokens("abc", "xyz"))

		ctx, cancel := context.WithCancel(context.Background())
		cancelled := make(chan error, 1)
		go func() {
			_, err := f.manager.RefreshAccessToken(ctx)
			cancelled <- err
		}()
		<-r.seen

		waiter := make(chan string, 1)
		go func() {
			tok, _ := f.manager.RefreshAccessToken(context.Background())
			waiter <- tok
		}()

		cancel()
		assert.ErrorIs(t, <-cancelled, context.Canceled)

		close(r.release)
		assert.Equal(t, "new-access", <-waiter)
		assert.EqualValues(t, 1, r.calls.Load())
		assert.Equal(t, "new-access", f.manager.AccessToken())
	})

	t.Run("sequential refreshes each renew", func(t *testing.T) {
		r := &fakeRenewer{token: &oauth2.Token{AccessToken: "a2"}}
		f := newFixture(t, r)
		require.NoError(t, f.manager.SetTokens("a1", "r1"))

		for range 2 {
			_, err := f.manager.RefreshAccessToken(context.Background())
			require.NoError(t, err)
		}
		assert.EqualValues(t, 2, r.calls.Load())
	})

	t.Run("failure after an external sign-in clears the new pair", func(t *testing.T) {
		r := &fakeRenewer{err: errors.New("boom")}
		f := newFixture(t, r)
		require.NoError(t, f.manager.SetTokens("a1", "r1"))
		f.manager.Expire(shared.ErrAuthExpired)
		require.Equal(t, 1, f.notifier.Redirects())

		require.NoError(t, f.store.Set(AccessTokenKey, "a2"))
		require.NoError(t, f.jar.Set(RefreshTokenKey, "r2"))

		_, err := f.manager.RefreshAccessToken(context.Background())
		require.ErrorIs(t, err, shared.ErrRefreshFailed)

		assert.EqualValues(t, 1, r.calls.Load())
		assert.Empty(t, f.manager.AccessToken())
		assert.Empty(t, f.manager.RefreshToken())
		assert.Empty(t, f.jar.Get(RefreshTokenKey))
		assert.False(t, f.manager.HasValidTokens())
		assert.Equal(t, 2, f.notifier.Redirects())
	})
}

func TestHTTPRenewer(t *testing.T) {
	t.Run("success with rotation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, RefreshPath, r.URL.Path)
			assert.Equal(t, "Bearer r1", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"success","accessToken":"a2","refreshToken":"r2"}`))
		}))
		defer srv.Close()

		tok, err := NewHTTPRenewer(srv.URL+"/", nil).Renew(context.Background(), "r1")
		require.NoError(t, err)
		assert.Equal(t, "a2", tok.AccessToken)
		assert.Equal(t, "r2", tok.RefreshToken)
	})

	t.Run("success without rotation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"success","accessToken":"a2"}`))
		}))
		defer srv.Close()

		tok, err := NewHTTPRenewer(srv.URL, srv.Client()).Renew(context.Background(), "r1")
		require.NoError(t, err)
		assert.Empty(t, tok.RefreshToken)
	})

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"expired"}`, "status 401"},
		{"server error", http.StatusInternalServerError, ``, "status 500"},
		{"malformed json", http.StatusOK, `{not json`, "failed to decode"},
		{"missing access token", http.StatusOK, `{"status":"success"}`, "missing access token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPRenewer(srv.URL, nil).Renew(context.Background(), "r1")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewHTTPRenewer(url, nil).Renew(context.Background(), "r1")
		assert.ErrorContains(t, err, "request failed")
	})
}
