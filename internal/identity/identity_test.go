package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckylove/server/internal/cache"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveLocalToken(t *testing.T) {
	now := time.Now()
	token, err := IssueToken(testSecret, "user-1", "ana@example.com", time.Hour, now)
	require.NoError(t, err)

	s := NewSupabase(Config{JWTSecret: testSecret}, cache.NewMemory(), quietLogger())
	u, err := s.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
	assert.Equal(t, "ana@example.com", u.Email)
}

func TestResolveRejectsWrongSecretWithoutProvider(t *testing.T) {
	token, err := IssueToken("another-secret-that-is-long-enough-0000", "user-1", "", time.Hour, time.Now())
	require.NoError(t, err)

	s := NewSupabase(Config{JWTSecret: testSecret}, nil, quietLogger())
	_, err = s.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveExpiredToken(t *testing.T) {
	token, err := IssueToken(testSecret, "user-1", "", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	s := NewSupabase(Config{JWTSecret: testSecret}, nil, quietLogger())
	_, err = s.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveFallsBackToProviderAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"user-9","email":"beto@example.com","role":"authenticated"}`)
	}))
	defer srv.Close()

	s := NewSupabase(Config{URL: srv.URL, AnonKey: "anon"}, cache.NewMemory(), quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := s.Resolve(ctx, "opaque-token")
		require.NoError(t, err)
		assert.Equal(t, "user-9", u.ID)
	}
	assert.Equal(t, int32(1), calls.Load(), "identity should be served from cache")

	_, err := s.Resolve(ctx, "wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveProviderOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSupabase(Config{URL: srv.URL}, nil, quietLogger())
	_, err := s.Resolve(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidToken), "outage must not read as an invalid token")
}

func TestResolveEmptyToken(t *testing.T) {
	s := NewSupabase(Config{}, nil, quietLogger())
	_, err := s.Resolve(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken("", "u", "", time.Hour, time.Now())
	assert.Error(t, err)
}
