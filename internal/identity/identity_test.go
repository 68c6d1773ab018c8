package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute).WithClock(func() time.Time { return now })

	require.NoError(t, cache.Set(ctx, "Admin@Example.com ", "auth0|1"))
	subject, ok, err := cache.Get(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "auth0|1", subject)

	now = now.Add(time.Minute)
	_, ok, err = cache.Get(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestMemoryCacheInvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)

	require.NoError(t, cache.Set(ctx, "a@example.com", "auth0|a"))
	require.NoError(t, cache.Set(ctx, "b@example.com", "auth0|b"))

	require.NoError(t, cache.Invalidate(ctx, "A@example.com"))
	_, ok, _ := cache.Get(ctx, "a@example.com")
	assert.False(t, ok)
	_, ok, _ = cache.Get(ctx, "b@example.com")
	assert.True(t, ok)

	require.NoError(t, cache.Clear(ctx))
	assert.Zero(t, cache.Len())
}

func setupRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, s
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, s := setupRedisCache(t, time.Hour)

	require.NoError(t, cache.Set(ctx, "Admin@Example.com", "auth0|1"))
	assert.True(t, s.Exists("identity:admin@example.com"))

	subject, ok, err := cache.Get(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "auth0|1", subject)

	_, ok, err = cache.Get(ctx, "missing@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheExpires(t *testing.T) {
	ctx := context.Background()
	cache, s := setupRedisCache(t, time.Minute)

	require.NoError(t, cache.Set(ctx, "a@example.com", "auth0|a"))
	s.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	cache, s := setupRedisCache(t, 0)

	require.NoError(t, cache.Set(ctx, "a@example.com", "auth0|a"))
	require.NoError(t, cache.Set(ctx, "b@example.com", "auth0|b"))
	require.NoError(t, s.Set("refresh:other", "keep"))

	require.NoError(t, cache.Invalidate(ctx, "a@example.com"))
	assert.False(t, s.Exists("identity:a@example.com"))

	require.NoError(t, cache.Clear(ctx))
	assert.False(t, s.Exists("identity:b@example.com"))
	assert.True(t, s.Exists("refresh:other"))
}

func TestRedisCacheWithClient(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cache := NewRedisCacheWithClient(client, 0)
	defer cache.Close()

	assert.NoError(t, cache.Ping(context.Background()))
}

func signedIDToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	raw, err := token.SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return raw
}

func TestResolverPasswordGrantIsCached(t *testing.T) {
	idToken := signedIDToken(t, "auth0|resolved")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/oauth/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "password" || r.Form.Get("username") != "admin@example.com" ||
			r.Form.Get("password") != "hunter2" || r.Form.Get("client_id") != "client" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	defer srv.Close()

	cache := NewMemoryCache(0)
	resolver, err := NewResolver(Options{Domain: srv.URL, ClientID: "client", ClientSecret: "secret", HTTPClient: srv.Client()}, cache)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		subject, err := resolver.Resolve(ctx, "admin@example.com", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "auth0|resolved", subject)
	}
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, resolver.Cache().Invalidate(ctx, "admin@example.com"))
	_, err = resolver.Resolve(ctx, "admin@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	_, err = resolver.Resolve(ctx, "admin@example.com", "wrong")
	require.NoError(t, err, "cached subjects are served without a grant")

	_, err = resolver.Resolve(ctx, "other@example.com", "wrong")
	assert.Error(t, err)
}

func TestResolverRequiresIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","token_type":"Bearer"}`))
	}))
	defer srv.Close()

	resolver, err := NewResolver(Options{Domain: srv.URL, ClientID: "client", HTTPClient: srv.Client()}, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrNoIDToken)
}

func TestNewResolverValidatesOptions(t *testing.T) {
	_, err := NewResolver(Options{ClientID: "client"}, nil)
	assert.Error(t, err)
}

func TestTokenURL(t *testing.T) {
	assert.Equal(t, "https://tenant.auth0.com/oauth/token", tokenURL("tenant.auth0.com"))
	assert.Equal(t, "http://127.0.0.1:9000/oauth/token", tokenURL("http://127.0.0.1:9000/"))
}

func TestSubjectFromIDTokenRejectsGarbage(t *testing.T) {
	_, err := SubjectFromIDToken("not-a-jwt")
	assert.Error(t, err)
}
