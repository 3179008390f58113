package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"upkeep-bknd/internal/auth"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type versionStub struct {
	current int
	err     error
}

func (v versionStub) CheckTokenVersion(_ context.Context, _ string, ver int) (bool, error) {
	return ver == v.current, v.err
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context())))
	})
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestJWTAuth(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwtm := auth.NewJWTManager(key, "identity")

	good, err := jwtm.Sign(auth.Identity{UserID: "u-1", TokenVersion: 2}, auth.AccessToken, time.Minute)
	require.NoError(t, err)
	stale, err := jwtm.Sign(auth.Identity{UserID: "u-1", TokenVersion: 1}, auth.AccessToken, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		versions TokenVersionChecker
		status   int
		errMsg   string
	}{
		{"valid token", "Bearer " + good, versionStub{current: 2}, http.StatusOK, ""},
		{"missing header", "", versionStub{current: 2}, http.StatusUnauthorized, "missing authorization header"},
		{"not bearer", good, versionStub{current: 2}, http.StatusUnauthorized, "invalid token format"},
		{"garbage", "Bearer nope", versionStub{current: 2}, http.StatusUnauthorized, "invalid or expired token"},
		{"revoked version", "Bearer " + stale, versionStub{current: 2}, http.StatusUnauthorized, "token revoked or invalid"},
		{"version lookup fails", "Bearer " + good, versionStub{err: errors.New("db down")}, http.StatusInternalServerError, "internal server error"},
		{"no version check", "Bearer " + stale, nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(jwtm, tt.versions, zap.NewNop())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			m.JWTAuth(echoUser()).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u-1", rec.Body.String())
			} else {
				assert.Equal(t, tt.errMsg, errorBody(t, rec))
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	l := NewRateLimiter(rdb, "search", 2, time.Minute, zap.NewNop())
	l.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	h := l.Limit(echoUser())

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1235").Code)
	rec := do("10.0.0.1:1236")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", errorBody(t, rec))

	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234").Code, "other clients have their own window")

	l.now = func() time.Time { return time.Unix(1_700_000_000+60, 0) }
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234").Code, "next window resets")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	h := NewRateLimiter(rdb, "search", 1, time.Minute, zap.NewNop()).Limit(echoUser())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
